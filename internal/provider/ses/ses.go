// Package ses sends mail and reads account state through AWS SES v2.
package ses

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/shineum/skillkit/internal/email"
)

// Config holds what New needs to build a client.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
}

// API is the subset of the SES v2 client the tool uses.
type API interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
	ListEmailIdentities(ctx context.Context, params *sesv2.ListEmailIdentitiesInput, optFns ...func(*sesv2.Options)) (*sesv2.ListEmailIdentitiesOutput, error)
}

// Provider sends mail via SES.
// @MX:ANCHOR: External system integration point for AWS SES
type Provider struct {
	sender string
	client API
}

// New loads the default AWS configuration for cfg.Region. Static keys, when
// both are set, replace the default credential chain.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewWithClient(cfg.Sender, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient returns a Provider using client, used for testing.
func NewWithClient(sender string, client API) *Provider {
	return &Provider{sender: sender, client: client}
}

// Client exposes the underlying API for read-only account queries.
func (p *Provider) Client() API {
	return p.client
}

// Send delivers msg once. Messages with attachments go out as raw MIME;
// others use the simple content form.
func (p *Provider) Send(ctx context.Context, msg *email.Email) (string, error) {
	var input *sesv2.SendEmailInput

	if len(msg.Attachments) > 0 {
		// Bcc recipients travel in Destination only.
		headers := *msg
		headers.Bcc = nil
		raw, err := email.BuildRaw(p.sender, &headers)
		if err != nil {
			return "", fmt.Errorf("failed to build raw message: %w", err)
		}
		input = &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(p.sender),
			Destination:      destination(msg),
			Content:          &types.EmailContent{Raw: &types.RawMessage{Data: raw}},
		}
	} else {
		input = buildSimpleInput(p.sender, msg)
	}

	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("SES SendEmail: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "ses"
}

func destination(msg *email.Email) *types.Destination {
	return &types.Destination{
		ToAddresses:  msg.To,
		CcAddresses:  msg.Cc,
		BccAddresses: msg.Bcc,
	}
}

func utf8Content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

// buildSimpleInput creates a SendEmailInput for messages without attachments.
func buildSimpleInput(sender string, msg *email.Email) *sesv2.SendEmailInput {
	body := &types.Body{}
	if msg.HtmlBody != "" {
		body.Html = utf8Content(msg.HtmlBody)
	}
	if msg.TextBody != "" {
		body.Text = utf8Content(msg.TextBody)
	}

	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination:      destination(msg),
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8Content(msg.Subject),
				Body:    body,
			},
		},
	}
}
