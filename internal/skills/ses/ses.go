// Package ses is the SES tool: send mail through AWS SES v2 and inspect
// the sending account.
package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/email"
	"github.com/shineum/skillkit/internal/format"
	"github.com/shineum/skillkit/internal/provider"
	sesprovider "github.com/shineum/skillkit/internal/provider/ses"
)

const setupHint = "set SES_REGION and SES_SENDER; credentials come from SES_ACCESS_KEY_ID/SES_SECRET_ACCESS_KEY or the default AWS chain"

// newProvider builds the live provider. Tests replace it.
var newProvider = func(ctx context.Context, env *cli.Env) (*sesprovider.Provider, error) {
	c := env.Config.SES
	return sesprovider.New(ctx, sesprovider.Config{
		Region:          c.Region,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		Sender:          c.Sender,
	})
}

// Program returns the ses command set.
func Program() *cli.Program {
	return &cli.Program{
		Name:  "ses",
		Short: "send mail through AWS SES",
		Commands: []*cli.Command{
			{
				Name:       "send",
				Usage:      "--to a [--to b]* --subject s --body b [--cc x]* [--bcc x]* [--html] [--attach path]* [--dry-run]",
				Short:      "send a message from SES_SENDER",
				Repeatable: email.SendRepeatable,
				Run:        send,
			},
			{
				Name:  "quota",
				Short: "show sending limits and usage",
				Run:   quota,
			},
			{
				Name:  "identities",
				Usage: "[--format table|json|csv]",
				Short: "list verified domains and addresses",
				Run:   identities,
			},
		},
	}
}

// apiError converts SES service errors to the shared error form.
func apiError(err error) error {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return err
	}
	status := 0
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		status = re.HTTPStatusCode()
	}
	return &cli.APIError{Service: "SES", Status: status, Message: fmt.Sprintf("%s: %s", ae.ErrorCode(), ae.ErrorMessage())}
}

func live(ctx context.Context, env *cli.Env, needSender bool) (*sesprovider.Provider, error) {
	c := env.Config.SES
	if c.Region == "" || (needSender && !env.Config.SESConfigured()) {
		return nil, cli.NotConfigured("SES", setupHint)
	}
	return newProvider(ctx, env)
}

func send(ctx context.Context, env *cli.Env, a *args.Args) error {
	msg, err := email.FromArgs(a)
	if err != nil {
		return err
	}
	p, err := provider.Select(a.Bool("dry-run"), env.Stdout, "ses", func() (provider.Provider, error) {
		return live(ctx, env, true)
	})
	if err != nil {
		return err
	}
	return apiError(provider.Deliver(ctx, env.Stdout, p, msg))
}

func quota(ctx context.Context, env *cli.Env, _ *args.Args) error {
	p, err := live(ctx, env, false)
	if err != nil {
		return err
	}
	out, err := p.Client().GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return apiError(err)
	}

	env.Printf("Region:            %s\n", env.Config.SES.Region)
	env.Printf("Production access: %t\n", out.ProductionAccessEnabled)
	env.Printf("Sending enabled:   %t\n", out.SendingEnabled)
	if q := out.SendQuota; q != nil {
		env.Printf("Sent last 24h:     %.0f of %.0f\n", q.SentLast24Hours, q.Max24HourSend)
		env.Printf("Max send rate:     %.0f/s\n", q.MaxSendRate)
	}
	return nil
}

func identities(ctx context.Context, env *cli.Env, a *args.Args) error {
	mode, err := format.ParseMode(a.StringOr("format", ""))
	if err != nil {
		return err
	}
	p, err := live(ctx, env, false)
	if err != nil {
		return err
	}

	res := &format.Result{Columns: []string{"identity", "type", "status", "sending"}}
	var token *string
	for {
		out, err := p.Client().ListEmailIdentities(ctx, &sesv2.ListEmailIdentitiesInput{NextToken: token})
		if err != nil {
			return apiError(err)
		}
		for _, id := range out.EmailIdentities {
			res.Rows = append(res.Rows, []any{aws.ToString(id.IdentityName), string(id.IdentityType), string(id.VerificationStatus), id.SendingEnabled})
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		token = out.NextToken
	}
	return format.Write(env.Stdout, mode, res)
}
