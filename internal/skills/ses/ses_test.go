package ses

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/skillkit/internal/cli"
	"github.com/shineum/skillkit/internal/cli/clitest"
	"github.com/shineum/skillkit/internal/config"
	sesprovider "github.com/shineum/skillkit/internal/provider/ses"
)

type fakeSES struct {
	sent    []*sesv2.SendEmailInput
	sendErr error
	pages   [][]types.IdentityInfo
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, in)
	return &sesv2.SendEmailOutput{MessageId: aws.String("0100-abc")}, nil
}

func (f *fakeSES) GetAccount(context.Context, *sesv2.GetAccountInput, ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error) {
	return &sesv2.GetAccountOutput{
		ProductionAccessEnabled: true,
		SendingEnabled:          true,
		SendQuota:               &types.SendQuota{Max24HourSend: 50000, MaxSendRate: 14, SentLast24Hours: 120},
	}, nil
}

func (f *fakeSES) ListEmailIdentities(_ context.Context, in *sesv2.ListEmailIdentitiesInput, _ ...func(*sesv2.Options)) (*sesv2.ListEmailIdentitiesOutput, error) {
	page := 0
	if in.NextToken != nil {
		page = 1
	}
	out := &sesv2.ListEmailIdentitiesOutput{EmailIdentities: f.pages[page]}
	if page+1 < len(f.pages) {
		out.NextToken = aws.String("next")
	}
	return out, nil
}

func useFake(t *testing.T, f *fakeSES) {
	t.Helper()
	orig := newProvider
	newProvider = func(_ context.Context, env *cli.Env) (*sesprovider.Provider, error) {
		return sesprovider.NewWithClient(env.Config.SES.Sender, f), nil
	}
	t.Cleanup(func() { newProvider = orig })
}

func sesConfig(t *testing.T) *config.Config {
	cfg := clitest.Config(t)
	cfg.SES.Region = "us-east-1"
	cfg.SES.Sender = "noreply@example.com"
	return cfg
}

func TestSend(t *testing.T) {
	f := &fakeSES{}
	useFake(t, f)

	res := clitest.Run(t, Program(), sesConfig(t), clitest.Options{},
		"send", "--to", "a@example.com", "--to", "b@example.com", "--subject", "Hi", "--body", "hello")
	require.Equal(t, 0, res.Code, res.Stderr)
	assert.Equal(t, "Sent via ses (id 0100-abc)\n", res.Stdout)

	require.Len(t, f.sent, 1)
	assert.Equal(t, "noreply@example.com", aws.ToString(f.sent[0].FromEmailAddress))
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, f.sent[0].Destination.ToAddresses)
}

func TestSend_DryRunNeedsNoConfig(t *testing.T) {
	f := &fakeSES{}
	useFake(t, f)

	res := clitest.Run(t, Program(), clitest.Config(t), clitest.Options{},
		"send", "--to", "a@example.com", "--subject", "Hi", "--body", "hello", "--dry-run")
	require.Equal(t, 0, res.Code, res.Stderr)
	assert.Contains(t, res.Stdout, "Dry run: not sent via ses")
	assert.Empty(t, f.sent)
}

func TestSend_NotConfigured(t *testing.T) {
	cfg := clitest.Config(t)
	cfg.SES.Region = "us-east-1"

	res := clitest.Run(t, Program(), cfg, clitest.Options{}, "send", "--to", "a@example.com", "--subject", "Hi", "--body", "x")
	assert.Equal(t, 1, res.Code)
	assert.Contains(t, res.Stderr, "Error: SES is not configured\n  set SES_REGION and SES_SENDER")
}

func TestSend_ServiceError(t *testing.T) {
	useFake(t, &fakeSES{sendErr: &smithy.GenericAPIError{Code: "MessageRejected", Message: "Email address is not verified."}})

	res := clitest.Run(t, Program(), sesConfig(t), clitest.Options{}, "send", "--to", "a@example.com", "--subject", "Hi", "--body", "x")
	assert.Equal(t, 1, res.Code)
	assert.Equal(t, "Error: SES: MessageRejected: Email address is not verified.\n", res.Stderr)
}

func TestQuota(t *testing.T) {
	useFake(t, &fakeSES{})

	cfg := clitest.Config(t)
	cfg.SES.Region = "eu-west-1"
	res := clitest.Run(t, Program(), cfg, clitest.Options{}, "quota")
	require.Equal(t, 0, res.Code, res.Stderr)
	assert.Contains(t, res.Stdout, "Region:            eu-west-1\n")
	assert.Contains(t, res.Stdout, "Sent last 24h:     120 of 50000\n")
	assert.Contains(t, res.Stdout, "Max send rate:     14/s\n")
}

func TestIdentities_Pages(t *testing.T) {
	useFake(t, &fakeSES{pages: [][]types.IdentityInfo{
		{{IdentityName: aws.String("example.com"), IdentityType: types.IdentityTypeDomain, VerificationStatus: types.VerificationStatusSuccess, SendingEnabled: true}},
		{{IdentityName: aws.String("ops@example.org"), IdentityType: types.IdentityTypeEmailAddress, VerificationStatus: types.VerificationStatusPending}},
	}})

	res := clitest.Run(t, Program(), sesConfig(t), clitest.Options{}, "identities", "--format", "csv")
	require.Equal(t, 0, res.Code, res.Stderr)
	assert.Equal(t, "identity,type,status,sending\nexample.com,DOMAIN,SUCCESS,true\nops@example.org,EMAIL_ADDRESS,PENDING,false\n", res.Stdout)
}
