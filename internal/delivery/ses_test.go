package delivery

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (c *captureSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	c.input = params
	if c.err != nil {
		return nil, c.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-msg-1")}, nil
}

func TestSESDeliverer_BCCOnEverySend(t *testing.T) {
	api := &captureSES{}
	d := &SESDeliverer{client: api, cfg: SESConfig{
		FromName: "Sales Team", FromEmail: "sales@example.com", BCC: "outreach@example.com",
	}}

	id, err := d.Send(context.Background(), Message{
		To: "jane@acme.com", Subject: "Hello", Body: "Hi Jane", Wave: "w1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-msg-1", id)

	require.NotNil(t, api.input)
	assert.Equal(t, []string{"jane@acme.com"}, api.input.Destination.ToAddresses)
	assert.Equal(t, []string{"outreach@example.com"}, api.input.Destination.BccAddresses)
	assert.Equal(t, "Sales Team <sales@example.com>", *api.input.FromEmailAddress)
}

func TestSESDeliverer_FailureWrapsDeliveryError(t *testing.T) {
	api := &captureSES{err: errors.New("throttled")}
	d := &SESDeliverer{client: api, cfg: SESConfig{BCC: "outreach@example.com"}}

	_, err := d.Send(context.Background(), Message{To: "jane@acme.com"})
	var dErr *DeliveryError
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, "jane@acme.com", dErr.To)
}

func TestNewSES_RequiresBCC(t *testing.T) {
	_, err := NewSES(context.Background(), SESConfig{Region: "us-east-1"})
	assert.Error(t, err)
}
