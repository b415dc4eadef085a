package delivery

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// SESConfig configures the AWS SES v2 channel.
type SESConfig struct {
	Region    string `yaml:"region" mapstructure:"region"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	FromName  string `yaml:"from_name" mapstructure:"from_name"`
	FromEmail string `yaml:"from_email" mapstructure:"from_email"`
	BCC       string `yaml:"bcc" mapstructure:"bcc"`
}

// sesAPI is the slice of the SES client the sender uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESDeliverer sends via AWS SES v2. The configured BCC address is stamped
// on every message; nothing leaves without it.
type SESDeliverer struct {
	client sesAPI
	cfg    SESConfig
}

// NewSES builds an SES deliverer from static credentials.
func NewSES(ctx context.Context, cfg SESConfig) (*SESDeliverer, error) {
	if cfg.BCC == "" {
		return nil, eris.New("delivery: bcc address is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, eris.Wrap(err, "delivery: load aws config")
	}

	return &SESDeliverer{client: sesv2.NewFromConfig(awsCfg), cfg: cfg}, nil
}

func (d *SESDeliverer) Send(ctx context.Context, msg Message) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", d.cfg.FromName, d.cfg.FromEmail)),
		Destination: &types.Destination{
			ToAddresses:  []string{msg.To},
			BccAddresses: []string{d.cfg.BCC},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("wave"), Value: aws.String(msg.Wave)},
		},
	}

	out, err := d.client.SendEmail(ctx, input)
	if err != nil {
		return "", &DeliveryError{To: msg.To, Err: err}
	}

	id := ""
	if out.MessageId != nil {
		id = *out.MessageId
	}
	zap.L().Info("delivery: sent",
		zap.String("to", msg.To),
		zap.String("wave", msg.Wave),
		zap.String("message_id", id),
	)
	return id, nil
}
