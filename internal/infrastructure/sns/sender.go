package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/dishdash-auth/internal/config"
	awsinfra "github.com/dishdash-auth/internal/infrastructure/aws"
)

const (
	attrSMSType     = "AWS.SNS.SMS.SMSType"
	attrOrigination = "AWS.MM.SMS.OriginationNumber"
)

// SMSSender sends SMS messages via AWS SNS.
type SMSSender interface {
	SendSMS(ctx context.Context, from, to, body string) error
}

type publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type sender struct {
	client publisher
}

func NewSender(ctx context.Context, cfg *config.Config) (SMSSender, error) {
	awsCfg, err := awsinfra.LoadConfig(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return nil, err
	}
	var opts []func(*sns.Options)
	if cfg.AWSEndpointURL != "" {
		opts = append(opts, func(o *sns.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
		})
	}
	return &sender{client: sns.NewFromConfig(awsCfg, opts...)}, nil
}

// SendSMS publishes a transactional SMS. from is used as the origination
// number when set.
func (s *sender) SendSMS(ctx context.Context, from, to, body string) error {
	_, err := s.client.Publish(ctx, publishInput(from, to, body))
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

func publishInput(from, to, body string) *sns.PublishInput {
	attrs := map[string]types.MessageAttributeValue{
		attrSMSType: {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if from != "" {
		attrs[attrOrigination] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(from)}
	}
	return &sns.PublishInput{
		PhoneNumber:       aws.String(to),
		Message:           aws.String(body),
		MessageAttributes: attrs,
	}
}
