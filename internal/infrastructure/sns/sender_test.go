package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	in  *sns.PublishInput
	err error
}

func (f *fakePublisher) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestSendSMS_WithOrigination(t *testing.T) {
	fp := &fakePublisher{}
	s := &sender{client: fp}

	require.NoError(t, s.SendSMS(context.Background(), "+15550000000", "+15551234567", "Your OTP password is 123456"))

	require.NotNil(t, fp.in)
	assert.Equal(t, "+15551234567", aws.ToString(fp.in.PhoneNumber))
	assert.Equal(t, "Your OTP password is 123456", aws.ToString(fp.in.Message))
	assert.Equal(t, "+15550000000", aws.ToString(fp.in.MessageAttributes[attrOrigination].StringValue))
	assert.Equal(t, "Transactional", aws.ToString(fp.in.MessageAttributes[attrSMSType].StringValue))
}

func TestSendSMS_WithoutOrigination(t *testing.T) {
	fp := &fakePublisher{}
	s := &sender{client: fp}

	require.NoError(t, s.SendSMS(context.Background(), "", "+15551234567", "hi"))

	_, ok := fp.in.MessageAttributes[attrOrigination]
	assert.False(t, ok)
}

func TestSendSMS_Error(t *testing.T) {
	s := &sender{client: &fakePublisher{err: errors.New("throttled")}}
	err := s.SendSMS(context.Background(), "", "+15551234567", "hi")
	assert.ErrorContains(t, err, "sns publish")
}
