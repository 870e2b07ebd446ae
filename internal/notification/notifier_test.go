package notification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/monitor"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, input)
	return &ses.SendEmailOutput{}, f.err
}

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, input *sns.PublishInput) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, input)
	return &sns.PublishOutput{}, f.err
}

func notificationConfig(email, sms bool) config.NotificationConfig {
	cfg := config.NotificationConfig{}
	cfg.Email.Enabled = email
	cfg.Email.FromEmail = "alerts@example.com"
	cfg.Email.ToEmail = "oncall@example.com"
	cfg.SMS.Enabled = sms
	cfg.SMS.PhoneNumber = "+15550001111"
	return cfg
}

func testAlert() monitor.Alert {
	return monitor.Alert{
		ID:        "alert-1",
		Severity:  monitor.SeverityCritical,
		Tier:      "standard",
		Metric:    "latency_ema",
		Value:     15000,
		Threshold: 14000,
		Message:   "latency threshold exceeded for tier standard",
		CreatedAt: time.Now().UTC(),
	}
}

func TestNotifyAlertSendsEmailAndSMS(t *testing.T) {
	sesClient := &fakeSES{}
	snsClient := &fakeSNS{}
	n := New(notificationConfig(true, true), sesClient, snsClient, logger.NewNoOpLogger())

	require.NoError(t, n.NotifyAlert(context.Background(), testAlert()))

	require.Len(t, sesClient.inputs, 1)
	assert.Equal(t, "alerts@example.com", *sesClient.inputs[0].Source)
	assert.Contains(t, *sesClient.inputs[0].Message.Subject.Data, "standard")

	require.Len(t, snsClient.inputs, 1)
	assert.Equal(t, "+15550001111", *snsClient.inputs[0].PhoneNumber)
	assert.Contains(t, *snsClient.inputs[0].Message, "critical")
}

func TestNotifyAlertRespectsDisabledChannels(t *testing.T) {
	sesClient := &fakeSES{}
	snsClient := &fakeSNS{}
	n := New(notificationConfig(true, false), sesClient, snsClient, logger.NewNoOpLogger())

	require.NoError(t, n.NotifyAlert(context.Background(), testAlert()))

	assert.Len(t, sesClient.inputs, 1)
	assert.Empty(t, snsClient.inputs)
}

func TestNotifyAlertReturnsFirstDeliveryError(t *testing.T) {
	sesClient := &fakeSES{err: fmt.Errorf("ses throttled")}
	snsClient := &fakeSNS{}
	n := New(notificationConfig(true, true), sesClient, snsClient, logger.NewNoOpLogger())

	err := n.NotifyAlert(context.Background(), testAlert())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ses throttled")
	assert.Len(t, snsClient.inputs, 1, "sms still attempted after email failure")
}

func TestNotifyAlertNilClientsAreSafe(t *testing.T) {
	n := New(notificationConfig(true, true), nil, nil, logger.NewNoOpLogger())

	assert.NoError(t, n.NotifyAlert(context.Background(), testAlert()))
}
