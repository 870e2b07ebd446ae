package notification

import (
	"context"
	"fmt"

	"ai-orchestrator/internal/common/config"
	"ai-orchestrator/internal/common/logger"
	"ai-orchestrator/internal/monitor"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SESService abstracts the SES client for testing.
type SESService interface {
	SendEmail(ctx context.Context, input *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

// SNSService abstracts the SNS client for testing.
type SNSService interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// Notifier delivers critical performance alerts to operators over email and
// SMS. Delivery failures are logged; an alert that cannot be delivered never
// affects request processing.
type Notifier struct {
	cfg config.NotificationConfig
	ses SESService
	sns SNSService
	log logger.Logger
}

func New(cfg config.NotificationConfig, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		cfg: cfg,
		ses: sesClient,
		sns: snsClient,
		log: log.WithFields(map[string]interface{}{"component": "notification"}),
	}
}

// NotifyAlert sends the alert through every enabled channel. Returns the
// first delivery error for observability; callers are expected to log and
// move on.
func (n *Notifier) NotifyAlert(ctx context.Context, alert monitor.Alert) error {
	var firstErr error

	if n.cfg.Email.Enabled && n.ses != nil {
		if err := n.sendEmail(ctx, alert); err != nil {
			n.log.Error("alert email delivery failed", map[string]interface{}{
				"alertId": alert.ID,
				"error":   err.Error(),
			})
			firstErr = err
		}
	}

	if n.cfg.SMS.Enabled && n.sns != nil {
		if err := n.sendSMS(ctx, alert); err != nil {
			n.log.Error("alert sms delivery failed", map[string]interface{}{
				"alertId": alert.ID,
				"error":   err.Error(),
			})
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func (n *Notifier) sendEmail(ctx context.Context, alert monitor.Alert) error {
	subject := fmt.Sprintf("[%s] %s tier alert: %s", alert.Severity, alert.Tier, alert.Metric)
	body := fmt.Sprintf(
		"Alert %s\n\nSeverity: %s\nTier: %s\nMetric: %s\nObserved: %.1f\nThreshold: %.1f\nRaised: %s\n\n%s\n",
		alert.ID, alert.Severity, alert.Tier, alert.Metric,
		alert.Value, alert.Threshold, alert.CreatedAt.Format("2006-01-02 15:04:05 UTC"),
		alert.Message,
	)

	input := &ses.SendEmailInput{
		Source: aws.String(n.cfg.Email.FromEmail),
		Destination: &sestypes.Destination{
			ToAddresses: []string{n.cfg.Email.ToEmail},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
	}

	_, err := n.ses.SendEmail(ctx, input)
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, alert monitor.Alert) error {
	message := fmt.Sprintf("[%s] %s tier %s at %.0f (threshold %.0f)",
		alert.Severity, alert.Tier, alert.Metric, alert.Value, alert.Threshold)

	input := &sns.PublishInput{
		PhoneNumber: aws.String(n.cfg.SMS.PhoneNumber),
		Message:     aws.String(message),
	}

	_, err := n.sns.Publish(ctx, input)
	return err
}
