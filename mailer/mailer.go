package mailer

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/pawlink/petcircle_backend/config"
)

// Mailer sends transactional email over SES. All sends are best effort:
// callers either ignore the error or go through SendAsync.
type Mailer struct {
	client *ses.Client
	sender string
}

func NewMailer(ctx context.Context) (*Mailer, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "ap-southeast-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, err
	}
	sender := os.Getenv("MAIL_SENDER")
	if sender == "" {
		sender = "noreply@pawlink.app"
	}
	return &Mailer{client: ses.NewFromConfig(cfg), sender: sender}, nil
}

func (m *Mailer) SendEmail(ctx context.Context, to string, subject string, htmlBody string) error {
	_, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Source: aws.String(m.sender),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
			},
		},
	})
	return err
}

// SendAsync fires the email on its own goroutine so the caller never waits on
// SES. Failures are logged and dropped.
func (m *Mailer) SendAsync(to string, subject string, htmlBody string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.SendEmail(ctx, to, subject, htmlBody); err != nil {
			logger := config.GetLogger()
			config.LogError(logger, "mailer", "SendAsync", "send email failed", map[string]interface{}{
				"to":      to,
				"subject": subject,
			}, err)
		}
	}()
}
