package dispatch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/db"
)

// SESSender delivers alert emails via AWS SES.
type SESSender struct {
	client *ses.Client
	from   string
	logger *zap.Logger
}

type SESConfig struct {
	Region    string
	FromEmail string
}

func NewSESSender(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return &SESSender{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		logger: logger,
	}, nil
}

// Send emails the rendered alert to the recipient's address.
func (s *SESSender) Send(ctx context.Context, alert *db.Alert, rcpt *db.RecipientDelivery) error {
	if rcpt.Channel != db.ChannelEmail {
		return fmt.Errorf("SES sender only supports email, got: %s", rcpt.Channel)
	}
	if rcpt.Address == "" {
		return fmt.Errorf("recipient has no email address")
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{rcpt.Address},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject(alert)),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(body(alert, rcpt)),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	s.logger.Info("alert email sent via SES",
		zap.String("alert_id", alert.ID.String()),
		zap.String("to", rcpt.Address),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}

func (s *SESSender) SupportsChannel(channel string) bool {
	return channel == db.ChannelEmail
}
