package dispatch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"github.com/Art-555/CallOut/internal/db"
)

// SNSSender delivers alert SMS messages via AWS SNS.
type SNSSender struct {
	client *sns.Client
	logger *zap.Logger
}

type SNSConfig struct {
	Region string
}

func NewSNSSender(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &SNSSender{
		client: sns.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

// Send texts the short-form alert to the recipient's phone number.
func (s *SNSSender) Send(ctx context.Context, alert *db.Alert, rcpt *db.RecipientDelivery) error {
	if rcpt.Channel != db.ChannelSMS {
		return fmt.Errorf("SNS sender only supports SMS, got: %s", rcpt.Channel)
	}
	if rcpt.Address == "" {
		return fmt.Errorf("recipient has no phone number")
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(rcpt.Address),
		Message:     aws.String(smsText(alert)),
	}

	result, err := s.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	s.logger.Info("alert SMS sent via SNS",
		zap.String("alert_id", alert.ID.String()),
		zap.String("phone_number", rcpt.Address),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}

func (s *SNSSender) SupportsChannel(channel string) bool {
	return channel == db.ChannelSMS
}
