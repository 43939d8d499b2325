package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"statusflow/internal/interfaces"
	"statusflow/internal/models"
)

// A Publisher writes messages to any topic through one shared kafka.Writer
type Publisher struct {
	writer   *kafka.Writer
	attempts uint
	logger   *zerolog.Logger
}

// NewPublisher creates a publisher for the given brokers
func NewPublisher(brokers []string, attempts uint, logger *zerolog.Logger) *Publisher {
	if attempts == 0 {
		attempts = 1
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: false,
			BatchTimeout:           10 * time.Millisecond,
		},
		attempts: attempts,
		logger:   logger,
	}
}

// Publish writes one message to topic, retrying with backoff
func (p *Publisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	err := retry.Do(
		func() error {
			return p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Key: key, Value: value})
		},
		retry.Attempts(p.attempts),
		retry.Delay(100*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(2*time.Second),
		retry.LastErrorOnly(true),
		retry.OnRetry(
			func(n uint, err error) {
				p.logger.Warn().
					Err(err).
					Uint("attempt", n+1).
					Str("topic", topic).
					Msg("Retrying publish")
			},
		),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// PublishEnvelope serializes env and publishes it to topic
func PublishEnvelope(
	ctx context.Context, publisher interfaces.RetryPublisher, topic string, key []byte, env models.RetryEnvelope,
) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode retry envelope: %w", err)
	}
	return publisher.Publish(ctx, topic, key, data)
}
