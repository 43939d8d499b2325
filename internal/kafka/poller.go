package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"statusflow/internal/interfaces"
	"statusflow/internal/metrics"
	"statusflow/internal/models"
)

// A BatchPoller collects bounded batches of messages from one reader
type BatchPoller struct {
	reader  interfaces.MessageReader
	topic   string
	logger  *zerolog.Logger
	metrics *metrics.Recorder
}

// NewBatchPoller creates a poller over reader
func NewBatchPoller(
	reader interfaces.MessageReader, topic string, recorder *metrics.Recorder, logger *zerolog.Logger,
) *BatchPoller {
	return &BatchPoller{reader: reader, topic: topic, logger: logger, metrics: recorder}
}

// Poll fetches messages until maxBatchSize are collected or timeBudget is spent.
// A read error or cancellation ends the poll early with the messages collected so far
func (p *BatchPoller) Poll(ctx context.Context, maxBatchSize int, timeBudget time.Duration) []models.Message {
	pollCtx, cancel := context.WithTimeout(ctx, timeBudget)
	defer cancel()

	batch := make([]models.Message, 0, maxBatchSize)
	for len(batch) < maxBatchSize {
		msg, err := p.reader.FetchMessage(pollCtx)
		if err != nil {
			if pollCtx.Err() == nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				p.logger.Error().
					Err(err).
					Str("topic", p.topic).
					Int("collected", len(batch)).
					Msg("Error fetching Kafka message, returning partial batch")
			}
			break
		}
		batch = append(batch, fromKafkaMessage(msg))
	}

	p.metrics.Consumed(p.topic, len(batch))
	return batch
}

func fromKafkaMessage(msg kafka.Message) models.Message {
	return models.Message{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Time:      msg.Time,
	}
}
