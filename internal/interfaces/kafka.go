package interfaces

import (
	"context"

	"github.com/segmentio/kafka-go"

	"statusflow/internal/models"
)

// A MessageReader is the part of a consumer-group reader the pipeline needs.
// *kafka.Reader satisfies it
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// A RetryPublisher republishes payloads to a topic
type RetryPublisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// A DeadLetterStore persists terminal failures
type DeadLetterStore interface {
	Save(ctx context.Context, record *models.DeadLetterRecord) error
	List(ctx context.Context, filter DeadLetterFilter) ([]models.DeadLetterRecord, error)
	Count(ctx context.Context, channel string) (int64, error)
}

// A DeadLetterFilter narrows a dead-letter listing
type DeadLetterFilter struct {
	Channel        string
	UnresolvedOnly bool
	Limit          int
}
