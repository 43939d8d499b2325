package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// ParseBrokers splits a comma separated broker list
func ParseBrokers(listeners string) []string {
	brokers := strings.Split(listeners, ",")
	out := brokers[:0]
	for _, broker := range brokers {
		if b := strings.TrimSpace(broker); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewReader creates a consumer-group reader that commits synchronously on CommitMessages
func NewReader(brokers []string, groupID, topic string, logger *zerolog.Logger) (*kafka.Reader, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, fmt.Errorf("group id is required to commit offsets of %s", topic)
	}

	return kafka.NewReader(
		kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			StartOffset:    kafka.FirstOffset,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        50 * time.Millisecond,
			CommitInterval: 0,
			ErrorLogger: kafka.LoggerFunc(
				func(msg string, args ...interface{}) {
					logger.Error().
						Str("kafka_error", fmt.Sprintf(msg, args...)).
						Str("topic", topic).
						Msg("kafka reader error")
				},
			),
		},
	), nil
}
