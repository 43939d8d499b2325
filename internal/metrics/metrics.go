// Package metrics holds the counters the consumer pipeline reports
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "statusflow/consumer"

// A Recorder owns the pipeline instruments. It is created once at startup and passed
// to every component; a nil *Recorder records nothing
type Recorder struct {
	consumed      metric.Int64Counter
	processed     metric.Int64Counter
	failed        metric.Int64Counter
	retried       metric.Int64Counter
	committed     metric.Int64Counter
	deadLettered  metric.Int64Counter
	dropped       metric.Int64Counter
	batchDuration metric.Float64Histogram
	batchSize     metric.Int64Histogram
}

// NewRecorder creates all instruments from the given provider
func NewRecorder(provider metric.MeterProvider) (*Recorder, error) {
	meter := provider.Meter(meterName)
	r := &Recorder{}

	var err error

	r.consumed, err = meter.Int64Counter(
		"consumer.messages.consumed",
		metric.WithDescription("Messages polled from a topic"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumed counter: %w", err)
	}

	r.processed, err = meter.Int64Counter(
		"consumer.messages.processed",
		metric.WithDescription("Messages whose processing succeeded"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create processed counter: %w", err)
	}

	r.failed, err = meter.Int64Counter(
		"consumer.messages.failed",
		metric.WithDescription("Messages that failed processing and their inline retry"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failed counter: %w", err)
	}

	r.retried, err = meter.Int64Counter(
		"consumer.messages.retried",
		metric.WithDescription("Inline retries and retry topic republishes"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create retried counter: %w", err)
	}

	r.committed, err = meter.Int64Counter(
		"consumer.offsets.committed",
		metric.WithDescription("Partition offsets committed to the broker"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create committed counter: %w", err)
	}

	r.deadLettered, err = meter.Int64Counter(
		"consumer.messages.dead_lettered",
		metric.WithDescription("Envelopes moved to dead-letter storage"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dead-lettered counter: %w", err)
	}

	r.dropped, err = meter.Int64Counter(
		"consumer.messages.dropped",
		metric.WithDescription("Messages dropped without retry"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dropped counter: %w", err)
	}

	r.batchDuration, err = meter.Float64Histogram(
		"consumer.batch.duration.ms",
		metric.WithDescription("Duration of one poll-process-commit cycle in milliseconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch duration histogram: %w", err)
	}

	r.batchSize, err = meter.Int64Histogram(
		"consumer.batch.size",
		metric.WithDescription("Messages launched per batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch size histogram: %w", err)
	}

	return r, nil
}

func topicAttr(topic string) metric.AddOption {
	return metric.WithAttributes(attribute.String("topic", topic))
}

// Consumed records n messages polled from topic
func (r *Recorder) Consumed(topic string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.consumed.Add(context.Background(), int64(n), topicAttr(topic))
}

// Processed records one successfully processed message
func (r *Recorder) Processed(topic string) {
	if r == nil {
		return
	}
	r.processed.Add(context.Background(), 1, topicAttr(topic))
}

// Failed records one message that failed irrecoverably
func (r *Recorder) Failed(topic string) {
	if r == nil {
		return
	}
	r.failed.Add(context.Background(), 1, topicAttr(topic))
}

// Retried records one retry attempt
func (r *Recorder) Retried(topic string) {
	if r == nil {
		return
	}
	r.retried.Add(context.Background(), 1, topicAttr(topic))
}

// Committed records n partition offsets committed for topic
func (r *Recorder) Committed(topic string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.committed.Add(context.Background(), int64(n), topicAttr(topic))
}

// DeadLettered records one envelope moved to dead-letter storage
func (r *Recorder) DeadLettered(channel string) {
	if r == nil {
		return
	}
	r.deadLettered.Add(context.Background(), 1, metric.WithAttributes(attribute.String("channel", channel)))
}

// Dropped records one message dropped for the given reason
func (r *Recorder) Dropped(topic, reason string) {
	if r == nil {
		return
	}
	r.dropped.Add(
		context.Background(), 1,
		metric.WithAttributes(attribute.String("topic", topic), attribute.String("reason", reason)),
	)
}

// Batch records the duration and launched size of one cycle
func (r *Recorder) Batch(topic string, launched int, d time.Duration) {
	if r == nil {
		return
	}
	ctx := context.Background()
	r.batchDuration.Record(ctx, float64(d.Microseconds())/1000, metric.WithAttributes(attribute.String("topic", topic)))
	r.batchSize.Record(ctx, int64(launched), metric.WithAttributes(attribute.String("topic", topic)))
}
