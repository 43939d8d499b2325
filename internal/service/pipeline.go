package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"statusflow/internal/interfaces"
	"statusflow/internal/kafka"
	"statusflow/internal/metrics"
	"statusflow/internal/models"
)

// A Pipeline provides the operations run for each message of a channel's primary topic
type Pipeline struct {
	handler    interfaces.ChannelHandler
	publisher  interfaces.RetryPublisher
	retryTopic string
	now        func() time.Time
	logger     *zerolog.Logger
	metrics    *metrics.Recorder
}

// NewPipeline creates the primary topic pipeline of one channel
func NewPipeline(
	handler interfaces.ChannelHandler, publisher interfaces.RetryPublisher, retryTopic string,
	recorder *metrics.Recorder, logger *zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		handler:    handler,
		publisher:  publisher,
		retryTopic: retryTopic,
		now:        time.Now,
		logger:     logger,
		metrics:    recorder,
	}
}

// Process parses the report and updates the notification status.
// Unparseable reports are dropped, retrying them can't succeed
func (p *Pipeline) Process(ctx context.Context, msg models.Message) error {
	report, err := p.handler.Parse(msg.Value)
	if err != nil {
		p.metrics.Dropped(msg.Topic, "malformed_report")
		p.logger.Error().
			Err(err).
			Str("channel", p.handler.Channel()).
			Str("topic", msg.Topic).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Str("raw_message", string(msg.Value)).
			Msg("Dropping malformed delivery report")
		return nil
	}

	return p.handler.UpdateStatus(ctx, report)
}

// Escalate hands a report whose update failed over to the channel's retry topic
func (p *Pipeline) Escalate(ctx context.Context, msg models.Message) error {
	env := models.NewRetryEnvelope(msg.Value, p.now())
	if err := kafka.PublishEnvelope(ctx, p.publisher, p.retryTopic, msg.Key, env); err != nil {
		return err
	}

	p.logger.Info().
		Str("channel", p.handler.Channel()).
		Str("retry_topic", p.retryTopic).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("Delivery report moved to retry topic")
	return nil
}
