package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"statusflow/internal/interfaces"
	"statusflow/internal/metrics"
	"statusflow/internal/models"
)

// A RetryConfig holds the escalation settings of one retry topic
type RetryConfig struct {
	RetryTopic       string
	Threshold        time.Duration
	MinRetryInterval time.Duration
}

// A RetryHandler decides the fate of envelopes read from a retry topic: reprocess and
// republish while they are younger than the threshold, dead-letter them afterwards
type RetryHandler struct {
	config    RetryConfig
	handler   interfaces.ChannelHandler
	publisher interfaces.RetryPublisher
	store     interfaces.DeadLetterStore
	now       func() time.Time
	logger    *zerolog.Logger
	metrics   *metrics.Recorder
}

// NewRetryHandler creates the escalation handler for one channel
func NewRetryHandler(
	config RetryConfig, handler interfaces.ChannelHandler, publisher interfaces.RetryPublisher,
	store interfaces.DeadLetterStore, recorder *metrics.Recorder, logger *zerolog.Logger,
) (*RetryHandler, error) {
	if config.Threshold <= 0 {
		return nil, fmt.Errorf("expected positive retry threshold, got: %s", config.Threshold)
	}
	if config.RetryTopic == "" {
		return nil, errors.New("retry topic is required")
	}
	return &RetryHandler{
		config:    config,
		handler:   handler,
		publisher: publisher,
		store:     store,
		now:       time.Now,
		logger:    logger,
		metrics:   recorder,
	}, nil
}

// Handle processes one envelope. Malformed envelopes and dead-lettered ones are consumed
// without error; an error is returned only when a failed envelope could not be republished
func (h *RetryHandler) Handle(ctx context.Context, msg models.Message) error {
	env, err := models.DecodeRetryEnvelope(msg.Value)
	if err != nil {
		h.drop(msg, "malformed_envelope", err)
		return nil
	}

	report, err := h.handler.Parse([]byte(env.SendOperationResult))
	if err != nil {
		h.drop(msg, "malformed_payload", err)
		return nil
	}

	if env.Expired(h.now(), h.config.Threshold) {
		h.deadLetter(ctx, msg, env)
		return nil
	}

	if err := h.wait(ctx, env); err != nil {
		return err
	}
	// the wait may have used up what was left of the threshold
	if env.Expired(h.now(), h.config.Threshold) {
		h.deadLetter(ctx, msg, env)
		return nil
	}

	updateErr := h.handler.UpdateStatus(ctx, report)
	if updateErr == nil {
		h.logger.Info().
			Str("channel", h.handler.Channel()).
			Str("notification_id", report.NotificationID).
			Int("attempts", env.Attempts).
			Dur("elapsed", env.Elapsed(h.now())).
			Msg("Delivery report applied on retry")
		return nil
	}

	now := h.now()
	if env.Expired(now, h.config.Threshold) {
		h.logger.Warn().
			Err(updateErr).
			Str("channel", h.handler.Channel()).
			Str("notification_id", report.NotificationID).
			Msg("Status update failed past the retry threshold")
		h.deadLetter(ctx, msg, env)
		return nil
	}

	next := env.Next(now)
	if err := PublishEnvelope(ctx, h.publisher, h.config.RetryTopic, msg.Key, next); err != nil {
		return fmt.Errorf("failed to republish envelope after %w: %w", updateErr, err)
	}
	h.metrics.Retried(msg.Topic)

	h.logger.Warn().
		Err(updateErr).
		Str("channel", h.handler.Channel()).
		Str("notification_id", report.NotificationID).
		Int("attempts", next.Attempts).
		Time("first_seen", next.FirstSeen).
		Msg("Status update failed, envelope republished")

	return nil
}

// deadLetter persists the envelope as a terminal record. A store failure is logged
// and the envelope is still dropped
func (h *RetryHandler) deadLetter(ctx context.Context, msg models.Message, env models.RetryEnvelope) {
	record := models.NewDeadLetterRecord(h.handler.Channel(), env, h.now())

	if err := h.store.Save(ctx, &record); err != nil {
		h.logger.Error().
			Err(err).
			Str("channel", record.Channel).
			Str("topic", msg.Topic).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Int("attempts", record.AttemptCount).
			Msg("Failed to persist dead-letter record, envelope is lost")
		h.metrics.Dropped(msg.Topic, "dead_letter_write_failed")
		return
	}

	h.metrics.DeadLettered(record.Channel)
	h.logger.Warn().
		Str("channel", record.Channel).
		Str("dead_letter_id", record.ID.String()).
		Int("attempts", record.AttemptCount).
		Time("first_seen", record.FirstSeen).
		Msg("Envelope exceeded retry threshold, dead-lettered")
}

// wait holds a re-attempt back until MinRetryInterval has passed since the last attempt,
// never past the point where the envelope would expire. It gives up when ctx is done or the
// consumer running the handler starts shutting down
func (h *RetryHandler) wait(ctx context.Context, env models.RetryEnvelope) error {
	if h.config.MinRetryInterval <= 0 {
		return nil
	}
	now := h.now()
	delay := env.LastAttempt.Add(h.config.MinRetryInterval).Sub(now)
	if remaining := env.FirstSeen.Add(h.config.Threshold).Sub(now); delay > remaining {
		delay = remaining
	}
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-shutdownSignal(ctx):
		return ErrShuttingDown
	case <-timer.C:
		return nil
	}
}

func (h *RetryHandler) drop(msg models.Message, reason string, err error) {
	h.metrics.Dropped(msg.Topic, reason)
	h.logger.Error().
		Err(err).
		Str("reason", reason).
		Str("topic", msg.Topic).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Str("raw_message", string(msg.Value)).
		Msg("Dropping unprocessable retry message")
}
