package kafka

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"statusflow/internal/interfaces"
	"statusflow/internal/metrics"
	"statusflow/internal/models"
)

// Defaults for a ConsumerConfig
const (
	DefaultMaxBatchSize = 50
	DefaultPollTimeout  = 100 * time.Millisecond
	DefaultIdleBackoff  = 50 * time.Millisecond
	DefaultDrainTimeout = 30 * time.Second
)

// A ConsumerConfig describes one batch consumer
type ConsumerConfig struct {
	Topic              string
	MaxBatchSize       int
	PollTimeout        time.Duration
	IdleBackoff        time.Duration
	MaxConcurrentTasks int
	DrainTimeout       time.Duration
}

func (c *ConsumerConfig) applyDefaults() {
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = DefaultMaxBatchSize
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.IdleBackoff <= 0 {
		c.IdleBackoff = DefaultIdleBackoff
	}
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = DefaultMaxConcurrentTasks
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
}

// A BatchConsumer runs the poll, launch, commit cycle against one topic
type BatchConsumer struct {
	config    ConsumerConfig
	reader    interfaces.MessageReader
	poller    *BatchPoller
	launcher  *BatchLauncher
	committer *OffsetCommitter
	registry  *TaskRegistry
	op        Operation
	retryOp   Operation
	tracer    trace.Tracer
	logger    *zerolog.Logger
	metrics   *metrics.Recorder

	mu           sync.Mutex
	running      bool
	shuttingDown atomic.Bool
	cancel       context.CancelFunc
	stopping     chan struct{}
	done         chan struct{}
}

// NewBatchConsumer wires a poller, launcher and committer around reader.
// op handles every message, retryOp is its single inline retry
func NewBatchConsumer(
	config ConsumerConfig, reader interfaces.MessageReader, op, retryOp Operation,
	recorder *metrics.Recorder, tracer trace.Tracer, logger *zerolog.Logger,
) (*BatchConsumer, error) {
	if op == nil {
		return nil, fmt.Errorf("consumer for %s needs an operation", config.Topic)
	}
	config.applyDefaults()

	gate, err := NewConcurrencyGate(config.MaxConcurrentTasks)
	if err != nil {
		return nil, err
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	c := &BatchConsumer{
		config:   config,
		reader:   reader,
		registry: NewTaskRegistry(),
		op:       op,
		retryOp:  retryOp,
		tracer:   tracer,
		logger:   logger,
		metrics:  recorder,
	}
	c.poller = NewBatchPoller(reader, config.Topic, recorder, logger)
	c.launcher = NewBatchLauncher(gate, c.registry, recorder, logger)
	c.committer = NewOffsetCommitter(reader, config.Topic, c.shuttingDown.Load, recorder, logger)

	return c, nil
}

// Start runs the consume loop in the background
func (c *BatchConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("consumer for %s is already running", c.config.Topic)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.stopping = make(chan struct{})
	c.done = make(chan struct{})
	c.running = true

	c.logger.Info().
		Str("topic", c.config.Topic).
		Int("max_batch_size", c.config.MaxBatchSize).
		Int("max_concurrent_tasks", c.config.MaxConcurrentTasks).
		Dur("poll_timeout", c.config.PollTimeout).
		Msg("Starting batch consumer")

	go c.consume(loopCtx)

	return nil
}

// Stop stops polling, signals operations that wait on the shutdown signal, waits for in-flight
// operations (each bounded by the drain timeout), then closes the reader.
// No commit is issued once Stop has been called
func (c *BatchConsumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	c.mu.Unlock()

	c.shuttingDown.Store(true)
	close(c.stopping)
	c.cancel()

	inFlight := c.registry.Len()
	abandoned := c.registry.Drain(c.config.DrainTimeout)
	if abandoned > 0 {
		c.logger.Warn().
			Str("topic", c.config.Topic).
			Int("in_flight", inFlight).
			Int("abandoned", abandoned).
			Msg("Gave up waiting for in-flight tasks")
	} else {
		select {
		case <-c.done:
		case <-ctx.Done():
			c.logger.Warn().Str("topic", c.config.Topic).Msg("Consume loop did not exit before shutdown deadline")
		}
	}

	if err := c.reader.Close(); err != nil {
		c.logger.Error().Err(err).Str("topic", c.config.Topic).Msg("Error closing Kafka reader")
		return fmt.Errorf("failed to close Kafka reader: %w", err)
	}

	c.logger.Info().Str("topic", c.config.Topic).Msg("Batch consumer stopped")
	return nil
}

// Topic returns the consumed topic
func (c *BatchConsumer) Topic() string {
	return c.config.Topic
}

func (c *BatchConsumer) consume(ctx context.Context) {
	defer close(c.done)

	for ctx.Err() == nil && !c.shuttingDown.Load() {
		c.cycle(ctx)
	}
}

// cycle runs one poll, launch, commit round. A panic is logged and the loop goes on
func (c *BatchConsumer) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Interface("panic", r).
				Str("topic", c.config.Topic).
				Msg("Panic recovered in consume cycle")
		}
	}()

	batch := c.poller.Poll(ctx, c.config.MaxBatchSize, c.config.PollTimeout)
	if len(batch) == 0 {
		c.idle(ctx)
		return
	}

	start := time.Now()
	spanCtx, span := c.tracer.Start(
		ctx, "consumer.batch",
		trace.WithAttributes(
			attribute.String("topic", c.config.Topic),
			attribute.Int("polled", len(batch)),
		),
	)
	defer span.End()

	state := models.BatchState{PolledMessages: batch}
	launchCtx := withShutdownSignal(spanCtx, c.stopping)
	outcome := c.launcher.Launch(launchCtx, state.PolledMessages, c.op, c.retryOp)
	state.CommitReadyOffsets = ComputeCommitOffsets(outcome.LaunchedMessages, outcome.SuccessfulNextOffsets)

	if ctx.Err() == nil {
		c.committer.Commit(ctx, state.CommitReadyOffsets)
	}

	span.SetAttributes(
		attribute.Int("launched", len(outcome.LaunchedMessages)),
		attribute.Int("succeeded", len(outcome.SuccessfulNextOffsets)),
	)
	c.metrics.Batch(c.config.Topic, len(outcome.LaunchedMessages), time.Since(start))

	c.logger.Debug().
		Str("topic", c.config.Topic).
		Int("polled", len(batch)).
		Int("launched", len(outcome.LaunchedMessages)).
		Int("succeeded", len(outcome.SuccessfulNextOffsets)).
		Dur("duration", time.Since(start)).
		Msg("Batch processed")
}

func (c *BatchConsumer) idle(ctx context.Context) {
	timer := time.NewTimer(c.config.IdleBackoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
