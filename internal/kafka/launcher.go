package kafka

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"statusflow/internal/metrics"
	"statusflow/internal/models"
)

// An Operation processes one message. A non-nil error means the message failed
type Operation func(ctx context.Context, msg models.Message) error

// A BatchLauncher dispatches a batch with bounded concurrency and stops launching
// once any message fails irrecoverably
type BatchLauncher struct {
	gate     *ConcurrencyGate
	registry *TaskRegistry
	logger   *zerolog.Logger
	metrics  *metrics.Recorder
}

// NewBatchLauncher creates a launcher sharing the gate and registry with its consumer
func NewBatchLauncher(
	gate *ConcurrencyGate, registry *TaskRegistry, recorder *metrics.Recorder, logger *zerolog.Logger,
) *BatchLauncher {
	return &BatchLauncher{gate: gate, registry: registry, logger: logger, metrics: recorder}
}

// Launch runs op for each message in batch order. A failed op gets exactly one retryOp;
// if that fails too no further messages are launched, while already launched ones finish.
// Launch returns after every launched operation has completed
func (l *BatchLauncher) Launch(ctx context.Context, batch []models.Message, op, retryOp Operation) models.LaunchOutcome {
	var (
		failed    atomic.Bool
		wg        sync.WaitGroup
		successes = models.NewOffsetSet()
		launched  = make([]models.Message, 0, len(batch))
	)

	// launched operations must run to completion even when the loop is cancelled
	opCtx := context.WithoutCancel(ctx)

	for _, msg := range batch {
		if failed.Load() || ctx.Err() != nil {
			break
		}
		if err := l.gate.Acquire(ctx); err != nil {
			break
		}
		if failed.Load() {
			l.gate.Release()
			break
		}

		done, ok := l.registry.Register(msg.Topic, msg.Offset)
		if !ok {
			// the consumer is draining
			l.gate.Release()
			break
		}

		launched = append(launched, msg)
		wg.Add(1)

		go func(msg models.Message) {
			defer wg.Done()
			defer done()
			defer l.gate.Release()

			if l.dispatch(opCtx, msg, op, retryOp) {
				successes.Add(msg.Partition, msg.NextOffset())
				l.metrics.Processed(msg.Topic)
				return
			}
			failed.Store(true)
			l.metrics.Failed(msg.Topic)
		}(msg)
	}

	wg.Wait()

	if skipped := len(batch) - len(launched); skipped > 0 {
		l.logger.Warn().
			Int("launched", len(launched)).
			Int("skipped", skipped).
			Bool("failure_detected", failed.Load()).
			Msg("Stopped launching batch early")
	}

	return models.LaunchOutcome{
		LaunchedMessages:      launched,
		SuccessfulNextOffsets: successes.Snapshot(),
	}
}

// dispatch runs op and, on failure, one retryOp. It reports whether the message succeeded
func (l *BatchLauncher) dispatch(ctx context.Context, msg models.Message, op, retryOp Operation) bool {
	start := time.Now()

	err := safeRun(ctx, op, msg)
	if err == nil {
		return true
	}

	l.logger.Warn().
		Err(err).
		Str("topic", msg.Topic).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("Processing failed, retrying once")

	if retryOp == nil {
		return false
	}

	l.metrics.Retried(msg.Topic)
	if err := safeRun(ctx, retryOp, msg); err != nil {
		l.logger.Error().
			Err(err).
			Str("topic", msg.Topic).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Dur("duration", time.Since(start)).
			Msg("Retry failed, halting batch")
		return false
	}
	return true
}

// safeRun calls op and turns a panic into an error
func safeRun(ctx context.Context, op Operation, msg models.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return op(ctx, msg)
}
