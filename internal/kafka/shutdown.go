package kafka

import (
	"context"
	"errors"
)

// ErrShuttingDown is returned by an operation that gave up because its consumer is stopping
var ErrShuttingDown = errors.New("consumer is shutting down")

type shutdownKey struct{}

// withShutdownSignal attaches the consumer's stopping channel to ctx.
// Values survive context.WithoutCancel, cancellation does not
func withShutdownSignal(ctx context.Context, stopping <-chan struct{}) context.Context {
	return context.WithValue(ctx, shutdownKey{}, stopping)
}

// shutdownSignal returns the channel closed when the consumer running ctx stops,
// or nil when ctx does not belong to a consumer
func shutdownSignal(ctx context.Context) <-chan struct{} {
	stopping, _ := ctx.Value(shutdownKey{}).(<-chan struct{})
	return stopping
}
