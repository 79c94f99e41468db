package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// background runs fire-and-forget work detached from the caller's context.
// Errors and panics are logged and never reach the caller.
type background struct {
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func newBackground(logger *slog.Logger, timeout time.Duration) *background {
	return &background{logger: logger, timeout: timeout}
}

// Go runs fn in a new goroutine with a context that survives the caller's
// cancellation but is bounded by the background timeout.
func (b *background) Go(parent context.Context, task string, fn func(ctx context.Context) error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Background task panicked", "task", task, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), b.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			b.logger.Warn("Background task failed", "task", task, "error", err)
		}
	}()
}

// Wait blocks until all started tasks have returned.
func (b *background) Wait() {
	b.wg.Wait()
}
