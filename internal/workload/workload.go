// Package workload provides the long-running services a keeper instance can
// supervise. Each implementation binds on Start, serves in the background, and
// reports completion through Join.
package workload

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrNotStarted is returned by Join and Stop before Start succeeded.
var ErrNotStarted = errors.New("workload not started")

const defaultShutdownTimeout = 10 * time.Second

// Options configures a bundled workload.
type Options struct {
	Listen          string
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

func (o Options) shutdownTimeout() time.Duration {
	if o.ShutdownTimeout <= 0 {
		return defaultShutdownTimeout
	}
	return o.ShutdownTimeout
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// join waits for done or ctx, then returns the recorded serve error.
func join(ctx context.Context, done <-chan struct{}, result func() error) error {
	if done == nil {
		return ErrNotStarted
	}
	select {
	case <-done:
		return result()
	case <-ctx.Done():
		return ctx.Err()
	}
}
