package scheduler

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aretw0/journey/internal/logging"
	"github.com/aretw0/journey/pkg/ports"
)

var _ ports.Scheduler = (*Loop)(nil)

// Loop is the wall-clock scheduler. Every task runs on its own goroutine and is
// tracked so that Wait can drain in-flight work on shutdown.
type Loop struct {
	wg     sync.WaitGroup
	logger *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used to report panicking tasks.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// NewLoop creates a wall-clock scheduler.
func NewLoop(opts ...Option) *Loop {
	l := &Loop{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the wall-clock time.
func (l *Loop) Now() time.Time {
	return time.Now()
}

// Sleep blocks the calling goroutine for d or until ctx is done.
func (l *Loop) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		runtime.Gosched()
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Go runs fn on a new goroutine. A panic inside fn is logged and swallowed so a
// single task can never take the process down.
func (l *Loop) Go(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("scheduled task panicked", "panic", r, "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}

// Wait blocks until every task started with Go has returned.
func (l *Loop) Wait() {
	l.wg.Wait()
}
