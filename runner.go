package journey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/journey/internal/logging"
	"golang.org/x/sync/errgroup"
)

// Service is a long-running companion of the engine (an HTTP listener, a
// redis bridge). It must return when ctx is done.
type Service func(ctx context.Context) error

// Runner runs an Engine together with its services until the context ends,
// then drains in-flight dispatch.
type Runner struct {
	Services     []Service
	DrainTimeout time.Duration
	Logger       *slog.Logger
}

// NewRunner creates a Runner with a 10s drain timeout and no services.
func NewRunner() *Runner {
	return &Runner{
		DrainTimeout: 10 * time.Second,
		Logger:       logging.NewNop(),
	}
}

// Run starts the autostart clocks and every service, and blocks until ctx is
// done or a service fails. Clocks are then stopped and drained, bounded by
// DrainTimeout. A plain cancellation of ctx is not an error.
func (r *Runner) Run(ctx context.Context, eng *Engine) error {
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	g, gctx := errgroup.WithContext(ctx)
	eng.Start(gctx)
	logger.Info("engine started", "sources", len(eng.Sources()), "activities", len(eng.Activities()))

	for _, svc := range r.Services {
		g.Go(func() error { return svc(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	runErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.DrainTimeout)
	defer cancel()
	logger.Info("draining in-flight activities", "timeout", r.DrainTimeout)
	stopErr := eng.Stop(drainCtx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return errors.Join(fmt.Errorf("service failed: %w", runErr), stopErr)
	}
	return stopErr
}
