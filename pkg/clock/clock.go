package clock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/journey/internal/logging"
	"github.com/aretw0/journey/pkg/domain"
	"github.com/aretw0/journey/pkg/ports"
	"github.com/aretw0/journey/pkg/pubsub"
)

// Instance is one running (or stopped) clock bound to an owner.
type Instance struct {
	*pubsub.Binding

	logger *slog.Logger

	mu      sync.Mutex
	period  time.Duration
	running bool
	gen     uint64

	ticks    atomic.Uint64
	inflight sync.WaitGroup
}

var _ pubsub.Bound = (*Instance)(nil)

// Option configures a clock.
type Option func(*options)

type options struct {
	period float64
	logger *slog.Logger
	hooks  domain.LifecycleHooks
}

func defaultOptions() options {
	return options{
		period: domain.DefaultPeriodSeconds,
		logger: logging.NewNop(),
	}
}

// WithPeriod sets the initial period in seconds. Non-positive values are ignored.
func WithPeriod(seconds float64) Option {
	return func(o *options) {
		if seconds > 0 {
			o.period = seconds
		}
	}
}

// WithFrequency sets the initial frequency in hertz. Non-positive values are ignored.
func WithFrequency(hz float64) Option {
	return func(o *options) {
		if hz > 0 {
			o.period = 1 / hz
		}
	}
}

// WithLogger sets the clock logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHooks sets the hooks called on every firing.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.hooks = hooks
	}
}

func newInstance(ref pubsub.Ref, sched ports.Scheduler, o options) *Instance {
	logger := o.logger.With("clock", ref.Name)
	return &Instance{
		Binding: pubsub.NewBinding(ref, sched,
			pubsub.WithRegistryLogger(o.logger),
			pubsub.WithRegistryHooks(o.hooks),
		),
		logger: logger,
		period: seconds(o.period),
	}
}

// NewDynamic creates a clock outside any declaration. owner may be nil, in
// which case firings are standalone and handler failures are only logged.
func NewDynamic(name string, owner domain.Owner, sched ports.Scheduler, opts ...Option) *Instance {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newInstance(pubsub.StrongRef(name, owner), sched, o)
}

// Period returns the tick period in seconds.
func (c *Instance) Period() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.period.Seconds()
}

// SetPeriod changes the tick period. A running clock picks it up on its next sleep.
func (c *Instance) SetPeriod(sec float64) error {
	if sec <= 0 {
		return fmt.Errorf("%w: period %v", domain.ErrInvalidPeriod, sec)
	}
	c.mu.Lock()
	c.period = seconds(sec)
	c.mu.Unlock()
	return nil
}

// Frequency returns the tick frequency in hertz.
func (c *Instance) Frequency() float64 {
	return 1 / c.Period()
}

// SetFrequency changes the tick frequency.
func (c *Instance) SetFrequency(hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("%w: frequency %v", domain.ErrInvalidPeriod, hz)
	}
	return c.SetPeriod(1 / hz)
}

// Running reports whether the clock is started.
func (c *Instance) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Ticks returns how many times the clock has fired.
func (c *Instance) Ticks() uint64 {
	return c.ticks.Load()
}

// Start starts the clock. The returned channel is closed once the tick loop
// has begun its first cycle. Starting a running clock is a no-op.
func (c *Instance) Start() <-chan struct{} {
	return c.StartContext(context.Background())
}

// StartContext is Start with a context. Cancelling ctx interrupts the sleep in
// progress and ends the loop, unlike Stop.
func (c *Instance) StartContext(ctx context.Context) <-chan struct{} {
	started := make(chan struct{})

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		close(started)
		return started
	}
	c.running = true
	c.gen++
	gen := c.gen
	c.inflight.Add(1)
	c.mu.Unlock()

	c.logger.Debug("clock started", "period", c.Period())
	c.Scheduler().Go(func() {
		defer c.inflight.Done()
		c.loop(ctx, gen, started)
	})
	return started
}

// Stop stops the clock. The loop exits at the end of its current sleep without
// firing again.
func (c *Instance) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.running = false
		c.logger.Debug("clock stopped", "ticks", c.ticks.Load())
	}
}

// Close stops the clock. Descriptors call it when the owner is collected.
func (c *Instance) Close() error {
	c.Stop()
	return nil
}

// Wait blocks until the tick loop has exited and every dispatch it started has
// completed. Call Stop first.
func (c *Instance) Wait() {
	c.inflight.Wait()
}

// Info describes the clock for listings.
func (c *Instance) Info() domain.SourceInfo {
	info := c.Binding.Info()
	info.Kind = "clock"
	info.Running = c.Running()
	info.PeriodSeconds = c.Period()
	return info
}

// Tick fires the subscribers once, outside the loop.
func (c *Instance) Tick(ctx context.Context) *pubsub.Dispatch {
	c.ticks.Add(1)
	ev := domain.NewEvent(c.Scheduler().Now(), nil, c)
	return c.Fire(ctx, ev, c.Receiver())
}

func (c *Instance) loop(ctx context.Context, gen uint64, started chan<- struct{}) {
	close(started)
	for {
		c.mu.Lock()
		period := c.period
		c.mu.Unlock()

		if err := c.Scheduler().Sleep(ctx, period); err != nil {
			c.mu.Lock()
			if c.gen == gen {
				c.running = false
			}
			c.mu.Unlock()
			c.logger.Debug("clock loop cancelled", "err", err)
			return
		}
		if !c.current(gen) {
			return
		}

		d := c.Tick(ctx)
		c.inflight.Add(1)
		c.Scheduler().Go(func() {
			defer c.inflight.Done()
			if err := d.Wait(); err != nil {
				c.logger.Error("clock dispatch failed", "err", err)
			}
		})
	}
}

// current reports whether the loop started as gen is still the live one.
func (c *Instance) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.gen == gen
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
