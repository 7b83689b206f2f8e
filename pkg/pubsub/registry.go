package pubsub

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/journey/internal/logging"
	"github.com/aretw0/journey/pkg/domain"
	"github.com/aretw0/journey/pkg/ports"
	"github.com/aretw0/journey/pkg/scheduler"
)

// Source is the trigger-source capability: something activities subscribe to.
type Source interface {
	AddActivity(a *Activity)
	RemoveActivity(a *Activity)
	Activities() []*Activity
}

// Registry is the base trigger source. Subscriptions are idempotent and kept in
// subscription order, which is also the order activities are started on Fire.
type Registry struct {
	name   string
	sched  ports.Scheduler
	logger *slog.Logger
	hooks  domain.LifecycleHooks

	mu         sync.RWMutex
	activities []*Activity
}

var _ Source = (*Registry)(nil)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithRegistryHooks sets the hooks called on every firing.
func WithRegistryHooks(hooks domain.LifecycleHooks) RegistryOption {
	return func(r *Registry) {
		r.hooks = hooks
	}
}

// NewRegistry creates an empty trigger source. A nil scheduler falls back to a
// wall-clock scheduler.Loop.
func NewRegistry(name string, sched ports.Scheduler, opts ...RegistryOption) *Registry {
	r := &Registry{
		name:   name,
		sched:  sched,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sched == nil {
		r.sched = scheduler.NewLoop(scheduler.WithLogger(r.logger))
	}
	r.logger = r.logger.With("source", name)
	return r
}

// Name returns the source name.
func (r *Registry) Name() string {
	return r.name
}

// Scheduler returns the scheduler firings run on.
func (r *Registry) Scheduler() ports.Scheduler {
	return r.sched
}

// AddActivity subscribes a. Adding an activity twice is a no-op.
func (r *Registry) AddActivity(a *Activity) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.activities, a) {
		return
	}
	r.activities = append(r.activities, a)
}

// RemoveActivity unsubscribes a. Removing an unknown activity is a no-op.
func (r *Registry) RemoveActivity(a *Activity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities = slices.DeleteFunc(r.activities, func(o *Activity) bool { return o == a })
}

// Activities returns a snapshot of the subscribers in subscription order.
func (r *Registry) Activities() []*Activity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.activities)
}

// Len returns the number of subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.activities)
}

// Info describes the registry for introspection.
func (r *Registry) Info() domain.SourceInfo {
	subs := r.Activities()
	names := make([]string, 0, len(subs))
	for _, a := range subs {
		names = append(names, a.Name())
	}
	return domain.SourceInfo{Name: r.name, Kind: "trigger", Subscribers: names}
}

// Fire starts every subscriber with ev and recv, in subscription order. The
// lock step of each activity (drop, queue or acquire) is taken here, in order;
// handlers then run as scheduler tasks, each one starting only after the
// previous subscriber's handler has started. A busy or stuck activity never
// holds up its siblings. Fire returns without waiting; use the Dispatch to wait.
// The subscriber set is snapshotted first, so activities added while firing only
// see later events.
func (r *Registry) Fire(ctx context.Context, ev domain.Event, recv domain.Receiver) *Dispatch {
	subs := r.Activities()
	r.onFire(ctx, &domain.FireEvent{Source: r.name, EventID: ev.ID, Subscribers: len(subs)})
	r.logger.Debug("firing", "event_id", ev.ID, "subscribers", len(subs))

	d := &Dispatch{invs: make([]*invocation, 0, len(subs))}
	var gate <-chan struct{}
	for _, a := range subs {
		inv, acquired := a.admit(ctx, ev, recv, nil, nil)
		d.invs = append(d.invs, inv)
		if !acquired {
			continue
		}
		inv.gate = gate
		gate = inv.started
		r.sched.Go(func() { a.drain(inv) })
	}
	return d
}

func (r *Registry) onFire(ctx context.Context, e *domain.FireEvent) {
	if r.hooks.OnFire == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("lifecycle hook panicked", "event_id", e.EventID, "panic", rec)
		}
	}()
	r.hooks.OnFire(ctx, e)
}

// Dispatch tracks the invocations started by one firing.
type Dispatch struct {
	invs []*invocation

	mu       sync.Mutex
	children []*Dispatch
}

func (d *Dispatch) attach(child *Dispatch) {
	d.mu.Lock()
	d.children = append(d.children, child)
	d.mu.Unlock()
}

// Wait blocks until every invocation of the firing has returned and joins the
// errors returned to the caller: Standalone failures, firings that gave up
// waiting in the queue, and failures an exception handler panicked on.
func (d *Dispatch) Wait() error {
	var errs []error
	for _, inv := range d.invs {
		if err := inv.wait(); err != nil {
			errs = append(errs, err)
		}
	}
	d.mu.Lock()
	children := slices.Clone(d.children)
	d.mu.Unlock()

	for _, c := range children {
		if err := c.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WaitContext is Wait bounded by ctx. The invocations keep running if ctx ends first.
func (d *Dispatch) WaitContext(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- d.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
