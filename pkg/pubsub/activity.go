package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/journey/internal/logging"
	"github.com/aretw0/journey/pkg/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Handler is the function an activity runs. It must be cancellable through ctx;
// that is what makes it invocable asynchronously.
type Handler func(ctx context.Context, call Call) error

// Call is everything a handler receives for one invocation.
type Call struct {
	// Instance is the owning object, nil for Standalone invocations.
	Instance domain.Owner
	Event    domain.Event
	// Args holds the declared positional arguments followed by the caller's.
	Args []any
	// Kwargs holds the declared keyword arguments overlaid by the caller's.
	Kwargs map[string]any
	// Params holds every declared parameter name, Unset when not supplied.
	Params domain.Params
}

// Activity wraps a handler, binds it to at most one trigger source and enforces
// that only one invocation of the handler runs at a time.
type Activity struct {
	id      string
	name    string
	handler Handler
	mode    domain.Mode
	params  domain.Params
	args    []any
	kwargs  map[string]any
	logger  *slog.Logger
	hooks   domain.LifecycleHooks

	lock *semaphore.Weighted
	busy atomic.Bool
	// queue holds schedule-mode invocations waiting for the lock, oldest first.
	qmu   sync.Mutex
	queue []*invocation

	mu      sync.Mutex
	source  Source
	pending Source
}

// Option configures an Activity at declaration time.
type Option func(*Activity)

// WithMode sets the concurrency policy (default ModeSchedule).
func WithMode(mode domain.Mode) Option {
	return func(a *Activity) {
		a.mode = mode
	}
}

// WithParams declares the parameter names the handler accepts.
func WithParams(names ...string) Option {
	return func(a *Activity) {
		for _, n := range names {
			a.params[n] = domain.Unset
		}
	}
}

// WithArgs fixes extra positional arguments passed on every invocation.
func WithArgs(args ...any) Option {
	return func(a *Activity) {
		a.args = append(a.args, args...)
	}
}

// WithKwargs fixes extra keyword arguments passed on every invocation.
func WithKwargs(kwargs map[string]any) Option {
	return func(a *Activity) {
		maps.Copy(a.kwargs, kwargs)
	}
}

// WithName sets a human readable name used in logs, hooks and failures.
func WithName(name string) Option {
	return func(a *Activity) {
		a.name = name
	}
}

// WithLogger sets the activity logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Activity) {
		a.logger = logger
	}
}

// WithHooks sets the lifecycle hooks called around every invocation.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(a *Activity) {
		a.hooks = hooks
	}
}

// On binds the activity to src as part of the declaration.
func On(src Source) Option {
	return func(a *Activity) {
		a.pending = src
	}
}

// New declares an activity for handler. A nil handler is a DeclarationError.
func New(handler Handler, opts ...Option) (*Activity, error) {
	id := uuid.NewString()
	a := &Activity{
		id:      id,
		name:    "activity-" + id[:8],
		handler: handler,
		mode:    domain.ModeSchedule,
		params:  domain.Params{},
		kwargs:  map[string]any{},
		logger:  logging.NewNop(),
		lock:    semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(a)
	}
	if handler == nil {
		return nil, &domain.DeclarationError{Activity: a.name, Err: domain.ErrNotAsync}
	}
	a.logger = a.logger.With("activity", a.name)

	if src := a.pending; src != nil {
		a.pending = nil
		a.Bind(src)
	}
	return a, nil
}

// MustNew is New that panics on a declaration error.
func MustNew(handler Handler, opts ...Option) *Activity {
	a, err := New(handler, opts...)
	if err != nil {
		panic(err)
	}
	return a
}

// Declare is the untyped declaration path used by declarative graphs.
// target must be a Handler (or a func with the same signature); anything else
// fails with ErrNotAsync. source may be nil (unbound) or a Source; anything else
// fails with ErrNotTriggerSource. Both are reported as *domain.DeclarationError.
func Declare(source any, target any, opts ...Option) (*Activity, error) {
	var src Source
	if source != nil {
		s, ok := source.(Source)
		if !ok {
			return nil, &domain.DeclarationError{
				Activity: declaredName(opts),
				Err:      fmt.Errorf("%w: got %T", domain.ErrNotTriggerSource, source),
			}
		}
		src = s
	}

	var h Handler
	switch fn := target.(type) {
	case Handler:
		h = fn
	case func(context.Context, Call) error:
		h = fn
	default:
		return nil, &domain.DeclarationError{
			Activity: declaredName(opts),
			Err:      fmt.Errorf("%w: got %T", domain.ErrNotAsync, target),
		}
	}

	if src != nil {
		opts = append(opts, On(src))
	}
	return New(h, opts...)
}

func declaredName(opts []Option) string {
	scratch := &Activity{params: domain.Params{}, kwargs: map[string]any{}}
	for _, opt := range opts {
		opt(scratch)
	}
	return scratch.name
}

// ID returns the unique activity identifier.
func (a *Activity) ID() string { return a.id }

// Name returns the activity name.
func (a *Activity) Name() string { return a.name }

// Mode returns the concurrency policy.
func (a *Activity) Mode() domain.Mode { return a.mode }

// Params returns the declared parameter names, sorted.
func (a *Activity) Params() []string {
	names := a.params.Names()
	sort.Strings(names)
	return names
}

// Busy reports whether an invocation currently holds the activity lock.
func (a *Activity) Busy() bool {
	return a.busy.Load()
}

// Source returns the trigger source the activity is bound to, or nil.
func (a *Activity) Source() Source {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.source
}

// Bind subscribes the activity to src, unsubscribing it from its previous
// source first. A nil src is ignored.
func (a *Activity) Bind(src Source) {
	if src == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.source != nil && a.source != src {
		a.source.RemoveActivity(a)
	}
	a.source = src
	src.AddActivity(a)
}

// Unbind unsubscribes the activity from its current source.
func (a *Activity) Unbind() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.source != nil {
		a.source.RemoveActivity(a)
		a.source = nil
	}
}

// Call invokes the handler directly, bypassing the lock and parameter binding.
func (a *Activity) Call(ctx context.Context, call Call) error {
	return a.handler(ctx, call)
}

// Trigger is the dispatch entry point used by trigger sources.
func (a *Activity) Trigger(ctx context.Context, ev domain.Event, recv domain.Receiver) error {
	return a.TriggerWith(ctx, ev, recv, nil, nil)
}

// TriggerWith runs one invocation for ev and waits for it.
//
// In ModeDrop it returns nil immediately, without touching the lock, when an
// invocation is already running. In ModeSchedule it queues behind the running
// invocation, in arrival order. Handler errors and panics go to the owner's
// root exception handler when recv is an Instance; for Standalone they are
// logged and returned.
//
// Leaving the queue because ctx ended is not a handler failure: the handler
// never ran, so the context error is returned to the caller for both receiver
// kinds and the root is not called.
func (a *Activity) TriggerWith(ctx context.Context, ev domain.Event, recv domain.Receiver, args []any, kwargs map[string]any) error {
	inv, acquired := a.admit(ctx, ev, recv, args, kwargs)
	if acquired {
		inv.complete(a.run(inv))
		if next := a.handoff(); next != nil {
			go a.drain(next)
		}
	}
	return inv.wait()
}

// invocation is one firing of one activity, from admission to completion.
type invocation struct {
	ctx    context.Context
	ev     domain.Event
	recv   domain.Receiver
	args   []any
	kwargs map[string]any

	// gate is closed once the previous activity of the same firing has reached
	// its handler; started is closed when this one does (or completes).
	gate      <-chan struct{}
	started   chan struct{}
	startOnce sync.Once

	// dequeue stops the cancellation watcher of a queued invocation. It
	// reports false when the watcher already ran.
	dequeue func() bool

	once sync.Once
	done chan struct{}
	err  error
}

func (inv *invocation) markStarted() {
	inv.startOnce.Do(func() { close(inv.started) })
}

func (inv *invocation) complete(err error) {
	inv.once.Do(func() {
		inv.err = err
		inv.markStarted()
		close(inv.done)
	})
}

func (inv *invocation) wait() error {
	<-inv.done
	return inv.err
}

// admit takes the lock step for one firing without blocking. It reports true
// when the caller now holds the lock and must run the invocation. A dropped
// invocation comes back already complete; a queued one completes once a
// running invocation hands it the lock, or once its ctx ends.
func (a *Activity) admit(ctx context.Context, ev domain.Event, recv domain.Receiver, args []any, kwargs map[string]any) (*invocation, bool) {
	inv := &invocation{
		ctx:     ctx,
		ev:      ev,
		recv:    recv,
		args:    args,
		kwargs:  kwargs,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}

	a.qmu.Lock()
	if len(a.queue) == 0 && a.lock.TryAcquire(1) {
		a.busy.Store(true)
		a.qmu.Unlock()
		return inv, true
	}
	if a.mode == domain.ModeDrop {
		a.qmu.Unlock()
		a.logger.Debug("activity busy, firing dropped", "event_id", ev.ID)
		a.hook(ctx, a.hooks.OnDrop, a.eventInfo(ev))
		inv.complete(nil)
		return inv, false
	}
	a.queue = append(a.queue, inv)
	inv.dequeue = context.AfterFunc(ctx, func() { a.abandon(inv) })
	a.qmu.Unlock()
	return inv, false
}

// abandon takes a queued invocation whose ctx ended out of the queue.
func (a *Activity) abandon(inv *invocation) {
	a.qmu.Lock()
	i := slices.Index(a.queue, inv)
	if i >= 0 {
		a.queue = slices.Delete(a.queue, i, i+1)
	}
	a.qmu.Unlock()
	if i >= 0 {
		inv.complete(a.cancelled(inv))
	}
}

func (a *Activity) cancelled(inv *invocation) error {
	return fmt.Errorf("activity %q: waiting for lock: %w", a.name, inv.ctx.Err())
}

// handoff passes the lock to the oldest queued invocation, or releases it when
// nothing is waiting.
func (a *Activity) handoff() *invocation {
	a.qmu.Lock()
	defer a.qmu.Unlock()
	for len(a.queue) > 0 {
		next := a.queue[0]
		a.queue = a.queue[1:]
		if next.dequeue() {
			return next
		}
		// Its ctx ended while we held qmu; abandon will not find it.
		next.complete(a.cancelled(next))
	}
	a.busy.Store(false)
	a.lock.Release(1)
	return nil
}

// drain runs inv, which holds the lock, and every invocation handed the lock
// after it.
func (a *Activity) drain(inv *invocation) {
	for inv != nil {
		inv.complete(a.run(inv))
		inv = a.handoff()
	}
}

func (a *Activity) eventInfo(ev domain.Event) *domain.ActivityEvent {
	return &domain.ActivityEvent{Activity: a.name, EventID: ev.ID, Mode: a.mode}
}

// run invokes the handler for inv while holding the lock and routes its
// failure. It never panics.
func (a *Activity) run(inv *invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("activity dispatch panicked", "event_id", inv.ev.ID, "panic", r)
			err = fmt.Errorf("activity %q: dispatch panicked: %v", a.name, r)
		}
	}()
	if inv.gate != nil {
		<-inv.gate
	}

	ctx, ev, recv := inv.ctx, inv.ev, inv.recv
	info := a.eventInfo(ev)
	call := a.buildCall(ev, recv, inv.args, inv.kwargs)

	a.hook(ctx, a.hooks.OnActivityStart, info)
	inv.markStarted()
	start := time.Now()
	recovered, stack, herr := a.invoke(ctx, call)
	info.Duration = time.Since(start)

	if herr == nil {
		a.hook(ctx, a.hooks.OnActivityDone, info)
		return nil
	}

	failure := &domain.HandlerFailure{Activity: a.name, EventID: ev.ID, Err: herr}
	info.Err = failure
	a.hook(ctx, a.hooks.OnHandlerFailure, info)

	switch r := recv.(type) {
	case domain.Instance:
		root := r.Owner.Root()
		if root == nil {
			a.logger.Error("activity failed and owner has no root", "event_id", ev.ID, "err", herr)
			return failure
		}
		a.logger.Debug("activity failed, routed to root", "event_id", ev.ID, "err", herr)
		return a.report(root, domain.ExcInfo{
			Activity: a.name,
			Event:    ev,
			Err:      failure,
			Panic:    recovered,
			Stack:    stack,
		})
	case domain.Detached, nil:
		a.logger.Error("activity failed", "event_id", ev.ID, "err", herr)
		return failure
	default:
		panic(fmt.Sprintf("pubsub: unknown receiver %T", recv))
	}
}

// report hands a failure to the root. A panicking root gives the failure back
// to the caller instead.
func (a *Activity) report(root domain.ExceptionHandler, exc domain.ExcInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("exception handler panicked", "event_id", exc.Event.ID, "panic", r)
			err = fmt.Errorf("exception handler panicked: %v: %w", r, exc.Err)
		}
	}()
	root.HandleException(exc)
	return nil
}

func (a *Activity) hook(ctx context.Context, fn func(context.Context, *domain.ActivityEvent), info *domain.ActivityEvent) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("lifecycle hook panicked", "event_id", info.EventID, "panic", r)
		}
	}()
	fn(ctx, info)
}

func (a *Activity) buildCall(ev domain.Event, recv domain.Receiver, args []any, kwargs map[string]any) Call {
	call := Call{
		Event:  ev,
		Args:   slices.Concat(a.args, args),
		Kwargs: maps.Clone(a.kwargs),
		Params: a.params.Resolve(ev.Params),
	}
	maps.Copy(call.Kwargs, kwargs)
	if inst, ok := recv.(domain.Instance); ok {
		call.Instance = inst.Owner
	}
	return call
}

func (a *Activity) invoke(ctx context.Context, call Call) (recovered any, stack []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			recovered = r
			stack = debug.Stack()
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return nil, nil, a.handler(ctx, call)
}
