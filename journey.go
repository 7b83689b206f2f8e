package journey

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/aretw0/journey/internal/logging"
	"github.com/aretw0/journey/pkg/clock"
	"github.com/aretw0/journey/pkg/config"
	"github.com/aretw0/journey/pkg/domain"
	"github.com/aretw0/journey/pkg/node"
	"github.com/aretw0/journey/pkg/ports"
	"github.com/aretw0/journey/pkg/pubsub"
	"github.com/aretw0/journey/pkg/scheduler"
)

// Source is a named trigger source the Engine can fire and list.
type Source interface {
	pubsub.Source
	Info() domain.SourceInfo
	Trigger(ctx context.Context, params map[string]any) *pubsub.Dispatch
}

// HandlerFactory builds a handler from the options of an activity declaration.
type HandlerFactory func(options map[string]any) (pubsub.Handler, error)

// ActivityDecl declares an activity by names, the way declaration files do.
type ActivityDecl struct {
	Name    string
	Trigger string
	Handler string
	Mode    domain.Mode
	Params  []string
	Args    []any
	Kwargs  map[string]any
	Options map[string]any
}

// Engine is the high-level entry point of the library. It owns a set of named
// sources (clocks and plain triggers), a set of named handlers and the owner
// tree every source belongs to, so handler failures end up at Root.
type Engine struct {
	sched  ports.Scheduler
	logger *slog.Logger
	hooks  domain.LifecycleHooks
	root   *node.Root

	mu         sync.RWMutex
	sources    map[string]Source
	order      []string
	handlers   map[string]HandlerFactory
	activities []*pubsub.Activity
	autostart  map[string]bool
}

var _ ports.Dispatcher = (*Engine)(nil)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithScheduler sets the scheduler every source runs on (default: a wall-clock Loop).
func WithScheduler(s ports.Scheduler) Option {
	return func(e *Engine) {
		e.sched = s
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks on every source and activity.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// New initializes a new Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		sources:   make(map[string]Source),
		handlers:  make(map[string]HandlerFactory),
		autostart: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.sched == nil {
		e.sched = scheduler.NewLoop(scheduler.WithLogger(e.logger))
	}
	e.root = node.NewRoot("journey", node.WithLogger(e.logger))
	return e
}

// Root returns the exception sink of the engine's owner tree.
func (e *Engine) Root() *node.Root {
	return e.root
}

// Scheduler returns the scheduler the engine's sources run on.
func (e *Engine) Scheduler() ports.Scheduler {
	return e.sched
}

// AddClock creates a stopped clock called name, owned by the engine.
func (e *Engine) AddClock(name string, opts ...clock.Option) (*clock.Instance, error) {
	base := []clock.Option{clock.WithLogger(e.logger), clock.WithHooks(e.hooks)}
	c := clock.NewDynamic(name, node.New(name, e.root.Node), e.sched, append(base, opts...)...)
	if err := e.RegisterSource(name, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddTrigger creates a plain trigger called name, fired through Fire.
func (e *Engine) AddTrigger(name string) (*pubsub.Binding, error) {
	b := pubsub.NewBinding(pubsub.StrongRef(name, node.New(name, e.root.Node)), e.sched,
		pubsub.WithRegistryLogger(e.logger),
		pubsub.WithRegistryHooks(e.hooks),
	)
	if err := e.RegisterSource(name, b); err != nil {
		return nil, err
	}
	return b, nil
}

// RegisterSource makes src available under name.
func (e *Engine) RegisterSource(name string, src Source) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sources[name]; ok {
		return fmt.Errorf("%w: %q", domain.ErrDuplicateSource, name)
	}
	e.sources[name] = src
	e.order = append(e.order, name)
	e.logger.Debug("source registered", "source", name, "kind", src.Info().Kind)
	return nil
}

// Source returns the source registered under name.
func (e *Engine) Source(name string) (Source, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	src, ok := e.sources[name]
	return src, ok
}

// RegisterHandler makes h available to declarations under name. Options of
// such declarations are ignored.
func (e *Engine) RegisterHandler(name string, h pubsub.Handler) {
	e.RegisterHandlerFactory(name, func(map[string]any) (pubsub.Handler, error) {
		return h, nil
	})
}

// RegisterHandlerFactory makes f available to declarations under name.
// A later registration under the same name replaces the earlier one.
func (e *Engine) RegisterHandlerFactory(name string, f HandlerFactory) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = f
}

// Handlers returns the registered handler names, sorted.
func (e *Engine) Handlers() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := slices.Collect(maps.Keys(e.handlers))
	sort.Strings(names)
	return names
}

// Declare builds the activity described by d and binds it to its trigger.
// An empty Trigger leaves the activity unbound.
func (e *Engine) Declare(d ActivityDecl) (*pubsub.Activity, error) {
	e.mu.RLock()
	factory, ok := e.handlers[d.Handler]
	var src Source
	if d.Trigger != "" {
		src = e.sources[d.Trigger]
	}
	e.mu.RUnlock()

	if !ok {
		return nil, &domain.DeclarationError{Activity: d.Name, Err: fmt.Errorf("%w: %q", domain.ErrHandlerNotFound, d.Handler)}
	}
	if d.Trigger != "" && src == nil {
		return nil, &domain.DeclarationError{Activity: d.Name, Err: fmt.Errorf("%w: %q", domain.ErrSourceNotFound, d.Trigger)}
	}

	h, err := factory(d.Options)
	if err != nil {
		return nil, &domain.DeclarationError{Activity: d.Name, Err: fmt.Errorf("handler %q: %w", d.Handler, err)}
	}

	opts := []pubsub.Option{
		pubsub.WithMode(d.Mode),
		pubsub.WithParams(d.Params...),
		pubsub.WithArgs(d.Args...),
		pubsub.WithKwargs(d.Kwargs),
		pubsub.WithLogger(e.logger),
		pubsub.WithHooks(e.hooks),
	}
	if d.Name != "" {
		opts = append(opts, pubsub.WithName(d.Name))
	}
	var target any = h
	var source any
	if src != nil {
		source = src
	}
	a, err := pubsub.Declare(source, target, opts...)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.activities = append(e.activities, a)
	e.mu.Unlock()
	e.logger.Debug("activity declared", "activity", a.Name(), "trigger", d.Trigger, "mode", a.Mode().String())
	return a, nil
}

// Activities returns the activities declared through the engine.
func (e *Engine) Activities() []*pubsub.Activity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.activities)
}

// Fire triggers the named source with params and waits until every subscriber
// has returned. Failures routed to Root are not reported here; only errors of
// standalone subscribers are.
func (e *Engine) Fire(ctx context.Context, source string, params map[string]any) error {
	src, ok := e.Source(source)
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrSourceNotFound, source)
	}
	return src.Trigger(ctx, params).WaitContext(ctx)
}

// Sources lists every source in registration order.
func (e *Engine) Sources() []domain.SourceInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.SourceInfo, 0, len(e.order))
	for _, name := range e.order {
		out = append(out, e.sources[name].Info())
	}
	return out
}

// Autostart marks the clock called name to be started by Start.
func (e *Engine) Autostart(name string) error {
	if _, err := e.clock(name); err != nil {
		return err
	}
	e.mu.Lock()
	e.autostart[name] = true
	e.mu.Unlock()
	return nil
}

// Start starts every clock marked with Autostart. Cancelling ctx ends their
// loops without waiting for the current sleep.
func (e *Engine) Start(ctx context.Context) {
	for _, c := range e.clocks(func(name string) bool { return e.autostart[name] }) {
		<-c.StartContext(ctx)
	}
}

// StartClock starts the clock called name.
func (e *Engine) StartClock(ctx context.Context, name string) error {
	c, err := e.clock(name)
	if err != nil {
		return err
	}
	<-c.StartContext(ctx)
	return nil
}

// StopClock stops the clock called name.
func (e *Engine) StopClock(name string) error {
	c, err := e.clock(name)
	if err != nil {
		return err
	}
	c.Stop()
	return nil
}

// Stop stops every clock and waits, bounded by ctx, for their loops and the
// dispatches they started to finish.
func (e *Engine) Stop(ctx context.Context) error {
	clocks := e.clocks(nil)
	for _, c := range clocks {
		c.Stop()
	}
	done := make(chan struct{})
	go func() {
		for _, c := range clocks {
			c.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		e.logger.Debug("engine stopped", "clocks", len(clocks))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for clocks to drain: %w", ctx.Err())
	}
}

func (e *Engine) clock(name string) (*clock.Instance, error) {
	src, ok := e.Source(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrSourceNotFound, name)
	}
	c, ok := src.(*clock.Instance)
	if !ok {
		return nil, fmt.Errorf("source %q is not a clock", name)
	}
	return c, nil
}

// clocks returns the registered clocks, filtered by keep when non-nil.
func (e *Engine) clocks(keep func(name string) bool) []*clock.Instance {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*clock.Instance
	for _, name := range e.order {
		c, ok := e.sources[name].(*clock.Instance)
		if ok && (keep == nil || keep(name)) {
			out = append(out, c)
		}
	}
	return out
}

// Build declares everything in f: clocks, triggers and activities. f is
// validated against the registered handlers first; nothing is declared when
// validation fails.
func (e *Engine) Build(f *config.File) error {
	if err := f.Validate(e.Handlers()); err != nil {
		return err
	}
	for _, c := range f.Clocks {
		if _, err := e.AddClock(c.Name, clock.WithPeriod(c.PeriodSeconds())); err != nil {
			return err
		}
		if c.Autostart {
			if err := e.Autostart(c.Name); err != nil {
				return err
			}
		}
	}
	for _, t := range f.Triggers {
		if _, err := e.AddTrigger(t.Name); err != nil {
			return err
		}
	}
	for _, a := range f.Activities {
		mode, err := domain.ParseMode(a.Mode)
		if err != nil {
			return err
		}
		if _, err := e.Declare(ActivityDecl{
			Name:    a.Name,
			Trigger: a.Trigger,
			Handler: a.Handler,
			Mode:    mode,
			Params:  a.Params,
			Args:    a.Args,
			Kwargs:  a.Kwargs,
			Options: a.Options,
		}); err != nil {
			return err
		}
	}
	return nil
}
