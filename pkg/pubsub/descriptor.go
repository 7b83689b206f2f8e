package pubsub

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"weak"

	"github.com/aretw0/journey/pkg/domain"
	"github.com/aretw0/journey/pkg/ports"
)

// Descriptor is the class-level declaration of a trigger attribute. It keeps
// the activities declared against the attribute itself and lazily realizes one
// binding per owner object.
//
// The instance table is keyed by weak owner pointers. A binding must not hold a
// strong reference to its owner, otherwise the owner is never collected and its
// entry never evicted.
type Descriptor[O any, B Bound] struct {
	static     *Registry
	newBinding func(ref Ref) B
	logger     *slog.Logger

	mu        sync.Mutex
	instances map[weak.Pointer[O]]B
	order     []weak.Pointer[O]
}

var _ Source = (*Descriptor[struct{}, *Binding])(nil)

// NewDescriptor declares a trigger attribute called name. factory builds the
// binding for a new owner; it receives a weak reference to that owner.
func NewDescriptor[O any, B Bound](name string, sched ports.Scheduler, factory func(ref Ref) B, opts ...RegistryOption) *Descriptor[O, B] {
	static := NewRegistry(name, sched, opts...)
	return &Descriptor[O, B]{
		static:     static,
		newBinding: factory,
		logger:     static.logger,
		instances:  make(map[weak.Pointer[O]]B),
	}
}

// NewTrigger declares a plain trigger attribute whose bindings are *Binding.
func NewTrigger[O any](name string, sched ports.Scheduler, opts ...RegistryOption) *Descriptor[O, *Binding] {
	return NewDescriptor[O](name, sched, func(ref Ref) *Binding {
		return NewBinding(ref, sched, opts...)
	}, opts...)
}

// Name returns the attribute name.
func (d *Descriptor[O, B]) Name() string {
	return d.static.Name()
}

// Get returns the binding for owner, creating it on first access. A new binding
// starts with a copy of the activities declared on the descriptor.
// It panics if owner is nil.
func (d *Descriptor[O, B]) Get(owner *O) B {
	if owner == nil {
		panic("pubsub: Descriptor.Get called with a nil owner")
	}
	key := weak.Make(owner)

	d.mu.Lock()
	defer d.mu.Unlock()

	if b, ok := d.instances[key]; ok {
		return b
	}

	b := d.newBinding(WeakRef(d.Name(), owner))
	for _, a := range d.static.Activities() {
		b.AddActivity(a)
	}
	d.instances[key] = b
	d.order = append(d.order, key)
	runtime.AddCleanup(owner, d.evict, key)

	d.logger.Debug("binding created", "bindings", len(d.instances))
	return b
}

// Lookup returns the binding for owner without creating one.
func (d *Descriptor[O, B]) Lookup(owner *O) (B, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.instances[weak.Make(owner)]
	return b, ok
}

// Instances returns the live bindings in creation order.
func (d *Descriptor[O, B]) Instances() []B {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]B, 0, len(d.order))
	for _, k := range d.order {
		out = append(out, d.instances[k])
	}
	return out
}

// Len returns the number of live bindings.
func (d *Descriptor[O, B]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.instances)
}

// AddActivity subscribes a at the class level and on every existing binding.
func (d *Descriptor[O, B]) AddActivity(a *Activity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.static.AddActivity(a)
	for _, k := range d.order {
		d.instances[k].AddActivity(a)
	}
}

// RemoveActivity unsubscribes a at the class level and on every existing binding.
func (d *Descriptor[O, B]) RemoveActivity(a *Activity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.static.RemoveActivity(a)
	for _, k := range d.order {
		d.instances[k].RemoveActivity(a)
	}
}

// Activities returns the class-level activities.
func (d *Descriptor[O, B]) Activities() []*Activity {
	return d.static.Activities()
}

// Fire broadcasts one event to every live binding, each dispatching with its
// own owner as instance context. Bindings whose owner is already gone are
// skipped. Firing at the class level never runs a handler without an owner.
func (d *Descriptor[O, B]) Fire(ctx context.Context, params map[string]any) *Dispatch {
	ev := domain.NewEvent(d.static.Scheduler().Now(), params, d)
	all := &Dispatch{}
	for _, b := range d.Instances() {
		recv := b.Receiver()
		if _, ok := recv.(domain.Instance); !ok {
			continue
		}
		all.attach(b.Fire(ctx, ev, recv))
	}
	return all
}

func (d *Descriptor[O, B]) evict(key weak.Pointer[O]) {
	d.mu.Lock()
	b, ok := d.instances[key]
	if ok {
		delete(d.instances, key)
		d.order = slices.DeleteFunc(d.order, func(k weak.Pointer[O]) bool { return k == key })
	}
	d.mu.Unlock()

	if !ok {
		return
	}
	d.logger.Debug("owner collected, binding evicted")
	if c, ok := any(b).(io.Closer); ok {
		if err := c.Close(); err != nil {
			d.logger.Warn("closing evicted binding failed", "err", err)
		}
	}
}
