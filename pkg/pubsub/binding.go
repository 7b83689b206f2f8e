package pubsub

import (
	"context"
	"weak"

	"github.com/aretw0/journey/pkg/domain"
	"github.com/aretw0/journey/pkg/ports"
)

// Ref is a back-reference from a binding to the object that owns it.
type Ref struct {
	// Name is the attribute (or source) name the binding was declared under.
	Name    string
	resolve func() domain.Owner
}

// WeakRef references owner without keeping it alive. Once owner is collected,
// Owner returns nil.
func WeakRef[O any](name string, owner *O) Ref {
	wp := weak.Make(owner)
	return Ref{
		Name: name,
		resolve: func() domain.Owner {
			p := wp.Value()
			if p == nil {
				return nil
			}
			if o, ok := any(p).(domain.Owner); ok {
				return o
			}
			return nil
		},
	}
}

// StrongRef references owner directly. Used for bindings created outside a
// Descriptor, where the caller controls both lifetimes.
func StrongRef(name string, owner domain.Owner) Ref {
	return Ref{
		Name:    name,
		resolve: func() domain.Owner { return owner },
	}
}

// Owner resolves the owner, or nil when there is none (or it was collected).
func (r Ref) Owner() domain.Owner {
	if r.resolve == nil {
		return nil
	}
	return r.resolve()
}

// Bound is a trigger source that belongs to one owner: what a Descriptor
// creates per owner object.
type Bound interface {
	Source
	Receiver() domain.Receiver
	Fire(ctx context.Context, ev domain.Event, recv domain.Receiver) *Dispatch
}

// Binding is the default per-owner trigger: a private registry plus the owner
// reference used as instance context when it fires.
type Binding struct {
	*Registry
	ref Ref
}

var _ Bound = (*Binding)(nil)

// NewBinding creates a binding for ref on sched.
func NewBinding(ref Ref, sched ports.Scheduler, opts ...RegistryOption) *Binding {
	return &Binding{
		Registry: NewRegistry(ref.Name, sched, opts...),
		ref:      ref,
	}
}

// Ref returns the owner reference.
func (b *Binding) Ref() Ref {
	return b.ref
}

// Owner returns the owning object, or nil.
func (b *Binding) Owner() domain.Owner {
	return b.ref.Owner()
}

// Receiver returns the dispatch context for this binding's firings.
func (b *Binding) Receiver() domain.Receiver {
	return domain.WithInstance(b.ref.Owner())
}

// Trigger fires every subscriber with params, the binding as sole sender and
// the owner as instance context.
func (b *Binding) Trigger(ctx context.Context, params map[string]any) *Dispatch {
	ev := domain.NewEvent(b.Scheduler().Now(), params, b)
	return b.Fire(ctx, ev, b.Receiver())
}
