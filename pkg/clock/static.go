package clock

import (
	"github.com/aretw0/journey/pkg/ports"
	"github.com/aretw0/journey/pkg/pubsub"
)

// Static is a clock declared for every object of type O. Activities bound to
// it are subscribed on every owner's clock, including owners realized later.
type Static[O any] struct {
	*pubsub.Descriptor[O, *Instance]
}

// Declare declares a clock attribute called name for owners of type O.
func Declare[O any](name string, sched ports.Scheduler, opts ...Option) *Static[O] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	d := pubsub.NewDescriptor[O](name, sched, func(ref pubsub.Ref) *Instance {
		return newInstance(ref, sched, o)
	}, pubsub.WithRegistryLogger(o.logger), pubsub.WithRegistryHooks(o.hooks))
	return &Static[O]{Descriptor: d}
}

// Of returns the clock of owner, creating it stopped on first access.
func (s *Static[O]) Of(owner *O) *Instance {
	return s.Get(owner)
}

// StartAll starts the clock of every realized owner.
func (s *Static[O]) StartAll() {
	for _, c := range s.Instances() {
		c.Start()
	}
}

// StopAll stops the clock of every realized owner.
func (s *Static[O]) StopAll() {
	for _, c := range s.Instances() {
		c.Stop()
	}
}
