package domain

// ExceptionHandler is the sink at the root of an owner tree. It receives every
// failure raised by an activity that ran on behalf of an owner in that tree.
type ExceptionHandler interface {
	HandleException(info ExcInfo)
}

// Owner is any object that carries trigger bindings. It must reach a stable root
// collaborator through its parent chain.
type Owner interface {
	Root() ExceptionHandler
}

// Receiver is the dispatch context of an activity invocation.
// It is sealed: the only variants are those returned by WithInstance and Standalone.
type Receiver interface {
	receiver()
}

// Instance is the Receiver variant carrying an owning object.
// Failures are routed to Owner.Root().
type Instance struct {
	Owner Owner
}

func (Instance) receiver() {}

// Detached is the Receiver variant without an owner (manual or test invocation).
// Failures are logged and returned to the caller.
type Detached struct{}

func (Detached) receiver() {}

// WithInstance builds the owner-bound variant. A nil owner yields Standalone.
func WithInstance(owner Owner) Receiver {
	if owner == nil {
		return Detached{}
	}
	return Instance{Owner: owner}
}

// Standalone builds the owner-less variant.
func Standalone() Receiver {
	return Detached{}
}
