// Package node provides a minimal owner tree for activities.
//
// Objects that own triggers embed a *Node. Failures of activities running on
// behalf of any node are delivered to the Root at the top of its parent chain,
// never to the trigger that fired them.
package node

import (
	"log/slog"
	"sync"

	"github.com/aretw0/journey/internal/logging"
	"github.com/aretw0/journey/pkg/domain"
)

// Node is one element of the owner tree.
type Node struct {
	name   string
	parent *Node
	root   *Root
}

var _ domain.Owner = (*Node)(nil)

// New creates a child of parent.
func New(name string, parent *Node) *Node {
	return &Node{name: name, parent: parent}
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Parent returns the parent node, nil for a tree root.
func (n *Node) Parent() *Node { return n.parent }

// Path returns the names from the tree root down to n, joined with '/'.
func (n *Node) Path() string {
	if n.parent == nil {
		return n.name
	}
	return n.parent.Path() + "/" + n.name
}

// Root walks the parent chain and returns the exception handler of the tree.
// It returns nil when the top node has no Root attached.
func (n *Node) Root() domain.ExceptionHandler {
	top := n
	for top.parent != nil {
		top = top.parent
	}
	if top.root == nil {
		return nil
	}
	return top.root
}

// Root is the exception sink at the top of an owner tree. It logs every
// failure, keeps the most recent ones and optionally forwards them.
type Root struct {
	*Node

	logger  *slog.Logger
	limit   int
	onError func(domain.ExcInfo)

	mu      sync.Mutex
	history []domain.ExcInfo
	total   int
}

// RootOption configures a Root.
type RootOption func(*Root)

// WithLogger sets the logger failures are reported to.
func WithLogger(logger *slog.Logger) RootOption {
	return func(r *Root) {
		r.logger = logger
	}
}

// WithHistoryLimit bounds the kept history (default 100). Zero keeps nothing.
func WithHistoryLimit(n int) RootOption {
	return func(r *Root) {
		if n >= 0 {
			r.limit = n
		}
	}
}

// WithOnError registers a callback invoked for every failure after logging.
func WithOnError(fn func(domain.ExcInfo)) RootOption {
	return func(r *Root) {
		r.onError = fn
	}
}

// NewRoot creates the top node of a tree together with its exception sink.
func NewRoot(name string, opts ...RootOption) *Root {
	r := &Root{
		Node:   &Node{name: name},
		logger: logging.NewNop(),
		limit:  100,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Node.root = r
	return r
}

// HandleException records one activity failure.
func (r *Root) HandleException(info domain.ExcInfo) {
	attrs := []any{"activity", info.Activity, "event_id", info.Event.ID, "err", info.Err}
	if info.Panic != nil {
		attrs = append(attrs, "panic", info.Panic, "stack", string(info.Stack))
	}
	r.logger.Error("activity failed", attrs...)

	r.mu.Lock()
	r.total++
	if r.limit > 0 {
		r.history = append(r.history, info)
		if over := len(r.history) - r.limit; over > 0 {
			r.history = r.history[over:]
		}
	}
	cb := r.onError
	r.mu.Unlock()

	if cb != nil {
		cb(info)
	}
}

// History returns the kept failures, oldest first.
func (r *Root) History() []domain.ExcInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ExcInfo(nil), r.history...)
}

// Failures returns how many failures were handled in total.
func (r *Root) Failures() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
