package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one firing of a trigger source.
type Event struct {
	ID      string         `json:"id"`
	Senders []any          `json:"-"`
	Params  map[string]any `json:"params,omitempty"`
	FiredAt time.Time      `json:"fired_at"`
}

// NewEvent stamps a firing with a fresh ID.
func NewEvent(at time.Time, params map[string]any, senders ...any) Event {
	if params == nil {
		params = map[string]any{}
	}
	return Event{
		ID:      uuid.NewString(),
		Senders: senders,
		Params:  params,
		FiredAt: at,
	}
}

// ExcInfo describes a handler failure as delivered to an ExceptionHandler.
type ExcInfo struct {
	Activity string
	Event    Event
	Err      error
	// Panic holds the recovered value when the handler panicked.
	Panic any
	Stack []byte
}

// FireEvent is emitted once per trigger firing, before any activity runs.
type FireEvent struct {
	Source      string
	EventID     string
	Subscribers int
}

// ActivityEvent is emitted around each activity invocation.
type ActivityEvent struct {
	Activity string
	EventID  string
	Mode     Mode
	Duration time.Duration
	Err      error
}

// LifecycleHooks defines callbacks for dispatch observability.
// Nil callbacks are skipped.
type LifecycleHooks struct {
	OnFire           func(context.Context, *FireEvent)
	OnActivityStart  func(context.Context, *ActivityEvent)
	OnActivityDone   func(context.Context, *ActivityEvent)
	OnDrop           func(context.Context, *ActivityEvent)
	OnHandlerFailure func(context.Context, *ActivityEvent)
}

// Merge returns hooks that call h first and then other.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnFire:           chain(h.OnFire, other.OnFire),
		OnActivityStart:  chain(h.OnActivityStart, other.OnActivityStart),
		OnActivityDone:   chain(h.OnActivityDone, other.OnActivityDone),
		OnDrop:           chain(h.OnDrop, other.OnDrop),
		OnHandlerFailure: chain(h.OnHandlerFailure, other.OnHandlerFailure),
	}
}

func chain[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}

// SourceInfo is the introspection view of a named trigger source.
type SourceInfo struct {
	Name        string   `json:"name"`
	Kind        string   `json:"kind"`
	Subscribers []string `json:"subscribers"`
	Running     bool     `json:"running,omitempty"`
	// PeriodSeconds is set for clocks only.
	PeriodSeconds float64 `json:"period_seconds,omitempty"`
}
