package pubsub_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/journey/pkg/domain"
	"github.com/aretw0/journey/pkg/pubsub"
	"github.com/aretw0/journey/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func event(params map[string]any) domain.Event {
	return domain.NewEvent(time.Now(), params)
}

func TestActivity_DropModeDiscardsWhileBusy(t *testing.T) {
	ctx := context.Background()
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls atomic.Int32

	a := pubsub.MustNew(func(context.Context, pubsub.Call) error {
		calls.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}, pubsub.WithMode(domain.ModeDrop))

	first := make(chan error, 1)
	go func() { first <- a.Trigger(ctx, event(nil), domain.Standalone()) }()
	<-started
	require.True(t, a.Busy())

	// Second firing while the first is in flight: silently dropped.
	require.NoError(t, a.Trigger(ctx, event(nil), domain.Standalone()))
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, a.Busy(), "a dropped firing must not release the running invocation's lock")

	close(release)
	require.NoError(t, <-first)
	assert.False(t, a.Busy())

	// Once idle, the next firing runs again.
	require.NoError(t, a.Trigger(ctx, event(nil), domain.Standalone()))
	assert.Equal(t, int32(2), calls.Load())
}

func TestActivity_DropHook(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var drops atomic.Int32

	a := pubsub.MustNew(func(context.Context, pubsub.Call) error {
		close(started)
		<-release
		return nil
	}, pubsub.WithMode(domain.ModeDrop), pubsub.WithHooks(domain.LifecycleHooks{
		OnDrop: func(context.Context, *domain.ActivityEvent) { drops.Add(1) },
	}))

	done := make(chan error, 1)
	go func() { done <- a.Trigger(context.Background(), event(nil), domain.Standalone()) }()
	<-started

	require.NoError(t, a.Trigger(context.Background(), event(nil), domain.Standalone()))
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), drops.Load())
}

func TestActivity_ScheduleModeSerializes(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var trace []string
	log := func(s string) {
		mu.Lock()
		trace = append(trace, s)
		mu.Unlock()
	}

	gate := make(chan struct{})
	var calls atomic.Int32
	a := pubsub.MustNew(func(_ context.Context, call pubsub.Call) error {
		n, _ := call.Params.Lookup("n")
		log("start-" + n.(string))
		if calls.Add(1) == 1 {
			<-gate
		}
		// Internal await inside the critical section.
		time.Sleep(5 * time.Millisecond)
		log("end-" + n.(string))
		return nil
	}, pubsub.WithParams("n"))
	require.Equal(t, domain.ModeSchedule, a.Mode())

	errs := make(chan error, 2)
	go func() { errs <- a.Trigger(ctx, event(map[string]any{"n": "1"}), domain.Standalone()) }()
	require.Eventually(t, a.Busy, time.Second, time.Millisecond)
	go func() { errs <- a.Trigger(ctx, event(map[string]any{"n": "2"}), domain.Standalone()) }()

	assert.Never(t, func() bool { return calls.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond,
		"second invocation must wait for the first")

	close(gate)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	assert.Equal(t, []string{"start-1", "end-1", "start-2", "end-2"}, trace)
}

func TestActivity_ScheduleModeHonoursCancellationWhileQueued(t *testing.T) {
	release := make(chan struct{})
	a := pubsub.MustNew(func(context.Context, pubsub.Call) error {
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- a.Trigger(context.Background(), event(nil), domain.Standalone()) }()
	require.Eventually(t, a.Busy, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := a.Trigger(ctx, event(nil), domain.Standalone())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, domain.IsHandlerFailure(err))

	close(release)
	require.NoError(t, <-done)
}

func TestActivity_QueueCancellationIsReturnedEvenWithInstance(t *testing.T) {
	release := make(chan struct{})
	root := &mockRoot{}
	w := &widget{name: "w", root: root}
	a := pubsub.MustNew(func(context.Context, pubsub.Call) error {
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- a.Trigger(context.Background(), event(nil), domain.WithInstance(w)) }()
	require.Eventually(t, a.Busy, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := a.Trigger(ctx, event(nil), domain.WithInstance(w))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
	root.AssertNotCalled(t, "HandleException", mock.Anything)
	assert.False(t, a.Busy())
}

func TestActivity_ParameterBinding(t *testing.T) {
	var got domain.Params
	a := pubsub.MustNew(func(_ context.Context, call pubsub.Call) error {
		got = call.Params
		return nil
	}, pubsub.WithParams("a", "b"))

	require.NoError(t, a.Trigger(context.Background(), event(map[string]any{"a": 5, "z": 1}), domain.Standalone()))

	assert.Equal(t, 5, got["a"])
	assert.True(t, domain.IsUnset(got["b"]), "missing parameters pass as Unset")
	assert.NotContains(t, got, "z")
	assert.Equal(t, []string{"a", "b"}, a.Params())
}

func TestActivity_ArgumentsAndInstance(t *testing.T) {
	w := newWidget("w")
	var got pubsub.Call
	a := pubsub.MustNew(func(_ context.Context, call pubsub.Call) error {
		got = call
		return nil
	}, pubsub.WithArgs("declared"), pubsub.WithKwargs(map[string]any{"k": "declared", "fixed": true}))

	err := a.TriggerWith(context.Background(), event(nil), domain.WithInstance(w),
		[]any{"caller"}, map[string]any{"k": "caller"})
	require.NoError(t, err)

	assert.Same(t, w, got.Instance)
	assert.Equal(t, []any{"declared", "caller"}, got.Args)
	assert.Equal(t, map[string]any{"k": "caller", "fixed": true}, got.Kwargs)

	require.NoError(t, a.Trigger(context.Background(), event(nil), domain.Standalone()))
	assert.Nil(t, got.Instance)
}

func TestActivity_FailureWithInstanceGoesToRoot(t *testing.T) {
	root := &mockRoot{}
	w := &widget{name: "w", root: root}
	boom := errors.New("boom")

	a := pubsub.MustNew(func(context.Context, pubsub.Call) error { return boom }, pubsub.WithName("bad"))
	ev := event(nil)
	root.On("HandleException", mock.MatchedBy(func(info domain.ExcInfo) bool {
		return info.Activity == "bad" && info.Event.ID == ev.ID && errors.Is(info.Err, boom)
	})).Once()

	err := a.Trigger(context.Background(), ev, domain.WithInstance(w))

	assert.NoError(t, err)
	root.AssertExpectations(t)
	assert.False(t, a.Busy(), "lock must be released on the failure path")
}

func TestActivity_FailureStandaloneIsReturned(t *testing.T) {
	boom := errors.New("boom")
	var failures atomic.Int32
	a := pubsub.MustNew(func(context.Context, pubsub.Call) error { return boom },
		pubsub.WithHooks(domain.LifecycleHooks{
			OnHandlerFailure: func(context.Context, *domain.ActivityEvent) { failures.Add(1) },
		}))

	err := a.Trigger(context.Background(), event(nil), domain.Standalone())

	assert.ErrorIs(t, err, boom)
	assert.True(t, domain.IsHandlerFailure(err))
	assert.Equal(t, int32(1), failures.Load())
	assert.False(t, a.Busy())
}

func TestActivity_PanicIsRecovered(t *testing.T) {
	root := &mockRoot{}
	w := &widget{name: "w", root: root}
	root.On("HandleException", mock.MatchedBy(func(info domain.ExcInfo) bool {
		return info.Panic == "kaboom" && len(info.Stack) > 0
	})).Once()

	a := pubsub.MustNew(func(context.Context, pubsub.Call) error { panic("kaboom") })

	require.NoError(t, a.Trigger(context.Background(), event(nil), domain.WithInstance(w)))
	root.AssertExpectations(t)

	err := a.Trigger(context.Background(), event(nil), domain.Standalone())
	assert.ErrorContains(t, err, "kaboom")
}

func TestActivity_CallIsAPassthrough(t *testing.T) {
	var got pubsub.Call
	a := pubsub.MustNew(func(_ context.Context, call pubsub.Call) error {
		got = call
		return nil
	}, pubsub.WithParams("a"), pubsub.WithArgs("declared"))

	require.NoError(t, a.Call(context.Background(), pubsub.Call{Args: []any{"manual"}}))

	assert.Equal(t, []any{"manual"}, got.Args, "direct calls skip declared arguments")
	assert.Nil(t, got.Params, "direct calls skip parameter binding")
}

func TestActivity_BindMovesBetweenSources(t *testing.T) {
	sched := scheduler.NewLoop()
	first := pubsub.NewRegistry("first", sched)
	second := pubsub.NewRegistry("second", sched)

	a := pubsub.MustNew(noop, pubsub.On(first))
	assert.Same(t, first, a.Source())
	assert.Equal(t, 1, first.Len())

	a.Bind(second)
	assert.Equal(t, 0, first.Len())
	assert.Equal(t, 1, second.Len())
	assert.Same(t, second, a.Source())

	a.Bind(nil)
	assert.Same(t, second, a.Source(), "binding to nil is ignored")

	a.Unbind()
	assert.Nil(t, a.Source())
	assert.Equal(t, 0, second.Len())
}

func TestDeclare(t *testing.T) {
	src := pubsub.NewRegistry("src", scheduler.NewLoop())
	fn := func(context.Context, pubsub.Call) error { return nil }

	t.Run("handler func", func(t *testing.T) {
		a, err := pubsub.Declare(src, fn, pubsub.WithName("ok"))
		require.NoError(t, err)
		assert.Same(t, src, a.Source())
	})

	t.Run("typed handler unbound", func(t *testing.T) {
		a, err := pubsub.Declare(nil, pubsub.Handler(fn))
		require.NoError(t, err)
		assert.Nil(t, a.Source())
	})

	t.Run("not async", func(t *testing.T) {
		_, err := pubsub.Declare(src, func() {}, pubsub.WithName("sync"))
		require.Error(t, err)
		assert.True(t, domain.IsDeclarationError(err))
		assert.ErrorIs(t, err, domain.ErrNotAsync)
		assert.Contains(t, err.Error(), `"sync"`)
	})

	t.Run("nil handler", func(t *testing.T) {
		_, err := pubsub.New(nil)
		assert.ErrorIs(t, err, domain.ErrNotAsync)
	})

	t.Run("not a trigger source", func(t *testing.T) {
		_, err := pubsub.Declare("heartbeat", fn)
		assert.True(t, domain.IsDeclarationError(err))
		assert.ErrorIs(t, err, domain.ErrNotTriggerSource)
	})
}
