package journey_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/journey"
	"github.com/aretw0/journey/pkg/config"
	"github.com/aretw0/journey/pkg/domain"
	"github.com/aretw0/journey/pkg/pubsub"
	"github.com/aretw0/journey/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestEngine_FireTrigger(t *testing.T) {
	eng := journey.New()
	_, err := eng.AddTrigger("webhook")
	require.NoError(t, err)

	var got pubsub.Call
	eng.RegisterHandler("capture", func(_ context.Context, call pubsub.Call) error {
		got = call
		return nil
	})
	a, err := eng.Declare(journey.ActivityDecl{Name: "cap", Trigger: "webhook", Handler: "capture", Params: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "cap", a.Name())

	require.NoError(t, eng.Fire(context.Background(), "webhook", map[string]any{"a": 5}))

	assert.Equal(t, 5, got.Params["a"])
	assert.True(t, domain.IsUnset(got.Params["b"]))
	require.NotNil(t, got.Instance, "engine sources are owned by the engine tree")
	assert.Same(t, eng.Root(), got.Instance.Root())
}

func TestEngine_FireUnknownSource(t *testing.T) {
	err := journey.New().Fire(context.Background(), "ghost", nil)
	assert.ErrorIs(t, err, domain.ErrSourceNotFound)
}

func TestEngine_FailuresGoToRoot(t *testing.T) {
	eng := journey.New()
	_, err := eng.AddTrigger("webhook")
	require.NoError(t, err)
	boom := errors.New("boom")
	eng.RegisterHandler("bad", func(context.Context, pubsub.Call) error { return boom })
	var ok atomic.Int32
	eng.RegisterHandler("good", func(context.Context, pubsub.Call) error {
		ok.Add(1)
		return nil
	})
	_, err = eng.Declare(journey.ActivityDecl{Name: "bad", Trigger: "webhook", Handler: "bad"})
	require.NoError(t, err)
	_, err = eng.Declare(journey.ActivityDecl{Name: "good", Trigger: "webhook", Handler: "good"})
	require.NoError(t, err)

	require.NoError(t, eng.Fire(context.Background(), "webhook", nil))

	assert.Equal(t, int32(1), ok.Load())
	require.Equal(t, 1, eng.Root().Failures())
	assert.ErrorIs(t, eng.Root().History()[0].Err, boom)
}

func TestEngine_DeclareErrors(t *testing.T) {
	eng := journey.New()
	_, err := eng.AddTrigger("webhook")
	require.NoError(t, err)
	eng.RegisterHandlerFactory("picky", func(map[string]any) (pubsub.Handler, error) {
		return nil, errors.New("bad options")
	})

	_, err = eng.Declare(journey.ActivityDecl{Name: "a", Trigger: "webhook", Handler: "ghost"})
	assert.True(t, domain.IsDeclarationError(err))
	assert.ErrorIs(t, err, domain.ErrHandlerNotFound)

	eng.RegisterHandler("noop", func(context.Context, pubsub.Call) error { return nil })
	_, err = eng.Declare(journey.ActivityDecl{Name: "a", Trigger: "ghost", Handler: "noop"})
	assert.ErrorIs(t, err, domain.ErrSourceNotFound)

	_, err = eng.Declare(journey.ActivityDecl{Name: "a", Trigger: "webhook", Handler: "picky"})
	assert.ErrorContains(t, err, "bad options")

	a, err := eng.Declare(journey.ActivityDecl{Name: "loose", Handler: "noop"})
	require.NoError(t, err)
	assert.Nil(t, a.Source())
}

func TestEngine_DuplicateSource(t *testing.T) {
	eng := journey.New()
	_, err := eng.AddTrigger("x")
	require.NoError(t, err)
	_, err = eng.AddClock("x")
	assert.ErrorIs(t, err, domain.ErrDuplicateSource)
}

func TestEngine_ClocksAndSources(t *testing.T) {
	v := scheduler.NewVirtual(epoch)
	eng := journey.New(journey.WithScheduler(v))

	c, err := eng.AddClock("beat")
	require.NoError(t, err)
	require.NoError(t, c.SetFrequency(2))
	_, err = eng.AddTrigger("webhook")
	require.NoError(t, err)

	var ticks atomic.Int32
	eng.RegisterHandler("count", func(context.Context, pubsub.Call) error {
		ticks.Add(1)
		return nil
	})
	_, err = eng.Declare(journey.ActivityDecl{Name: "tick", Trigger: "beat", Handler: "count", Mode: domain.ModeDrop})
	require.NoError(t, err)

	require.NoError(t, eng.Autostart("beat"))
	assert.Error(t, eng.Autostart("webhook"), "only clocks can autostart")

	ctx := context.Background()
	eng.Start(ctx)
	assert.True(t, c.Running())

	infos := eng.Sources()
	require.Len(t, infos, 2)
	assert.Equal(t, "beat", infos[0].Name)
	assert.Equal(t, "clock", infos[0].Kind)
	assert.True(t, infos[0].Running)
	assert.Equal(t, 0.5, infos[0].PeriodSeconds)
	assert.Equal(t, []string{"tick"}, infos[0].Subscribers)
	assert.Equal(t, "trigger", infos[1].Kind)

	v.BlockUntil(1)
	v.Advance(500 * time.Millisecond)
	require.Eventually(t, func() bool { return ticks.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, eng.StopClock("beat"))
	v.BlockUntil(1)
	v.Advance(500 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, eng.Stop(stopCtx))
	assert.Equal(t, int32(1), ticks.Load())
}

func TestEngine_StopTimesOutWhileClockSleeps(t *testing.T) {
	v := scheduler.NewVirtual(epoch)
	eng := journey.New(journey.WithScheduler(v))
	_, err := eng.AddClock("beat")
	require.NoError(t, err)
	require.NoError(t, eng.StartClock(context.Background(), "beat"))
	v.BlockUntil(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, eng.Stop(ctx), context.DeadlineExceeded)

	v.Advance(time.Second)
	require.NoError(t, eng.Stop(context.Background()))
}

func TestEngine_StartContextCancelEndsClocks(t *testing.T) {
	v := scheduler.NewVirtual(epoch)
	eng := journey.New(journey.WithScheduler(v))
	c, err := eng.AddClock("beat")
	require.NoError(t, err)
	require.NoError(t, eng.Autostart("beat"))

	ctx, cancel := context.WithCancel(context.Background())
	eng.Start(ctx)
	v.BlockUntil(1)
	cancel()

	require.NoError(t, eng.Stop(context.Background()))
	assert.False(t, c.Running())
}

func TestEngine_Build(t *testing.T) {
	f, err := config.Parse([]byte(`
clocks:
  - name: heartbeat
    period: 0.5
    autostart: true
triggers:
  - name: webhook
activities:
  - name: on-tick
    trigger: heartbeat
    handler: noop
    mode: drop
  - name: on-hook
    trigger: webhook
    handler: noop
    params: [a]
`), "yaml")
	require.NoError(t, err)

	eng := journey.New(journey.WithScheduler(scheduler.NewVirtual(epoch)))
	eng.RegisterHandler("noop", func(context.Context, pubsub.Call) error { return nil })
	require.NoError(t, eng.Build(f))

	acts := eng.Activities()
	require.Len(t, acts, 2)
	assert.Equal(t, domain.ModeDrop, acts[0].Mode())
	assert.Equal(t, domain.ModeSchedule, acts[1].Mode())
	assert.Equal(t, []string{"a"}, acts[1].Params())

	src, ok := eng.Source("heartbeat")
	require.True(t, ok)
	assert.Equal(t, 0.5, src.Info().PeriodSeconds)
}

func TestEngine_BuildPassesArguments(t *testing.T) {
	f, err := config.Parse([]byte(`
triggers:
  - name: webhook
activities:
  - name: echo
    trigger: webhook
    handler: capture
    args: [1]
    kwargs:
      sep: "-"
`), "yaml")
	require.NoError(t, err)

	eng := journey.New()
	var got pubsub.Call
	eng.RegisterHandler("capture", func(_ context.Context, call pubsub.Call) error {
		got = call
		return nil
	})
	require.NoError(t, eng.Build(f))
	require.NoError(t, eng.Fire(context.Background(), "webhook", nil))

	assert.Equal(t, []any{1}, got.Args)
	assert.Equal(t, map[string]any{"sep": "-"}, got.Kwargs)
}

func TestEngine_BuildRejectsInvalidFile(t *testing.T) {
	f := &config.File{Activities: []config.ActivityConfig{{Name: "a", Handler: "ghost"}}}
	eng := journey.New()

	err := eng.Build(f)

	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Empty(t, eng.Activities())
}

func TestEngine_LifecycleHooks(t *testing.T) {
	var fires, done atomic.Int32
	eng := journey.New(journey.WithLifecycleHooks(domain.LifecycleHooks{
		OnFire:         func(context.Context, *domain.FireEvent) { fires.Add(1) },
		OnActivityDone: func(context.Context, *domain.ActivityEvent) { done.Add(1) },
	}))
	_, err := eng.AddTrigger("webhook")
	require.NoError(t, err)
	eng.RegisterHandler("noop", func(context.Context, pubsub.Call) error { return nil })
	_, err = eng.Declare(journey.ActivityDecl{Trigger: "webhook", Handler: "noop"})
	require.NoError(t, err)

	require.NoError(t, eng.Fire(context.Background(), "webhook", nil))
	assert.Equal(t, int32(1), fires.Load())
	assert.Equal(t, int32(1), done.Load())
	assert.Equal(t, []string{"noop"}, eng.Handlers())
}
