package journey_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/journey"
	"github.com/aretw0/journey/pkg/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_RunsUntilCancelled(t *testing.T) {
	eng := journey.New()
	c, err := eng.AddClock("beat")
	require.NoError(t, err)
	require.NoError(t, c.SetPeriod(0.01))
	require.NoError(t, eng.Autostart("beat"))

	var ticks atomic.Int32
	eng.RegisterHandler("count", func(context.Context, pubsub.Call) error {
		ticks.Add(1)
		return nil
	})
	_, err = eng.Declare(journey.ActivityDecl{Trigger: "beat", Handler: "count"})
	require.NoError(t, err)

	var served atomic.Bool
	r := journey.NewRunner()
	r.Services = []journey.Service{func(ctx context.Context) error {
		served.Store(true)
		<-ctx.Done()
		return ctx.Err()
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, eng) }()

	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}
	assert.True(t, served.Load())
	assert.False(t, c.Running())
}

func TestRunner_ServiceFailureStopsEngine(t *testing.T) {
	eng := journey.New()
	_, err := eng.AddClock("beat")
	require.NoError(t, err)
	require.NoError(t, eng.Autostart("beat"))

	boom := errors.New("listen failed")
	r := journey.NewRunner()
	r.Services = []journey.Service{func(context.Context) error { return boom }}

	err = r.Run(context.Background(), eng)

	assert.ErrorIs(t, err, boom)
}
