package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/journey/pkg/domain"
	"github.com/aretw0/journey/pkg/observability"
	"github.com/aretw0/journey/pkg/pubsub"
	"github.com/aretw0/journey/pkg/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value reads the current value of a counter or gauge.
func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return pb.Gauge.GetValue()
}

func TestMetrics_Hooks(t *testing.T) {
	m := observability.NewMetrics(nil)
	hooks := m.Hooks()
	ctx := context.Background()

	hooks.OnFire(ctx, &domain.FireEvent{Source: "beat", Subscribers: 2})
	hooks.OnFire(ctx, &domain.FireEvent{Source: "beat"})

	ok := &domain.ActivityEvent{Activity: "a", Duration: 20 * time.Millisecond}
	hooks.OnActivityStart(ctx, ok)
	assert.Equal(t, 1.0, value(t, m.InFlight.WithLabelValues("a")))
	hooks.OnActivityDone(ctx, ok)

	failed := &domain.ActivityEvent{Activity: "a", Err: errors.New("boom")}
	hooks.OnActivityStart(ctx, failed)
	hooks.OnHandlerFailure(ctx, failed)

	hooks.OnDrop(ctx, &domain.ActivityEvent{Activity: "a"})

	assert.Equal(t, 2.0, value(t, m.Firings.WithLabelValues("beat")))
	assert.Equal(t, 1.0, value(t, m.Invocations.WithLabelValues("a", observability.OutcomeOK)))
	assert.Equal(t, 1.0, value(t, m.Invocations.WithLabelValues("a", observability.OutcomeFailed)))
	assert.Equal(t, 1.0, value(t, m.Invocations.WithLabelValues("a", observability.OutcomeDropped)))
	assert.Equal(t, 0.0, value(t, m.InFlight.WithLabelValues("a")))
	var h dto.Metric
	require.NoError(t, m.Duration.WithLabelValues("a").(prometheus.Metric).Write(&h))
	assert.Equal(t, uint64(2), h.GetHistogram().GetSampleCount())
}

func TestMetrics_RegisteredThroughRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	src := pubsub.NewRegistry("webhook", scheduler.NewLoop(), pubsub.WithRegistryHooks(m.Hooks()))
	pubsub.MustNew(func(context.Context, pubsub.Call) error { return nil },
		pubsub.On(src), pubsub.WithName("echo"), pubsub.WithHooks(m.Hooks()))

	require.NoError(t, src.Fire(context.Background(), domain.NewEvent(time.Now(), nil), domain.Standalone()).Wait())

	assert.Equal(t, 1.0, value(t, m.Firings.WithLabelValues("webhook")))
	assert.Equal(t, 1.0, value(t, m.Invocations.WithLabelValues("echo", observability.OutcomeOK)))

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "journey_source_firings_total")
	assert.Contains(t, names, "journey_activity_invocations_total")
}
