package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/journey"
	"github.com/aretw0/journey/internal/builtin"
	journeyhttp "github.com/aretw0/journey/pkg/adapters/http"
	"github.com/aretw0/journey/pkg/adapters/process"
	"github.com/aretw0/journey/pkg/config"
	"github.com/aretw0/journey/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// stack is everything built from one declaration file.
type stack struct {
	engine   *journey.Engine
	registry *prometheus.Registry
	server   *journeyhttp.Server
}

// createEngine builds an engine from f with the CLI conventions: built-in
// handlers (exec bound to the declared processes), Prometheus metrics, /events streaming and debug hooks.
func createEngine(f *config.File, logger *slog.Logger, out io.Writer, debug bool) (*stack, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	server := journeyhttp.NewServer(nil,
		journeyhttp.WithLogger(logger),
		journeyhttp.WithMetrics(reg),
		journeyhttp.WithVersion(journey.Version),
	)

	opts := []journey.Option{
		journey.WithLogger(logger),
		journey.WithLifecycleHooks(metrics.Hooks()),
		journey.WithLifecycleHooks(server.Hooks()),
	}
	if debug {
		opts = append(opts, journey.WithLifecycleHooks(createDebugHooks(logger)))
	}
	eng := journey.New(opts...)
	server.Dispatcher = eng

	procs := process.NewRunner(process.WithRegistry(f.Processes), process.WithLogger(logger))
	env := builtin.Env{Logger: logger, Out: out, Dispatcher: eng, Processes: procs}
	for name, factory := range builtin.Factories(env) {
		eng.RegisterHandlerFactory(name, journey.HandlerFactory(factory))
	}

	if err := eng.Build(f); err != nil {
		return nil, fmt.Errorf("error building engine: %w", err)
	}
	return &stack{engine: eng, registry: reg, server: server}, nil
}
