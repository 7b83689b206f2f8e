// Package builtin holds the handlers available to declaration files by name.
package builtin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aretw0/journey/internal/logging"
	"github.com/aretw0/journey/pkg/adapters/process"
	"github.com/aretw0/journey/pkg/ports"
	"github.com/aretw0/journey/pkg/pubsub"
	"github.com/mitchellh/mapstructure"
)

// Factory builds a handler from the options of one activity declaration.
type Factory func(options map[string]any) (pubsub.Handler, error)

// Env is what built-in handlers may reach.
type Env struct {
	Logger *slog.Logger
	Out    io.Writer
	// Dispatcher is required by relay.
	Dispatcher ports.Dispatcher
	// Processes is required by exec.
	Processes *process.Runner
}

// ErrFailed is returned by the fail handler.
var ErrFailed = errors.New("failed on purpose")

// Factories returns the built-in handler factories keyed by name.
func Factories(env Env) map[string]Factory {
	if env.Logger == nil {
		env.Logger = logging.NewNop()
	}
	if env.Out == nil {
		env.Out = os.Stdout
	}
	return map[string]Factory{
		"log":   env.logHandler,
		"print": env.printHandler,
		"relay": env.relayHandler,
		"count": env.countHandler,
		"sleep": env.sleepHandler,
		"fail":  env.failHandler,
		"exec":  env.execHandler,
	}
}

// Names returns the built-in handler names, sorted.
func Names() []string {
	names := slices.Collect(maps.Keys(Factories(Env{})))
	sort.Strings(names)
	return names
}

func decode(options map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(options); err != nil {
		return fmt.Errorf("invalid handler options: %w", err)
	}
	return nil
}

// supplied returns the bound parameters that were actually sent.
func supplied(call pubsub.Call) map[string]any {
	out := make(map[string]any, len(call.Params))
	for _, name := range call.Params.Names() {
		if v, ok := call.Params.Lookup(name); ok {
			out[name] = v
		}
	}
	return out
}

type logOptions struct {
	Message string `mapstructure:"message"`
	Level   string `mapstructure:"level"`
}

func (e Env) logHandler(options map[string]any) (pubsub.Handler, error) {
	o := logOptions{Message: "activity fired"}
	if err := decode(options, &o); err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(o.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid handler options: %w", err)
	}
	return func(ctx context.Context, call pubsub.Call) error {
		attrs := []any{"event_id", call.Event.ID, "params", supplied(call)}
		if len(call.Args) > 0 {
			attrs = append(attrs, "args", call.Args)
		}
		e.Logger.Log(ctx, level, o.Message, attrs...)
		return nil
	}, nil
}

type printOptions struct {
	Message string `mapstructure:"message"`
}

func (e Env) printHandler(options map[string]any) (pubsub.Handler, error) {
	var o printOptions
	if err := decode(options, &o); err != nil {
		return nil, err
	}
	return func(_ context.Context, call pubsub.Call) error {
		parts := []string{}
		if o.Message != "" {
			parts = append(parts, o.Message)
		}
		params := supplied(call)
		keys := slices.Sorted(maps.Keys(params))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
		}
		for _, a := range call.Args {
			parts = append(parts, fmt.Sprint(a))
		}
		_, err := fmt.Fprintln(e.Out, strings.Join(parts, " "))
		return err
	}, nil
}

type relayOptions struct {
	Target string `mapstructure:"target"`
}

// relayHandler fires another source with the supplied parameters.
func (e Env) relayHandler(options map[string]any) (pubsub.Handler, error) {
	var o relayOptions
	if err := decode(options, &o); err != nil {
		return nil, err
	}
	if o.Target == "" {
		return nil, errors.New("invalid handler options: relay needs a target")
	}
	if e.Dispatcher == nil {
		return nil, errors.New("relay needs a dispatcher")
	}
	return func(ctx context.Context, call pubsub.Call) error {
		return e.Dispatcher.Fire(ctx, o.Target, supplied(call))
	}, nil
}

type countOptions struct {
	Every int `mapstructure:"every"`
}

func (e Env) countHandler(options map[string]any) (pubsub.Handler, error) {
	o := countOptions{Every: 1}
	if err := decode(options, &o); err != nil {
		return nil, err
	}
	if o.Every < 1 {
		return nil, fmt.Errorf("invalid handler options: every must be positive, got %d", o.Every)
	}
	var n atomic.Int64
	return func(ctx context.Context, call pubsub.Call) error {
		if c := n.Add(1); c%int64(o.Every) == 0 {
			e.Logger.InfoContext(ctx, "count", "n", c, "event_id", call.Event.ID)
		}
		return nil
	}, nil
}

type sleepOptions struct {
	Duration time.Duration `mapstructure:"duration"`
}

// sleepHandler holds the activity lock for a while; handy to observe drop and
// schedule modes from a declaration file.
func (e Env) sleepHandler(options map[string]any) (pubsub.Handler, error) {
	o := sleepOptions{Duration: time.Second}
	if err := decode(options, &o); err != nil {
		return nil, err
	}
	return func(ctx context.Context, _ pubsub.Call) error {
		t := time.NewTimer(o.Duration)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}, nil
}

type failOptions struct {
	Message string `mapstructure:"message"`
}

func (e Env) failHandler(options map[string]any) (pubsub.Handler, error) {
	var o failOptions
	if err := decode(options, &o); err != nil {
		return nil, err
	}
	return func(context.Context, pubsub.Call) error {
		if o.Message != "" {
			return fmt.Errorf("%w: %s", ErrFailed, o.Message)
		}
		return ErrFailed
	}, nil
}

type execOptions struct {
	Process string `mapstructure:"process"`
}

// execHandler runs an allow-listed process with the supplied parameters.
func (e Env) execHandler(options map[string]any) (pubsub.Handler, error) {
	var o execOptions
	if err := decode(options, &o); err != nil {
		return nil, err
	}
	if o.Process == "" {
		return nil, errors.New("invalid handler options: exec needs a process")
	}
	if e.Processes == nil {
		return nil, fmt.Errorf("%w: %s", process.ErrNotRegistered, o.Process)
	}
	return e.Processes.Handler(o.Process)
}
