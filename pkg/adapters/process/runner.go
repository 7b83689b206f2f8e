package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os/exec"
	"slices"
	"strings"
	"sync"

	"github.com/aretw0/journey/internal/logging"
	"github.com/aretw0/journey/pkg/pubsub"
)

// EnvPrefix prefixes the environment variables carrying trigger parameters.
const EnvPrefix = "JOURNEY_PARAM_"

// ErrNotRegistered is returned for a process missing from the allow-list.
var ErrNotRegistered = errors.New("process not registered")

// Runner executes local processes on behalf of activities.
// It follows a Strict Registry pattern for security (Allow-Listing).
type Runner struct {
	mu       sync.RWMutex
	registry map[string]RegisteredProcess
	baseDir  string
	logger   *slog.Logger
}

// RegisteredProcess defines an allowed command execution.
type RegisteredProcess struct {
	Command string
	Args    []string
	Env     map[string]string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithLogger sets the logger used to report process output.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a new Process Runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]RegisteredProcess),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted script/command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registry[name] = RegisteredProcess{
		Command: command,
		Args:    args,
	}
}

// Names returns the registered process names, sorted.
func (r *Runner) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.registry))
}

// Result is the outcome of a successful run.
type Result struct {
	Stdout string
	// Output is Stdout decoded as JSON when it looks like an object or array,
	// the trimmed text otherwise.
	Output any
}

// Run executes the named process. Parameters are passed as environment
// variables, never as command-line arguments, so a trigger cannot inject flags.
func (r *Runner) Run(ctx context.Context, name string, params map[string]any) (Result, error) {
	r.mu.RLock()
	proc, ok := r.registry[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}

	cmd := exec.CommandContext(ctx, proc.Command, proc.Args...)
	cmd.Dir = r.baseDir
	cmd.Env = append(cmd.Environ(), environ(proc.Env, params)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("process %s failed: %w. Stderr: %s", name, err, strings.TrimSpace(stderr.String()))
	}

	out := stdout.String()
	return Result{Stdout: out, Output: decodeOutput(out)}, nil
}

// Handler returns an activity handler running the named process with the
// parameters supplied by the trigger.
func (r *Runner) Handler(name string) (pubsub.Handler, error) {
	r.mu.RLock()
	_, ok := r.registry[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return func(ctx context.Context, call pubsub.Call) error {
		params := make(map[string]any, len(call.Params))
		for _, p := range call.Params.Names() {
			if v, ok := call.Params.Lookup(p); ok {
				params[p] = v
			}
		}
		params["event_id"] = call.Event.ID
		res, err := r.Run(ctx, name, params)
		if err != nil {
			return err
		}
		r.logger.InfoContext(ctx, "process finished", "process", name, "event_id", call.Event.ID, "output", res.Output)
		return nil
	}, nil
}

func environ(static map[string]string, params map[string]any) []string {
	env := make([]string, 0, len(static)+len(params))
	for k, v := range static {
		env = append(env, k+"="+v)
	}
	for k, v := range params {
		env = append(env, EnvPrefix+strings.ToUpper(k)+"="+stringify(v))
	}
	return env
}

// stringify prints primitives as-is and marshals everything else as JSON.
func stringify(v any) string {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	case nil:
		return ""
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

func decodeOutput(out string) any {
	trimmed := strings.TrimSpace(out)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return trimmed
}
