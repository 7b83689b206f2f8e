// Package config loads the declaration file (journey.yaml) describing clocks,
// plain triggers and the activities bound to them.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/journey/internal/logging"
	"github.com/aretw0/journey/pkg/adapters/process"
	"github.com/aretw0/journey/pkg/domain"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the declaration file looked up when none is given.
const DefaultPath = "journey.yaml"

// ErrInvalid wraps every validation problem reported by Validate.
var ErrInvalid = errors.New("invalid declaration file")

// File is the root of the declaration file.
type File struct {
	LogLevel   string           `yaml:"log_level" json:"log_level"`
	HTTP       HTTPConfig       `yaml:"http" json:"http"`
	Redis      RedisConfig      `yaml:"redis" json:"redis"`
	Clocks     []ClockConfig    `yaml:"clocks" json:"clocks"`
	Triggers   []TriggerConfig  `yaml:"triggers" json:"triggers"`
	Activities []ActivityConfig `yaml:"activities" json:"activities"`
	// Processes is the allow-list of commands the exec handler may run.
	Processes []process.Config `yaml:"processes" json:"processes"`
}

// HTTPConfig enables the HTTP adapter when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// RedisConfig enables the redis bridge when Addr is set.
type RedisConfig struct {
	Addr    string `yaml:"addr" json:"addr"`
	Channel string `yaml:"channel" json:"channel"`
}

// ClockConfig declares a clock. Exactly one of Frequency and Period is set.
type ClockConfig struct {
	Name      string   `yaml:"name" json:"name"`
	Frequency *float64 `yaml:"frequency" json:"frequency"`
	Period    *float64 `yaml:"period" json:"period"`
	Autostart bool     `yaml:"autostart" json:"autostart"`
}

// PeriodSeconds resolves the configured period. Call it on validated clocks.
func (c ClockConfig) PeriodSeconds() float64 {
	switch {
	case c.Period != nil:
		return *c.Period
	case c.Frequency != nil && *c.Frequency > 0:
		return 1 / *c.Frequency
	default:
		return domain.DefaultPeriodSeconds
	}
}

// TriggerConfig declares a plain trigger fired from the outside (HTTP, redis).
type TriggerConfig struct {
	Name string `yaml:"name" json:"name"`
}

// ActivityConfig binds a named handler to a source.
type ActivityConfig struct {
	Name    string         `yaml:"name" json:"name"`
	Trigger string         `yaml:"trigger" json:"trigger"`
	Handler string         `yaml:"handler" json:"handler"`
	Mode    string         `yaml:"mode" json:"mode"`
	Params  []string       `yaml:"params" json:"params"`
	Args    []any          `yaml:"args" json:"args"`
	Kwargs  map[string]any `yaml:"kwargs" json:"kwargs"`
	Options map[string]any `yaml:"options" json:"options"`
}

// Load reads a declaration file (YAML, or JSON by extension).
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read declaration file: %w", err)
	}
	format := "yaml"
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		format = "json"
	}
	return Parse(data, format)
}

// Parse decodes data in the given format ("yaml" or "json").
func Parse(data []byte, format string) (*File, error) {
	var f File
	switch format {
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse declaration file: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse declaration file: %w", err)
		}
	}
	return &f, nil
}

// Validate checks the file against the handler names available. It reports
// every problem found, joined, wrapped in ErrInvalid.
func (f *File) Validate(handlers []string) error {
	var problems []error
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if _, err := logging.ParseLevel(f.LogLevel); err != nil {
		report("log_level: %v", err)
	}

	sources := map[string]bool{}
	claim := func(where, name string) {
		switch {
		case name == "":
			report("%s: name is required", where)
		case sources[name]:
			report("%s: duplicate source name %q", where, name)
		default:
			sources[name] = true
		}
	}

	for i, c := range f.Clocks {
		where := fmt.Sprintf("clocks[%d]", i)
		claim(where, c.Name)
		switch {
		case c.Frequency != nil && c.Period != nil:
			report("%s (%s): set either frequency or period, not both", where, c.Name)
		case c.Frequency == nil && c.Period == nil:
			report("%s (%s): one of frequency or period is required", where, c.Name)
		case c.Frequency != nil && *c.Frequency <= 0:
			report("%s (%s): %w: frequency %v", where, c.Name, domain.ErrInvalidPeriod, *c.Frequency)
		case c.Period != nil && *c.Period <= 0:
			report("%s (%s): %w: period %v", where, c.Name, domain.ErrInvalidPeriod, *c.Period)
		}
	}
	for i, t := range f.Triggers {
		claim(fmt.Sprintf("triggers[%d]", i), t.Name)
	}

	procs := map[string]bool{}
	for i, p := range f.Processes {
		where := fmt.Sprintf("processes[%d]", i)
		switch {
		case p.Name == "":
			report("%s: name is required", where)
		case procs[p.Name]:
			report("%s: duplicate process name %q", where, p.Name)
		}
		procs[p.Name] = true
		if p.Command == "" {
			report("%s (%s): command is required", where, p.Name)
		}
	}

	known := map[string]bool{}
	for _, h := range handlers {
		known[h] = true
	}
	names := map[string]bool{}
	for i, a := range f.Activities {
		where := fmt.Sprintf("activities[%d]", i)
		if a.Name != "" {
			where += " (" + a.Name + ")"
			if names[a.Name] {
				report("%s: duplicate activity name", where)
			}
			names[a.Name] = true
		}
		if a.Trigger != "" && !sources[a.Trigger] {
			report("%s: %w: %q", where, domain.ErrSourceNotFound, a.Trigger)
		}
		if !known[a.Handler] {
			report("%s: %w: %q", where, domain.ErrHandlerNotFound, a.Handler)
		}
		if _, err := domain.ParseMode(a.Mode); err != nil {
			report("%s: %w", where, err)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(problems...))
}
