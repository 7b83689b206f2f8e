package domain

import "fmt"

// Mode is the concurrency policy applied when a trigger fires while the
// activity's previous invocation is still running.
type Mode int

const (
	// ModeSchedule serializes overlapping invocations behind the activity lock.
	ModeSchedule Mode = iota
	// ModeDrop silently discards firings that arrive while the handler is busy.
	ModeDrop
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeSchedule:
		return "schedule"
	case ModeDrop:
		return "drop"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts the textual form used in declaration files.
// An empty string yields ModeSchedule.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "schedule":
		return ModeSchedule, nil
	case "drop":
		return ModeDrop, nil
	default:
		return ModeSchedule, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// DefaultPeriodSeconds is the period a clock starts with.
const DefaultPeriodSeconds = 1.0
