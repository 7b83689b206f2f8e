package domain

import (
	"errors"
	"fmt"
)

// ErrNotAsync is returned when a declared handler cannot be invoked asynchronously,
// i.e. it does not accept a context.Context as its first argument.
var ErrNotAsync = errors.New("handler must be invocable asynchronously")

// ErrNotTriggerSource is returned when an activity is declared against a value
// that is not a trigger source.
var ErrNotTriggerSource = errors.New("trigger must be a trigger source")

// ErrInvalidMode is returned when a mode string is neither "drop" nor "schedule".
var ErrInvalidMode = errors.New("invalid activity mode")

// ErrInvalidPeriod is returned when a clock period or frequency is not positive.
var ErrInvalidPeriod = errors.New("period and frequency must be positive")

// ErrSourceNotFound is returned when a named trigger source is not registered.
var ErrSourceNotFound = errors.New("trigger source not found")

// ErrHandlerNotFound is returned when a named handler is not registered.
var ErrHandlerNotFound = errors.New("handler not found")

// ErrDuplicateSource is returned when a source name is registered twice.
var ErrDuplicateSource = errors.New("trigger source already registered")

// DeclarationError is raised synchronously while declaring an activity.
// It never occurs at dispatch time.
type DeclarationError struct {
	Activity string
	Err      error
}

func (e *DeclarationError) Error() string {
	if e.Activity == "" {
		return fmt.Sprintf("declaration error: %v", e.Err)
	}
	return fmt.Sprintf("declaration error in activity %q: %v", e.Activity, e.Err)
}

func (e *DeclarationError) Unwrap() error {
	return e.Err
}

// HandlerFailure wraps an error (or recovered panic) raised by a handler during dispatch.
type HandlerFailure struct {
	Activity string
	EventID  string
	Err      error
}

func (e *HandlerFailure) Error() string {
	return fmt.Sprintf("activity %q failed handling event %s: %v", e.Activity, e.EventID, e.Err)
}

func (e *HandlerFailure) Unwrap() error {
	return e.Err
}

// IsDeclarationError reports whether err is (or wraps) a DeclarationError.
func IsDeclarationError(err error) bool {
	var de *DeclarationError
	return errors.As(err, &de)
}

// IsHandlerFailure reports whether err is (or wraps) a HandlerFailure.
func IsHandlerFailure(err error) bool {
	var hf *HandlerFailure
	return errors.As(err, &hf)
}
