// Package apperr defines the error vocabulary shared by the corpus loader and its callers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrReadOnly      = errors.New("graph is read-only")
	ErrFormat        = errors.New("format error")
	ErrIO            = errors.New("io error")
	ErrConfiguration = errors.New("configuration error")
	ErrIntegrity     = errors.New("integrity violation")
)

// FormatError reports a malformed record or field.
// Record is the 1-based record (or line) number, 0 when not applicable.
type FormatError struct {
	Source string
	Record int
	Field  string
	Err    error
}

func (e *FormatError) Error() string {
	msg := "format error"
	if e.Source != "" {
		msg += " in " + e.Source
	}
	if e.Record > 0 {
		msg += fmt.Sprintf(" at record %d", e.Record)
	}
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() error { return e.Err }

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// IOError reports a missing or unreadable corpus file.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("io error on %s: %v", e.Path, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// ConfigError reports an invalid option, detected before any file I/O.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// Integrity warning reasons.
const (
	ReasonUnknownSource = "unknown_source"
	ReasonUnknownTarget = "unknown_target"
	ReasonSelfLoop      = "self_loop"
)

// IntegrityWarning describes an edge dropped because it cannot be attached to the graph.
// It is not an error unless the loader runs in strict mode.
type IntegrityWarning struct {
	Record int
	Source string
	Target string
	Reason string
}

func (w IntegrityWarning) String() string {
	return fmt.Sprintf("edge record %d (%s -> %s): %s", w.Record, w.Source, w.Target, w.Reason)
}

// Err converts the warning into an error matching ErrIntegrity.
func (w IntegrityWarning) Err() error {
	return fmt.Errorf("%w: %s", ErrIntegrity, w.String())
}
