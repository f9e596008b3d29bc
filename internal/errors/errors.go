// Package errors re-exports github.com/pkg/errors so the rest of the
// module has a single import for wrapping and constructing errors, and
// adds the error kinds the store and façade use to classify failures:
// NotFound, IO, Corrupt, and Transient.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Re-exported constructors, matching restic's internal/errors package.
var (
	New      = errors.New
	Errorf   = errors.Errorf
	Wrap     = errors.Wrap
	Wrapf    = errors.Wrapf
	WithStack = errors.WithStack
	Is       = errors.Is
	As       = errors.As
	Cause    = errors.Cause
)

// Fatal is returned by the CLI layer for conditions that should abort the
// process with a non-zero exit code and no stack trace noise, e.g. an
// invalid mountpoint or an index that fails to load consistently.
type Fatal string

func (e Fatal) Error() string { return string(e) }

// Fatalf builds a Fatal from a format string, the same convenience restic's
// internal/errors.Fatalf provides.
func Fatalf(format string, args ...interface{}) Fatal {
	return Fatal(fmt.Sprintf(format, args...))
}

// Kind classifies a failure so callers can branch on kind, not on error
// strings.
type Kind struct{ name string }

func (k Kind) Error() string { return k.name }

var (
	// NotFound is returned when a read targets a path with no manifest.
	NotFound = Kind{"not found"}
	// IO is returned for missing containers, missing index entries for a
	// live manifest entry, short reads, and other disk errors.
	IO = Kind{"i/o error"}
	// Corrupt is returned when the manifest and index disagree at mount
	// time in a way that would require synthesizing chunks.
	Corrupt = Kind{"corrupt metadata"}
	// Transient is returned for retryable conditions such as lock
	// contention timeouts.
	Transient = Kind{"transient"}
)

// WithKind wraps err so that errors.Is(result, kind) succeeds, while
// preserving err's message and stack via %w-style unwrapping.
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.kind.name + ": " + e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }
func (e *kindError) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.kind
}
