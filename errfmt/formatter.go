// Package errfmt rewrites the externally visible message of a failed call
// without discarding the original error. Sanitized mode (the default) is the
// security boundary that keeps secrets, paths and connection strings out of
// user- and model-visible text; the original error stays reachable through
// errors.Unwrap for error-tracking hooks.
package errfmt

import "fmt"

// Mode selects how much of the original error is surfaced.
type Mode int

const (
	// ModeSanitized replaces the visible text with a generic message naming
	// only the function.
	ModeSanitized Mode = iota
	// ModeDetailed includes the original error's message text.
	ModeDetailed
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	if m == ModeDetailed {
		return "detailed"
	}
	return "sanitized"
}

// FormattedError is the externally surfaced failure. Its Error text follows
// the formatter's mode; the original error is retained on a side channel and
// exposed via Unwrap/Cause so errors.Is/As and tracking hooks keep full
// fidelity.
type FormattedError struct {
	Function string
	Mode     Mode
	cause    error
}

// Error implements the error interface. In sanitized mode the text never
// contains the original error's message.
func (e *FormattedError) Error() string {
	if e.Mode == ModeDetailed {
		return fmt.Sprintf("function %q failed: %v", e.Function, e.cause)
	}
	return fmt.Sprintf("function %q failed", e.Function)
}

// Unwrap returns the original error.
func (e *FormattedError) Unwrap() error { return e.cause }

// Cause returns the original error (alias of Unwrap for hooks that expect
// the causer convention).
func (e *FormattedError) Cause() error { return e.cause }

// Options configures a Formatter.
type Options struct {
	Mode Mode
}

// Formatter is a post-invoke hook: it does not participate in the success
// versus failure control flow and only rewrites the visible message of an
// already-failed call. For streaming calls, apply it to the final
// accumulated error once the stream has fully drained; never to speculative
// partial failures.
type Formatter struct {
	mode Mode
}

// NewFormatter creates a formatter, sanitized by default.
func NewFormatter(optFns ...func(o *Options)) *Formatter {
	opts := Options{Mode: ModeSanitized}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Formatter{mode: opts.Mode}
}

// Mode returns the configured mode.
func (f *Formatter) Mode() Mode { return f.mode }

// Wrap rewrites err's externally visible message for the named function. A
// nil err passes through unchanged: success results are never touched.
func (f *Formatter) Wrap(function string, err error) error {
	if err == nil {
		return nil
	}

	return &FormattedError{Function: function, Mode: f.mode, cause: err}
}
