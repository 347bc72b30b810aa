package verify

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies why a verification run failed.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindLaunchFailure     ErrorKind = "LAUNCH_FAILURE"
	KindNavigationFailure ErrorKind = "NAVIGATION_FAILURE"
	KindReadinessTimeout  ErrorKind = "READINESS_TIMEOUT"
	KindCaptureFailure    ErrorKind = "CAPTURE_FAILURE"
	KindUnexpectedFailure ErrorKind = "UNEXPECTED_FAILURE"
	KindInvalidConfig     ErrorKind = "INVALID_CONFIG"
	KindCanceled          ErrorKind = "CANCELED"
)

var (
	// ErrSelectorTimeout is wrapped by drivers when a readiness wait expires.
	ErrSelectorTimeout = errors.New("readiness selector wait timed out")
	// ErrBadStatus is wrapped by drivers when the target answers outside 2xx.
	ErrBadStatus = errors.New("unexpected HTTP status")
)

// Error is a kind-tagged run failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail())
}

// Detail is the message and cause without the kind prefix.
func (e *Error) Detail() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf returns the ErrorKind carried by err, or KindUnexpectedFailure when
// err is not a *Error.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return KindUnexpectedFailure
}

// Outcome is the tagged result of one verification run.
type Outcome struct {
	OK         bool          `json:"ok"`
	Kind       ErrorKind     `json:"kind,omitempty"`
	Message    string        `json:"message,omitempty"`
	TargetURL  string        `json:"target_url"`
	OutputPath string        `json:"output_path,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Elapsed    time.Duration `json:"-"`
	ElapsedMS  int64         `json:"elapsed_ms"`
	SizeBytes  int           `json:"size_bytes,omitempty"`
	Width      int           `json:"width,omitempty"`
	Height     int           `json:"height,omitempty"`

	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`

	err *Error
}

// Err returns the failure as an error, or nil for a successful outcome.
func (o Outcome) Err() error {
	if o.OK || o.err == nil {
		return nil
	}
	return o.err
}

func (o Outcome) withError(err *Error) Outcome {
	o.OK = false
	o.Kind = err.Kind
	o.Message = err.Detail()
	o.OutputPath = ""
	o.err = err
	return o
}
