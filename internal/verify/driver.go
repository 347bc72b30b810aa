package verify

import (
	"context"
	"time"
)

// ReadinessState says what "the selector matched" means.
type ReadinessState string

const (
	// StateVisible waits until a matching element is attached and visible.
	StateVisible ReadinessState = "visible"
	// StateAttached waits only for a matching element in the DOM.
	StateAttached ReadinessState = "attached"
)

// LaunchOptions configures browser start-up.
type LaunchOptions struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
}

// Driver starts browser sessions. Any browser-automation backend that can
// provide the Session and Page shapes below is substitutable.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// Session is one live browser process (or browser allocation) owned by a
// single run.
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is one tab inside a Session.
type Page interface {
	// Goto navigates and fails on transport errors, timeouts, or a non-2xx
	// main document response (wrapping ErrBadStatus).
	Goto(ctx context.Context, url string, timeout time.Duration) error
	// WaitForSelector blocks until selector matches in the given state,
	// wrapping ErrSelectorTimeout when timeout elapses first.
	WaitForSelector(ctx context.Context, selector string, state ReadinessState, timeout time.Duration) error
	// Screenshot captures the current frame as PNG bytes.
	Screenshot(ctx context.Context, fullPage bool, timeout time.Duration) ([]byte, error)
	Close() error
}

// Diagnostic is a page-side problem observed while a run was in progress.
type Diagnostic struct {
	Kind string    `json:"kind"`
	Text string    `json:"text"`
	URL  string    `json:"url,omitempty"`
	At   time.Time `json:"at"`
}

// DiagnosticsReporter is implemented by pages that record console errors
// and uncaught exceptions. The runner reads it just before closing the page.
type DiagnosticsReporter interface {
	Diagnostics() []Diagnostic
}
