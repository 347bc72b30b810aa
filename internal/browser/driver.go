package browser

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/rendercheck/internal/verify"
)

const (
	DriverChromedp   = "chromedp"
	DriverPlaywright = "playwright"
)

// Config selects and configures a browser backend.
type Config struct {
	// Name is DriverChromedp (default) or DriverPlaywright.
	Name string
	// ExecPath overrides browser binary detection.
	ExecPath string
	// CDPURL attaches to an already running browser instead of launching
	// one (chromedp only), e.g. "http://127.0.0.1:9222".
	CDPURL          string
	CDPReadyTimeout time.Duration
	NoSandbox       bool
	// PlaywrightInstall downloads the playwright driver and chromium on
	// every launch when true.
	PlaywrightInstall bool
}

// Driver is a verify.Driver that also reports how many sessions and pages
// it currently holds open.
type Driver interface {
	verify.Driver
	LiveSessions() int
	LivePages() int
}

// New returns the backend named by cfg.Name.
func New(cfg Config) (Driver, error) {
	if cfg.CDPReadyTimeout <= 0 {
		cfg.CDPReadyTimeout = 15 * time.Second
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "", DriverChromedp:
		return NewChromeDriver(cfg), nil
	case DriverPlaywright:
		if cfg.CDPURL != "" {
			return nil, fmt.Errorf("browser: CDP URL is only supported by the %s driver", DriverChromedp)
		}
		return NewPlaywrightDriver(cfg), nil
	default:
		return nil, fmt.Errorf("browser: unknown driver %q (want %s or %s)", cfg.Name, DriverChromedp, DriverPlaywright)
	}
}

type handles struct {
	sessions atomic.Int64
	pages    atomic.Int64
}

// LiveSessions is the number of sessions launched and not yet closed.
func (h *handles) LiveSessions() int { return int(h.sessions.Load()) }

// LivePages is the number of pages opened and not yet closed.
func (h *handles) LivePages() int { return int(h.pages.Load()) }

func msFloat(d time.Duration) float64 {
	return float64(d.Milliseconds())
}
