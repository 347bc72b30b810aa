package verify

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultReadinessSelector = "canvas"
	DefaultReadinessTimeout  = 10 * time.Second
	DefaultSettleDelay       = 2 * time.Second
	DefaultNavigationTimeout = 30 * time.Second
	DefaultCaptureTimeout    = 30 * time.Second
	DefaultOutputPath        = "verification/screenshot.png"
	DefaultViewportWidth     = 1280
	DefaultViewportHeight    = 720
)

// Options configures one verification run.
type Options struct {
	TargetURL         string
	ReadinessSelector string
	ReadinessState    ReadinessState
	ReadinessTimeout  time.Duration
	SettleDelay       time.Duration
	NavigationTimeout time.Duration
	CaptureTimeout    time.Duration
	OutputPath        string
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	FullPage          bool
}

// DefaultOptions returns Options with every field except TargetURL set.
func DefaultOptions() Options {
	return Options{
		ReadinessSelector: DefaultReadinessSelector,
		ReadinessState:    StateVisible,
		ReadinessTimeout:  DefaultReadinessTimeout,
		SettleDelay:       DefaultSettleDelay,
		NavigationTimeout: DefaultNavigationTimeout,
		CaptureTimeout:    DefaultCaptureTimeout,
		OutputPath:        DefaultOutputPath,
		Headless:          true,
		ViewportWidth:     DefaultViewportWidth,
		ViewportHeight:    DefaultViewportHeight,
	}
}

// Normalize trims string fields and fills zero values that have a default.
// SettleDelay is left alone: zero is a legitimate "no settle" request.
func (o Options) Normalize() Options {
	o.TargetURL = strings.TrimSpace(o.TargetURL)
	o.ReadinessSelector = strings.TrimSpace(o.ReadinessSelector)
	o.OutputPath = strings.TrimSpace(o.OutputPath)
	o.ReadinessState = ReadinessState(strings.ToLower(strings.TrimSpace(string(o.ReadinessState))))

	if o.ReadinessSelector == "" {
		o.ReadinessSelector = DefaultReadinessSelector
	}
	if o.ReadinessState == "" {
		o.ReadinessState = StateVisible
	}
	if o.ReadinessTimeout == 0 {
		o.ReadinessTimeout = DefaultReadinessTimeout
	}
	if o.NavigationTimeout == 0 {
		o.NavigationTimeout = DefaultNavigationTimeout
	}
	if o.CaptureTimeout == 0 {
		o.CaptureTimeout = DefaultCaptureTimeout
	}
	if o.OutputPath == "" {
		o.OutputPath = DefaultOutputPath
	}
	if o.ViewportWidth == 0 {
		o.ViewportWidth = DefaultViewportWidth
	}
	if o.ViewportHeight == 0 {
		o.ViewportHeight = DefaultViewportHeight
	}
	return o
}

// Validate reports the first problem with o as a KindInvalidConfig error.
func (o Options) Validate() error {
	if o.TargetURL == "" {
		return newError(KindInvalidConfig, "target url is required", nil)
	}
	u, err := url.Parse(o.TargetURL)
	if err != nil {
		return newError(KindInvalidConfig, "target url is malformed", err)
	}
	if !u.IsAbs() {
		return newError(KindInvalidConfig, fmt.Sprintf("target url must be absolute: %q", o.TargetURL), nil)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return newError(KindInvalidConfig, fmt.Sprintf("target url has no host: %q", o.TargetURL), nil)
		}
	case "file", "data":
	default:
		// "localhost:5173" parses with scheme "localhost".
		return newError(KindInvalidConfig, fmt.Sprintf("target url scheme %q not supported (want http, https, file or data): %q", u.Scheme, o.TargetURL), nil)
	}
	if o.ReadinessSelector == "" {
		return newError(KindInvalidConfig, "readiness selector is required", nil)
	}
	switch o.ReadinessState {
	case StateVisible, StateAttached:
	default:
		return newError(KindInvalidConfig, fmt.Sprintf("readiness state must be %q or %q, got %q", StateVisible, StateAttached, o.ReadinessState), nil)
	}
	if o.ReadinessTimeout <= 0 {
		return newError(KindInvalidConfig, "readiness timeout must be positive", nil)
	}
	if o.SettleDelay < 0 {
		return newError(KindInvalidConfig, "settle delay must not be negative", nil)
	}
	if o.NavigationTimeout <= 0 {
		return newError(KindInvalidConfig, "navigation timeout must be positive", nil)
	}
	if o.CaptureTimeout <= 0 {
		return newError(KindInvalidConfig, "capture timeout must be positive", nil)
	}
	if o.OutputPath == "" {
		return newError(KindInvalidConfig, "output path is required", nil)
	}
	if o.ViewportWidth <= 0 || o.ViewportHeight <= 0 {
		return newError(KindInvalidConfig, fmt.Sprintf("viewport must be positive, got %dx%d", o.ViewportWidth, o.ViewportHeight), nil)
	}
	return nil
}
