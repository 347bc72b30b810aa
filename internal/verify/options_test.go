package verify

import (
	"testing"
	"time"
)

func TestNormalizeFillsDefaults(t *testing.T) {
	got := Options{TargetURL: "  http://localhost:5173 ", ReadinessState: " Attached "}.Normalize()

	if got.TargetURL != "http://localhost:5173" {
		t.Fatalf("TargetURL = %q", got.TargetURL)
	}
	if got.ReadinessSelector != "canvas" {
		t.Fatalf("ReadinessSelector = %q, want canvas", got.ReadinessSelector)
	}
	if got.ReadinessState != StateAttached {
		t.Fatalf("ReadinessState = %q, want %q", got.ReadinessState, StateAttached)
	}
	if got.ReadinessTimeout != 10*time.Second {
		t.Fatalf("ReadinessTimeout = %s, want 10s", got.ReadinessTimeout)
	}
	if got.SettleDelay != 0 {
		t.Fatalf("SettleDelay = %s, want zero kept", got.SettleDelay)
	}
	if got.OutputPath != "verification/screenshot.png" {
		t.Fatalf("OutputPath = %q", got.OutputPath)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestDefaultOptionsMatchDocumentedValues(t *testing.T) {
	opts := DefaultOptions()
	if opts.ReadinessTimeout != 10000*time.Millisecond || opts.SettleDelay != 2000*time.Millisecond {
		t.Fatalf("DefaultOptions() timeouts = (%s, %s)", opts.ReadinessTimeout, opts.SettleDelay)
	}
	if !opts.Headless {
		t.Fatalf("DefaultOptions().Headless = false, want true")
	}
}

func TestValidateRejects(t *testing.T) {
	base := DefaultOptions()
	base.TargetURL = "http://localhost:5173"

	cases := map[string]func(*Options){
		"empty url":           func(o *Options) { o.TargetURL = "" },
		"relative url":        func(o *Options) { o.TargetURL = "/index.html" },
		"host without scheme": func(o *Options) { o.TargetURL = "localhost:5173" },
		"host and path only":  func(o *Options) { o.TargetURL = "localhost:5173/app" },
		"http without host":   func(o *Options) { o.TargetURL = "http://" },
		"unsupported scheme":  func(o *Options) { o.TargetURL = "ftp://x" },
		"empty selector":      func(o *Options) { o.ReadinessSelector = "" },
		"bad state":           func(o *Options) { o.ReadinessState = "hidden" },
		"zero timeout":        func(o *Options) { o.ReadinessTimeout = 0 },
		"negative settle":     func(o *Options) { o.SettleDelay = -time.Second },
		"empty output":        func(o *Options) { o.OutputPath = "" },
		"zero viewport":       func(o *Options) { o.ViewportWidth = 0 },
		"negative nav limit":  func(o *Options) { o.NavigationTimeout = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := base
			mutate(&opts)
			err := opts.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error")
			}
			if KindOf(err) != KindInvalidConfig {
				t.Fatalf("KindOf(Validate()) = %q, want %q", KindOf(err), KindInvalidConfig)
			}
		})
	}
}

func TestValidateAcceptsSupportedSchemes(t *testing.T) {
	for _, target := range []string{
		"http://localhost:5173",
		"https://app.example.test/play",
		"file:///tmp/index.html",
		"data:text/html,<canvas></canvas>",
	} {
		opts := DefaultOptions()
		opts.TargetURL = target
		if err := opts.Validate(); err != nil {
			t.Fatalf("Validate(%q) error = %v", target, err)
		}
	}
}
