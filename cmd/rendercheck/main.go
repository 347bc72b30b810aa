// Command rendercheck loads a web app in a headless browser, waits for its
// canvas to appear, and writes a screenshot as a visual smoke check.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/rendercheck/internal/browser"
	"github.com/dgnsrekt/rendercheck/internal/config"
	"github.com/dgnsrekt/rendercheck/internal/journal"
	"github.com/dgnsrekt/rendercheck/internal/notify"
	"github.com/dgnsrekt/rendercheck/internal/verify"
)

const (
	exitOK            = 0
	exitFailed        = 1
	exitInvalidConfig = 2
)

var newDriver = func(cfg browser.Config) (verify.Driver, error) {
	return browser.New(cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s: load config: %v\n", verify.KindInvalidConfig, err)
		return exitInvalidConfig
	}

	opts, err := parseFlags(cfg, args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "Error: %s: %v\n", verify.KindInvalidConfig, err)
		return exitInvalidConfig
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile, stderr); err != nil {
		_, _ = io.WriteString(stderr, "logger setup failed: "+err.Error()+"\n")
		return exitFailed
	}

	slog.Debug("rendercheck config loaded",
		"driver", cfg.Driver,
		"cdp_url", cfg.CDPURL,
		"journal_dir", cfg.JournalDir,
		"notify", cfg.NotifyURL != "",
		"notify_on", cfg.NotifyOn,
	)

	driver, err := newDriver(cfg.BrowserConfig())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s: %v\n", verify.KindInvalidConfig, err)
		return exitInvalidConfig
	}

	out := verify.NewRunner(driver).Run(ctx, opts)

	if cfg.JournalDir != "" {
		j := journal.New(cfg.JournalDir, 4, cfg.JournalMaxSizeMB)
		if err := j.Record("", out); err != nil {
			slog.Warn("journal record failed", "error", err)
		}
		if err := j.Close(); err != nil {
			slog.Warn("journal close failed", "error", err)
		}
	}

	if cfg.ShouldNotify(out.OK) {
		sendNotification(cfg.NotifyURL, out)
	}

	return report(out, stdout, stderr)
}

// report prints the single status line and maps the outcome to an exit code.
func report(out verify.Outcome, stdout, stderr io.Writer) int {
	if out.OK {
		fmt.Fprintf(stdout, "Screenshot taken: %s\n", out.OutputPath)
		return exitOK
	}
	fmt.Fprintf(stderr, "Error: %s: %s\n", out.Kind, out.Message)
	if out.Kind == verify.KindInvalidConfig {
		return exitInvalidConfig
	}
	return exitFailed
}

// sendNotification runs on its own deadline so an interrupted run still
// reports.
func sendNotification(endpoint string, out verify.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client := &http.Client{Timeout: 10 * time.Second}
	if err := notify.SendOutcome(ctx, client, endpoint, out); err != nil {
		slog.Warn("notification failed", "endpoint", endpoint, "error", err)
		return
	}
	slog.Debug("notification sent", "endpoint", endpoint)
}

func parseFlags(cfg *config.Config, args []string, stderr io.Writer) (verify.Options, error) {
	opts := cfg.Options()

	fs := flag.NewFlagSet("rendercheck", flag.ContinueOnError)
	fs.SetOutput(stderr)

	readinessMS := int(opts.ReadinessTimeout.Milliseconds())
	settleMS := int(opts.SettleDelay.Milliseconds())
	navMS := int(opts.NavigationTimeout.Milliseconds())
	captureMS := int(opts.CaptureTimeout.Milliseconds())
	state := string(opts.ReadinessState)

	fs.StringVar(&opts.TargetURL, "url", opts.TargetURL, "target URL to load")
	fs.StringVar(&opts.ReadinessSelector, "selector", opts.ReadinessSelector, "CSS selector that signals readiness")
	fs.StringVar(&state, "state", state, "readiness state: visible or attached")
	fs.IntVar(&readinessMS, "readiness-timeout", readinessMS, "readiness wait limit in milliseconds")
	fs.IntVar(&settleMS, "settle", settleMS, "delay after readiness before capture, in milliseconds")
	fs.IntVar(&navMS, "nav-timeout", navMS, "navigation limit in milliseconds")
	fs.IntVar(&captureMS, "capture-timeout", captureMS, "screenshot limit in milliseconds")
	fs.StringVar(&opts.OutputPath, "out", opts.OutputPath, "screenshot output path")
	fs.BoolVar(&opts.Headless, "headless", opts.Headless, "run the browser headless")
	fs.IntVar(&opts.ViewportWidth, "width", opts.ViewportWidth, "viewport width")
	fs.IntVar(&opts.ViewportHeight, "height", opts.ViewportHeight, "viewport height")
	fs.BoolVar(&opts.FullPage, "full-page", opts.FullPage, "capture the full scrollable page")

	if err := fs.Parse(args); err != nil {
		return verify.Options{}, err
	}
	if fs.NArg() > 0 {
		return verify.Options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	opts.ReadinessState = verify.ReadinessState(state)
	opts.ReadinessTimeout = time.Duration(readinessMS) * time.Millisecond
	opts.SettleDelay = time.Duration(settleMS) * time.Millisecond
	opts.NavigationTimeout = time.Duration(navMS) * time.Millisecond
	opts.CaptureTimeout = time.Duration(captureMS) * time.Millisecond
	return opts, nil
}
