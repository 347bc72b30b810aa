package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgnsrekt/rendercheck/internal/artifact"
)

// Runner executes verification passes against a Driver. It holds no
// per-run state and may be reused serially.
type Runner struct {
	driver    Driver
	writeFile func(path string, data []byte) error
	now       func() time.Time
}

// NewRunner creates a Runner backed by driver.
func NewRunner(driver Driver) *Runner {
	return &Runner{
		driver:    driver,
		writeFile: artifact.WriteFile,
		now:       time.Now,
	}
}

type capture struct {
	size   int
	width  int
	height int
}

// Run performs launch, navigate, wait-for-ready, settle, capture and release
// in that order. It never panics and never returns with a live Session.
func (r *Runner) Run(ctx context.Context, opts Options) Outcome {
	opts = opts.Normalize()
	start := r.now()
	out := Outcome{TargetURL: opts.TargetURL, StartedAt: start.UTC()}

	finish := func(o Outcome) Outcome {
		o.Elapsed = r.now().Sub(start)
		o.ElapsedMS = o.Elapsed.Milliseconds()
		if o.OK {
			slog.Info("verification ok",
				"target_url", o.TargetURL,
				"output_path", o.OutputPath,
				"size_bytes", o.SizeBytes,
				"elapsed_ms", o.ElapsedMS,
				"diagnostics", len(o.Diagnostics),
			)
		} else {
			slog.Warn("verification failed",
				"target_url", o.TargetURL,
				"kind", o.Kind,
				"error", o.Message,
				"elapsed_ms", o.ElapsedMS,
				"diagnostics", len(o.Diagnostics),
			)
			for _, d := range o.Diagnostics {
				slog.Info("page diagnostic", "kind", d.Kind, "text", d.Text, "url", d.URL)
			}
		}
		return o
	}

	if err := opts.Validate(); err != nil {
		var verr *Error
		if !errors.As(err, &verr) {
			verr = newError(KindInvalidConfig, "invalid options", err)
		}
		return finish(out.withError(verr))
	}

	slog.Info("verification start",
		"target_url", opts.TargetURL,
		"selector", opts.ReadinessSelector,
		"state", opts.ReadinessState,
		"readiness_timeout_ms", opts.ReadinessTimeout.Milliseconds(),
		"settle_delay_ms", opts.SettleDelay.Milliseconds(),
		"output_path", opts.OutputPath,
		"headless", opts.Headless,
	)

	res, verr := r.execute(ctx, opts, &out.Diagnostics)
	if verr != nil {
		return finish(out.withError(verr))
	}

	out.OK = true
	out.OutputPath = opts.OutputPath
	out.SizeBytes = res.size
	out.Width = res.width
	out.Height = res.height
	return finish(out)
}

func (r *Runner) execute(ctx context.Context, opts Options, diags *[]Diagnostic) (res capture, verr *Error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("verification driver panic", "panic", p)
			res = capture{}
			verr = newError(KindUnexpectedFailure, "driver panic", fmt.Errorf("%v", p))
		}
	}()

	session, err := r.driver.Launch(ctx, LaunchOptions{
		Headless:       opts.Headless,
		ViewportWidth:  opts.ViewportWidth,
		ViewportHeight: opts.ViewportHeight,
	})
	if err != nil {
		return res, classify(ctx, KindLaunchFailure, "launch browser", err)
	}
	defer release("session", session.Close)

	page, err := session.NewPage(ctx)
	if err != nil {
		return res, classify(ctx, KindLaunchFailure, "open page", err)
	}
	defer release("page", page.Close)
	if rep, ok := page.(DiagnosticsReporter); ok {
		defer func() { *diags = rep.Diagnostics() }()
	}

	if err := page.Goto(ctx, opts.TargetURL, opts.NavigationTimeout); err != nil {
		return res, classify(ctx, KindNavigationFailure, "navigate to "+opts.TargetURL, err)
	}
	slog.Debug("verification navigated", "target_url", opts.TargetURL)

	if err := page.WaitForSelector(ctx, opts.ReadinessSelector, opts.ReadinessState, opts.ReadinessTimeout); err != nil {
		kind := KindUnexpectedFailure
		if errors.Is(err, ErrSelectorTimeout) {
			kind = KindReadinessTimeout
		}
		msg := fmt.Sprintf("wait for %q (%s) within %s", opts.ReadinessSelector, opts.ReadinessState, opts.ReadinessTimeout)
		return res, classify(ctx, kind, msg, err)
	}
	slog.Debug("verification ready", "selector", opts.ReadinessSelector)

	if err := sleepCtx(ctx, opts.SettleDelay); err != nil {
		return res, classify(ctx, KindUnexpectedFailure, "settle delay", err)
	}

	data, err := page.Screenshot(ctx, opts.FullPage, opts.CaptureTimeout)
	if err != nil {
		return res, classify(ctx, KindCaptureFailure, "capture screenshot", err)
	}
	if len(data) == 0 {
		return res, newError(KindCaptureFailure, "capture screenshot", errors.New("empty image"))
	}
	if err := r.writeFile(opts.OutputPath, data); err != nil {
		return res, newError(KindCaptureFailure, "write "+opts.OutputPath, err)
	}

	res.size = len(data)
	if w, h, err := artifact.PNGSize(data); err != nil {
		slog.Debug("screenshot dimensions unavailable", "error", err)
	} else {
		res.width, res.height = w, h
	}
	return res, nil
}

// classify reports cancellation of the caller's context ahead of kind so a
// test-suite timeout is never mistaken for an application problem.
func classify(ctx context.Context, kind ErrorKind, msg string, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return newError(KindCanceled, msg, errors.Join(ctxErr, err))
	}
	return newError(kind, msg, err)
}

func release(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		slog.Debug("verification release failed", "handle", name, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
