package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/dgnsrekt/rendercheck/internal/capture"
	"github.com/dgnsrekt/rendercheck/internal/verify"
)

// ChromeDriver runs verifications through chromedp, either by launching a
// private Chrome/Chromium process or by opening a tab in a remote browser.
type ChromeDriver struct {
	handles
	cfg Config
}

// NewChromeDriver creates a chromedp-backed driver.
func NewChromeDriver(cfg Config) *ChromeDriver {
	return &ChromeDriver{cfg: cfg}
}

func (d *ChromeDriver) execOptions(opts verify.LaunchOptions) []chromedp.ExecAllocatorOption {
	execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("mute-audio", true),
	)
	if !opts.Headless {
		execOpts = append(execOpts, chromedp.Flag("headless", false))
	}
	if d.cfg.NoSandbox {
		execOpts = append(execOpts, chromedp.NoSandbox)
	}

	execPath := d.cfg.ExecPath
	if execPath == "" {
		if detected, err := detectBrowser(); err == nil {
			execPath = detected
		} else {
			slog.Debug("browser detection failed, using chromedp defaults", "error", err)
		}
	}
	if execPath != "" {
		execOpts = append(execOpts, chromedp.ExecPath(execPath))
	}
	return execOpts
}

// Launch allocates a browser. Every context it creates derives from ctx, so
// cancelling ctx tears the browser down even if Close is never reached.
func (d *ChromeDriver) Launch(ctx context.Context, opts verify.LaunchOptions) (verify.Session, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if d.cfg.CDPURL != "" {
		if err := waitForCDP(ctx, d.cfg.CDPURL, d.cfg.CDPReadyTimeout); err != nil {
			return nil, fmt.Errorf("remote browser: %w", err)
		}
		slog.Info("chromedp attaching to remote browser", "cdp_url", d.cfg.CDPURL)
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, d.cfg.CDPURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, d.execOptions(opts)...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	d.sessions.Add(1)
	slog.Debug("chromedp session started", "remote", d.cfg.CDPURL != "", "headless", opts.Headless)
	return &chromeSession{
		driver:        d,
		opts:          opts,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

type chromeSession struct {
	driver        *ChromeDriver
	opts          verify.LaunchOptions
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	closeOnce     sync.Once
}

func (s *chromeSession) NewPage(ctx context.Context) (verify.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.EmulateViewport(int64(s.opts.ViewportWidth), int64(s.opts.ViewportHeight)),
	)
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	p := &chromePage{
		driver: s.driver,
		ctx:    tabCtx,
		cancel: tabCancel,
		diags:  capture.NewCollector(capture.DefaultMaxEntries, capture.DefaultMaxTextBytes),
	}
	chromedp.ListenTarget(tabCtx, p.createEventHandler())
	s.driver.pages.Add(1)
	return p, nil
}

// Close shuts the browser (or, for a remote allocator, the owned tab) and
// waits for the process to exit.
func (s *chromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.browserCtx)
		s.browserCancel()
		s.allocCancel()
		s.driver.sessions.Add(-1)
		slog.Debug("chromedp session closed")
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type chromePage struct {
	driver    *ChromeDriver
	ctx       context.Context
	cancel    context.CancelFunc
	diags     *capture.Collector
	closeOnce sync.Once
}

// createEventHandler records console errors, uncaught exceptions and failed
// requests. Events for one target arrive on a single goroutine, so the
// request URL map needs no lock.
func (p *chromePage) createEventHandler() func(ev interface{}) {
	requestURLs := make(map[network.RequestID]string)
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			if e.Type != runtime.APITypeError && e.Type != runtime.APITypeAssert {
				return
			}
			p.diags.Add(capture.KindConsole, consoleText(e.Args), "")
		case *runtime.EventExceptionThrown:
			d := e.ExceptionDetails
			if d == nil {
				return
			}
			text := d.Text
			if d.Exception != nil && d.Exception.Description != "" {
				text = d.Exception.Description
			}
			p.diags.Add(capture.KindException, text, d.URL)
		case *network.EventRequestWillBeSent:
			if e.Request != nil {
				requestURLs[e.RequestID] = e.Request.URL
			}
		case *network.EventLoadingFinished:
			delete(requestURLs, e.RequestID)
		case *network.EventLoadingFailed:
			url := requestURLs[e.RequestID]
			delete(requestURLs, e.RequestID)
			if e.Canceled {
				return
			}
			p.diags.Add(capture.KindRequestFailed, e.ErrorText, url)
		}
	}
}

func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case arg == nil:
		case arg.Description != "":
			parts = append(parts, arg.Description)
		case len(arg.Value) > 0:
			parts = append(parts, strings.Trim(string(arg.Value), `"`))
		}
	}
	return strings.Join(parts, " ")
}

func (p *chromePage) Diagnostics() []verify.Diagnostic {
	return p.diags.Diagnostics()
}

// scoped derives an operation context from the tab that expires after
// timeout and also ends when the caller's ctx does.
func (p *chromePage) scoped(ctx context.Context, timeout time.Duration) (context.Context, func()) {
	opCtx, cancel := context.WithTimeout(p.ctx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

func (p *chromePage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, done := p.scoped(ctx, timeout)
	defer done()

	resp, err := chromedp.RunResponse(navCtx, chromedp.Navigate(url))
	if err != nil {
		if ctx.Err() == nil && errors.Is(navCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("navigation timed out after %s: %w", timeout, err)
		}
		return err
	}
	return checkStatus(resp)
}

// checkStatus rejects non-2xx documents. Non-HTTP navigations (data:, file:)
// carry no status and pass.
func checkStatus(resp *network.Response) error {
	if resp == nil || resp.Status == 0 {
		return nil
	}
	if resp.Status < 200 || resp.Status > 299 {
		return fmt.Errorf("%w: %d %s", verify.ErrBadStatus, resp.Status, resp.StatusText)
	}
	return nil
}

func (p *chromePage) WaitForSelector(ctx context.Context, selector string, state verify.ReadinessState, timeout time.Duration) error {
	waitCtx, done := p.scoped(ctx, timeout)
	defer done()

	var action chromedp.Action = chromedp.WaitVisible(selector, chromedp.ByQuery)
	if state == verify.StateAttached {
		action = chromedp.WaitReady(selector, chromedp.ByQuery)
	}
	if err := chromedp.Run(waitCtx, action); err != nil {
		if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("selector %q: %w", selector, verify.ErrSelectorTimeout)
		}
		return err
	}
	return nil
}

func (p *chromePage) Screenshot(ctx context.Context, fullPage bool, timeout time.Duration) ([]byte, error) {
	capCtx, done := p.scoped(ctx, timeout)
	defer done()

	var buf []byte
	var action chromedp.Action = chromedp.ActionFunc(func(ctx context.Context) error {
		data, err := cdppage.CaptureScreenshot().
			WithFormat(cdppage.CaptureScreenshotFormatPng).
			Do(ctx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	})
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := chromedp.Run(capCtx, action); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *chromePage) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = chromedp.Cancel(p.ctx)
		p.cancel()
		p.driver.pages.Add(-1)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
