package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/rendercheck/internal/capture"
	"github.com/dgnsrekt/rendercheck/internal/verify"
	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver runs verifications through playwright-go's chromium.
// Playwright calls are not context-aware, so cancellation closes the page or
// browser out from under a blocked call and the call fails.
type PlaywrightDriver struct {
	handles
	cfg Config
}

// NewPlaywrightDriver creates a playwright-backed driver.
func NewPlaywrightDriver(cfg Config) *PlaywrightDriver {
	return &PlaywrightDriver{cfg: cfg}
}

func (d *PlaywrightDriver) Launch(ctx context.Context, opts verify.LaunchOptions) (verify.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.cfg.PlaywrightInstall {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return nil, fmt.Errorf("install playwright: %w", err)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if d.cfg.ExecPath != "" {
		launch.ExecutablePath = playwright.String(d.cfg.ExecPath)
	}
	if d.cfg.NoSandbox {
		launch.ChromiumSandbox = playwright.Bool(false)
	}
	browser, err := pw.Chromium.Launch(launch)
	if err != nil {
		if stopErr := pw.Stop(); stopErr != nil {
			slog.Debug("playwright stop after failed launch", "error", stopErr)
		}
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	s := &pwSession{driver: d, opts: opts, pw: pw, browser: browser}
	s.stopWatch = context.AfterFunc(ctx, func() {
		slog.Debug("playwright session canceled, closing browser")
		_ = browser.Close()
	})
	d.sessions.Add(1)
	return s, nil
}

type pwSession struct {
	driver    *PlaywrightDriver
	opts      verify.LaunchOptions
	pw        *playwright.Playwright
	browser   playwright.Browser
	stopWatch func() bool
	closeOnce sync.Once
}

func (s *pwSession) NewPage(ctx context.Context) (verify.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := s.browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{Width: s.opts.ViewportWidth, Height: s.opts.ViewportHeight},
	})
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}
	p := &pwPage{
		driver: s.driver,
		page:   page,
		diags:  capture.NewCollector(capture.DefaultMaxEntries, capture.DefaultMaxTextBytes),
	}
	page.OnConsole(func(msg playwright.ConsoleMessage) {
		if msg.Type() == "error" || msg.Type() == "assert" {
			p.diags.Add(capture.KindConsole, msg.Text(), "")
		}
	})
	page.OnPageError(func(err error) {
		p.diags.Add(capture.KindException, err.Error(), "")
	})
	s.driver.pages.Add(1)
	return p, nil
}

func (s *pwSession) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		s.stopWatch()
		if err := s.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
		if err := s.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop playwright: %w", err))
		}
		s.driver.sessions.Add(-1)
	})
	return errors.Join(errs...)
}

type pwPage struct {
	driver    *PlaywrightDriver
	page      playwright.Page
	diags     *capture.Collector
	closeOnce sync.Once
}

func (p *pwPage) Diagnostics() []verify.Diagnostic {
	return p.diags.Diagnostics()
}

// bounded clips timeout to ctx's deadline and arranges for the page to be
// closed if ctx ends first.
func (p *pwPage) bounded(ctx context.Context, timeout time.Duration) (float64, func() bool) {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = max(left, time.Millisecond)
		}
	}
	stop := context.AfterFunc(ctx, func() {
		_ = p.page.Close()
	})
	return msFloat(timeout), stop
}

func (p *pwPage) Goto(ctx context.Context, url string, timeout time.Duration) error {
	ms, stop := p.bounded(ctx, timeout)
	defer stop()

	resp, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(ms),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	if status := resp.Status(); status != 0 && (status < 200 || status > 299) {
		return fmt.Errorf("%w: %d %s", verify.ErrBadStatus, status, resp.StatusText())
	}
	return nil
}

func (p *pwPage) WaitForSelector(ctx context.Context, selector string, state verify.ReadinessState, timeout time.Duration) error {
	ms, stop := p.bounded(ctx, timeout)
	defer stop()

	waitState := playwright.WaitForSelectorStateVisible
	if state == verify.StateAttached {
		waitState = playwright.WaitForSelectorStateAttached
	}
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   waitState,
		Timeout: playwright.Float(ms),
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, playwright.ErrTimeout) {
			return fmt.Errorf("selector %q: %w", selector, verify.ErrSelectorTimeout)
		}
		return err
	}
	return nil
}

func (p *pwPage) Screenshot(ctx context.Context, fullPage bool, timeout time.Duration) ([]byte, error) {
	ms, stop := p.bounded(ctx, timeout)
	defer stop()

	return p.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(fullPage),
		Type:     playwright.ScreenshotTypePng,
		Timeout:  playwright.Float(ms),
	})
}

func (p *pwPage) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.page.Close()
		p.driver.pages.Add(-1)
	})
	return err
}
