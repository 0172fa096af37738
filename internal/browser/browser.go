// Package browser starts Playwright and hands out browser contexts with the suite's
// defaults applied (Desktop Chrome viewport, action and navigation timeouts).
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/notifier-e2e/internal/errs"
	"github.com/kuitang/notifier-e2e/internal/obs"
)

// Desktop Chrome device viewport.
const (
	desktopWidth  = 1280
	desktopHeight = 720
)

// Browser is the subset of playwright.Browser the suite needs.
type Browser interface {
	NewContext(options ...playwright.BrowserNewContextOptions) (playwright.BrowserContext, error)
}

// Options selects and configures the browser engine.
type Options struct {
	Engine   string // chromium, firefox or webkit
	Headless bool
}

// Session owns one Playwright driver and one launched browser.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	engine  string
}

var _ Browser = (*Session)(nil)

// Launch starts the Playwright driver and launches the configured engine.
// A driver or engine that cannot start is reported as errs.Unavailable.
func Launch(ctx context.Context, opts Options) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(errs.Unavailable, "launch browser", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "start playwright driver (run `notifier-e2e install`)", err)
	}

	var bt playwright.BrowserType
	switch opts.Engine {
	case "", "chromium":
		bt = pw.Chromium
	case "firefox":
		bt = pw.Firefox
	case "webkit":
		bt = pw.WebKit
	default:
		_ = pw.Stop()
		return nil, errs.New(errs.Config, fmt.Sprintf("unknown browser engine %q", opts.Engine))
	}

	b, err := bt.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Unavailable, "launch "+bt.Name(), err)
	}

	obs.From(ctx).Info("browser_launched", "pkg", "browser", "engine", bt.Name(), "version", b.Version(), "headless", opts.Headless)
	return &Session{pw: pw, browser: b, engine: bt.Name()}, nil
}

// NewContext implements Browser.
func (s *Session) NewContext(options ...playwright.BrowserNewContextOptions) (playwright.BrowserContext, error) {
	return s.browser.NewContext(options...)
}

// Engine returns the launched engine name.
func (s *Session) Engine() string {
	return s.engine
}

// Close shuts down the browser and the driver.
func (s *Session) Close() error {
	var firstErr error
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			firstErr = err
		}
	}
	if s.pw != nil {
		if err := s.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Install downloads the Playwright driver and the given engine.
func Install(engine string) error {
	if engine == "" {
		engine = "chromium"
	}
	if err := playwright.Install(&playwright.RunOptions{Browsers: []string{engine}}); err != nil {
		return errs.Wrap(errs.Unavailable, "install playwright "+engine, err)
	}
	obs.Pkg("browser").Info("browser_installed", "engine", engine)
	return nil
}

// ContextOptions configures a new browser context.
type ContextOptions struct {
	// StorageStatePath seeds cookies and local storage from a session artifact.
	StorageStatePath string
	// Timeout is the default action and navigation timeout.
	Timeout time.Duration
}

// NewContext opens a context with Desktop Chrome settings and the given timeouts.
func NewContext(b Browser, opts ContextOptions) (playwright.BrowserContext, error) {
	options := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: desktopWidth, Height: desktopHeight},
	}
	if opts.StorageStatePath != "" {
		options.StorageStatePath = playwright.String(opts.StorageStatePath)
	}

	bctx, err := b.NewContext(options)
	if err != nil {
		return nil, errs.Wrap(errs.Interaction, "create browser context", err)
	}
	if opts.Timeout > 0 {
		ms := Millis(opts.Timeout)
		bctx.SetDefaultTimeout(ms)
		bctx.SetDefaultNavigationTimeout(ms)
	}
	return bctx, nil
}

// Millis converts a duration to Playwright's float milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
