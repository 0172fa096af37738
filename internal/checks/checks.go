// Package checks runs the dependent tests: each one reuses the session artifact the
// setup project wrote, opens the target page by its direct URL and asserts its title.
package checks

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/kuitang/notifier-e2e/internal/artifact"
	"github.com/kuitang/notifier-e2e/internal/browser"
	"github.com/kuitang/notifier-e2e/internal/config"
	"github.com/kuitang/notifier-e2e/internal/errs"
	"github.com/kuitang/notifier-e2e/internal/obs"
	"github.com/kuitang/notifier-e2e/internal/pages"
	"github.com/kuitang/notifier-e2e/internal/ratelimit"
)

// Check is one direct-URL navigation test.
type Check struct {
	Name         string
	Path         string // relative to the base URL, no leading slash
	TitlePattern *regexp.Regexp
}

// Default returns the notifier navigation checks.
func Default() []Check {
	return []Check{
		{
			Name:         "Verify Notifier can move to the Notification status page by using the direct URL",
			Path:         "notifier/notification-status",
			TitlePattern: regexp.MustCompile(`Notification Status`),
		},
		{
			Name:         "Verify Notifier can move to the Profile page by using the direct URL",
			Path:         "notifier/profile",
			TitlePattern: regexp.MustCompile(`Profile`),
		},
	}
}

// Runner executes checks against one browser.
type Runner struct {
	browser browser.Browser
	store   artifact.Store
	cfg     *config.Config
	pacer   *ratelimit.Pacer
}

// Option configures a Runner.
type Option func(*Runner)

// WithPacer paces check navigations.
func WithPacer(p *ratelimit.Pacer) Option {
	return func(r *Runner) { r.pacer = p }
}

// NewRunner returns a Runner that seeds every context from store.
func NewRunner(b browser.Browser, store artifact.Store, cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{browser: b, store: store, cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOptions are per-attempt settings.
type RunOptions struct {
	// TracePath, when set, records a Playwright trace of the attempt there.
	TracePath string
}

// Run executes c in a fresh context seeded from the session artifact. The artifact
// is only read. The context is closed before Run returns.
func (r *Runner) Run(ctx context.Context, c Check, opts ...RunOptions) (err error) {
	var ro RunOptions
	if len(opts) > 0 {
		ro = opts[0]
	}
	log := obs.From(ctx).With("pkg", "checks", "check", c.Name)
	start := time.Now()

	if strings.TrimSpace(r.cfg.BaseURL) == "" {
		return errs.New(errs.Config, "missing required configuration: URL")
	}
	if c.TitlePattern == nil {
		return errs.New(errs.Internal, "check "+c.Name+" has no title pattern")
	}

	statePath, err := r.store.LocalPath(ctx)
	if err != nil {
		return err
	}

	bctx, err := browser.NewContext(r.browser, browser.ContextOptions{
		StorageStatePath: statePath,
		Timeout:          r.cfg.ActionTimeout,
	})
	if err != nil {
		return err
	}
	tracing := false
	if ro.TracePath != "" {
		if terr := browser.StartTrace(bctx, c.Name); terr != nil {
			log.Warn("trace_start_failed", "error", terr.Error())
		} else {
			tracing = true
		}
	}
	defer func() {
		if tracing {
			if terr := browser.StopTrace(bctx, ro.TracePath); terr != nil {
				log.Warn("trace_stop_failed", "error", terr.Error())
			}
		}
		if cerr := bctx.Close(); cerr != nil {
			log.Warn("browser_context_close_failed", "error", cerr.Error())
		}
		if err != nil {
			log.Info("check_failed", "code", string(errs.CodeOf(err)), "error", err.Error(), "dur_ms", time.Since(start).Milliseconds())
			return
		}
		log.Info("check_passed", "dur_ms", time.Since(start).Milliseconds())
	}()

	page, err := bctx.NewPage()
	if err != nil {
		return errs.Wrap(errs.Interaction, "open page", err)
	}
	target := config.NormalizeBaseURL(r.cfg.BaseURL) + strings.TrimPrefix(c.Path, "/")
	if err := pages.Goto(ctx, page, target, r.pacer, r.cfg.ActionTimeout); err != nil {
		return err
	}
	return pages.ExpectTitle(ctx, page, c.TitlePattern, r.cfg.ActionTimeout)
}
