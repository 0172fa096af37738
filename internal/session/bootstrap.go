// Package session implements the one-time authentication bootstrap: it signs in
// through the login page object, confirms the post-login page, and persists the
// browser storage state as the session artifact every dependent test reuses.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/notifier-e2e/internal/artifact"
	"github.com/kuitang/notifier-e2e/internal/browser"
	"github.com/kuitang/notifier-e2e/internal/config"
	"github.com/kuitang/notifier-e2e/internal/errs"
	"github.com/kuitang/notifier-e2e/internal/obs"
	"github.com/kuitang/notifier-e2e/internal/pages"
	"github.com/kuitang/notifier-e2e/internal/ratelimit"
)

// State is a bootstrap lifecycle state.
type State string

const (
	StateInit          State = "init"
	StateNavigated     State = "navigated"
	StateAuthenticated State = "authenticated"
	StatePersisted     State = "persisted"
	StateClosed        State = "closed"
	StateFailed        State = "failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// Result describes one bootstrap execution.
type Result struct {
	// States is every state entered, in order.
	States []State
	// Artifact is where the session artifact was (or would have been) written.
	Artifact string
	// ContextClosed is true once the browser context was released, on success or failure.
	ContextClosed bool
	Duration      time.Duration
	Err           error
}

// Final returns the last state entered.
func (r *Result) Final() State {
	if len(r.States) == 0 {
		return StateInit
	}
	return r.States[len(r.States)-1]
}

// Reached reports whether s was entered at any point.
func (r *Result) Reached(s State) bool {
	for _, got := range r.States {
		if got == s {
			return true
		}
	}
	return false
}

func (r *Result) enter(ctx context.Context, s State) {
	if r.Final().Terminal() {
		return
	}
	r.States = append(r.States, s)
	obs.From(ctx).Debug("bootstrap_state", "pkg", "session", "state", string(s))
}

// Bootstrapper runs the setup sequence against one browser.
type Bootstrapper struct {
	browser   browser.Browser
	store     artifact.Store
	cfg       *config.Config
	pacer     *ratelimit.Pacer
	tracePath string
}

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithPacer paces the login navigation.
func WithPacer(p *ratelimit.Pacer) Option {
	return func(b *Bootstrapper) { b.pacer = p }
}

// WithTrace records a Playwright trace of the bootstrap to path.
func WithTrace(path string) Option {
	return func(b *Bootstrapper) { b.tracePath = path }
}

// NewBootstrapper wires the bootstrap to a browser, an artifact store and configuration.
func NewBootstrapper(b browser.Browser, store artifact.Store, cfg *config.Config, opts ...Option) *Bootstrapper {
	bs := &Bootstrapper{browser: b, store: store, cfg: cfg}
	for _, opt := range opts {
		opt(bs)
	}
	return bs
}

// Run executes Init -> Navigated -> Authenticated -> Persisted -> Closed once.
// Any failure moves to Failed and is returned; the browser context is closed on
// every path once it was opened. Nothing is retried here.
func (b *Bootstrapper) Run(ctx context.Context) (res *Result, err error) {
	res = &Result{Artifact: b.store.Location()}
	start := time.Now()
	log := obs.From(ctx).With("pkg", "session")
	res.enter(ctx, StateInit)

	defer func() {
		res.Duration = time.Since(start)
		if err != nil {
			res.Err = err
			res.enter(ctx, StateFailed)
			log.Error("bootstrap_failed",
				"code", string(errs.CodeOf(err)),
				"error", err.Error(),
				"context_closed", res.ContextClosed,
				"dur_ms", res.Duration.Milliseconds(),
			)
			return
		}
		log.Info("bootstrap_complete", "artifact", res.Artifact, "dur_ms", res.Duration.Milliseconds())
	}()

	creds, err := LoadCredentials(b.cfg)
	if err != nil {
		return res, err
	}
	log.Info("bootstrap_started", "credentials", creds)

	bctx, err := browser.NewContext(b.browser, browser.ContextOptions{Timeout: b.cfg.ActionTimeout})
	if err != nil {
		return res, err
	}
	b.startTrace(ctx, bctx)
	defer func() {
		b.stopTrace(ctx, bctx)
		if cerr := bctx.Close(); cerr != nil {
			log.Warn("browser_context_close_failed", "error", cerr.Error())
			if err == nil {
				err = errs.Wrap(errs.Interaction, "close browser context", cerr)
			}
			return
		}
		res.ContextClosed = true
		if err == nil {
			res.enter(ctx, StateClosed)
		}
	}()

	page, err := bctx.NewPage()
	if err != nil {
		return res, errs.Wrap(errs.Interaction, "open page", err)
	}

	if err := pages.Goto(ctx, page, creds.LoginURL, b.pacer, b.cfg.ActionTimeout); err != nil {
		return res, err
	}
	res.enter(ctx, StateNavigated)

	login := pages.NewLoginPage(page, pages.LoginOptions{
		SubmitName:  b.cfg.SubmitNamePattern(),
		SettleDelay: b.cfg.SettleDelay,
		Timeout:     b.cfg.ActionTimeout,
	})
	if err := login.Login(ctx, creds.Email, creds.Password); err != nil {
		return res, err
	}
	if err := pages.ExpectTitle(ctx, page, b.cfg.PostLoginPattern(), b.cfg.ActionTimeout); err != nil {
		return res, err
	}
	res.enter(ctx, StateAuthenticated)

	if err := b.persist(ctx, bctx); err != nil {
		return res, err
	}
	res.enter(ctx, StatePersisted)
	return res, nil
}

func (b *Bootstrapper) persist(ctx context.Context, bctx playwright.BrowserContext) error {
	state, err := bctx.StorageState()
	if err != nil {
		return errs.Wrap(errs.IO, "capture storage state", err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errs.Wrap(errs.IO, "encode storage state", err)
	}
	return b.store.Save(ctx, data)
}

func (b *Bootstrapper) startTrace(ctx context.Context, bctx playwright.BrowserContext) {
	if b.tracePath == "" {
		return
	}
	if err := browser.StartTrace(bctx, "setup"); err != nil {
		obs.From(ctx).Warn("trace_start_failed", "pkg", "session", "error", err.Error())
		b.tracePath = ""
	}
}

func (b *Bootstrapper) stopTrace(ctx context.Context, bctx playwright.BrowserContext) {
	if b.tracePath == "" {
		return
	}
	if err := browser.StopTrace(bctx, b.tracePath); err != nil {
		obs.From(ctx).Warn("trace_stop_failed", "pkg", "session", "error", err.Error())
	}
}
