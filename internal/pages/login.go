package pages

import (
	"context"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/notifier-e2e/internal/browser"
	"github.com/kuitang/notifier-e2e/internal/errs"
)

const (
	DefaultEmailLabel       = "Email *"
	DefaultPasswordSelector = "#password"

	enabledPollInterval = 50 * time.Millisecond
)

// DefaultSubmitName matches the usual accessible names of a login button.
var DefaultSubmitName = regexp.MustCompile(`(?i)sign in|log in|login|submit`)

// LoginOptions locates the login controls and bounds the stabilization wait.
type LoginOptions struct {
	EmailLabel       string
	PasswordSelector string
	SubmitName       *regexp.Regexp
	// SettleDelay is a fixed pause after the submit control is ready.
	SettleDelay time.Duration
	// Timeout bounds waiting for the submit control to become enabled.
	Timeout time.Duration
}

func (o LoginOptions) withDefaults() LoginOptions {
	if o.EmailLabel == "" {
		o.EmailLabel = DefaultEmailLabel
	}
	if o.PasswordSelector == "" {
		o.PasswordSelector = DefaultPasswordSelector
	}
	if o.SubmitName == nil {
		o.SubmitName = DefaultSubmitName
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	return o
}

// LoginPage is the page object for the notifier sign-in form.
// It holds no state besides the page it drives.
type LoginPage struct {
	page playwright.Page
	opts LoginOptions
}

// NewLoginPage binds the login page object to page.
func NewLoginPage(page playwright.Page, opts LoginOptions) *LoginPage {
	return &LoginPage{page: page, opts: opts.withDefaults()}
}

// EmailField is located by its accessible label.
func (p *LoginPage) EmailField() playwright.Locator {
	return p.page.GetByLabel(p.opts.EmailLabel)
}

// PasswordField is located by its stable id.
func (p *LoginPage) PasswordField() playwright.Locator {
	return p.page.Locator(p.opts.PasswordSelector)
}

// SubmitButton is located by role and accessible name.
func (p *LoginPage) SubmitButton() playwright.Locator {
	return p.page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{
		Name: p.opts.SubmitName,
	})
}

// Login focuses and fills the email and password fields, waits for the submit
// control to settle, and submits. Any failure aborts the sequence; nothing is retried.
func (p *LoginPage) Login(ctx context.Context, email, password string) error {
	if err := p.focusAndFill(ctx, "email field", p.EmailField(), email); err != nil {
		return err
	}
	if err := p.focusAndFill(ctx, "password field", p.PasswordField(), password); err != nil {
		return err
	}
	if err := p.waitSubmitReady(ctx); err != nil {
		return err
	}
	if err := sleep(ctx, p.opts.SettleDelay); err != nil {
		return errs.Wrap(errs.Interaction, "stabilization wait", err)
	}
	if err := p.SubmitButton().Click(); err != nil {
		return errs.Wrap(errs.Interaction, "click submit control", err)
	}
	return nil
}

func (p *LoginPage) focusAndFill(ctx context.Context, name string, field playwright.Locator, value string) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.Interaction, "focus "+name, err)
	}
	if err := field.Click(); err != nil {
		return errs.Wrap(errs.Interaction, "focus "+name, err)
	}
	if err := field.Fill(value); err != nil {
		return errs.Wrap(errs.Interaction, "fill "+name, err)
	}
	return nil
}

// waitSubmitReady waits until the submit control is visible and enabled.
func (p *LoginPage) waitSubmitReady(ctx context.Context) error {
	submit := p.SubmitButton()
	err := submit.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(browser.Millis(p.opts.Timeout)),
	})
	if err != nil {
		return errs.Wrap(errs.Interaction, "wait for submit control", err)
	}

	deadline := time.Now().Add(p.opts.Timeout)
	for {
		enabled, err := submit.IsEnabled()
		if err != nil {
			return errs.Wrap(errs.Interaction, "check submit control", err)
		}
		if enabled {
			return nil
		}
		if !time.Now().Before(deadline) {
			return errs.New(errs.Interaction, "submit control never became enabled")
		}
		if err := sleep(ctx, enabledPollInterval); err != nil {
			return errs.Wrap(errs.Interaction, "wait for submit control", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
