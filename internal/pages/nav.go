// Package pages holds the page objects and navigation/assertion helpers shared by
// the setup project and the dependent tests.
package pages

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/notifier-e2e/internal/browser"
	"github.com/kuitang/notifier-e2e/internal/errs"
	"github.com/kuitang/notifier-e2e/internal/logutil"
	"github.com/kuitang/notifier-e2e/internal/ratelimit"
)

const (
	titlePollInterval = 100 * time.Millisecond
	contentPreviewLen = 300
)

// Goto waits for the pacer, then navigates and waits for the load event.
func Goto(ctx context.Context, page playwright.Page, target string, pacer *ratelimit.Pacer, timeout time.Duration) error {
	if err := pacer.Wait(ctx); err != nil {
		return errs.Wrap(errs.Interaction, "navigate to "+target, err)
	}
	opts := playwright.PageGotoOptions{WaitUntil: playwright.WaitUntilStateLoad}
	if timeout > 0 {
		opts.Timeout = playwright.Float(browser.Millis(timeout))
	}
	if _, err := page.Goto(target, opts); err != nil {
		return errs.Wrap(errs.Interaction, "navigate to "+target, err)
	}
	return nil
}

// ExpectTitle polls the page title until it matches pattern or timeout elapses,
// the way Playwright's toHaveTitle retries.
func ExpectTitle(ctx context.Context, page playwright.Page, pattern *regexp.Regexp, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var (
		last    string
		lastErr error
	)
	for {
		title, err := page.Title()
		if err == nil {
			last, lastErr = title, nil
			if pattern.MatchString(title) {
				return nil
			}
		} else {
			lastErr = err
		}

		if !time.Now().Before(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return errs.Wrap(errs.Assertion, fmt.Sprintf("expected page title to match /%s/", pattern), ctx.Err())
		case <-time.After(titlePollInterval):
		}
	}

	msg := fmt.Sprintf("expected page title to match /%s/, got %q at %s", pattern, last, page.URL())
	if content, err := page.Content(); err == nil {
		msg += "; page: " + logutil.TruncateForLog(content, contentPreviewLen)
	}
	if lastErr != nil {
		return errs.Wrap(errs.Assertion, msg, lastErr)
	}
	return errs.New(errs.Assertion, msg)
}
