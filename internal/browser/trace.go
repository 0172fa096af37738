package browser

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/notifier-e2e/internal/errs"
)

var unsafeTraceChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// StartTrace begins recording screenshots, DOM snapshots and sources for a context.
func StartTrace(bctx playwright.BrowserContext, title string) error {
	err := bctx.Tracing().Start(playwright.TracingStartOptions{
		Title:       playwright.String(title),
		Screenshots: playwright.Bool(true),
		Snapshots:   playwright.Bool(true),
		Sources:     playwright.Bool(true),
	})
	if err != nil {
		return errs.Wrap(errs.Interaction, "start trace", err)
	}
	return nil
}

// StopTrace writes the recorded trace archive to path.
func StopTrace(bctx playwright.BrowserContext, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errs.Wrap(errs.IO, "create trace directory", err)
	}
	if err := bctx.Tracing().Stop(path); err != nil {
		return errs.Wrap(errs.IO, "write trace "+path, err)
	}
	return nil
}

// TraceFileName builds a file-system safe trace archive name for a test attempt.
func TraceFileName(project, title string, attempt int) string {
	name := strings.Trim(unsafeTraceChars.ReplaceAllString(project+"-"+title, "-"), "-")
	if len(name) > 80 {
		name = name[:80]
	}
	return name + "-retry" + strconv.Itoa(attempt) + ".zip"
}
