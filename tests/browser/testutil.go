// Package browser runs the suite against a real Playwright browser and an in-process
// notifier app. Every test gets a fresh app via SetupNotifierTestEnv(t); the browser
// itself is launched once and shared.
package browser

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	pw "github.com/kuitang/notifier-e2e/internal/browser"
	"github.com/kuitang/notifier-e2e/internal/config"
	"github.com/kuitang/notifier-e2e/internal/notifierapp"
)

const (
	TestEmail    = "notifier@example.test"
	TestPassword = "correct horse battery staple"

	// Never use a larger timeout anywhere in tests/browser.
	browserMaxTimeout = 5 * time.Second
)

var (
	browserFixtureMu sync.Mutex
	sharedBrowser    *pw.Session
	launchErr        error
)

// NotifierTestEnv is one notifier app plus the shared browser.
type NotifierTestEnv struct {
	Server  *httptest.Server
	BaseURL string
	App     *notifierapp.App
	Browser *pw.Session
	TempDir string
}

// SetupNotifierTestEnv starts a notifier app for the test. It skips when the
// Playwright driver or Chromium is not installed, and under -short.
func SetupNotifierTestEnv(t *testing.T) *NotifierTestEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests skipped in -short mode")
	}

	b := launchShared(t)

	app, err := notifierapp.New(TestEmail, TestPassword)
	if err != nil {
		t.Fatalf("Failed to create notifier app: %v", err)
	}
	server := httptest.NewServer(app)
	t.Cleanup(server.Close)

	return &NotifierTestEnv{
		Server:  server,
		BaseURL: server.URL + "/",
		App:     app,
		Browser: b,
		TempDir: t.TempDir(),
	}
}

func launchShared(t *testing.T) *pw.Session {
	t.Helper()

	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if sharedBrowser == nil && launchErr == nil {
		sharedBrowser, launchErr = pw.Launch(context.Background(), pw.Options{Engine: "chromium", Headless: true})
	}
	if launchErr != nil {
		t.Skip("Playwright not available:", launchErr)
	}
	return sharedBrowser
}

func closeSharedBrowser() {
	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()
	if sharedBrowser != nil {
		_ = sharedBrowser.Close()
		sharedBrowser = nil
	}
}

// Config returns a suite configuration pointed at this env's app. overrides are
// applied on top of the test defaults, with "" deleting a variable.
func (env *NotifierTestEnv) Config(t *testing.T, overrides map[string]string) *config.Config {
	t.Helper()

	vars := map[string]string{
		"URL":                env.BaseURL,
		"USER_EMAIL":         TestEmail,
		"USER_PASSWORD":      TestPassword,
		"AUTH_FILE":          env.AuthFile(),
		"REPORT_DIR":         filepath.Join(env.TempDir, "report"),
		"ACTION_TIMEOUT":     browserMaxTimeout.String(),
		"LOGIN_SETTLE_DELAY": "50ms",
		"WORKERS":            "2",
		"TRACE":              config.TraceOff,
	}
	for k, v := range overrides {
		if v == "" {
			delete(vars, k)
			continue
		}
		vars[k] = v
	}

	cfg, err := config.Load(func(k string) string { return vars[k] })
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// AuthFile is where this env's session artifact lives.
func (env *NotifierTestEnv) AuthFile() string {
	return filepath.Join(env.TempDir, "playwright", ".auth", "user.json")
}

// ArtifactExists reports whether a session artifact has been written.
func (env *NotifierTestEnv) ArtifactExists() bool {
	_, err := os.Stat(env.AuthFile())
	return err == nil
}
