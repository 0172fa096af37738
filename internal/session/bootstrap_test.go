package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/notifier-e2e/internal/artifact"
	"github.com/kuitang/notifier-e2e/internal/browser/browsertest"
	"github.com/kuitang/notifier-e2e/internal/config"
	"github.com/kuitang/notifier-e2e/internal/errs"
)

const (
	testEmail    = "notifier@example.test"
	testPassword = "correct horse"
	testBase     = "https://example.test/"
)

func testConfig() *config.Config {
	return &config.Config{
		BaseURL:        testBase,
		UserEmail:      testEmail,
		UserPassword:   testPassword,
		Workers:        1,
		TestTimeout:    time.Minute,
		Browser:        config.DefaultBrowser,
		ActionTimeout:  300 * time.Millisecond,
		Trace:          config.TraceOff,
		SettleDelay:    time.Millisecond,
		PostLoginTitle: config.DefaultPostLoginTitle,
		SubmitName:     config.DefaultSubmitName,
		AuthFile:       config.DefaultAuthFile,
		ReportDir:      config.DefaultReportDir,
	}
}

func newHarness(t *testing.T) (*browsertest.Browser, *artifact.FileStore) {
	t.Helper()
	b := browsertest.NewBrowser(browsertest.NewApp(testEmail, testPassword))
	store := artifact.NewFileStore(filepath.Join(t.TempDir(), "playwright", ".auth", "user.json"))
	return b, store
}

func readCookie(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var state playwright.StorageState
	require.NoError(t, json.Unmarshal(data, &state))
	for _, c := range state.Cookies {
		if c.Name == browsertest.SessionCookie {
			return c.Value
		}
	}
	return ""
}

func TestBootstrap_ValidCredentialsPersistArtifact(t *testing.T) {
	t.Parallel()
	b, store := newHarness(t)

	res, err := NewBootstrapper(b, store, testConfig()).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []State{StateInit, StateNavigated, StateAuthenticated, StatePersisted, StateClosed}, res.States)
	require.Equal(t, StateClosed, res.Final())
	require.True(t, res.ContextClosed)
	require.NoError(t, res.Err)

	require.Equal(t, []string{testBase + "login"}, b.Navigations())
	require.Equal(t, 1, b.ContextsOpened())
	require.Equal(t, 1, b.ContextsClosed())
	require.Equal(t, "tok-1", readCookie(t, store.Path()))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestBootstrap_MissingPasswordFailsBeforeBrowser(t *testing.T) {
	t.Parallel()
	b, store := newHarness(t)
	cfg := testConfig()
	cfg.UserPassword = ""

	res, err := NewBootstrapper(b, store, cfg).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, errs.Config, errs.CodeOf(err))
	require.Contains(t, err.Error(), "USER_PASSWORD")
	require.Equal(t, []State{StateInit, StateFailed}, res.States)

	require.Empty(t, b.Navigations())
	require.Zero(t, b.ContextsOpened())
	require.False(t, store.Exists())
}

func TestBootstrap_WrongPasswordFailsTitleAssertion(t *testing.T) {
	t.Parallel()
	b, store := newHarness(t)
	cfg := testConfig()
	cfg.UserPassword = "wrong"

	res, err := NewBootstrapper(b, store, cfg).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, errs.Assertion, errs.CodeOf(err))
	require.Contains(t, err.Error(), browsertest.LoginTitle)
	require.Equal(t, StateFailed, res.Final())
	require.True(t, res.Reached(StateNavigated))
	require.False(t, res.Reached(StateAuthenticated))

	require.True(t, res.ContextClosed)
	require.Equal(t, 1, b.ContextsClosed())
	require.False(t, store.Exists())
}

func TestBootstrap_RerunOverwritesArtifact(t *testing.T) {
	t.Parallel()
	b, store := newHarness(t)
	bs := NewBootstrapper(b, store, testConfig())

	_, err := bs.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-1", readCookie(t, store.Path()))

	res, err := bs.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StateClosed, res.Final())
	require.Equal(t, "tok-2", readCookie(t, store.Path()))
	require.Equal(t, 2, b.App.Logins())
}

func TestBootstrap_NavigationFailureClosesContext(t *testing.T) {
	t.Parallel()
	b, store := newHarness(t)
	b.Faults.GotoErr = errors.New("net::ERR_CONNECTION_REFUSED")

	res, err := NewBootstrapper(b, store, testConfig()).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, errs.Interaction, errs.CodeOf(err))
	require.Equal(t, []State{StateInit, StateFailed}, res.States)
	require.True(t, res.ContextClosed)
	require.Empty(t, b.Actions())
}

func TestBootstrap_MissingFormControl(t *testing.T) {
	t.Parallel()
	b, store := newHarness(t)
	b.Faults.MissingEmailForm = true

	res, err := NewBootstrapper(b, store, testConfig()).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, errs.Interaction, errs.CodeOf(err))
	require.True(t, errors.Is(err, browsertest.ErrNoElement))
	require.True(t, res.Reached(StateNavigated))
	require.True(t, res.ContextClosed)
	require.False(t, store.Exists())
}

func TestBootstrap_StorageCaptureFailureIsIO(t *testing.T) {
	t.Parallel()
	b, store := newHarness(t)
	b.Faults.StorageStateErr = errors.New("target closed")

	res, err := NewBootstrapper(b, store, testConfig()).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, errs.IO, errs.CodeOf(err))
	require.True(t, res.Reached(StateAuthenticated))
	require.False(t, res.Reached(StatePersisted))
	require.True(t, res.ContextClosed)
}

func TestBootstrap_ContextCreationFailure(t *testing.T) {
	t.Parallel()
	b, store := newHarness(t)
	b.Faults.NewContextErr = errors.New("browser has been closed")

	res, err := NewBootstrapper(b, store, testConfig()).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, errs.Interaction, errs.CodeOf(err))
	require.False(t, res.ContextClosed)
	require.Empty(t, b.Navigations())
}

func TestBootstrap_CloseFailureFailsRun(t *testing.T) {
	t.Parallel()
	b, store := newHarness(t)
	b.Faults.CloseErr = errors.New("connection closed")

	res, err := NewBootstrapper(b, store, testConfig()).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, errs.Interaction, errs.CodeOf(err))
	require.True(t, res.Reached(StatePersisted))
	require.Equal(t, StateFailed, res.Final())
	require.False(t, res.ContextClosed)
}

func TestBootstrap_RecordsTrace(t *testing.T) {
	t.Parallel()
	b, store := newHarness(t)
	tracePath := filepath.Join(t.TempDir(), "traces", "setup-retry1.zip")

	_, err := NewBootstrapper(b, store, testConfig(), WithTrace(tracePath)).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, b.TracesStarted())
	require.Equal(t, []string{tracePath}, b.TracesStopped())
}

func TestBootstrap_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		blank := rapid.SampledFrom([]string{"", " ", "\t", "  \n"})
		cfg := testConfig()
		missing := rapid.SliceOfNDistinct(rapid.SampledFrom([]string{"URL", "USER_EMAIL", "USER_PASSWORD"}), 1, 3, rapid.ID[string]).Draw(t, "missing")
		for _, name := range missing {
			switch name {
			case "URL":
				cfg.BaseURL = blank.Draw(t, "url")
			case "USER_EMAIL":
				cfg.UserEmail = blank.Draw(t, "email")
			case "USER_PASSWORD":
				cfg.UserPassword = blank.Draw(t, "password")
			}
		}

		b := browsertest.NewBrowser(browsertest.NewApp(testEmail, testPassword))
		store := artifact.NewFileStore(filepath.Join(os.TempDir(), "never-written", "user.json"))
		res, err := NewBootstrapper(b, store, cfg).Run(context.Background())

		if err == nil {
			t.Fatalf("expected config error for missing %v", missing)
		}
		if errs.CodeOf(err) != errs.Config {
			t.Fatalf("code = %s, want config", errs.CodeOf(err))
		}
		for _, name := range missing {
			if !strings.Contains(err.Error(), name) {
				t.Fatalf("error %q does not name %s", err.Error(), name)
			}
		}
		if len(b.Navigations()) != 0 || b.ContextsOpened() != 0 {
			t.Fatalf("browser was used: navigations=%d contexts=%d", len(b.Navigations()), b.ContextsOpened())
		}
		if res.Final() != StateFailed {
			t.Fatalf("final state = %s", res.Final())
		}
	})
}
