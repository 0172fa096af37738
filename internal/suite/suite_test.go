package suite

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/notifier-e2e/internal/artifact"
	"github.com/kuitang/notifier-e2e/internal/browser/browsertest"
	"github.com/kuitang/notifier-e2e/internal/config"
	"github.com/kuitang/notifier-e2e/internal/errs"
	"github.com/kuitang/notifier-e2e/internal/ratelimit"
)

const (
	testEmail    = "notifier@example.test"
	testPassword = "correct horse"
	testBase     = "https://example.test/"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		BaseURL:        testBase,
		UserEmail:      testEmail,
		UserPassword:   testPassword,
		Workers:        2,
		TestTimeout:    10 * time.Second,
		Browser:        config.DefaultBrowser,
		ActionTimeout:  300 * time.Millisecond,
		Trace:          config.TraceOnFirstRetry,
		SettleDelay:    time.Millisecond,
		PostLoginTitle: config.DefaultPostLoginTitle,
		SubmitName:     config.DefaultSubmitName,
		AuthFile:       filepath.Join(t.TempDir(), "user.json"),
		ReportDir:      filepath.Join(t.TempDir(), "report"),
	}
}

func notifier(t *testing.T, cfg *config.Config) (*browsertest.Browser, []Project) {
	t.Helper()
	b := browsertest.NewBrowser(browsertest.NewApp(testEmail, testPassword))
	return b, NotifierProjects(Deps{
		Browser: b,
		Store:   artifact.NewFileStore(cfg.AuthFile),
		Config:  cfg,
		Pacer:   ratelimit.NewPacer(0),
	})
}

func byTitle(s *Summary) map[string]TestResult {
	out := make(map[string]TestResult, len(s.Results))
	for _, r := range s.Results {
		out[r.Title] = r
	}
	return out
}

func TestRun_SetupThenDependents(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	b, projects := notifier(t, cfg)

	summary, err := NewRunner(cfg).Run(context.Background(), projects)
	require.NoError(t, err)
	require.True(t, summary.OK())
	require.Equal(t, 0, summary.ExitCode())
	require.Equal(t, Counts{Passed: 3}, summary.Counts())

	require.Equal(t, SetupProject, summary.Results[0].Project)
	require.Equal(t, testBase+"login", b.Navigations()[0])
	require.Equal(t, 1, b.App.Logins())
	require.Len(t, b.SeededFrom(), 2)
	require.Equal(t, b.ContextsOpened(), b.ContextsClosed())
}

func TestRun_FailedSetupSkipsDependents(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.UserPassword = "wrong"
	b, projects := notifier(t, cfg)

	summary, err := NewRunner(cfg).Run(context.Background(), projects)
	require.NoError(t, err)
	require.False(t, summary.OK())
	require.Equal(t, 1, summary.ExitCode())
	require.Equal(t, Counts{Failed: 1, Skipped: 2}, summary.Counts())

	setup := byTitle(summary)[SetupTitle]
	require.Equal(t, StatusFailed, setup.Status)
	require.Equal(t, string(errs.Assertion), setup.Code)
	for _, r := range summary.Results[1:] {
		require.Equal(t, StatusSkipped, r.Status)
		require.Contains(t, r.Error, `"setup"`)
		require.Equal(t, r.Error, r.Message)
	}
	require.Len(t, b.Navigations(), 1)
}

func TestRun_MissingCredentialsIsConfigErrorAndNotRetried(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.UserEmail = ""
	cfg.Retries = 2
	b, projects := notifier(t, cfg)

	summary, err := NewRunner(cfg).Run(context.Background(), projects)
	require.NoError(t, err)
	require.Equal(t, 2, summary.ExitCode())

	setup := byTitle(summary)[SetupTitle]
	require.Equal(t, 1, setup.Attempts)
	require.Equal(t, string(errs.Config), setup.Code)
	require.Empty(t, b.Navigations())
	require.Zero(t, b.ContextsOpened())
}

func TestRun_FailingSiblingDoesNotCancelOthers(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	b, projects := notifier(t, cfg)
	b.App.SetTitle("notifier/profile", "Oops | Notifier")

	summary, err := NewRunner(cfg).Run(context.Background(), projects)
	require.NoError(t, err)
	require.Equal(t, Counts{Passed: 2, Failed: 1}, summary.Counts())
	require.Equal(t, 1, summary.ExitCode())
	require.Len(t, summary.Failures(), 1)
	require.Contains(t, summary.Failures()[0].Error, "Oops | Notifier")
}

func TestRun_RetryMarksFlakyAndTracesFirstRetry(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Retries = 2

	var calls atomic.Int32
	var traces []string
	projects := []Project{{
		Name: "unit",
		Tests: []Test{{
			Title: "eventually passes",
			Run: func(ctx context.Context, a Attempt) error {
				traces = append(traces, a.TracePath)
				if calls.Add(1) == 1 {
					return errs.New(errs.Interaction, "first attempt fails")
				}
				return nil
			},
		}},
	}}

	summary, err := NewRunner(cfg).Run(context.Background(), projects)
	require.NoError(t, err)
	res := summary.Results[0]
	require.Equal(t, StatusFlaky, res.Status)
	require.Equal(t, 2, res.Attempts)
	require.True(t, summary.OK())

	require.Len(t, traces, 2)
	require.Empty(t, traces[0])
	require.Equal(t, filepath.Join(cfg.ReportDir, "traces", "unit-eventually-passes-retry1.zip"), traces[1])
	require.Equal(t, []string{traces[1]}, res.Traces)
}

func TestRun_ExhaustedRetriesFail(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Retries = 2
	cfg.Trace = config.TraceOff

	var calls, traced atomic.Int32
	projects := []Project{{Name: "unit", Tests: []Test{{
		Title: "always fails",
		Run: func(ctx context.Context, a Attempt) error {
			calls.Add(1)
			if a.TracePath != "" {
				traced.Add(1)
			}
			return errs.New(errs.Assertion, "nope")
		},
	}}}}

	summary, err := NewRunner(cfg).Run(context.Background(), projects)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, summary.Results[0].Status)
	require.Equal(t, 3, summary.Results[0].Attempts)
	require.Equal(t, int32(3), calls.Load())
	require.Zero(t, traced.Load())
}

func TestRun_TestTimeout(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.TestTimeout = 50 * time.Millisecond

	projects := []Project{{Name: "unit", Tests: []Test{
		{
			Title: "hangs",
			Run: func(ctx context.Context, a Attempt) error {
				<-ctx.Done()
				return errs.Wrap(errs.Interaction, "wait", ctx.Err())
			},
		},
		{
			Title: "quick",
			Run:   func(ctx context.Context, a Attempt) error { return nil },
		},
	}}}

	summary, err := NewRunner(cfg).Run(context.Background(), projects)
	require.NoError(t, err)
	results := byTitle(summary)
	require.Equal(t, StatusFailed, results["hangs"].Status)
	require.Contains(t, results["hangs"].Error, "test timeout of 50ms exceeded")
	require.Equal(t, "test timeout of 50ms exceeded", results["hangs"].Message)
	require.Equal(t, StatusPassed, results["quick"].Status)
}

func TestRun_PanicIsInternalError(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	projects := []Project{{Name: "unit", Tests: []Test{{
		Title: "panics",
		Run:   func(ctx context.Context, a Attempt) error { panic("boom") },
	}}}}

	summary, err := NewRunner(cfg).Run(context.Background(), projects)
	require.NoError(t, err)
	require.Equal(t, string(errs.Internal), summary.Results[0].Code)
	require.Contains(t, summary.Results[0].Error, "boom")
	require.Equal(t, "test panicked: boom", summary.Results[0].Message)
}

func TestRun_MessageIsOutermostCause(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	projects := []Project{{Name: "unit", Tests: []Test{
		{
			Title: "coded",
			Run: func(ctx context.Context, a Attempt) error {
				return errs.Wrap(errs.Interaction, "open /profile", errors.New("net::ERR_CONNECTION_REFUSED"))
			},
		},
		{
			Title: "untyped",
			Run:   func(ctx context.Context, a Attempt) error { return errors.New("locator detached") },
		},
	}}}

	summary, err := NewRunner(cfg).Run(context.Background(), projects)
	require.NoError(t, err)
	results := byTitle(summary)
	require.Equal(t, "open /profile", results["coded"].Message)
	require.Contains(t, results["coded"].Error, "ERR_CONNECTION_REFUSED")
	require.Equal(t, "locator detached", results["untyped"].Message)
	require.Equal(t, string(errs.Internal), results["untyped"].Code)
}

func TestRun_WorkerLimit(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Workers = 2

	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	tests := make([]Test, 6)
	for i := range tests {
		tests[i] = Test{
			Title: "t" + strings.Repeat("x", i),
			Run: func(ctx context.Context, a Attempt) error {
				mu.Lock()
				running++
				peak = max(peak, running)
				mu.Unlock()
				time.Sleep(20 * time.Millisecond)
				mu.Lock()
				running--
				mu.Unlock()
				return nil
			},
		}
	}

	summary, err := NewRunner(cfg).Run(context.Background(), []Project{{Name: "unit", Tests: tests}})
	require.NoError(t, err)
	require.Equal(t, 6, summary.Counts().Passed)
	require.LessOrEqual(t, peak, 2)
	require.GreaterOrEqual(t, peak, 1)
}

func TestRun_DependencyCycle(t *testing.T) {
	t.Parallel()
	_, err := NewRunner(testConfig(t)).Run(context.Background(), []Project{
		{Name: "a", Dependencies: []string{"b"}},
		{Name: "b", Dependencies: []string{"a"}},
	})
	require.Error(t, err)
	require.Equal(t, errs.Config, errs.CodeOf(err))
}

func TestRun_OrdersDependenciesFirst(t *testing.T) {
	t.Parallel()
	var (
		mu  sync.Mutex
		ran []string
	)
	record := func(name string) TestFunc {
		return func(ctx context.Context, a Attempt) error {
			mu.Lock()
			ran = append(ran, name)
			mu.Unlock()
			return nil
		}
	}
	projects := []Project{
		{Name: "dependent", Dependencies: []string{"base"}, Tests: []Test{{Title: "d", Run: record("dependent")}}},
		{Name: "base", Tests: []Test{{Title: "b", Run: record("base")}}},
	}

	_, err := NewRunner(testConfig(t)).Run(context.Background(), projects)
	require.NoError(t, err)
	require.Equal(t, []string{"base", "dependent"}, ran)
}

func TestSelect(t *testing.T) {
	t.Parallel()
	projects := Catalog()
	titles := func(ps []Project) []string {
		var out []string
		for _, p := range ps {
			for _, tt := range p.Tests {
				out = append(out, p.Name+": "+tt.Title)
			}
		}
		return out
	}

	all, err := Select(projects, Filter{})
	require.NoError(t, err)
	require.Len(t, titles(all), 3)

	onlyChromium, err := Select(projects, Filter{Projects: []string{"chrom*"}})
	require.NoError(t, err)
	require.Equal(t, []string{SetupProject, ChromiumProject}, names(onlyChromium))

	noDeps, err := Select(projects, Filter{Projects: []string{"chromium"}, NoDeps: true})
	require.NoError(t, err)
	require.Equal(t, []string{ChromiumProject}, names(noDeps))

	profile, err := Select(projects, Filter{Grep: regexp.MustCompile(`Profile`)})
	require.NoError(t, err)
	require.Equal(t, []string{
		"setup: " + SetupTitle,
		"chromium: Verify Notifier can move to the Profile page by using the direct URL",
	}, titles(profile))

	inverted, err := Select(projects, Filter{GrepInvert: regexp.MustCompile(`Profile`)})
	require.NoError(t, err)
	require.Len(t, titles(inverted), 2)
	require.NotContains(t, strings.Join(titles(inverted), "\n"), "Profile page")

	nothing, err := Select(projects, Filter{Grep: regexp.MustCompile(`no such test`)})
	require.NoError(t, err)
	require.Empty(t, nothing)

	_, err = Select(projects, Filter{Projects: []string{"firefox"}})
	require.Equal(t, errs.Config, errs.CodeOf(err))
	require.Contains(t, err.Error(), "setup, chromium")

	_, err = Select(projects, Filter{Projects: []string{"[unterminated"}})
	require.Equal(t, errs.Config, errs.CodeOf(err))
}

func TestList(t *testing.T) {
	t.Parallel()
	lines := List(Catalog())
	require.Equal(t, []string{
		"[setup] › " + SetupTitle,
		"[chromium] › Verify Notifier can move to the Notification status page by using the direct URL",
		"[chromium] › Verify Notifier can move to the Profile page by using the direct URL",
	}, lines)
}
