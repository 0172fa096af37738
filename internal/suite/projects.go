package suite

import (
	"context"

	"github.com/kuitang/notifier-e2e/internal/artifact"
	"github.com/kuitang/notifier-e2e/internal/browser"
	"github.com/kuitang/notifier-e2e/internal/checks"
	"github.com/kuitang/notifier-e2e/internal/config"
	"github.com/kuitang/notifier-e2e/internal/ratelimit"
	"github.com/kuitang/notifier-e2e/internal/session"
)

const (
	SetupProject    = "setup"
	ChromiumProject = "chromium"

	SetupTitle = "log in and store the session artifact"
)

// Deps are the shared resources every test of the notifier projects uses.
type Deps struct {
	Browser browser.Browser
	Store   artifact.Store
	Config  *config.Config
	Pacer   *ratelimit.Pacer
}

// NotifierProjects returns the setup project and the chromium project that depends on it.
func NotifierProjects(d Deps) []Project {
	return []Project{
		{
			Name:  SetupProject,
			Tests: []Test{{Title: SetupTitle, Run: setupTest(d)}},
		},
		{
			Name:         ChromiumProject,
			Dependencies: []string{SetupProject},
			Tests:        checkTests(d, checks.Default()),
		},
	}
}

// Catalog returns the notifier projects with inert tests, for listing without a browser.
func Catalog() []Project {
	return NotifierProjects(Deps{})
}

func setupTest(d Deps) TestFunc {
	return func(ctx context.Context, a Attempt) error {
		opts := []session.Option{session.WithPacer(d.Pacer)}
		if a.TracePath != "" {
			opts = append(opts, session.WithTrace(a.TracePath))
		}
		_, err := session.NewBootstrapper(d.Browser, d.Store, d.Config, opts...).Run(ctx)
		return err
	}
}

func checkTests(d Deps, cs []checks.Check) []Test {
	tests := make([]Test, 0, len(cs))
	for _, c := range cs {
		c := c
		tests = append(tests, Test{
			Title: c.Name,
			Run: func(ctx context.Context, a Attempt) error {
				r := checks.NewRunner(d.Browser, d.Store, d.Config, checks.WithPacer(d.Pacer))
				return r.Run(ctx, c, checks.RunOptions{TracePath: a.TracePath})
			},
		})
	}
	return tests
}
