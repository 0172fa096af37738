package browser

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/notifier-e2e/internal/artifact"
	"github.com/kuitang/notifier-e2e/internal/checks"
	"github.com/kuitang/notifier-e2e/internal/errs"
	"github.com/kuitang/notifier-e2e/internal/notifierapp"
	"github.com/kuitang/notifier-e2e/internal/session"
	"github.com/kuitang/notifier-e2e/internal/suite"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 4*browserMaxTimeout)
	t.Cleanup(cancel)
	return ctx
}

func bootstrap(t *testing.T, env *NotifierTestEnv, overrides map[string]string) *session.Result {
	t.Helper()
	cfg := env.Config(t, overrides)
	res, _ := session.NewBootstrapper(env.Browser, artifact.NewFileStore(cfg.AuthFile), cfg).Run(testContext(t))
	return res
}

func TestBootstrap_ValidCredentialsPersistSession(t *testing.T) {
	env := SetupNotifierTestEnv(t)

	res := bootstrap(t, env, nil)
	require.NoError(t, res.Err)
	require.Equal(t, session.StateClosed, res.Final())
	require.True(t, res.Reached(session.StatePersisted))
	require.True(t, res.ContextClosed)
	require.Equal(t, 1, env.App.Sessions().Len())

	data, err := os.ReadFile(env.AuthFile())
	require.NoError(t, err)
	var state struct {
		Cookies []struct {
			Name string `json:"name"`
		} `json:"cookies"`
	}
	require.NoError(t, json.Unmarshal(data, &state))
	var names []string
	for _, c := range state.Cookies {
		names = append(names, c.Name)
	}
	require.Contains(t, names, notifierapp.SessionCookieName)
}

func TestBootstrap_MissingPasswordNeverOpensBrowser(t *testing.T) {
	env := SetupNotifierTestEnv(t)

	res := bootstrap(t, env, map[string]string{"USER_PASSWORD": ""})
	require.Equal(t, session.StateFailed, res.Final())
	require.True(t, errs.Is(res.Err, errs.Config), "got %v", res.Err)
	require.False(t, res.Reached(session.StateNavigated))
	require.False(t, env.ArtifactExists())
	require.Zero(t, env.App.Sessions().Len())
}

func TestBootstrap_WrongPasswordFailsAndCloses(t *testing.T) {
	env := SetupNotifierTestEnv(t)

	res := bootstrap(t, env, map[string]string{
		"USER_PASSWORD":  "not the password",
		"ACTION_TIMEOUT": "1s",
	})
	require.Equal(t, session.StateFailed, res.Final())
	require.True(t, errs.Is(res.Err, errs.Assertion), "got %v", res.Err)
	require.Contains(t, res.Err.Error(), notifierapp.LoginTitle)
	require.True(t, res.Reached(session.StateNavigated))
	require.False(t, res.Reached(session.StateAuthenticated))
	require.True(t, res.ContextClosed)
	require.False(t, env.ArtifactExists())
}

func TestChecks_ReuseSessionWithoutLoggingIn(t *testing.T) {
	env := SetupNotifierTestEnv(t)
	require.NoError(t, bootstrap(t, env, nil).Err)

	cfg := env.Config(t, nil)
	runner := checks.NewRunner(env.Browser, artifact.NewFileStore(cfg.AuthFile), cfg)
	for _, c := range checks.Default() {
		t.Run(c.Path, func(t *testing.T) {
			require.NoError(t, runner.Run(testContext(t), c))
		})
	}
	// Both checks rode the one session the bootstrap created.
	require.Equal(t, 1, env.App.Sessions().Len())
}

func TestChecks_ExpiredSessionLandsOnLogin(t *testing.T) {
	env := SetupNotifierTestEnv(t)
	require.NoError(t, bootstrap(t, env, nil).Err)
	env.App.Sessions().RevokeAll()

	cfg := env.Config(t, map[string]string{"ACTION_TIMEOUT": "1s"})
	runner := checks.NewRunner(env.Browser, artifact.NewFileStore(cfg.AuthFile), cfg)
	err := runner.Run(testContext(t), checks.Default()[1])
	require.True(t, errs.Is(err, errs.Assertion), "got %v", err)
	require.Contains(t, err.Error(), notifierapp.LoginTitle)
}

func TestSuite_SetupThenChecks(t *testing.T) {
	env := SetupNotifierTestEnv(t)
	cfg := env.Config(t, nil)

	projects := suite.NotifierProjects(suite.Deps{
		Browser: env.Browser,
		Store:   artifact.NewFileStore(cfg.AuthFile),
		Config:  cfg,
	})
	summary, err := suite.NewRunner(cfg).Run(testContext(t), projects)
	require.NoError(t, err)
	require.True(t, summary.OK(), "%+v", summary.Failures())
	require.Equal(t, suite.Counts{Passed: 3}, summary.Counts())
}
