// Package cli implements the notifier-e2e command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kuitang/notifier-e2e/internal/browser"
	"github.com/kuitang/notifier-e2e/internal/errs"
)

// Launched is a running browser the suite can open contexts on.
type Launched interface {
	browser.Browser
	Engine() string
	Close() error
}

// Env is what the commands read from the outside world.
type Env struct {
	Getenv func(string) string
	Stdout io.Writer
	Stderr io.Writer
	// Launch starts the browser. Defaults to browser.Launch.
	Launch func(ctx context.Context, opts browser.Options) (Launched, error)
	// Install downloads a browser engine. Defaults to browser.Install.
	Install func(engine string) error
}

// DefaultEnv reads the process environment and launches real browsers.
func DefaultEnv() Env {
	return Env{Getenv: os.Getenv, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (e Env) withDefaults() Env {
	if e.Getenv == nil {
		e.Getenv = os.Getenv
	}
	if e.Stdout == nil {
		e.Stdout = io.Discard
	}
	if e.Stderr == nil {
		e.Stderr = io.Discard
	}
	if e.Launch == nil {
		e.Launch = func(ctx context.Context, opts browser.Options) (Launched, error) {
			return browser.Launch(ctx, opts)
		}
	}
	if e.Install == nil {
		e.Install = browser.Install
	}
	return e
}

// exitError carries a process exit code out of a command without an error message.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

type globalOptions struct {
	envFile  string
	logLevel string
}

// NewRootCommand builds the command tree.
func NewRootCommand(env Env) *cobra.Command {
	env = env.withDefaults()
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "notifier-e2e",
		Short: "End-to-end browser tests for the notifier application",
		Long: `Runs the notifier end-to-end suite: the setup project signs in once and stores
the browser session, then every dependent test reuses it to open a page by its
direct URL and check the title.

Configuration comes from the environment (URL, USER_EMAIL, USER_PASSWORD, ...),
optionally seeded from a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(env.Stdout)
	root.SetErr(env.Stderr)
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file to seed the environment from (missing is fine)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")

	root.AddCommand(
		newTestCommand(env, g),
		newSetupCommand(env, g),
		newListCommand(env, g),
		newInstallCommand(env, g),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, env Env) int {
	env = env.withDefaults()
	root := NewRootCommand(env)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintf(env.Stderr, "Error: %v\n", err)
	var coded *errs.Error
	if errors.As(err, &coded) {
		return errs.ExitCode(errs.CodeOf(err))
	}
	// Validation errors and cobra's flag and argument errors are usage problems.
	return errs.ExitCode(errs.Config)
}
