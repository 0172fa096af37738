package cli

import (
	"context"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/kuitang/notifier-e2e/internal/artifact"
	"github.com/kuitang/notifier-e2e/internal/browser"
	"github.com/kuitang/notifier-e2e/internal/config"
	"github.com/kuitang/notifier-e2e/internal/errs"
	"github.com/kuitang/notifier-e2e/internal/obs"
	"github.com/kuitang/notifier-e2e/internal/ratelimit"
	"github.com/kuitang/notifier-e2e/internal/report"
	"github.com/kuitang/notifier-e2e/internal/s3client"
	"github.com/kuitang/notifier-e2e/internal/session"
	"github.com/kuitang/notifier-e2e/internal/suite"
)

type runOptions struct {
	projects   []string
	noDeps     bool
	grep       string
	grepInvert string

	workers   int
	retries   int
	headed    bool
	reportDir string
	trace     string
}

func (o *runOptions) filter() (suite.Filter, error) {
	f := suite.Filter{Projects: o.projects, NoDeps: o.noDeps}
	if o.grep != "" {
		re, err := regexp.Compile(o.grep)
		if err != nil {
			return f, errs.Wrap(errs.Config, "invalid --grep", err)
		}
		f.Grep = re
	}
	if o.grepInvert != "" {
		re, err := regexp.Compile(o.grepInvert)
		if err != nil {
			return f, errs.Wrap(errs.Config, "invalid --grep-invert", err)
		}
		f.GrepInvert = re
	}
	return f, nil
}

// apply copies explicitly set flags over the environment configuration.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = o.workers
	}
	if flags.Changed("retries") {
		cfg.Retries = o.retries
	}
	if flags.Changed("headed") {
		cfg.Headless = !o.headed
	}
	if flags.Changed("reporter-dir") {
		cfg.ReportDir = o.reportDir
	}
	if flags.Changed("trace") {
		cfg.Trace = o.trace
	}
	return cfg.Validate()
}

func addRunFlags(cmd *cobra.Command, o *runOptions) {
	cmd.Flags().IntVar(&o.workers, "workers", 0, "parallel dependent tests (overrides WORKERS)")
	cmd.Flags().IntVar(&o.retries, "retries", 0, "retries per failed test (overrides RETRIES)")
	cmd.Flags().BoolVar(&o.headed, "headed", false, "show the browser window")
	cmd.Flags().StringVar(&o.reportDir, "reporter-dir", "", "report output directory (overrides REPORT_DIR)")
	cmd.Flags().StringVar(&o.trace, "trace", "", "trace mode: off, on, on-first-retry (overrides TRACE)")
}

func newTestCommand(env Env, g *globalOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run the setup project and the tests that depend on it",
		Long: `Run the suite. The setup project always runs first when a selected project
depends on it; dependent tests then run in parallel.

	Examples:
	  notifier-e2e test
	  notifier-e2e test --project chromium --grep Profile
	  CI=1 notifier-e2e test --reporter-dir out/report`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(cmd, env, g, o)
		},
	}
	cmd.Flags().StringArrayVar(&o.projects, "project", nil, "only run projects matching this glob (repeatable)")
	cmd.Flags().BoolVar(&o.noDeps, "no-deps", false, "do not run dependency projects of the selected ones")
	cmd.Flags().StringVarP(&o.grep, "grep", "g", "", "only run tests whose title matches this regexp")
	cmd.Flags().StringVar(&o.grepInvert, "grep-invert", "", "skip tests whose title matches this regexp")
	addRunFlags(cmd, o)
	return cmd
}

func newSetupCommand(env Env, g *globalOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Sign in once and store the session artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.projects = []string{suite.SetupProject}
			o.noDeps = true
			return runSuite(cmd, env, g, o)
		},
	}
	addRunFlags(cmd, o)
	return cmd
}

// loadConfig seeds the environment from the env file, loads configuration and
// initializes logging.
func loadConfig(env Env, g *globalOptions) (*config.Config, error) {
	if err := config.LoadEnvFile(g.envFile); err != nil {
		return nil, errs.Wrap(errs.Config, "load env file", err)
	}
	cfg, err := config.Load(env.Getenv)
	if err != nil {
		return nil, errs.Wrap(errs.Config, "load configuration", err)
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	obs.Init()
	obs.SetLevel(obs.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

func runSuite(cmd *cobra.Command, env Env, g *globalOptions, o *runOptions) error {
	cfg, err := loadConfig(env, g)
	if err != nil {
		return err
	}
	if err := o.apply(cmd, cfg); err != nil {
		return errs.Wrap(errs.Config, "invalid flags", err)
	}
	filter, err := o.filter()
	if err != nil {
		return err
	}
	// Validate the selection and credentials before paying for a browser.
	planned, err := suite.Select(suite.Catalog(), filter)
	if err != nil {
		return err
	}
	if len(suite.List(planned)) == 0 {
		return errs.New(errs.Config, "no tests found")
	}
	if selects(planned, suite.SetupProject) {
		if _, err := session.LoadCredentials(cfg); err != nil {
			return err
		}
	}

	ctx := obs.WithRun(cmd.Context(), obs.NewRunID())
	log := obs.From(ctx).With("pkg", "cli")

	store, err := artifactStore(ctx, cfg)
	if err != nil {
		return err
	}

	b, err := env.Launch(ctx, browser.Options{Engine: cfg.Browser, Headless: cfg.Headless})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := b.Close(); cerr != nil {
			log.Warn("browser_close_failed", "error", cerr.Error())
		}
	}()

	pacer := ratelimit.NewPacer(cfg.NavRPS)
	projects, err := suite.Select(suite.NotifierProjects(suite.Deps{
		Browser: b,
		Store:   store,
		Config:  cfg,
		Pacer:   pacer,
	}), filter)
	if err != nil {
		return err
	}

	summary, err := suite.NewRunner(cfg).Run(ctx, projects)
	if err != nil {
		return err
	}
	summary.Browser = b.Engine()
	if pacer.Enabled() {
		log.Info("navigation_paced", "rps", cfg.NavRPS, "waits", pacer.Waits())
	}

	files, err := report.Write(cfg.ReportDir, summary)
	if err != nil {
		return err
	}
	printSummary(cmd, summary, files)

	if cfg.ReportBucket != "" {
		uri, err := publishReport(ctx, cfg, files, summary)
		if err != nil {
			// The local report exists; a failed upload does not change the verdict.
			log.Error("report_publish_failed", "error", err.Error())
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Report published to %s\n", uri)
		}
	}

	if code := summary.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func selects(projects []suite.Project, name string) bool {
	for _, p := range projects {
		if p.Name == name {
			return true
		}
	}
	return false
}

func artifactStore(ctx context.Context, cfg *config.Config) (artifact.Store, error) {
	local := artifact.NewFileStore(cfg.AuthFile)
	if cfg.ArtifactBucket == "" {
		return local, nil
	}
	client, err := s3client.New(ctx, s3Config(cfg, cfg.ArtifactBucket))
	if err != nil {
		return nil, errs.Wrap(errs.Config, "artifact bucket", err)
	}
	return artifact.NewS3Store(local, client, cfg.ArtifactKey), nil
}

func publishReport(ctx context.Context, cfg *config.Config, files *report.Files, s *suite.Summary) (string, error) {
	client, err := s3client.New(ctx, s3Config(cfg, cfg.ReportBucket))
	if err != nil {
		return "", err
	}
	return report.NewPublisher(client, "").Publish(ctx, files, s)
}

func s3Config(cfg *config.Config, bucket string) s3client.Config {
	return s3client.Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		BucketName:      bucket,
		UsePathStyle:    cfg.AWSEndpointS3 != "",
	}
}

func printSummary(cmd *cobra.Command, s *suite.Summary, files *report.Files) {
	out := cmd.OutOrStdout()
	for _, r := range s.Results {
		fmt.Fprintf(out, "  %-7s [%s] › %s", r.Status, r.Project, r.Title)
		if r.Attempts > 1 {
			fmt.Fprintf(out, " (%d attempts)", r.Attempts)
		}
		fmt.Fprintln(out)
		if r.Message != "" {
			fmt.Fprintf(out, "          %s\n", r.Message)
		}
	}
	c := s.Counts()
	fmt.Fprintf(out, "\n  %d passed, %d flaky, %d failed, %d skipped\n", c.Passed, c.Flaky, c.Failed, c.Skipped)
	fmt.Fprintf(out, "  Report: %s\n", files.Index)
}
