// Package suite runs projects of browser tests the way the Playwright runner did:
// dependency projects first, then every dependent test in parallel up to the worker
// limit, with per-test timeouts, runner-level retries, and traces on selected attempts.
package suite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kuitang/notifier-e2e/internal/browser"
	"github.com/kuitang/notifier-e2e/internal/config"
	"github.com/kuitang/notifier-e2e/internal/errs"
	"github.com/kuitang/notifier-e2e/internal/obs"
)

// Status is the outcome of one test.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	// StatusFlaky means the test failed at least once and then passed on a retry.
	StatusFlaky Status = "flaky"
)

// Attempt describes one execution of a test.
type Attempt struct {
	// Number is 0 for the first run, 1 for the first retry, and so on.
	Number int
	// TracePath is set when this attempt should record a trace.
	TracePath string
}

// TestFunc executes one attempt of a test.
type TestFunc func(ctx context.Context, a Attempt) error

// Test is a titled test inside a project.
type Test struct {
	Title string
	Run   TestFunc
}

// Project groups tests that share setup, like a Playwright project.
type Project struct {
	Name         string
	Dependencies []string
	Tests        []Test
}

// TestResult is the recorded outcome of a test after all attempts. Message is
// the one-line cause shown in listings; Error keeps the full chain.
type TestResult struct {
	Project  string        `json:"project"`
	Title    string        `json:"title"`
	Status   Status        `json:"status"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration_ns"`
	Code     string        `json:"code,omitempty"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
	Traces   []string      `json:"traces,omitempty"`
}

// Runner executes a selected set of projects.
type Runner struct {
	cfg *config.Config
}

// NewRunner returns a runner using cfg's worker, retry, timeout and trace policy.
func NewRunner(cfg *config.Config) *Runner {
	return &Runner{cfg: cfg}
}

// Run executes projects in dependency order and returns the summary. Projects must
// already be filtered (see Select). A project whose dependency did not fully pass
// has all of its tests marked skipped.
func (r *Runner) Run(ctx context.Context, projects []Project) (*Summary, error) {
	ordered, err := order(projects)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		RunID:   runIDFromContext(ctx),
		Started: time.Now().UTC(),
		Workers: r.cfg.Workers,
		Retries: r.cfg.Retries,
	}
	log := obs.From(ctx).With("pkg", "suite")
	log.Info("suite_started", "projects", len(ordered), "workers", r.cfg.Workers, "retries", r.cfg.Retries)

	healthy := make(map[string]bool, len(ordered))
	for _, p := range ordered {
		blocked := ""
		for _, dep := range p.Dependencies {
			if ok, present := healthy[dep]; present && !ok {
				blocked = dep
				break
			}
		}

		var results []TestResult
		if blocked != "" {
			results = skipAll(p, fmt.Sprintf("dependency project %q failed", blocked))
			log.Warn("project_skipped", "project", p.Name, "dependency", blocked)
		} else {
			results = r.runProject(ctx, p)
		}

		ok := true
		for _, res := range results {
			if res.Status != StatusPassed && res.Status != StatusFlaky {
				ok = false
			}
		}
		healthy[p.Name] = ok
		summary.Results = append(summary.Results, results...)
	}

	summary.Duration = time.Since(summary.Started)
	c := summary.Counts()
	log.Info("suite_finished",
		"passed", c.Passed,
		"flaky", c.Flaky,
		"failed", c.Failed,
		"skipped", c.Skipped,
		"dur_ms", summary.Duration.Milliseconds(),
	)
	return summary, nil
}

// runProject runs every test in p in parallel, bounded by the worker count.
// A failing test never cancels its siblings.
func (r *Runner) runProject(ctx context.Context, p Project) []TestResult {
	results := make([]TestResult, len(p.Tests))
	var g errgroup.Group
	g.SetLimit(max(r.cfg.Workers, 1))
	for i, t := range p.Tests {
		i, t := i, t
		g.Go(func() error {
			results[i] = r.runTest(ctx, p.Name, t)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (r *Runner) runTest(ctx context.Context, project string, t Test) TestResult {
	res := TestResult{Project: project, Title: t.Title}
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= r.cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		res.Attempts = attempt + 1

		a := Attempt{Number: attempt}
		if r.cfg.TraceAttempt(attempt) {
			a.TracePath = filepath.Join(r.cfg.ReportDir, "traces", browser.TraceFileName(project, t.Title, attempt))
		}

		lastErr = r.attempt(ctx, project, t, a)
		if a.TracePath != "" {
			res.Traces = append(res.Traces, a.TracePath)
		}
		if lastErr == nil {
			break
		}
		// Configuration does not change between attempts.
		if errs.Is(lastErr, errs.Config) {
			break
		}
	}
	res.Duration = time.Since(start)

	switch {
	case lastErr == nil && res.Attempts > 1:
		res.Status = StatusFlaky
	case lastErr == nil:
		res.Status = StatusPassed
	default:
		res.Status = StatusFailed
		res.Code = string(errs.CodeOf(lastErr))
		res.Message = message(lastErr)
		res.Error = lastErr.Error()
	}
	return res
}

func (r *Runner) attempt(ctx context.Context, project string, t Test, a Attempt) (err error) {
	ctx = obs.WithTest(ctx, project, t.Title, a.Number)
	ctx, cancel := context.WithTimeout(ctx, r.cfg.TestTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			err = errs.New(errs.Internal, fmt.Sprintf("test panicked: %v", p))
		}
		if err != nil && ctx.Err() == context.DeadlineExceeded {
			err = errs.Wrap(errs.CodeOf(err), fmt.Sprintf("test timeout of %s exceeded", r.cfg.TestTimeout), err)
		}
		log := obs.From(ctx).With("pkg", "suite")
		if err != nil {
			log.Warn("test_attempt_failed", "code", string(errs.CodeOf(err)), "error", err.Error())
			return
		}
		log.Info("test_attempt_passed")
	}()

	return t.Run(ctx, a)
}

// message is the outermost coded message, or the whole error when nothing in the
// chain carries a code.
func message(err error) string {
	var coded *errs.Error
	if errors.As(err, &coded) {
		return errs.MessageOf(err)
	}
	return err.Error()
}

func skipAll(p Project, reason string) []TestResult {
	results := make([]TestResult, 0, len(p.Tests))
	for _, t := range p.Tests {
		results = append(results, TestResult{
			Project: p.Name,
			Title:   t.Title,
			Status:  StatusSkipped,
			Message: reason,
			Error:   reason,
		})
	}
	return results
}

// order sorts projects so every project follows its dependencies.
// Dependencies that were not selected are ignored.
func order(projects []Project) ([]Project, error) {
	byName := make(map[string]Project, len(projects))
	for _, p := range projects {
		if _, dup := byName[p.Name]; dup {
			return nil, errs.New(errs.Config, fmt.Sprintf("duplicate project %q", p.Name))
		}
		byName[p.Name] = p
	}

	var (
		out      []Project
		visiting = map[string]bool{}
		done     = map[string]bool{}
		visit    func(name string) error
	)
	visit = func(name string) error {
		if done[name] {
			return nil
		}
		if visiting[name] {
			return errs.New(errs.Config, fmt.Sprintf("project dependency cycle at %q", name))
		}
		visiting[name] = true
		p := byName[name]
		for _, dep := range p.Dependencies {
			if _, ok := byName[dep]; !ok {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[name] = false
		done[name] = true
		out = append(out, p)
		return nil
	}
	for _, p := range projects {
		if err := visit(p.Name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func runIDFromContext(ctx context.Context) string {
	if id := obs.CorrelationFromContext(ctx).RunID; id != "" {
		return id
	}
	return obs.NewRunID()
}
