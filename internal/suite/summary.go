package suite

import (
	"time"

	"github.com/kuitang/notifier-e2e/internal/errs"
)

// Summary is the outcome of one suite invocation.
type Summary struct {
	RunID    string        `json:"run_id"`
	Browser  string        `json:"browser,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
	Workers  int           `json:"workers"`
	Retries  int           `json:"retries"`
	Results  []TestResult  `json:"results"`
}

// Counts tallies results by status.
type Counts struct {
	Passed  int `json:"passed"`
	Flaky   int `json:"flaky"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Total returns the number of tests.
func (c Counts) Total() int {
	return c.Passed + c.Flaky + c.Failed + c.Skipped
}

func (s *Summary) Counts() Counts {
	var c Counts
	for _, r := range s.Results {
		switch r.Status {
		case StatusPassed:
			c.Passed++
		case StatusFlaky:
			c.Flaky++
		case StatusFailed:
			c.Failed++
		case StatusSkipped:
			c.Skipped++
		}
	}
	return c
}

// OK reports whether every executed test passed, flaky ones included.
func (s *Summary) OK() bool {
	c := s.Counts()
	return c.Failed == 0 && c.Skipped == 0
}

// ExitCode maps the summary to a process exit code: 0 when OK, the configuration
// exit code when any failure was a configuration error, 1 otherwise.
func (s *Summary) ExitCode() int {
	if s.OK() {
		return 0
	}
	for _, r := range s.Results {
		if r.Status == StatusFailed && r.Code == string(errs.Config) {
			return errs.ExitCode(errs.Config)
		}
	}
	return 1
}

// Failures returns the failed and skipped results.
func (s *Summary) Failures() []TestResult {
	var out []TestResult
	for _, r := range s.Results {
		if r.Status == StatusFailed || r.Status == StatusSkipped {
			out = append(out, r)
		}
	}
	return out
}
