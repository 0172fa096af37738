// Package config provides centralized configuration for the notifier end-to-end suite.
// It loads configuration from environment variables (optionally seeded from a .env file),
// validates it, and provides the defaults the Playwright project used.
//
// Credentials (URL, USER_EMAIL, USER_PASSWORD) are carried here but validated by the
// session package, so commands that never log in (list) work without secrets.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/subosito/gotenv"
)

const (
	DefaultAuthFile       = "playwright/.auth/user.json"
	DefaultReportDir      = "playwright-report"
	DefaultPostLoginTitle = "Notification Status"
	DefaultSubmitName     = `(?i)sign in|log in|login|submit`
	DefaultBrowser        = "chromium"
	DefaultActionTimeout  = 30 * time.Second
	DefaultTestTimeout    = 3000000 * time.Millisecond
	DefaultSettleDelay    = time.Second
	DefaultArtifactKey    = "auth/user.json"

	ciRetries = 2
	ciWorkers = 1
)

// Trace modes, mirroring Playwright's trace option.
const (
	TraceOff          = "off"
	TraceOn           = "on"
	TraceOnFirstRetry = "on-first-retry"
)

// Config holds all suite configuration.
type Config struct {
	// Target application and credentials
	BaseURL      string // URL, always ends with "/"
	UserEmail    string // USER_EMAIL
	UserPassword string // USER_PASSWORD

	// Runner policy
	CI          bool          // CI is set: retries 2, workers 1
	Workers     int           // parallel dependent runs
	Retries     int           // runner retries per test
	TestTimeout time.Duration // per-test timeout

	// Browser
	Browser       string        // chromium, firefox or webkit
	Headless      bool          // HEADLESS=false shows the browser
	ActionTimeout time.Duration // per-interaction and title assertion timeout
	NavRPS        float64       // navigation pacing, 0 disables
	Trace         string        // off, on, on-first-retry

	// Login flow
	SettleDelay    time.Duration // stabilization pause before submit
	PostLoginTitle string        // regexp the title must match after login
	SubmitName     string        // regexp for the submit button's accessible name

	// Artifacts and reporting
	AuthFile  string
	ReportDir string
	LogLevel  string

	// Optional S3 mirroring (uses AWS_ env vars like the rest of the fleet)
	ArtifactBucket     string // ARTIFACT_BUCKET
	ArtifactKey        string // ARTIFACT_KEY
	ReportBucket       string // REPORT_BUCKET
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// LoadEnvFile seeds the process environment from a dotenv file.
// Variables already present in the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration through getenv (normally os.Getenv) and validates it.
func Load(getenv func(string) string) (*Config, error) {
	env := &envReader{getenv: getenv}
	cfg := &Config{}

	cfg.BaseURL = NormalizeBaseURL(env.str("URL"))
	cfg.UserEmail = env.str("USER_EMAIL")
	cfg.UserPassword = env.raw("USER_PASSWORD")

	cfg.CI = env.str("CI") != ""
	cfg.Workers = env.intOr("WORKERS", DefaultWorkers(cfg.CI))
	cfg.Retries = env.intOr("RETRIES", DefaultRetries(cfg.CI))
	cfg.TestTimeout = env.durationOr("TEST_TIMEOUT", DefaultTestTimeout)

	cfg.Browser = strings.ToLower(env.strOr("BROWSER", DefaultBrowser))
	cfg.Headless = env.boolOr("HEADLESS", true)
	cfg.ActionTimeout = env.durationOr("ACTION_TIMEOUT", DefaultActionTimeout)
	cfg.NavRPS = env.floatOr("NAV_RPS", 0)
	cfg.Trace = env.strOr("TRACE", TraceOnFirstRetry)

	cfg.SettleDelay = env.durationOr("LOGIN_SETTLE_DELAY", DefaultSettleDelay)
	cfg.PostLoginTitle = env.strOr("POST_LOGIN_TITLE", DefaultPostLoginTitle)
	cfg.SubmitName = env.strOr("LOGIN_SUBMIT_NAME", DefaultSubmitName)

	cfg.AuthFile = env.strOr("AUTH_FILE", DefaultAuthFile)
	cfg.ReportDir = env.strOr("REPORT_DIR", DefaultReportDir)
	cfg.LogLevel = env.strOr("LOG_LEVEL", "info")

	cfg.ArtifactBucket = env.str("ARTIFACT_BUCKET")
	cfg.ArtifactKey = env.strOr("ARTIFACT_KEY", DefaultArtifactKey)
	cfg.ReportBucket = env.str("REPORT_BUCKET")
	cfg.AWSEndpointS3 = env.str("AWS_ENDPOINT_URL_S3")
	cfg.AWSRegion = env.strOr("AWS_REGION", "auto")
	cfg.AWSAccessKeyID = env.str("AWS_ACCESS_KEY_ID")
	cfg.AWSSecretAccessKey = env.str("AWS_SECRET_ACCESS_KEY")

	problems := env.invalid
	if err := cfg.Validate(); err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}
		problems = append(problems, ve.Errors...)
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Errors: problems}
	}
	return cfg, nil
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	var errs []string

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, "URL must be an absolute http(s) URL")
		}
	}

	if c.Workers < 1 {
		errs = append(errs, "WORKERS must be at least 1")
	}
	if c.Retries < 0 {
		errs = append(errs, "RETRIES must not be negative")
	}
	if c.TestTimeout <= 0 {
		errs = append(errs, "TEST_TIMEOUT must be positive")
	}
	if c.ActionTimeout <= 0 {
		errs = append(errs, "ACTION_TIMEOUT must be positive")
	}
	if c.SettleDelay < 0 {
		errs = append(errs, "LOGIN_SETTLE_DELAY must not be negative")
	}
	if c.NavRPS < 0 {
		errs = append(errs, "NAV_RPS must not be negative")
	}

	switch c.Browser {
	case "chromium", "firefox", "webkit":
	default:
		errs = append(errs, fmt.Sprintf("BROWSER %q is not one of chromium, firefox, webkit", c.Browser))
	}
	switch c.Trace {
	case TraceOff, TraceOn, TraceOnFirstRetry:
	default:
		errs = append(errs, fmt.Sprintf("TRACE %q is not one of off, on, on-first-retry", c.Trace))
	}

	if _, err := regexp.Compile(c.PostLoginTitle); err != nil {
		errs = append(errs, fmt.Sprintf("POST_LOGIN_TITLE is not a valid regexp: %v", err))
	}
	if _, err := regexp.Compile(c.SubmitName); err != nil {
		errs = append(errs, fmt.Sprintf("LOGIN_SUBMIT_NAME is not a valid regexp: %v", err))
	}

	if strings.TrimSpace(c.AuthFile) == "" {
		errs = append(errs, "AUTH_FILE must not be empty")
	}
	if strings.TrimSpace(c.ReportDir) == "" {
		errs = append(errs, "REPORT_DIR must not be empty")
	}

	if c.ArtifactBucket != "" && strings.TrimSpace(c.ArtifactKey) == "" {
		errs = append(errs, "ARTIFACT_KEY must not be empty when ARTIFACT_BUCKET is set")
	}
	if (c.ArtifactBucket != "" || c.ReportBucket != "") && (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
		errs = append(errs, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// PostLoginPattern returns the compiled post-login title pattern.
func (c *Config) PostLoginPattern() *regexp.Regexp {
	return regexp.MustCompile(c.PostLoginTitle)
}

// SubmitNamePattern returns the compiled submit button name pattern.
func (c *Config) SubmitNamePattern() *regexp.Regexp {
	return regexp.MustCompile(c.SubmitName)
}

// TraceAttempt reports whether tracing should be recorded on the given attempt (0-based).
func (c *Config) TraceAttempt(attempt int) bool {
	switch c.Trace {
	case TraceOn:
		return true
	case TraceOnFirstRetry:
		return attempt == 1
	default:
		return false
	}
}

// NormalizeBaseURL trims whitespace and guarantees a trailing slash so path
// segments can be appended directly.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	return raw
}

// DefaultWorkers is 1 on CI and half the CPUs otherwise.
func DefaultWorkers(ci bool) int {
	if ci {
		return ciWorkers
	}
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

// DefaultRetries is 2 on CI and 0 otherwise.
func DefaultRetries(ci bool) int {
	if ci {
		return ciRetries
	}
	return 0
}

// Helper functions for parsing environment variables

// envReader reads variables and remembers every value it could not parse.
type envReader struct {
	getenv  func(string) string
	invalid []string
}

func (e *envReader) raw(key string) string {
	if e.getenv == nil {
		return ""
	}
	return e.getenv(key)
}

func (e *envReader) str(key string) string {
	return strings.TrimSpace(e.raw(key))
}

func (e *envReader) strOr(key, defaultValue string) string {
	if v := e.str(key); v != "" {
		return v
	}
	return defaultValue
}

func (e *envReader) malformed(key, value, want string) {
	e.invalid = append(e.invalid, fmt.Sprintf("%s %q is not %s", key, value, want))
}

func (e *envReader) intOr(key string, defaultValue int) int {
	value := e.str(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		e.malformed(key, value, "an integer")
		return defaultValue
	}
	return parsed
}

func (e *envReader) floatOr(key string, defaultValue float64) float64 {
	value := e.str(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		e.malformed(key, value, "a number")
		return defaultValue
	}
	return parsed
}

func (e *envReader) boolOr(key string, defaultValue bool) bool {
	value := e.str(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		e.malformed(key, value, "a boolean")
		return defaultValue
	}
	return parsed
}

func (e *envReader) durationOr(key string, defaultValue time.Duration) time.Duration {
	value := e.str(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		// Bare integers are milliseconds.
		ms, msErr := strconv.Atoi(value)
		if msErr != nil {
			e.malformed(key, value, "a duration")
			return defaultValue
		}
		return time.Duration(ms) * time.Millisecond
	}
	return parsed
}
