package session

import (
	"log/slog"
	"strings"

	"github.com/kuitang/notifier-e2e/internal/config"
	"github.com/kuitang/notifier-e2e/internal/errs"
	"github.com/kuitang/notifier-e2e/internal/logutil"
)

// LoginPath is appended to the base URL to reach the sign-in form.
const LoginPath = "login"

// Credentials are what the bootstrap signs in with.
type Credentials struct {
	LoginURL string
	Email    string
	Password string
}

// LogValue keeps the password out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("login_url", c.LoginURL),
		slog.String("email", logutil.MaskEmail(c.Email)),
		slog.String("password", logutil.RedactValue("password", c.Password)),
	)
}

// LoadCredentials builds Credentials from cfg. Every value must be present; a
// missing one is a config error and nothing else has happened yet.
func LoadCredentials(cfg *config.Config) (Credentials, error) {
	if cfg == nil {
		return Credentials{}, errs.New(errs.Config, "missing required configuration: URL, USER_EMAIL, USER_PASSWORD")
	}

	var missing []string
	if strings.TrimSpace(cfg.BaseURL) == "" {
		missing = append(missing, "URL")
	}
	if strings.TrimSpace(cfg.UserEmail) == "" {
		missing = append(missing, "USER_EMAIL")
	}
	if strings.TrimSpace(cfg.UserPassword) == "" {
		missing = append(missing, "USER_PASSWORD")
	}
	if len(missing) > 0 {
		return Credentials{}, errs.New(errs.Config, "missing required configuration: "+strings.Join(missing, ", "))
	}

	return Credentials{
		LoginURL: config.NormalizeBaseURL(cfg.BaseURL) + LoginPath,
		Email:    strings.TrimSpace(cfg.UserEmail),
		Password: cfg.UserPassword,
	}, nil
}
