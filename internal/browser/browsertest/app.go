package browsertest

import (
	"fmt"
	"sync"
)

// App is the scripted notifier: one account, issued session tokens, and page titles.
type App struct {
	Email    string
	Password string

	mu     sync.Mutex
	titles map[string]string
	issued map[string]bool
	logins int
}

// NewApp returns an app that accepts exactly email/password.
func NewApp(email, password string) *App {
	return &App{
		Email:    email,
		Password: password,
		titles: map[string]string{
			"login":                        LoginTitle,
			"notifier/notification-status": NotificationStatusTitle,
			"notifier/profile":             ProfileTitle,
		},
		issued: make(map[string]bool),
	}
}

// SetTitle overrides the title served at path.
func (a *App) SetTitle(path, title string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles[path] = title
}

// Title returns the title for path, "Not Found" for unknown paths.
func (a *App) Title(path string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.titles[path]; ok {
		return t
	}
	return "Not Found"
}

// Login issues a new session token when the credentials match.
func (a *App) Login(email, password string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if email != a.Email || password != a.Password {
		return "", false
	}
	a.logins++
	token := fmt.Sprintf("tok-%d", a.logins)
	a.issued[token] = true
	return token, true
}

// Valid reports whether token is a live session.
func (a *App) Valid(token string) bool {
	if token == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.issued[token]
}

// Revoke ends every issued session, as a server-side expiry would.
func (a *App) Revoke() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.issued = make(map[string]bool)
}

// Logins returns how many successful logins the app served.
func (a *App) Logins() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.logins
}
