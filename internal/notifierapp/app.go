// Package notifierapp is a small stand-in for the notifier web application: a login
// form, cookie sessions, and the two pages the navigation checks visit. Browser tests
// run the suite against it through httptest so they need no external environment.
package notifierapp

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/kuitang/notifier-e2e/internal/logutil"
	"github.com/kuitang/notifier-e2e/internal/obs"
)

const (
	LoginTitle              = "Login | Notifier"
	NotificationStatusTitle = "Notification Status | Notifier"
	ProfileTitle            = "Profile | Notifier"

	NotificationStatusPath = "/notifier/notification-status"
	ProfilePath            = "/notifier/profile"
	LoginPath              = "/login"
)

var pages = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body>
{{if .Login}}
<form method="post" action="/login">
  {{if .Error}}<p role="alert">{{.Error}}</p>{{end}}
  <label for="email">Email *</label>
  <input id="email" name="email" type="email" autocomplete="username" value="{{.Email}}">
  <label for="password">Password *</label>
  <input id="password" name="password" type="password" autocomplete="current-password">
  <button type="submit" id="sign-in" disabled>Sign in</button>
</form>
<script>
  (function () {
    var email = document.getElementById("email");
    var password = document.getElementById("password");
    var submit = document.getElementById("sign-in");
    function sync() { submit.disabled = !(email.value && password.value); }
    email.addEventListener("input", sync);
    password.addEventListener("input", sync);
    sync();
  })();
</script>
{{else}}
<nav><a href="/notifier/notification-status">Notification Status</a> <a href="/notifier/profile">Profile</a></nav>
<h1>{{.Heading}}</h1>
{{end}}
</body>
</html>`))

type pageData struct {
	Title   string
	Heading string
	Login   bool
	Email   string
	Error   string
}

// App serves the notifier fixture for one account.
type App struct {
	email        string
	passwordHash string
	sessions     *SessionStore
	handler      http.Handler
}

// New returns an app that accepts exactly email and password.
func New(email, password string) (*App, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	a := &App{
		email:        strings.TrimSpace(email),
		passwordHash: hash,
		sessions:     NewSessionStore(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /login", a.handleLoginForm)
	mux.HandleFunc("POST /login", a.handleLogin)
	mux.Handle("GET "+NotificationStatusPath, a.requireSession(a.page(NotificationStatusTitle, "Notification Status")))
	mux.Handle("GET "+ProfilePath, a.requireSession(a.page(ProfileTitle, "Profile")))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, NotificationStatusPath, http.StatusSeeOther)
	})
	a.handler = obs.AccessLogMiddleware("notifierapp", mux)
	return a, nil
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// Sessions exposes the session store so tests can expire sessions.
func (a *App) Sessions() *SessionStore {
	return a.sessions
}

func (a *App) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, pageData{Title: LoginTitle, Login: true})
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	log := obs.From(r.Context()).With("pkg", "notifierapp")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	email := strings.TrimSpace(r.PostForm.Get("email"))
	password := r.PostForm.Get("password")
	log.Debug("login_attempt", "form", logutil.FormatFormForLog(r.PostForm))

	if !strings.EqualFold(email, a.email) || !VerifyPassword(password, a.passwordHash) {
		log.Info("login_rejected", "email", logutil.MaskEmail(email))
		render(w, r, http.StatusUnauthorized, pageData{
			Title: LoginTitle,
			Login: true,
			Email: email,
			Error: "Invalid email or password.",
		})
		return
	}

	id, err := a.sessions.Create()
	if err != nil {
		log.Error("session_create_failed", "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	setSessionCookie(w, r, id)
	log.Info("login_accepted", "email", logutil.MaskEmail(email))
	http.Redirect(w, r, NotificationStatusPath, http.StatusSeeOther)
}

func (a *App) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := sessionFromRequest(r)
		if err == nil {
			err = a.sessions.Validate(id)
		}
		if err != nil {
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *App) page(title, heading string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		render(w, r, http.StatusOK, pageData{Title: title, Heading: heading})
	})
}

func render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.Execute(w, data); err != nil {
		obs.From(r.Context()).Error("render_failed", "pkg", "notifierapp", "error", err.Error())
	}
}
