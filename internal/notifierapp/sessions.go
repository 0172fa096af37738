package notifierapp

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

const (
	SessionCookieName = "session_id"
	SessionDuration   = 24 * time.Hour
	sessionIDLength   = 32
)

// SessionStore keeps sessions in memory. It is safe for concurrent use.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]time.Time // id -> expiry
	now      func() time.Time
}

// NewSessionStore returns an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]time.Time), now: time.Now}
}

// Create starts a session and returns its id.
func (s *SessionStore) Create() (string, error) {
	buf := make([]byte, sessionIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session ID: %w", err)
	}
	id := base64.RawURLEncoding.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = s.now().Add(SessionDuration)
	return id, nil
}

// Validate returns ErrSessionNotFound for unknown or expired ids.
func (s *SessionStore) Validate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if !s.now().Before(expires) {
		delete(s.sessions, id)
		return ErrSessionNotFound
	}
	return nil
}

// RevokeAll ends every session, the way a server-side logout-everywhere would.
func (s *SessionStore) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]time.Time)
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(SessionDuration.Seconds()),
	})
}

func sessionFromRequest(r *http.Request) (string, error) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	return c.Value, nil
}
