package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSession implements Provider on top of an HS256 JWT handed over by
// the auth flow. SetToken fires a login event, ClearToken a logout event;
// Authenticated re-validates the token on every call so an expired
// session flips the cart back to guest mode without any extra signal.
type TokenSession struct {
	secret []byte

	mu          sync.Mutex
	token       string
	subscribers map[int]func(Event)
	nextID      int
}

func NewTokenSession(secret []byte) *TokenSession {
	return &TokenSession{
		secret:      secret,
		subscribers: make(map[int]func(Event)),
	}
}

func (s *TokenSession) Authenticated() bool {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	return s.validate(token)
}

func (s *TokenSession) Token() (string, bool) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if !s.validate(token) {
		return "", false
	}
	return token, true
}

// SetToken installs a new session token. Subscribers are notified only
// when the token is actually valid.
func (s *TokenSession) SetToken(token string) bool {
	if !s.validate(token) {
		return false
	}

	s.mu.Lock()
	s.token = token
	handlers := s.snapshotHandlers()
	s.mu.Unlock()

	for _, h := range handlers {
		h(EventLogin)
	}
	return true
}

// ClearToken drops the session and notifies subscribers of the logout.
func (s *TokenSession) ClearToken() {
	s.mu.Lock()
	hadToken := s.token != ""
	s.token = ""
	handlers := s.snapshotHandlers()
	s.mu.Unlock()

	if !hadToken {
		return
	}
	for _, h := range handlers {
		h(EventLogout)
	}
}

func (s *TokenSession) Subscribe(handler func(Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = handler
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *TokenSession) snapshotHandlers() []func(Event) {
	handlers := make([]func(Event), 0, len(s.subscribers))
	for _, h := range s.subscribers {
		handlers = append(handlers, h)
	}
	return handlers
}

func (s *TokenSession) validate(token string) bool {
	if token == "" {
		return false
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil && parsed.Valid
}

// SignToken issues an HS256 token for the given subject, expiring after
// ttl. Exists for the dev server and tests; production tokens come from
// the real auth service.
func SignToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
