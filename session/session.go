package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type sessionData struct {
	Principal string            `json:"principal,omitempty"`
	AuthHash  []byte            `json:"auth_hash,omitempty"`
	Values    map[string]string `json:"values,omitempty"`
}

// AuthSession is the request-scoped session value. The middleware restores
// it from the session cookie, handlers mutate it through Login, Logout and
// the value accessors, and the middleware persists it before the response
// headers are flushed.
type AuthSession struct {
	store Store
	ttl   time.Duration

	id    string
	data  sessionData
	dirty bool
}

// New creates a fresh anonymous session bound to store. The middleware is
// the usual entry point; New serves handlers and tests that run without it.
func New(store Store, ttl time.Duration) *AuthSession {
	return newAuthSession(store, ttl, NewID(), sessionData{})
}

func newAuthSession(store Store, ttl time.Duration, id string, data sessionData) *AuthSession {
	return &AuthSession{
		store: store,
		ttl:   ttl,
		id:    id,
		data:  data,
	}
}

// ID returns the current session id.
func (s *AuthSession) ID() string { return s.id }

// Principal returns the authenticated principal identity, or "".
func (s *AuthSession) Principal() string { return s.data.Principal }

// AuthHash returns the session-auth-hash snapshot captured at login. The
// middleware compares it against the user record to invalidate sessions
// whose underlying credential rotated.
func (s *AuthSession) AuthHash() []byte { return s.data.AuthHash }

// IsAuthenticated reports whether a principal is logged in.
func (s *AuthSession) IsAuthenticated() bool { return s.data.Principal != "" }

// Get returns the stored value for key, or "".
func (s *AuthSession) Get(key string) string {
	return s.data.Values[key]
}

// Set stores a string value in the session.
func (s *AuthSession) Set(key, value string) {
	if s.data.Values == nil {
		s.data.Values = map[string]string{}
	}
	s.data.Values[key] = value
	s.dirty = true
}

// Delete removes a stored value.
func (s *AuthSession) Delete(key string) {
	if _, ok := s.data.Values[key]; ok {
		delete(s.data.Values, key)
		s.dirty = true
	}
}

// Login binds the session to a principal and rotates the session id so a
// pre-login id planted by an attacker never survives authentication.
func (s *AuthSession) Login(ctx context.Context, principal string, authHash []byte) error {
	newID, err := s.store.RotateID(ctx, s.id)
	if err != nil {
		return fmt.Errorf("failed to rotate session id: %w", err)
	}
	s.id = newID
	s.data.Principal = principal
	s.data.AuthHash = append([]byte(nil), authHash...)
	s.dirty = true
	return nil
}

// Logout drops the stored record and resets the session to a fresh
// anonymous one.
func (s *AuthSession) Logout(ctx context.Context) error {
	if err := s.store.Invalidate(ctx, s.id); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}
	s.id = NewID()
	s.data = sessionData{}
	s.dirty = true
	return nil
}

// persist writes the session record when something changed. It reports
// whether a record was written.
func (s *AuthSession) persist(ctx context.Context) (saved bool, err error) {
	if !s.dirty {
		return false, nil
	}
	payload, err := json.Marshal(s.data)
	if err != nil {
		return false, fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.store.Save(ctx, s.id, payload, s.ttl); err != nil {
		return false, err
	}
	s.dirty = false
	return true, nil
}

type ctxKey struct{}

// WithSession attaches the session to a context.
func WithSession(ctx context.Context, s *AuthSession) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext extracts the session from a context, or nil.
func FromContext(ctx context.Context) *AuthSession {
	if s, ok := ctx.Value(ctxKey{}).(*AuthSession); ok {
		return s
	}
	return nil
}
