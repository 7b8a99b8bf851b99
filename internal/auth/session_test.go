package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	failWith error
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*Session)}
}

func (m *memSessionStore) CreateSession(_ context.Context, s *Session) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.TokenHash] = &cp
	return nil
}

func (m *memSessionStore) FindSessionByTokenHash(_ context.Context, hash string) (*Session, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[hash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionStore) TouchLastSeen(_ context.Context, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[hash]; ok {
		s.LastSeenAt = at
	}
	return nil
}

func (m *memSessionStore) RevokeSession(_ context.Context, hash string, at time.Time) error {
	if m.failWith != nil {
		return m.failWith
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[hash]; ok && s.RevokedAt == nil {
		s.RevokedAt = &at
	}
	return nil
}

func (m *memSessionStore) DeleteExpiredSessions(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, s := range m.sessions {
		if s.ExpiresAt.Before(before) {
			delete(m.sessions, k)
			n++
		}
	}
	return n, nil
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestSessionCreateThenValidate(t *testing.T) {
	store := newMemSessionStore()
	sessions, err := NewSessions(store, testSecret)
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}

	token, err := sessions.Create(context.Background(), "user-1", 24*time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(token) < 40 {
		t.Fatalf("token suspiciously short: %q", token)
	}
	for hash := range store.sessions {
		if hash == token {
			t.Fatal("raw token was persisted as its own hash")
		}
	}

	userID, err := sessions.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}

func TestSessionValidateUpdatesLastSeen(t *testing.T) {
	store := newMemSessionStore()
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sessions, err := NewSessions(store, testSecret, WithSessionClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}

	token, err := sessions.Create(context.Background(), "user-1", 24*time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	current = current.Add(2 * time.Hour)
	if _, err := sessions.Validate(context.Background(), token); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	for _, s := range store.sessions {
		if !s.LastSeenAt.Equal(current) {
			t.Fatalf("last_seen_at not touched: %v", s.LastSeenAt)
		}
		if !s.ExpiresAt.Equal(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)) {
			t.Fatalf("expiry must not slide: %v", s.ExpiresAt)
		}
	}
}

func TestSessionRevokeBlocksReplay(t *testing.T) {
	store := newMemSessionStore()
	sessions, err := NewSessions(store, testSecret)
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}

	token, err := sessions.Create(context.Background(), "user-1", 24*time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := sessions.Revoke(context.Background(), token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := sessions.Validate(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized after revoke, got %v", err)
	}
	// Revoking again, or revoking garbage, is not an error.
	if err := sessions.Revoke(context.Background(), token); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	if err := sessions.Revoke(context.Background(), "never-issued"); err != nil {
		t.Fatalf("Revoke of unknown token: %v", err)
	}
}

func TestSessionExpiryIsLazy(t *testing.T) {
	store := newMemSessionStore()
	current := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	sessions, err := NewSessions(store, testSecret, WithSessionClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}

	token, err := sessions.Create(context.Background(), "user-1", 24*time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	current = current.Add(25 * time.Hour)
	if _, err := sessions.Validate(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for expired session, got %v", err)
	}

	n, err := sessions.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged session, got %d", n)
	}
}

func TestSessionValidateRejectsMalformedAndUnknown(t *testing.T) {
	sessions, err := NewSessions(newMemSessionStore(), testSecret)
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	for _, token := range []string{"", "garbage", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"} {
		if _, err := sessions.Validate(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("token %q: expected ErrUnauthorized, got %v", token, err)
		}
	}
}

func TestSessionStoreFailureIsUnavailable(t *testing.T) {
	store := newMemSessionStore()
	store.failWith = errors.New("connection refused")
	sessions, err := NewSessions(store, testSecret)
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	if _, err := sessions.Create(context.Background(), "user-1", 0); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := sessions.Validate(context.Background(), "some-token"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSessionSecretRotationInvalidatesTokens(t *testing.T) {
	store := newMemSessionStore()
	sessions, err := NewSessions(store, testSecret)
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	token, err := sessions.Create(context.Background(), "user-1", time.Hour)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rotated, err := NewSessions(store, []byte("ffffffffffffffffffffffffffffffff"))
	if err != nil {
		t.Fatalf("NewSessions: %v", err)
	}
	if _, err := rotated.Validate(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected rotation to invalidate token, got %v", err)
	}
}
