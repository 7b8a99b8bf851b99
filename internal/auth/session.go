package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"studyhub.org/internal/ids"
)

// DefaultSessionTTL is applied when a zero TTL is requested.
const DefaultSessionTTL = 7 * 24 * time.Hour

const sessionTokenBytes = 32

// Sessions creates, validates and revokes server-side sessions. Tokens are
// opaque: validity is decided solely by looking up the keyed hash in the
// store. Rotating the hash secret invalidates every outstanding session;
// that is documented behavior, not a bug.
type Sessions struct {
	store  SessionStore
	secret []byte
	now    func() time.Time
}

// SessionOption configures Sessions.
type SessionOption func(*Sessions)

// WithSessionClock overrides the time source (for tests).
func WithSessionClock(fn func() time.Time) SessionOption {
	return func(s *Sessions) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSessions constructs the session manager. The secret keys the token
// hash; a leaked sessions table without it is useless to an attacker.
func NewSessions(store SessionStore, secret []byte, opts ...SessionOption) (*Sessions, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if len(secret) < 16 {
		return nil, errors.New("session secret must be at least 16 bytes")
	}
	s := &Sessions{store: store, secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create issues a new session for the user and returns the raw opaque token.
// The token is never persisted; only its keyed hash reaches the store.
func (s *Sessions) Create(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	raw := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := s.now().UTC()
	sess := &Session{
		ID:         ids.New(),
		TokenHash:  s.hashToken(token),
		UserID:     userID,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return "", fmt.Errorf("%w: create session: %v", ErrUnavailable, err)
	}
	return token, nil
}

// Validate resolves a raw token to the owning user id. Malformed, unknown,
// revoked and expired tokens all surface as ErrUnauthorized so the HTTP
// layer answers a uniform 401; only infrastructure failures differ.
// On success the session's last_seen_at is touched best-effort.
func (s *Sessions) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrUnauthorized
	}
	hash := s.hashToken(token)
	sess, err := s.store.FindSessionByTokenHash(ctx, hash)
	switch {
	case errors.Is(err, ErrNotFound):
		return "", ErrUnauthorized
	case err != nil:
		return "", fmt.Errorf("%w: session lookup: %v", ErrUnavailable, err)
	}

	now := s.now().UTC()
	if !sess.Valid(now) {
		return "", ErrUnauthorized
	}
	// Sliding visibility, not sliding expiry: failure to record last_seen_at
	// must not fail the validation.
	_ = s.store.TouchLastSeen(ctx, hash, now)
	return sess.UserID, nil
}

// Revoke marks the matching session as revoked. Revoking twice, or revoking
// a token that never existed, is not an error.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.RevokeSession(ctx, s.hashToken(token), s.now().UTC()); err != nil {
		return fmt.Errorf("%w: revoke session: %v", ErrUnavailable, err)
	}
	return nil
}

// PurgeExpired deletes naturally expired rows. Expiry is already enforced
// lazily at validation time.
func (s *Sessions) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now().UTC())
}

func (s *Sessions) hashToken(token string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
