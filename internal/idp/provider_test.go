package idp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"studyhub.org/internal/auth"
)

func signToken(t *testing.T, key *rsa.PrivateKey, kid, issuer, subject string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims{
		Email: subject + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	})
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func staticFetch(keys map[string]*rsa.PublicKey, calls *int, failWith error) FetchFunc {
	return func(context.Context) (map[string]*rsa.PublicKey, error) {
		if calls != nil {
			*calls++
		}
		if failWith != nil {
			return nil, failWith
		}
		return keys, nil
	}
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cache, err := NewKeyCache(staticFetch(map[string]*rsa.PublicKey{"k1": &key.PublicKey}, nil, nil), time.Hour)
	if err != nil {
		t.Fatalf("NewKeyCache: %v", err)
	}
	verifier, err := NewVerifier(cache, "https://idp.example.com/")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	raw := signToken(t, key, "k1", "https://idp.example.com/", "ext-123", time.Now().Add(time.Hour))
	identity, err := verifier.Verify(context.Background(), raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.ExternalID != "ext-123" {
		t.Fatalf("unexpected external id: %s", identity.ExternalID)
	}
	if identity.Email != "ext-123@example.com" {
		t.Fatalf("unexpected email: %s", identity.Email)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cache, err := NewKeyCache(staticFetch(map[string]*rsa.PublicKey{"k1": &key.PublicKey}, nil, nil), time.Hour)
	if err != nil {
		t.Fatalf("NewKeyCache: %v", err)
	}
	verifier, err := NewVerifier(cache, "https://idp.example.com/")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	cases := map[string]string{
		"empty":         "",
		"garbage":       "not.a.jwt",
		"expired":       signToken(t, key, "k1", "https://idp.example.com/", "ext-1", time.Now().Add(-time.Minute)),
		"wrong issuer":  signToken(t, key, "k1", "https://evil.example.com/", "ext-1", time.Now().Add(time.Hour)),
		"unknown kid":   signToken(t, key, "k9", "https://idp.example.com/", "ext-1", time.Now().Add(time.Hour)),
		"wrong key":     signToken(t, otherKey, "k1", "https://idp.example.com/", "ext-1", time.Now().Add(time.Hour)),
		"empty subject": signToken(t, key, "k1", "https://idp.example.com/", "", time.Now().Add(time.Hour)),
	}
	for name, raw := range cases {
		if _, err := verifier.Verify(context.Background(), raw); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestKeyCacheFetchesOnMissOnly(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var calls int
	cache, err := NewKeyCache(staticFetch(map[string]*rsa.PublicKey{"k1": &key.PublicKey}, &calls, nil), time.Hour)
	if err != nil {
		t.Fatalf("NewKeyCache: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := cache.Key(context.Background(), "k1"); err != nil {
			t.Fatalf("Key: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single fetch for repeated hits, got %d", calls)
	}

	if _, err := cache.Key(context.Background(), "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected a refresh on miss, got %d fetches", calls)
	}
}

func TestKeyCacheServesStaleOnFetchFailure(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keys := map[string]*rsa.PublicKey{"k1": &key.PublicKey}
	fail := errors.New("provider down")
	var failing bool
	fetch := func(context.Context) (map[string]*rsa.PublicKey, error) {
		if failing {
			return nil, fail
		}
		return keys, nil
	}
	cache, err := NewKeyCache(fetch, time.Nanosecond)
	if err != nil {
		t.Fatalf("NewKeyCache: %v", err)
	}
	if _, err := cache.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("warm-up Key: %v", err)
	}

	failing = true
	time.Sleep(time.Millisecond)
	if _, err := cache.Key(context.Background(), "k1"); err != nil {
		t.Fatalf("expected stale key to be served, got %v", err)
	}
}

type stubUserStore struct {
	upsertFn func(context.Context, string, string) (*auth.User, error)
}

func (s *stubUserStore) FindUser(context.Context, string) (*auth.User, error) {
	return nil, auth.ErrNotFound
}

func (s *stubUserStore) FindUserByUsername(context.Context, string) (*auth.User, error) {
	return nil, auth.ErrNotFound
}

func (s *stubUserStore) CreateUser(context.Context, *auth.User) error { return nil }

func (s *stubUserStore) UpsertByExternalID(ctx context.Context, externalID, email string) (*auth.User, error) {
	return s.upsertFn(ctx, externalID, email)
}

func TestProviderAuthenticateMaterializesUser(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cache, err := NewKeyCache(staticFetch(map[string]*rsa.PublicKey{"k1": &key.PublicKey}, nil, nil), time.Hour)
	if err != nil {
		t.Fatalf("NewKeyCache: %v", err)
	}
	verifier, err := NewVerifier(cache, "https://idp.example.com/")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	users := &stubUserStore{
		upsertFn: func(_ context.Context, externalID, email string) (*auth.User, error) {
			if externalID != "ext-55" || email != "ext-55@example.com" {
				t.Fatalf("unexpected upsert args: %s / %s", externalID, email)
			}
			return &auth.User{ID: "user-55", ExternalID: externalID, Email: email}, nil
		},
	}
	provider, err := NewProvider(verifier, users)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	raw := signToken(t, key, "k1", "https://idp.example.com/", "ext-55", time.Now().Add(time.Hour))
	userID, err := provider.Authenticate(context.Background(), raw)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if userID != "user-55" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}
