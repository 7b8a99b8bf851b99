package idp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"studyhub.org/internal/auth"
)

// ErrInvalidToken covers every verification failure: bad signature, wrong
// issuer, expiry, unexpected algorithm. Callers answer a uniform 401.
var ErrInvalidToken = errors.New("idp: invalid token")

// Identity is the verified external identity extracted from a token.
type Identity struct {
	ExternalID string
	Email      string
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates RS256 identity tokens against the cached provider keys.
type Verifier struct {
	keys   *KeyCache
	issuer string
	now    func() time.Time
}

// VerifierOption configures Verifier.
type VerifierOption func(*Verifier)

// WithClock overrides the time source (for tests).
func WithClock(fn func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if fn != nil {
			v.now = fn
		}
	}
}

// NewVerifier constructs a Verifier bound to one issuer.
func NewVerifier(keys *KeyCache, issuer string, opts ...VerifierOption) (*Verifier, error) {
	if keys == nil {
		return nil, errors.New("idp: key cache is required")
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("idp: issuer is required")
	}
	v := &Verifier{keys: keys, issuer: issuer, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify checks the token signature and registered claims and returns the
// embedded identity.
func (v *Verifier) Verify(ctx context.Context, raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodRS256 {
			return nil, ErrInvalidToken
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrInvalidToken
		}
		return v.keys.Key(ctx, kid)
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || strings.TrimSpace(c.Subject) == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{ExternalID: c.Subject, Email: strings.TrimSpace(c.Email)}, nil
}

// Provider ties verification to local user materialization. The first
// successful authentication for an external id creates the local user row;
// concurrent first-logins are resolved by the store's conflict-tolerant
// upsert.
type Provider struct {
	verifier *Verifier
	users    auth.UserStore
}

// NewProvider constructs a Provider.
func NewProvider(verifier *Verifier, users auth.UserStore) (*Provider, error) {
	if verifier == nil {
		return nil, errors.New("idp: verifier is required")
	}
	if users == nil {
		return nil, errors.New("idp: user store is required")
	}
	return &Provider{verifier: verifier, users: users}, nil
}

// Authenticate verifies the external token and returns the local user id,
// creating the user on first sight.
func (p *Provider) Authenticate(ctx context.Context, rawToken string) (string, error) {
	identity, err := p.verifier.Verify(ctx, rawToken)
	if err != nil {
		return "", err
	}
	user, err := p.users.UpsertByExternalID(ctx, identity.ExternalID, identity.Email)
	if err != nil {
		return "", fmt.Errorf("%w: upsert external user: %v", auth.ErrUnavailable, err)
	}
	return user.ID, nil
}
