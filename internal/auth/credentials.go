package auth

import (
	"context"
	"errors"
	"fmt"
)

// dummyHash is a bcrypt hash of an unused random value. Verifying against it
// keeps the "no credential row" path on the same cost curve as a real
// comparison, so response latency does not reveal which case occurred.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Credentials verifies username/password pairs against stored bcrypt hashes.
// Verification is read-only; SetPassword replaces the stored row wholesale.
type Credentials struct {
	store CredentialStore
}

// NewCredentials constructs a credential verifier.
func NewCredentials(store CredentialStore) (*Credentials, error) {
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	return &Credentials{store: store}, nil
}

// Verify reports whether the candidate password matches the user's stored
// hash. A missing credential row is (false, nil), never an error; lookup
// failures propagate wrapped in ErrUnavailable so callers can answer 503
// instead of 401.
func (c *Credentials) Verify(ctx context.Context, userID, candidate string) (bool, error) {
	cred, err := c.store.FindCredential(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		// Burn a comparison anyway; see dummyHash.
		_ = VerifyPassword(dummyHash, candidate)
		return false, nil
	case err != nil:
		return false, fmt.Errorf("%w: credential lookup: %v", ErrUnavailable, err)
	}
	return VerifyPassword(cred.PasswordHash, candidate) == nil, nil
}

// SetPassword replaces the stored credential for the user.
func (c *Credentials) SetPassword(ctx context.Context, userID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return c.store.ReplaceCredential(ctx, userID, hash)
}
