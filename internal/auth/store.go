package auth

import (
	"context"
	"time"
)

// UserStore manages identity records.
type UserStore interface {
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	// UpsertByExternalID materializes a local user for an external identity.
	// It must be race-safe under concurrent first-logins for the same
	// external id: unique constraint plus conflict-tolerant insert.
	UpsertByExternalID(ctx context.Context, externalID, email string) (*User, error)
}

// CredentialStore manages local password credentials.
type CredentialStore interface {
	FindCredential(ctx context.Context, userID string) (*Credential, error)
	// ReplaceCredential swaps the stored hash for the user (insert or overwrite).
	ReplaceCredential(ctx context.Context, userID, passwordHash string) error
}

// SessionStore persists server-side sessions keyed by token hash.
type SessionStore interface {
	CreateSession(ctx context.Context, s *Session) error
	FindSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	// TouchLastSeen is best-effort; validation does not depend on it.
	TouchLastSeen(ctx context.Context, tokenHash string, at time.Time) error
	RevokeSession(ctx context.Context, tokenHash string, at time.Time) error
	// DeleteExpiredSessions removes sessions whose expiry is in the past.
	// Expired rows are already treated as invalid; this is cleanup only.
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// RBACStore manages roles, permissions and their links.
type RBACStore interface {
	FindRoleByKey(ctx context.Context, key string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermissions(ctx context.Context, perms []Permission) error
	SetRolePermissions(ctx context.Context, roleID string, permKeys []string) error
	// Assign inserts the user-role link idempotently: an existing pair is a
	// no-op, not an error.
	Assign(ctx context.Context, a RoleAssignment) error
	RoleKeysForUser(ctx context.Context, userID string) ([]string, error)
	PermissionKeysForUser(ctx context.Context, userID string) ([]string, error)
}

// AuditStore appends immutable entries.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *AuditEntry) error
}
