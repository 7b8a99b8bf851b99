package auth

import "time"

// User is an identity record. The id is immutable; profile fields may change.
type User struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"external_id,omitempty"`
	Username    string    `json:"username,omitempty"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Credential holds the salted password hash for a user. One row per user,
// replaced wholesale on password change. Plaintext is never stored.
type Credential struct {
	UserID       string
	PasswordHash string
	UpdatedAt    time.Time
}

// Session represents one authenticated browser or device. The raw opaque
// token handed to the client is never persisted; only its keyed hash is.
type Session struct {
	ID         string
	TokenHash  string
	UserID     string
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// Valid reports whether the session is usable at the given instant.
func (s Session) Valid(at time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(at)
}

// Role is a named permission bundle (static reference data).
type Role struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Permission is a named capability (static reference data).
type Permission struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"created_at"`
}

// RoleAssignment links a user to a role and records who granted it.
// A (user, role) pair is unique; re-assignment is a no-op.
type RoleAssignment struct {
	UserID     string    `json:"user_id"`
	RoleID     string    `json:"role_id"`
	AssignedBy string    `json:"assigned_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditEntry is an append-only record of a security-relevant action.
type AuditEntry struct {
	ID         string
	OccurredAt time.Time
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]string
}
