package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// AuthContext is the per-request authorization snapshot: user id plus the
// resolved role and permission key sets. It is derived, never persisted,
// and never outlives the request it was computed for.
type AuthContext struct {
	UserID      string
	Roles       []string
	Permissions map[string]struct{}
}

// HasRole reports whether the context carries the role key.
func (c AuthContext) HasRole(key string) bool {
	for _, r := range c.Roles {
		if r == key {
			return true
		}
	}
	return false
}

// HasPermission reports whether the context carries the permission key.
func (c AuthContext) HasPermission(key string) bool {
	_, ok := c.Permissions[key]
	return ok
}

// SortedPermissions returns the permission keys in stable order.
func (c AuthContext) SortedPermissions() []string {
	out := make([]string, 0, len(c.Permissions))
	for k := range c.Permissions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Resolver computes authorization contexts from the relational store.
// Resolution is recomputed per request so a revoked role takes effect on
// the very next request; there is no cross-request cache to invalidate.
type Resolver struct {
	store RBACStore
}

// NewResolver constructs a Resolver.
func NewResolver(store RBACStore) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &Resolver{store: store}, nil
}

// LoadContext resolves the role keys assigned to the user and the union of
// permission keys granted through those roles. A user with no roles yields
// empty sets, not an error: no access is the safe default.
func (r *Resolver) LoadContext(ctx context.Context, userID string) (AuthContext, error) {
	if userID == "" {
		return AuthContext{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	roleKeys, err := r.store.RoleKeysForUser(ctx, userID)
	if err != nil {
		return AuthContext{}, fmt.Errorf("%w: load roles: %v", ErrUnavailable, err)
	}
	permKeys, err := r.store.PermissionKeysForUser(ctx, userID)
	if err != nil {
		return AuthContext{}, fmt.Errorf("%w: load permissions: %v", ErrUnavailable, err)
	}
	perms := make(map[string]struct{}, len(permKeys))
	for _, k := range permKeys {
		perms[k] = struct{}{}
	}
	sort.Strings(roleKeys)
	return AuthContext{UserID: userID, Roles: roleKeys, Permissions: perms}, nil
}

// AssignRole grants the role identified by key to the user, recording the
// granting actor. An unknown role key is rejected as invalid input, an
// unknown user as not found; assigning an already held role is a no-op.
func (r *Resolver) AssignRole(ctx context.Context, actorID, userID, roleKey string) (*Role, error) {
	userID = strings.TrimSpace(userID)
	roleKey = strings.TrimSpace(roleKey)
	if userID == "" || roleKey == "" {
		return nil, fmt.Errorf("%w: user_id and role_key are required", ErrInvalidInput)
	}
	role, err := r.store.FindRoleByKey(ctx, roleKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, roleKey)
		}
		return nil, fmt.Errorf("%w: role lookup: %v", ErrUnavailable, err)
	}
	a := RoleAssignment{UserID: userID, RoleID: role.ID, AssignedBy: actorID}
	if err := r.store.Assign(ctx, a); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", ErrNotFound)
		}
		return nil, fmt.Errorf("%w: assign role: %v", ErrUnavailable, err)
	}
	return role, nil
}

// EnsureBuiltins makes sure the permission catalog contains the predefined
// keys. Safe to run at every startup.
func (r *Resolver) EnsureBuiltins(ctx context.Context) error {
	return r.store.EnsurePermissions(ctx, BuiltinPermissions)
}
