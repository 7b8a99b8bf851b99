package auth

import (
	"context"
	"errors"
	"testing"
)

type stubRBACStore struct {
	roleKeysFn  func(context.Context, string) ([]string, error)
	permKeysFn  func(context.Context, string) ([]string, error)
	findRoleFn  func(context.Context, string) (*Role, error)
	assignFn    func(context.Context, RoleAssignment) error
	ensureFn    func(context.Context, []Permission) error
	assignments []RoleAssignment
}

func (s *stubRBACStore) FindRoleByKey(ctx context.Context, key string) (*Role, error) {
	if s.findRoleFn != nil {
		return s.findRoleFn(ctx, key)
	}
	return nil, ErrNotFound
}

func (s *stubRBACStore) ListRoles(context.Context) ([]Role, error)             { return nil, nil }
func (s *stubRBACStore) ListPermissions(context.Context) ([]Permission, error) { return nil, nil }

func (s *stubRBACStore) EnsurePermissions(ctx context.Context, perms []Permission) error {
	if s.ensureFn != nil {
		return s.ensureFn(ctx, perms)
	}
	return nil
}

func (s *stubRBACStore) SetRolePermissions(context.Context, string, []string) error { return nil }

func (s *stubRBACStore) Assign(ctx context.Context, a RoleAssignment) error {
	if s.assignFn != nil {
		return s.assignFn(ctx, a)
	}
	for _, existing := range s.assignments {
		if existing.UserID == a.UserID && existing.RoleID == a.RoleID {
			return nil // idempotent
		}
	}
	s.assignments = append(s.assignments, a)
	return nil
}

func (s *stubRBACStore) RoleKeysForUser(ctx context.Context, userID string) ([]string, error) {
	if s.roleKeysFn != nil {
		return s.roleKeysFn(ctx, userID)
	}
	return nil, nil
}

func (s *stubRBACStore) PermissionKeysForUser(ctx context.Context, userID string) ([]string, error) {
	if s.permKeysFn != nil {
		return s.permKeysFn(ctx, userID)
	}
	return nil, nil
}

func TestLoadContextUnionsPermissions(t *testing.T) {
	store := &stubRBACStore{
		roleKeysFn: func(_ context.Context, _ string) ([]string, error) {
			return []string{"teacher", "editor"}, nil
		},
		// Roles overlap on p2; the store query already de-duplicates, but the
		// resolver must tolerate duplicates from the store too.
		permKeysFn: func(_ context.Context, _ string) ([]string, error) {
			return []string{"p1", "p2", "p2", "p3"}, nil
		},
	}
	resolver, err := NewResolver(store)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	ctx, err := resolver.LoadContext(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}
	if got := ctx.SortedPermissions(); len(got) != 3 || got[0] != "p1" || got[1] != "p2" || got[2] != "p3" {
		t.Fatalf("expected union {p1,p2,p3}, got %v", got)
	}
	if !ctx.HasRole("teacher") || !ctx.HasRole("editor") || ctx.HasRole("admin") {
		t.Fatalf("unexpected roles: %v", ctx.Roles)
	}
}

func TestLoadContextNoRolesYieldsEmptySets(t *testing.T) {
	resolver, err := NewResolver(&stubRBACStore{})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	ctx, err := resolver.LoadContext(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}
	if len(ctx.Roles) != 0 || len(ctx.Permissions) != 0 {
		t.Fatalf("expected empty sets, got %v / %v", ctx.Roles, ctx.Permissions)
	}
	if ctx.HasPermission(PermRolesAssign) {
		t.Fatal("empty context must not grant permissions")
	}
}

func TestLoadContextStoreFailure(t *testing.T) {
	store := &stubRBACStore{
		roleKeysFn: func(_ context.Context, _ string) ([]string, error) {
			return nil, errors.New("pool exhausted")
		},
	}
	resolver, err := NewResolver(store)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if _, err := resolver.LoadContext(context.Background(), "user-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestAssignRoleIsIdempotent(t *testing.T) {
	store := &stubRBACStore{
		findRoleFn: func(_ context.Context, key string) (*Role, error) {
			if key != "editor" {
				return nil, ErrNotFound
			}
			return &Role{ID: "role-7", Key: "editor", Name: "Editor"}, nil
		},
	}
	resolver, err := NewResolver(store)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	for i := 0; i < 2; i++ {
		role, err := resolver.AssignRole(context.Background(), "admin-1", "user-9", "editor")
		if err != nil {
			t.Fatalf("AssignRole call %d: %v", i+1, err)
		}
		if role.ID != "role-7" {
			t.Fatalf("unexpected role: %+v", role)
		}
	}
	if len(store.assignments) != 1 {
		t.Fatalf("expected exactly one assignment row, got %d", len(store.assignments))
	}
	if store.assignments[0].AssignedBy != "admin-1" {
		t.Fatalf("assigning actor not recorded: %+v", store.assignments[0])
	}
}

func TestAssignRoleUnknownKey(t *testing.T) {
	resolver, err := NewResolver(&stubRBACStore{})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if _, err := resolver.AssignRole(context.Background(), "admin-1", "user-9", "warlord"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
