package auth

import "testing"

func testContext(roles []string, perms ...string) AuthContext {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return AuthContext{UserID: "u1", Roles: roles, Permissions: set}
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred Predicate
		ctx  AuthContext
		want bool
	}{
		{"role match", HasRole("teacher"), testContext([]string{"teacher"}), true},
		{"role miss", HasRole("admin"), testContext([]string{"teacher"}), false},
		{"perm match", HasPermission("roles.assign"), testContext(nil, "roles.assign"), true},
		{"perm miss", HasPermission("roles.assign"), testContext([]string{"teacher"}), false},
		{"any first", AnyOf(HasRole("admin"), HasPermission("roles.assign")), testContext([]string{"admin"}), true},
		{"any second", AnyOf(HasRole("admin"), HasPermission("roles.assign")), testContext(nil, "roles.assign"), true},
		{"any none", AnyOf(HasRole("admin"), HasPermission("roles.assign")), testContext([]string{"teacher"}), false},
		{"all both", AllOf(HasRole("teacher"), HasPermission("content.edit")), testContext([]string{"teacher"}, "content.edit"), true},
		{"all partial", AllOf(HasRole("teacher"), HasPermission("content.edit")), testContext([]string{"teacher"}), false},
		{"empty context", IsAdmin, testContext(nil), false},
	}
	for _, tc := range cases {
		if got := tc.pred(tc.ctx); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestWellKnownGroupPredicates(t *testing.T) {
	if !IsAdmin(testContext([]string{"admin"})) {
		t.Fatal("admin role must satisfy IsAdmin")
	}
	if !IsAdmin(testContext([]string{"teacher"}, PermRolesAssign)) {
		t.Fatal("roles.assign must satisfy IsAdmin")
	}
	if IsAdmin(testContext([]string{"teacher"})) {
		t.Fatal("teacher alone must not satisfy IsAdmin")
	}
	if !IsTeacher(testContext([]string{"admin"})) || !IsEditor(testContext([]string{"admin"})) {
		t.Fatal("admin must satisfy teacher and editor surfaces")
	}
	if !IsTeacher(testContext([]string{"teacher"})) || !IsEditor(testContext([]string{"editor"})) {
		t.Fatal("direct role must satisfy its own surface")
	}
}

func TestGuardCompositionIsOrderIndependent(t *testing.T) {
	a := HasRole("teacher")
	b := HasPermission("content.edit")
	ctx := testContext([]string{"teacher"}, "content.edit")
	if AllOf(a, b)(ctx) != AllOf(b, a)(ctx) {
		t.Fatal("AllOf must be order independent")
	}
	partial := testContext([]string{"teacher"})
	if AllOf(a, b)(partial) || AllOf(b, a)(partial) {
		t.Fatal("AND of guards must reject a partial match in any order")
	}
}
