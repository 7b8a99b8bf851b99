package auth

// Predicate is a boolean check over an authorization context. Predicates
// compose with AnyOf/AllOf; combining two guards is the logical AND of
// their predicates, in any order.
type Predicate func(AuthContext) bool

// HasRole matches contexts carrying the role key.
func HasRole(key string) Predicate {
	return func(c AuthContext) bool { return c.HasRole(key) }
}

// HasPermission matches contexts carrying the permission key.
func HasPermission(key string) Predicate {
	return func(c AuthContext) bool { return c.HasPermission(key) }
}

// AnyOf matches when at least one predicate matches.
func AnyOf(preds ...Predicate) Predicate {
	return func(c AuthContext) bool {
		for _, p := range preds {
			if p(c) {
				return true
			}
		}
		return false
	}
}

// AllOf matches when every predicate matches.
func AllOf(preds ...Predicate) Predicate {
	return func(c AuthContext) bool {
		for _, p := range preds {
			if !p(c) {
				return false
			}
		}
		return true
	}
}

// Well-known route-group predicates. Admin qualifies for teacher and editor
// surfaces as well.
var (
	IsAdmin   = AnyOf(HasRole(RoleAdmin), HasPermission(PermRolesAssign))
	IsTeacher = AnyOf(HasRole(RoleTeacher), HasRole(RoleAdmin))
	IsEditor  = AnyOf(HasRole(RoleEditor), HasRole(RoleAdmin))
)
