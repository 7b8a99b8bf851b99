package auth

// Builtin role keys. Roles themselves are reference data seeded by
// migrations; these constants only name the well-known keys.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleEditor  = "editor"
)

// Builtin permission keys.
const (
	PermRolesAssign   = "roles.assign"
	PermUsersManage   = "users.manage"
	PermContentEdit   = "content.edit"
	PermCatalogManage = "catalog.manage"
)

var BuiltinPermissions = []Permission{
	{Key: PermRolesAssign},
	{Key: PermUsersManage},
	{Key: PermContentEdit},
	{Key: PermCatalogManage},
}
