package auth

// Builtin permission names guarding the management surface itself.
const (
	PermRolesManage       = "roles:manage"
	PermPermissionsManage = "permissions:manage"
	PermUsersManage       = "users:manage"
)

// BuiltinPermissions are ensured to exist on startup.
var BuiltinPermissions = []Permission{
	{Name: PermRolesManage, Resource: "roles", Action: "manage", Description: "Create, delete and assign roles"},
	{Name: PermPermissionsManage, Resource: "permissions", Action: "manage", Description: "Manage the permission catalog"},
	{Name: PermUsersManage, Resource: "users", Action: "manage", Description: "Manage user accounts"},
}
