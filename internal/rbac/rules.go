package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"user": {
		"quiz:take",
		"quiz:submit",
	},
	"admin": {
		"*", // everything
	},
}
