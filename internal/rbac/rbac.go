// Package rbac models role-based access control: permissions are granted to
// roles, roles are granted to users. Mutation of these relations happens at
// the storage layer; this package only works with resolved, in-memory sets.
package rbac

// Permission names one grantable capability, e.g. "roles:read".
type Permission struct {
	ID          string
	Name        string
	Description string
}

// Role is a named bundle of permissions.
type Role struct {
	ID          string
	Name        string
	Permissions []Permission
}

// PermissionSet is the flattened set of permission names a user holds through
// their roles. Lookups are O(1), so it can be resolved once per request and
// checked repeatedly.
type PermissionSet map[string]struct{}

// NewPermissionSet flattens roles into a PermissionSet.
func NewPermissionSet(roles []Role) PermissionSet {
	set := make(PermissionSet)
	for _, role := range roles {
		for _, permission := range role.Permissions {
			set[permission.Name] = struct{}{}
		}
	}
	return set
}

// PermissionSetOf builds a set directly from permission names.
func PermissionSetOf(names []string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// Has reports whether the set grants the named permission.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}
