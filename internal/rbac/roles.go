// Package rbac contains role-transition rules and the route access policy.
package rbac

import "github.com/and161185/acme-accounts/internal/model"

// IsAdministratorRole reports whether r belongs to the administrative group.
func IsAdministratorRole(r model.Role) bool { return r == model.RoleAdministrator }

// CanGrant reports whether role may be added to a without mixing administrative
// and business roles.
func CanGrant(a *model.Account, role model.Role) bool {
	onlyAdmin, anyAdmin := true, false
	for _, r := range a.Roles {
		if IsAdministratorRole(r) {
			anyAdmin = true
		} else {
			onlyAdmin = false
		}
	}
	if IsAdministratorRole(role) {
		return onlyAdmin
	}
	return !anyAdmin
}
