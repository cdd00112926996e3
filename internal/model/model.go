// Package model defines domain entities used by services and repositories.
package model

import (
	"slices"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is a member of the closed role set.
type Role string

// Known roles. Administrator is the only administrative role; the rest are business roles.
const (
	RoleAdministrator Role = "ADMINISTRATOR"
	RoleUser          Role = "USER"
	RoleAccountant    Role = "ACCOUNTANT"
	RoleAuditor       Role = "AUDITOR"
)

// AllRoles lists every role in declaration order.
var AllRoles = []Role{RoleAdministrator, RoleUser, RoleAccountant, RoleAuditor}

// ParseRole accepts "ACCOUNTANT", "accountant" or "ROLE_ACCOUNTANT".
func ParseRole(s string) (Role, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "ROLE_")
	r := Role(s)
	if slices.Contains(AllRoles, r) {
		return r, true
	}
	return "", false
}

// Account is a registered identity. Email is the lower-cased unique key.
type Account struct {
	ID             uuid.UUID
	Email          string
	Name           string
	Lastname       string
	PwdHash        string // opaque verifier output
	Roles          []Role // never empty once persisted
	Locked         bool
	FailedAttempts int // advisory; the attempt tracker is authoritative
	CreatedAt      time.Time
}

// HasRole reports whether the account holds r.
func (a *Account) HasRole(r Role) bool { return slices.Contains(a.Roles, r) }

// IsAdministrator reports whether the account holds the administrative role.
func (a *Account) IsAdministrator() bool { return a.HasRole(RoleAdministrator) }

// Principal is a verified identity attached to a request.
type Principal struct {
	AccountID uuid.UUID
	Email     string
	Roles     []Role
}

// HasAnyRole reports whether the principal holds at least one of roles.
func (p Principal) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if slices.Contains(p.Roles, r) {
			return true
		}
	}
	return false
}

// Tokens collects an issued access token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// Action names a security event kind.
type Action string

// Audited actions.
const (
	ActionCreateUser     Action = "CREATE_USER"
	ActionChangePassword Action = "CHANGE_PASSWORD"
	ActionAccessDenied   Action = "ACCESS_DENIED"
	ActionLoginFailed    Action = "LOGIN_FAILED"
	ActionGrantRole      Action = "GRANT_ROLE"
	ActionRemoveRole     Action = "REMOVE_ROLE"
	ActionLockUser       Action = "LOCK_USER"
	ActionUnlockUser     Action = "UNLOCK_USER"
	ActionDeleteUser     Action = "DELETE_USER"
	ActionBruteForce     Action = "BRUTE_FORCE"
)

// SecurityEvent is an append-only audit record. It outlives the accounts it mentions.
type SecurityEvent struct {
	ID      int64
	Date    time.Time
	Action  Action
	Subject string
	Object  string
	Path    string
}

// Payment is a salary record for one employee and one period ("MM-YYYY").
type Payment struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Employee  string
	Period    string
	Salary    int64 // cents
}
