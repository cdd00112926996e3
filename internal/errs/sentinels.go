// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed input; callers wrap it with detail.
	ErrValidation = errors.New("validation")
)

// Authentication outcomes.
var (
	// ErrAccountLocked is returned when the account is locked or its identity is blocked
	// by the attempt tracker. Credentials are not checked in that case.
	ErrAccountLocked = errors.New("account locked")

	// ErrInvalidCredential hides whether the identity exists or the password was wrong.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrAccessDenied indicates the principal lacks a role required by the route.
	ErrAccessDenied = errors.New("access denied")
)

// Signup and password policy.
var (
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	ErrInvalidEmail           = errors.New("invalid email domain")
	ErrBreachedPassword       = errors.New("breached password")
	ErrPasswordTooShort       = errors.New("password too short")
	ErrPasswordUnchanged      = errors.New("password unchanged")
)

// Administrative operations.
var (
	ErrAccountNotFound           = errors.New("account not found")
	ErrRoleNotFound              = errors.New("role not found")
	ErrInvalidOperation          = errors.New("invalid operation")
	ErrInvalidRoleCombination    = errors.New("administrative and business roles cannot be combined")
	ErrCannotRemoveAdministrator = errors.New("administrator role cannot be removed")
	ErrRoleNotPresent            = errors.New("role not held")
	ErrLastRole                  = errors.New("last role cannot be removed")
	ErrCannotLockAdministrator   = errors.New("administrator cannot be locked")
	ErrCannotDeleteAdministrator = errors.New("administrator cannot be deleted")
)

// Payroll.
var (
	// ErrInvalidPayment indicates a malformed period or a negative salary.
	ErrInvalidPayment = errors.New("invalid payment")

	// ErrUnknownEmployee indicates a payment references an unregistered email.
	ErrUnknownEmployee = errors.New("unknown employee")

	// ErrDuplicatePeriod indicates two payments for one employee and period.
	ErrDuplicatePeriod = errors.New("duplicate period")
)
