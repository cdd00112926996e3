// Package password holds the acceptance rules applied to new passwords.
package password

import (
	"github.com/and161185/acme-accounts/internal/errs"
)

// MinLength is the shortest accepted password.
const MinLength = 12

// BreachedSet reports whether a plaintext appears in a known-breached list.
type BreachedSet interface {
	Contains(plaintext string) bool
}

// StaticSet is a fixed in-memory BreachedSet.
type StaticSet map[string]struct{}

// NewStaticSet builds a set from the given plaintexts.
func NewStaticSet(values ...string) StaticSet {
	s := make(StaticSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// Contains implements BreachedSet.
func (s StaticSet) Contains(plaintext string) bool {
	_, ok := s[plaintext]
	return ok
}

// DefaultBreached returns the built-in breached list.
func DefaultBreached() StaticSet {
	return NewStaticSet(
		"PasswordForJanuary", "PasswordForFebruary", "PasswordForMarch",
		"PasswordForApril", "PasswordForMay", "PasswordForJune",
		"PasswordForJuly", "PasswordForAugust", "PasswordForSeptember",
		"PasswordForOctober", "PasswordForNovember", "PasswordForDecember",
	)
}

// Policy validates candidate passwords.
type Policy struct {
	breached BreachedSet
}

// NewPolicy constructs a policy; a nil set uses DefaultBreached.
func NewPolicy(breached BreachedSet) *Policy {
	if breached == nil {
		breached = DefaultBreached()
	}
	return &Policy{breached: breached}
}

// Check applies length then breach rules.
func (p *Policy) Check(plaintext string) error {
	if len(plaintext) < MinLength {
		return errs.ErrPasswordTooShort
	}
	if p.breached.Contains(plaintext) {
		return errs.ErrBreachedPassword
	}
	return nil
}
