// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/acme-accounts/internal/model"
)

// AccountRepository persists accounts keyed by lower-cased email.
type AccountRepository interface {
	// Create inserts a new account; errs.ErrAlreadyExists on a taken email.
	Create(ctx context.Context, a *model.Account) error
	// GetByEmail loads an account; errs.ErrNotFound when absent.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// Update persists roles, lock flag, password hash and failed attempts.
	Update(ctx context.Context, a *model.Account) error
	// SetLocked writes only the lock flag and failed-attempt count, leaving
	// roles and password untouched; errs.ErrNotFound when absent.
	SetLocked(ctx context.Context, email string, locked bool, attempts int) error
	// Delete removes the account and its payments.
	Delete(ctx context.Context, email string) error
	// Count returns the number of stored accounts.
	Count(ctx context.Context) (int, error)
	// List returns all accounts in creation order.
	List(ctx context.Context) ([]model.Account, error)
}
