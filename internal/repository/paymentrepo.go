package repository

import (
	"context"

	"github.com/and161185/acme-accounts/internal/model"
	"github.com/gofrs/uuid/v5"
)

// PaymentRepository stores salary records.
type PaymentRepository interface {
	// InsertBatch inserts all payments atomically; errs.ErrDuplicatePeriod on conflict.
	InsertBatch(ctx context.Context, ps []model.Payment) error
	// Upsert inserts or replaces the salary for (account, period).
	Upsert(ctx context.Context, p model.Payment) error
	// ListByAccount returns an account's payments, newest period first.
	// An empty period means all periods.
	ListByAccount(ctx context.Context, accountID uuid.UUID, period string) ([]model.Payment, error)
}
