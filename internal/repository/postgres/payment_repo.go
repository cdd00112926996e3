package postgres

import (
	"context"
	"fmt"

	"github.com/and161185/acme-accounts/internal/errs"
	"github.com/and161185/acme-accounts/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// PaymentRepo implements PaymentRepository using PostgreSQL.
type PaymentRepo struct{ db *DB }

// NewPaymentRepo constructs a payment repository.
func NewPaymentRepo(db *DB) *PaymentRepo { return &PaymentRepo{db: db} }

// InsertBatch inserts payments in a single transaction.
func (r *PaymentRepo) InsertBatch(ctx context.Context, ps []model.Payment) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const ins = `INSERT INTO payments (id, account_id, period, salary) VALUES ($1,$2,$3,$4)`
	for i, p := range ps {
		if _, err = tx.Exec(ctx, ins, p.ID, p.AccountID, p.Period, p.Salary); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("payment[%d] %s %s: %w", i, p.Employee, p.Period, errs.ErrDuplicatePeriod)
			}
			return err
		}
	}
	return nil
}

// Upsert sets the salary for (account, period), inserting if absent.
func (r *PaymentRepo) Upsert(ctx context.Context, p model.Payment) error {
	const q = `
INSERT INTO payments (id, account_id, period, salary)
VALUES ($1, $2, $3, $4)
ON CONFLICT (account_id, period) DO UPDATE SET salary = EXCLUDED.salary`
	_, err := r.db.Pool.Exec(ctx, q, p.ID, p.AccountID, p.Period, p.Salary)
	return err
}

// ListByAccount returns payments newest period first; period=="" lists all.
func (r *PaymentRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, period string) ([]model.Payment, error) {
	const q = `
SELECT p.id, p.account_id, a.email, p.period, p.salary
FROM payments p JOIN accounts a ON a.id = p.account_id
WHERE p.account_id=$1 AND ($2 = '' OR p.period = $2)
ORDER BY to_date(p.period, 'MM-YYYY') DESC`
	rows, err := r.db.Pool.Query(ctx, q, accountID, period)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Payment
	for rows.Next() {
		var p model.Payment
		if err = rows.Scan(&p.ID, &p.AccountID, &p.Employee, &p.Period, &p.Salary); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
