package postgres

import (
	"context"
	"errors"

	"github.com/and161185/acme-accounts/internal/errs"
	"github.com/and161185/acme-accounts/internal/model"
	"github.com/jackc/pgx/v5"
)

// AccountRepo implements AccountRepository using PostgreSQL.
type AccountRepo struct{ db *DB }

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB) *AccountRepo { return &AccountRepo{db: db} }

// Create inserts a new account row.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	const q = `
INSERT INTO accounts (id, email, name, lastname, pwd_hash, roles, locked, failed_attempts)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Pool.Exec(ctx, q, a.ID, a.Email, a.Name, a.Lastname, a.PwdHash, roleStrings(a.Roles), a.Locked, a.FailedAttempts)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByEmail selects an account by its lower-cased email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	const q = `
SELECT id, email, name, lastname, pwd_hash, roles, locked, failed_attempts, created_at
FROM accounts WHERE email=$1`
	a, err := scanAccount(r.db.Pool.QueryRow(ctx, q, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return a, nil
}

// Update persists the mutable columns of an account.
func (r *AccountRepo) Update(ctx context.Context, a *model.Account) error {
	const q = `
UPDATE accounts
SET name=$2, lastname=$3, pwd_hash=$4, roles=$5, locked=$6, failed_attempts=$7
WHERE email=$1`
	tag, err := r.db.Pool.Exec(ctx, q, a.Email, a.Name, a.Lastname, a.PwdHash, roleStrings(a.Roles), a.Locked, a.FailedAttempts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// SetLocked updates the lock columns only, so concurrent role or password
// changes are not overwritten.
func (r *AccountRepo) SetLocked(ctx context.Context, email string, locked bool, attempts int) error {
	const q = `UPDATE accounts SET locked=$2, failed_attempts=$3 WHERE email=$1`
	tag, err := r.db.Pool.Exec(ctx, q, email, locked, attempts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes an account; payments go with it via ON DELETE CASCADE.
func (r *AccountRepo) Delete(ctx context.Context, email string) error {
	const q = `DELETE FROM accounts WHERE email=$1`
	tag, err := r.db.Pool.Exec(ctx, q, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Count returns the number of accounts.
func (r *AccountRepo) Count(ctx context.Context) (int, error) {
	const q = `SELECT count(*) FROM accounts`
	var n int
	if err := r.db.Pool.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// List returns all accounts ordered by creation.
func (r *AccountRepo) List(ctx context.Context) ([]model.Account, error) {
	const q = `
SELECT id, email, name, lastname, pwd_hash, roles, locked, failed_attempts, created_at
FROM accounts
ORDER BY created_at ASC, email ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a     model.Account
		roles []string
	)
	if err := row.Scan(&a.ID, &a.Email, &a.Name, &a.Lastname, &a.PwdHash, &roles, &a.Locked, &a.FailedAttempts, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Roles = make([]model.Role, 0, len(roles))
	for _, s := range roles {
		a.Roles = append(a.Roles, model.Role(s))
	}
	return &a, nil
}

func roleStrings(roles []model.Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}
