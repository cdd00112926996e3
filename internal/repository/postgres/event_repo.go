package postgres

import (
	"context"

	"github.com/and161185/acme-accounts/internal/model"
)

// EventRepo implements EventRepository using PostgreSQL.
type EventRepo struct{ db *DB }

// NewEventRepo constructs a security event repository.
func NewEventRepo(db *DB) *EventRepo { return &EventRepo{db: db} }

// Append inserts an event and stores the generated ID in e.
func (r *EventRepo) Append(ctx context.Context, e *model.SecurityEvent) error {
	const q = `
INSERT INTO security_events (date, action, subject, object, path)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	return r.db.Pool.QueryRow(ctx, q, e.Date, string(e.Action), e.Subject, e.Object, e.Path).Scan(&e.ID)
}

// List returns every event in append order.
func (r *EventRepo) List(ctx context.Context) ([]model.SecurityEvent, error) {
	const q = `
SELECT id, date, action, subject, object, path
FROM security_events
ORDER BY id ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SecurityEvent
	for rows.Next() {
		var (
			e      model.SecurityEvent
			action string
		)
		if err = rows.Scan(&e.ID, &e.Date, &action, &e.Subject, &e.Object, &e.Path); err != nil {
			return nil, err
		}
		e.Action = model.Action(action)
		out = append(out, e)
	}
	return out, rows.Err()
}
