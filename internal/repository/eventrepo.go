package repository

import (
	"context"

	"github.com/and161185/acme-accounts/internal/model"
)

// EventRepository is append-only storage for security events.
type EventRepository interface {
	// Append stores e and fills its ID.
	Append(ctx context.Context, e *model.SecurityEvent) error
	// List returns events in append order.
	List(ctx context.Context) ([]model.SecurityEvent, error)
}
