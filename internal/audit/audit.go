// Package audit records security events for sensitive actions.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/acme-accounts/internal/model"
	"github.com/and161185/acme-accounts/internal/repository"
)

// Recorder appends security events.
type Recorder interface {
	Record(ctx context.Context, action model.Action, subject, object, path string) error
}

// Log is a Recorder over an EventRepository.
type Log struct {
	events repository.EventRepository
	now    func() time.Time
	log    *zap.Logger
}

var _ Recorder = (*Log)(nil)

// NewLog constructs a Log; a nil logger disables logging.
func NewLog(events repository.EventRepository, log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{events: events, now: time.Now, log: log}
}

// Record appends one event dated now (UTC).
func (l *Log) Record(ctx context.Context, action model.Action, subject, object, path string) error {
	e := &model.SecurityEvent{
		Date:    l.now().UTC(),
		Action:  action,
		Subject: subject,
		Object:  object,
		Path:    path,
	}
	if err := l.events.Append(ctx, e); err != nil {
		l.log.Error("audit append",
			zap.String("action", string(action)),
			zap.String("subject", subject),
			zap.Error(err),
		)
		return err
	}
	l.log.Info("security event",
		zap.Int64("id", e.ID),
		zap.String("action", string(action)),
		zap.String("subject", subject),
		zap.String("object", object),
		zap.String("path", path),
	)
	return nil
}

// List returns events in append order.
func (l *Log) List(ctx context.Context) ([]model.SecurityEvent, error) {
	return l.events.List(ctx)
}
