package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// AuditLog represents a record stored in audit_logs.
type AuditLog struct {
	ActorID  string
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// AuditLogger writes records into audit_logs. It accepts a pool or a pgx.Tx.
type AuditLogger struct {
	db  Execer
	now func() time.Time
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(db Execer) *AuditLogger {
	return &AuditLogger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Record persists the log entry. An empty actor falls back to the context
// actor and a zero timestamp to the current time.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit logger not initialised")
	}
	log, err := l.normalize(ctx, log)
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(log.Meta)
	if err != nil {
		return fmt.Errorf("audit meta: %w", err)
	}
	_, err = l.db.Exec(ctx,
		`INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		log.ActorID, log.Action, log.Entity, log.EntityID, metaJSON, log.At)
	return err
}

func (l *AuditLogger) normalize(ctx context.Context, log AuditLog) (AuditLog, error) {
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return AuditLog{}, fmt.Errorf("audit log requires action/entity/entity_id: %w", ErrValidation)
	}
	if log.ActorID == "" {
		log.ActorID = ActorFromContext(ctx)
	}
	if log.At.IsZero() {
		log.At = l.now()
	}
	if log.Meta == nil {
		log.Meta = map[string]any{}
	}
	return log, nil
}
