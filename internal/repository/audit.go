// repository/audit.go - Append-only audit log
package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"kicomport/internal/database"
	"kicomport/internal/model"
	"kicomport/pkg/logger"
)

// AuditRepository appends and reads audit events. Writes are serialized by an
// internal mutex; AUTOINCREMENT ids give each job a monotonic event sequence.
type AuditRepository interface {
	// Append records one action. payload is marshaled to JSON.
	Append(jobID, action, actor string, payload any) (*model.AuditEvent, error)
	// ListByJob returns a job's events ordered by id ascending.
	ListByJob(jobID string, limit int) ([]*model.AuditEvent, error)
	// ListSince returns all events with id greater than sinceID.
	ListSince(sinceID int64, limit int) ([]*model.AuditEvent, error)
}

type auditRepository struct {
	db     database.DatabaseManager
	logger logger.Logger
	mutex  sync.Mutex
}

// NewAuditRepository creates the audit repository
func NewAuditRepository(db database.DatabaseManager, logger logger.Logger) AuditRepository {
	return &auditRepository{db: db, logger: logger}
}

func (r *auditRepository) Append(jobID, action, actor string, payload any) (*model.AuditEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit payload: %w", err)
	}
	if payload == nil {
		data = []byte("{}")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now().UTC()
	result, err := r.db.GetDB().Exec(
		"INSERT INTO audit_events (job_id, action, actor, payload, created_at) VALUES (?, ?, ?, ?, ?)",
		jobID, action, actor, string(data), now,
	)
	if err != nil {
		r.logger.Error("failed to append audit event: %v", err)
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit event id: %w", err)
	}

	return &model.AuditEvent{
		ID:        id,
		JobID:     jobID,
		Action:    action,
		Actor:     actor,
		Payload:   string(data),
		CreatedAt: now,
	}, nil
}

func (r *auditRepository) ListByJob(jobID string, limit int) ([]*model.AuditEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.GetDB().Query(
		"SELECT id, job_id, action, actor, payload, created_at FROM audit_events WHERE job_id = ? ORDER BY id ASC LIMIT ?",
		jobID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (r *auditRepository) ListSince(sinceID int64, limit int) ([]*model.AuditEvent, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.GetDB().Query(
		"SELECT id, job_id, action, actor, payload, created_at FROM audit_events WHERE id > ? ORDER BY id ASC LIMIT ?",
		sinceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*model.AuditEvent, error) {
	var events []*model.AuditEvent
	for rows.Next() {
		var event model.AuditEvent
		if err := rows.Scan(&event.ID, &event.JobID, &event.Action, &event.Actor, &event.Payload, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}
	return events, rows.Err()
}
