// repository/feedback.go - Candidate feedback counters
package repository

import (
	"database/sql"
	"fmt"
	"time"

	"kicomport/internal/database"
	"kicomport/pkg/logger"
)

// FeedbackRepository tracks, per content hash, how often a candidate was
// selected and successfully applied. The counter feeds the feedback score.
type FeedbackRepository interface {
	AppliedCount(contentHash string) (int, error)
	RecordApplied(contentHash string) error
}

type feedbackRepository struct {
	db     database.DatabaseManager
	logger logger.Logger
}

// NewFeedbackRepository creates the feedback repository
func NewFeedbackRepository(db database.DatabaseManager, logger logger.Logger) FeedbackRepository {
	return &feedbackRepository{db: db, logger: logger}
}

func (r *feedbackRepository) AppliedCount(contentHash string) (int, error) {
	var count int
	err := r.db.GetDB().QueryRow(
		"SELECT applied_count FROM candidate_feedback WHERE content_hash = ?", contentHash,
	).Scan(&count)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to query feedback count: %w", err)
	}
	return count, nil
}

func (r *feedbackRepository) RecordApplied(contentHash string) error {
	_, err := r.db.GetDB().Exec(`
		INSERT INTO candidate_feedback (content_hash, applied_count, updated_at)
		VALUES (?, 1, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			applied_count = applied_count + 1,
			updated_at = excluded.updated_at
	`, contentHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}
	return nil
}
