package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/editorial-workflow/internal/application/port"
	"github.com/garyjia/editorial-workflow/internal/domain/entity"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/persistence/sqlite"
)

const auditColumns = `
	id, event_id, workflow_instance_id, content_id, content_type, from_state, to_state,
	user_id, username, timestamp, comments, transition_rule_id, is_automatic_transition,
	metadata, success, error_message, recorded_at
`

// AuditRepository implements port.AuditRepository
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit record repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a record unless its event was already recorded
func (r *AuditRepository) Create(ctx context.Context, rec *entity.StateChangeRecord) (bool, error) {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to encode metadata: %w", err)
	}
	if rec.Metadata == nil {
		metadata = []byte("{}")
	}

	query := `INSERT INTO state_change_records (` + auditColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		rec.ID,
		rec.EventID,
		rec.WorkflowInstanceID,
		rec.ContentID,
		rec.ContentType,
		rec.FromState,
		rec.ToState,
		rec.UserID,
		rec.Username,
		rec.Timestamp,
		rec.Comments,
		rec.TransitionRuleID,
		rec.IsAutomaticTransition,
		string(metadata),
		rec.Success,
		rec.ErrorMessage,
		rec.RecordedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create audit record", zap.String("event_id", rec.EventID), zap.Error(err))
		return false, fmt.Errorf("failed to create audit record: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListByContentID retrieves a content item's records, newest first
func (r *AuditRepository) ListByContentID(ctx context.Context, contentID string, limit int) ([]*entity.StateChangeRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + auditColumns + `
		FROM state_change_records
		WHERE content_id = ?
		ORDER BY timestamp DESC, recorded_at DESC, rowid DESC
		LIMIT ?`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, contentID, limit)
	if err != nil {
		r.logger.Error("Failed to list audit records", zap.String("content_id", contentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	records := []*entity.StateChangeRecord{}
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Summary counts a content item's records and returns the latest one
func (r *AuditRepository) Summary(ctx context.Context, contentID string) (*entity.AuditSummary, error) {
	summary := &entity.AuditSummary{ContentID: contentID}

	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(success), 0)
		FROM state_change_records
		WHERE content_id = ?`, contentID,
	).Scan(&summary.TotalCount, &summary.SuccessCount)
	if err != nil {
		r.logger.Error("Failed to summarize audit records", zap.String("content_id", contentID), zap.Error(err))
		return nil, fmt.Errorf("failed to summarize audit records: %w", err)
	}
	summary.FailureCount = summary.TotalCount - summary.SuccessCount

	if summary.TotalCount > 0 {
		latest, err := r.ListByContentID(ctx, contentID, 1)
		if err != nil {
			return nil, err
		}
		if len(latest) > 0 {
			summary.LastChange = latest[0]
		}
	}

	return summary, nil
}

// DeleteOlderThan removes records stored before the cutoff
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		"DELETE FROM state_change_records WHERE recorded_at < ?", cutoff.UTC())
	if err != nil {
		r.logger.Error("Failed to delete audit records", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0, fmt.Errorf("failed to delete audit records: %w", err)
	}
	return result.RowsAffected()
}

func scanAuditRecord(row scanner) (*entity.StateChangeRecord, error) {
	var rec entity.StateChangeRecord
	var metadata string
	err := row.Scan(
		&rec.ID,
		&rec.EventID,
		&rec.WorkflowInstanceID,
		&rec.ContentID,
		&rec.ContentType,
		&rec.FromState,
		&rec.ToState,
		&rec.UserID,
		&rec.Username,
		&rec.Timestamp,
		&rec.Comments,
		&rec.TransitionRuleID,
		&rec.IsAutomaticTransition,
		&metadata,
		&rec.Success,
		&rec.ErrorMessage,
		&rec.RecordedAt,
	)
	if err != nil {
		return nil, err
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return &rec, nil
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
