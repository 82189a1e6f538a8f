package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/editorial-workflow/internal/application/port"
	"github.com/garyjia/editorial-workflow/internal/domain/entity"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/persistence/sqlite"
)

const notificationColumns = `
	id, event_id, workflow_instance_id, content_id, content_type, from_state, to_state,
	user_id, username, title, message, success, timestamp, created_at
`

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a notification unless its event was already recorded
func (r *NotificationRepository) Create(ctx context.Context, n *entity.StateChangedNotification) (bool, error) {
	query := `INSERT INTO state_changed_notifications (` + notificationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		n.ID,
		n.EventID,
		n.WorkflowInstanceID,
		n.ContentID,
		n.ContentType,
		n.FromState,
		n.ToState,
		n.UserID,
		n.Username,
		n.Title,
		n.Message,
		n.Success,
		n.Timestamp,
		n.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification", zap.String("event_id", n.EventID), zap.Error(err))
		return false, fmt.Errorf("failed to create notification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// List retrieves notifications newest first
func (r *NotificationRepository) List(ctx context.Context, limit, offset int) ([]*entity.StateChangedNotification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM state_changed_notifications
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ? OFFSET ?`
	return r.query(ctx, query, limit, offset)
}

// ListByContentID retrieves a content item's notifications newest first
func (r *NotificationRepository) ListByContentID(ctx context.Context, contentID string) ([]*entity.StateChangedNotification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM state_changed_notifications
		WHERE content_id = ?
		ORDER BY timestamp DESC, rowid DESC`
	return r.query(ctx, query, contentID)
}

// TransitionFrequency counts successful moves between two different states
func (r *NotificationRepository) TransitionFrequency(ctx context.Context) ([]entity.TransitionFrequency, error) {
	query := `
		SELECT from_state, to_state, COUNT(*) AS cnt
		FROM state_changed_notifications
		WHERE success = 1 AND from_state != '' AND from_state != to_state
		GROUP BY from_state, to_state
		ORDER BY cnt DESC, from_state ASC, to_state ASC
	`

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to count transitions", zap.Error(err))
		return nil, fmt.Errorf("failed to count transitions: %w", err)
	}
	defer rows.Close()

	freq := []entity.TransitionFrequency{}
	for rows.Next() {
		var f entity.TransitionFrequency
		if err := rows.Scan(&f.FromState, &f.ToState, &f.Count); err != nil {
			return nil, fmt.Errorf("failed to scan transition frequency: %w", err)
		}
		freq = append(freq, f)
	}

	return freq, rows.Err()
}

// DeleteOlderThan removes notifications created before the cutoff
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		"DELETE FROM state_changed_notifications WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		r.logger.Error("Failed to delete notifications", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0, fmt.Errorf("failed to delete notifications: %w", err)
	}
	return result.RowsAffected()
}

func (r *NotificationRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.StateChangedNotification, error) {
	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	items := []*entity.StateChangedNotification{}
	for rows.Next() {
		var n entity.StateChangedNotification
		err := rows.Scan(
			&n.ID,
			&n.EventID,
			&n.WorkflowInstanceID,
			&n.ContentID,
			&n.ContentType,
			&n.FromState,
			&n.ToState,
			&n.UserID,
			&n.Username,
			&n.Title,
			&n.Message,
			&n.Success,
			&n.Timestamp,
			&n.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		items = append(items, &n)
	}

	return items, rows.Err()
}

// Verify interface compliance
var _ port.NotificationRepository = (*NotificationRepository)(nil)
