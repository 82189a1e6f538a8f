package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/editorial-workflow/internal/domain/entity"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/persistence/sqlite"
)

// historyStore reads and appends workflow_history rows for InstanceRepository.
// Entries are ordered by a per-instance sequence number.
type historyStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// append writes entries after the instance's current last sequence number
func (h *historyStore) append(ctx context.Context, instanceID string, entries []entity.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	exec := sqlite.Conn(ctx, h.db)

	var last int64
	if err := exec.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM workflow_history WHERE instance_id = ?", instanceID,
	).Scan(&last); err != nil {
		return fmt.Errorf("failed to read history sequence: %w", err)
	}

	query := `
		INSERT INTO workflow_history (
			id, instance_id, seq, kind, from_state_id, to_state_id, transition_rule_id,
			performed_by, performed_by_name, timestamp, comment, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i, e := range entries {
		_, err := exec.ExecContext(ctx, query,
			e.ID,
			instanceID,
			last+int64(i)+1,
			e.Kind,
			e.FromStateID,
			e.ToStateID,
			e.TransitionRuleID,
			e.PerformedBy,
			e.PerformedByName,
			e.Timestamp,
			e.Comment,
			e.Success,
			e.ErrorMessage,
		)
		if err != nil {
			h.logger.Error("Failed to append history entry", zap.String("instance_id", instanceID), zap.Error(err))
			return fmt.Errorf("failed to append history: %w", err)
		}
	}

	return nil
}

// list returns an instance's history in order
func (h *historyStore) list(ctx context.Context, instanceID string) ([]entity.HistoryEntry, error) {
	query := `
		SELECT id, instance_id, kind, from_state_id, to_state_id, transition_rule_id,
			performed_by, performed_by_name, timestamp, comment, success, error_message
		FROM workflow_history
		WHERE instance_id = ?
		ORDER BY seq ASC
	`

	rows, err := sqlite.Conn(ctx, h.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		h.logger.Error("Failed to get history", zap.String("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	entries := []entity.HistoryEntry{}
	for rows.Next() {
		var e entity.HistoryEntry
		err := rows.Scan(
			&e.ID,
			&e.InstanceID,
			&e.Kind,
			&e.FromStateID,
			&e.ToStateID,
			&e.TransitionRuleID,
			&e.PerformedBy,
			&e.PerformedByName,
			&e.Timestamp,
			&e.Comment,
			&e.Success,
			&e.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
