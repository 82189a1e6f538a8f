package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/editorial-workflow/internal/application/port"
	"github.com/garyjia/editorial-workflow/internal/domain/entity"
	"github.com/garyjia/editorial-workflow/internal/domain/workflow"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/persistence/sqlite"
)

const instanceColumns = `
	id, content_id, content_type, workflow_definition_id, current_state_id,
	status, created_by, created, last_modified, version
`

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	db      *sql.DB
	history *historyStore
	logger  *zap.Logger
}

// NewInstanceRepository creates a new instance repository
func NewInstanceRepository(db *sql.DB, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{
		db:      db,
		history: &historyStore{db: db, logger: logger},
		logger:  logger,
	}
}

// Create creates a new workflow instance with its history
func (r *InstanceRepository) Create(ctx context.Context, inst *entity.WorkflowInstance) error {
	query := `INSERT INTO workflow_instances (` + instanceColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		inst.ID,
		inst.ContentID,
		inst.ContentType,
		inst.WorkflowDefinitionID,
		inst.CurrentStateID,
		inst.Status,
		inst.CreatedBy,
		inst.Created,
		inst.LastModified,
		inst.Version,
	)
	if err != nil {
		r.logger.Error("Failed to create instance", zap.String("content_id", inst.ContentID), zap.Error(err))
		return fmt.Errorf("failed to create instance: %w", err)
	}

	return r.history.append(ctx, inst.ID, inst.History)
}

// GetByID retrieves a workflow instance by ID
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// GetLatestByContentID retrieves the most recently created instance of a content item
func (r *InstanceRepository) GetLatestByContentID(ctx context.Context, contentID string) (*entity.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM workflow_instances
		WHERE content_id = ?
		ORDER BY created DESC, rowid DESC
		LIMIT 1`
	return r.getOne(ctx, query, contentID)
}

// Update writes the instance if the stored version matches and appends history
func (r *InstanceRepository) Update(ctx context.Context, inst *entity.WorkflowInstance, expectedVersion int64, appended []entity.HistoryEntry) error {
	query := `
		UPDATE workflow_instances
		SET current_state_id = ?, status = ?, last_modified = ?, version = version + 1
		WHERE id = ? AND version = ?
	`

	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		inst.CurrentStateID,
		inst.Status,
		inst.LastModified,
		inst.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update instance", zap.String("id", inst.ID), zap.Error(err))
		return fmt.Errorf("failed to update instance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: instance %s is no longer at version %d", workflow.ErrConcurrentModification, inst.ID, expectedVersion)
	}

	if err := r.history.append(ctx, inst.ID, appended); err != nil {
		return err
	}

	inst.Version = expectedVersion + 1
	return nil
}

// CountByDefinitionID counts the instances pinned to a definition
func (r *InstanceRepository) CountByDefinitionID(ctx context.Context, definitionID string) (int, error) {
	var n int
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM workflow_instances WHERE workflow_definition_id = ?", definitionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}
	return n, nil
}

func (r *InstanceRepository) getOne(ctx context.Context, query string, arg string) (*entity.WorkflowInstance, error) {
	var inst entity.WorkflowInstance
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, arg).Scan(
		&inst.ID,
		&inst.ContentID,
		&inst.ContentType,
		&inst.WorkflowDefinitionID,
		&inst.CurrentStateID,
		&inst.Status,
		&inst.CreatedBy,
		&inst.Created,
		&inst.LastModified,
		&inst.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: instance %s", workflow.ErrNotFound, arg)
	}
	if err != nil {
		r.logger.Error("Failed to get instance", zap.String("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	history, err := r.history.list(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	inst.History = history

	return &inst, nil
}

// Verify interface compliance
var _ port.InstanceRepository = (*InstanceRepository)(nil)
