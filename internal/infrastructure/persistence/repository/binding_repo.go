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

// BindingRepository implements port.BindingRepository
type BindingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBindingRepository creates a new content binding repository
func NewBindingRepository(db *sql.DB, logger *zap.Logger) *BindingRepository {
	return &BindingRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves the binding of a content item
func (r *BindingRepository) Get(ctx context.Context, contentID string) (*entity.WorkflowContentExtension, error) {
	query := `
		SELECT content_id, current_workflow_instance_id, last_modified
		FROM workflow_content_extensions
		WHERE content_id = ?
	`

	var b entity.WorkflowContentExtension
	err := sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, contentID).Scan(
		&b.ContentID,
		&b.CurrentWorkflowInstanceID,
		&b.LastModified,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: binding for %s", workflow.ErrNotFound, contentID)
	}
	if err != nil {
		r.logger.Error("Failed to get binding", zap.String("content_id", contentID), zap.Error(err))
		return nil, fmt.Errorf("failed to get binding: %w", err)
	}

	return &b, nil
}

// Upsert points a content item at an instance
func (r *BindingRepository) Upsert(ctx context.Context, b *entity.WorkflowContentExtension) error {
	query := `
		INSERT INTO workflow_content_extensions (content_id, current_workflow_instance_id, last_modified)
		VALUES (?, ?, ?)
		ON CONFLICT(content_id) DO UPDATE SET
			current_workflow_instance_id = excluded.current_workflow_instance_id,
			last_modified = excluded.last_modified
	`

	_, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, b.ContentID, b.CurrentWorkflowInstanceID, b.LastModified)
	if err != nil {
		r.logger.Error("Failed to upsert binding", zap.String("content_id", b.ContentID), zap.Error(err))
		return fmt.Errorf("failed to upsert binding: %w", err)
	}
	return nil
}

// Delete removes the binding of a content item
func (r *BindingRepository) Delete(ctx context.Context, contentID string) error {
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx,
		"DELETE FROM workflow_content_extensions WHERE content_id = ?", contentID)
	if err != nil {
		r.logger.Error("Failed to delete binding", zap.String("content_id", contentID), zap.Error(err))
		return fmt.Errorf("failed to delete binding: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: binding for %s", workflow.ErrNotFound, contentID)
	}
	return nil
}

// Verify interface compliance
var _ port.BindingRepository = (*BindingRepository)(nil)
