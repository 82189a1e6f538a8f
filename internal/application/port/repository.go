package port

import (
	"context"
	"time"

	"github.com/garyjia/editorial-workflow/internal/domain/entity"
)

// Repositories return workflow.ErrNotFound for missing records.

// DefinitionRepository defines persistence operations for WorkflowDefinition.
// States and transition rules are stored and loaded together with their definition.
type DefinitionRepository interface {
	Create(ctx context.Context, def *entity.WorkflowDefinition) error
	GetByID(ctx context.Context, id string) (*entity.WorkflowDefinition, error)
	GetLatestByName(ctx context.Context, name string) (*entity.WorkflowDefinition, error)
	List(ctx context.Context, activeOnly bool) ([]*entity.WorkflowDefinition, error)
	Update(ctx context.Context, def *entity.WorkflowDefinition) error
	Delete(ctx context.Context, id string) error
}

// InstanceRepository defines persistence operations for WorkflowInstance and its history
type InstanceRepository interface {
	// Create stores the instance together with its initial history
	Create(ctx context.Context, inst *entity.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*entity.WorkflowInstance, error)
	GetLatestByContentID(ctx context.Context, contentID string) (*entity.WorkflowInstance, error)
	// Update writes the instance only if its stored version still equals expectedVersion,
	// appends the given history entries and sets inst.Version to the new version.
	// A version mismatch returns workflow.ErrConcurrentModification.
	Update(ctx context.Context, inst *entity.WorkflowInstance, expectedVersion int64, appended []entity.HistoryEntry) error
	CountByDefinitionID(ctx context.Context, definitionID string) (int, error)
}

// BindingRepository defines persistence operations for WorkflowContentExtension
type BindingRepository interface {
	Get(ctx context.Context, contentID string) (*entity.WorkflowContentExtension, error)
	Upsert(ctx context.Context, binding *entity.WorkflowContentExtension) error
	Delete(ctx context.Context, contentID string) error
}

// AuditRepository defines persistence operations for StateChangeRecord
type AuditRepository interface {
	// Create stores the record unless one already exists for its event id.
	// It reports whether a new record was written.
	Create(ctx context.Context, rec *entity.StateChangeRecord) (bool, error)
	// ListByContentID returns records newest first; limit <= 0 means no limit
	ListByContentID(ctx context.Context, contentID string, limit int) ([]*entity.StateChangeRecord, error)
	Summary(ctx context.Context, contentID string) (*entity.AuditSummary, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationRepository defines persistence operations for StateChangedNotification
type NotificationRepository interface {
	// Create stores the notification unless one already exists for its event id
	Create(ctx context.Context, n *entity.StateChangedNotification) (bool, error)
	// List returns notifications newest first
	List(ctx context.Context, limit, offset int) ([]*entity.StateChangedNotification, error)
	ListByContentID(ctx context.Context, contentID string) ([]*entity.StateChangedNotification, error)
	TransitionFrequency(ctx context.Context) ([]entity.TransitionFrequency, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
