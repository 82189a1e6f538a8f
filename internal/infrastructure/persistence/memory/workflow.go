package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-memdb"

	"github.com/garyjia/editorial-workflow/internal/application/port"
	"github.com/garyjia/editorial-workflow/internal/domain/entity"
	"github.com/garyjia/editorial-workflow/internal/domain/workflow"
)

// DefinitionRepository implements port.DefinitionRepository
type DefinitionRepository struct {
	store *Store
}

// Create stores a copy of the definition
func (r *DefinitionRepository) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	return r.store.write(ctx, func(txn *memdb.Txn) error {
		existing, err := txn.First(tableDefinitions, "id", def.ID)
		if err != nil {
			return fmt.Errorf("failed to look up definition: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("%w: definition %s already exists", workflow.ErrInvalidDefinition, def.ID)
		}

		it, err := txn.Get(tableDefinitions, "name", def.Name)
		if err != nil {
			return fmt.Errorf("failed to look up definition name: %w", err)
		}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			if obj.(*entity.WorkflowDefinition).Version == def.Version {
				return fmt.Errorf("%w: %s version %d already exists", workflow.ErrInvalidDefinition, def.Name, def.Version)
			}
		}

		return txn.Insert(tableDefinitions, def.Clone())
	})
}

// GetByID returns a copy of the definition
func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*entity.WorkflowDefinition, error) {
	obj, err := r.store.read(ctx).First(tableDefinitions, "id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: definition %s", workflow.ErrNotFound, id)
	}
	return obj.(*entity.WorkflowDefinition).Clone(), nil
}

// GetLatestByName returns the highest version with the name
func (r *DefinitionRepository) GetLatestByName(ctx context.Context, name string) (*entity.WorkflowDefinition, error) {
	it, err := r.store.read(ctx).Get(tableDefinitions, "name", name)
	if err != nil {
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}

	var latest *entity.WorkflowDefinition
	for obj := it.Next(); obj != nil; obj = it.Next() {
		def := obj.(*entity.WorkflowDefinition)
		if latest == nil || def.Version > latest.Version {
			latest = def
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: definition %s", workflow.ErrNotFound, name)
	}
	return latest.Clone(), nil
}

// List returns definitions ordered by name and version
func (r *DefinitionRepository) List(ctx context.Context, activeOnly bool) ([]*entity.WorkflowDefinition, error) {
	it, err := r.store.read(ctx).Get(tableDefinitions, "id_prefix", "")
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}

	defs := []*entity.WorkflowDefinition{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		def := obj.(*entity.WorkflowDefinition)
		if activeOnly && !def.IsActive {
			continue
		}
		defs = append(defs, def.Clone())
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].Name != defs[j].Name {
			return defs[i].Name < defs[j].Name
		}
		return defs[i].Version < defs[j].Version
	})
	return defs, nil
}

// Update replaces the stored definition
func (r *DefinitionRepository) Update(ctx context.Context, def *entity.WorkflowDefinition) error {
	return r.store.write(ctx, func(txn *memdb.Txn) error {
		obj, err := txn.First(tableDefinitions, "id", def.ID)
		if err != nil {
			return fmt.Errorf("failed to look up definition: %w", err)
		}
		if obj == nil {
			return fmt.Errorf("%w: definition %s", workflow.ErrNotFound, def.ID)
		}
		updated := def.Clone()
		updated.Version = obj.(*entity.WorkflowDefinition).Version
		return txn.Insert(tableDefinitions, updated)
	})
}

// Delete removes a definition
func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	return r.store.write(ctx, func(txn *memdb.Txn) error {
		obj, err := txn.First(tableDefinitions, "id", id)
		if err != nil {
			return fmt.Errorf("failed to look up definition: %w", err)
		}
		if obj == nil {
			return fmt.Errorf("%w: definition %s", workflow.ErrNotFound, id)
		}
		return txn.Delete(tableDefinitions, obj)
	})
}

// InstanceRepository implements port.InstanceRepository
type InstanceRepository struct {
	store *Store
}

// Create stores a copy of the instance and its history
func (r *InstanceRepository) Create(ctx context.Context, inst *entity.WorkflowInstance) error {
	return r.store.write(ctx, func(txn *memdb.Txn) error {
		existing, err := txn.First(tableInstances, "id", inst.ID)
		if err != nil {
			return fmt.Errorf("failed to look up instance: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("instance %s already exists", inst.ID)
		}
		return txn.Insert(tableInstances, inst.Clone())
	})
}

// GetByID returns a copy of the instance
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entity.WorkflowInstance, error) {
	obj, err := r.store.read(ctx).First(tableInstances, "id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: instance %s", workflow.ErrNotFound, id)
	}
	return obj.(*entity.WorkflowInstance).Clone(), nil
}

// GetLatestByContentID returns the most recently created instance of a content item
func (r *InstanceRepository) GetLatestByContentID(ctx context.Context, contentID string) (*entity.WorkflowInstance, error) {
	it, err := r.store.read(ctx).Get(tableInstances, "content", contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	var latest *entity.WorkflowInstance
	for obj := it.Next(); obj != nil; obj = it.Next() {
		inst := obj.(*entity.WorkflowInstance)
		if latest == nil || inst.Created.After(latest.Created) {
			latest = inst
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: instance for %s", workflow.ErrNotFound, contentID)
	}
	return latest.Clone(), nil
}

// Update replaces the instance if the stored version matches
func (r *InstanceRepository) Update(ctx context.Context, inst *entity.WorkflowInstance, expectedVersion int64, appended []entity.HistoryEntry) error {
	return r.store.write(ctx, func(txn *memdb.Txn) error {
		obj, err := txn.First(tableInstances, "id", inst.ID)
		if err != nil {
			return fmt.Errorf("failed to look up instance: %w", err)
		}
		if obj == nil {
			return fmt.Errorf("%w: instance %s", workflow.ErrNotFound, inst.ID)
		}

		stored := obj.(*entity.WorkflowInstance)
		if stored.Version != expectedVersion {
			return fmt.Errorf("%w: instance %s is no longer at version %d", workflow.ErrConcurrentModification, inst.ID, expectedVersion)
		}

		updated := stored.Clone()
		updated.CurrentStateID = inst.CurrentStateID
		updated.Status = inst.Status
		updated.LastModified = inst.LastModified
		updated.Version = expectedVersion + 1
		updated.History = append(updated.History, appended...)
		if err := txn.Insert(tableInstances, updated); err != nil {
			return fmt.Errorf("failed to update instance: %w", err)
		}

		inst.Version = updated.Version
		return nil
	})
}

// CountByDefinitionID counts the instances pinned to a definition
func (r *InstanceRepository) CountByDefinitionID(ctx context.Context, definitionID string) (int, error) {
	it, err := r.store.read(ctx).Get(tableInstances, "definition", definitionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}
	n := 0
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n++
	}
	return n, nil
}

// BindingRepository implements port.BindingRepository
type BindingRepository struct {
	store *Store
}

// Get returns the binding of a content item
func (r *BindingRepository) Get(ctx context.Context, contentID string) (*entity.WorkflowContentExtension, error) {
	obj, err := r.store.read(ctx).First(tableBindings, "id", contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get binding: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: binding for %s", workflow.ErrNotFound, contentID)
	}
	b := *obj.(*entity.WorkflowContentExtension)
	return &b, nil
}

// Upsert points a content item at an instance
func (r *BindingRepository) Upsert(ctx context.Context, b *entity.WorkflowContentExtension) error {
	return r.store.write(ctx, func(txn *memdb.Txn) error {
		stored := *b
		return txn.Insert(tableBindings, &stored)
	})
}

// Delete removes the binding of a content item
func (r *BindingRepository) Delete(ctx context.Context, contentID string) error {
	return r.store.write(ctx, func(txn *memdb.Txn) error {
		obj, err := txn.First(tableBindings, "id", contentID)
		if err != nil {
			return fmt.Errorf("failed to look up binding: %w", err)
		}
		if obj == nil {
			return fmt.Errorf("%w: binding for %s", workflow.ErrNotFound, contentID)
		}
		return txn.Delete(tableBindings, obj)
	})
}

// Verify interface compliance
var (
	_ port.DefinitionRepository = (*DefinitionRepository)(nil)
	_ port.InstanceRepository   = (*InstanceRepository)(nil)
	_ port.BindingRepository    = (*BindingRepository)(nil)
)
