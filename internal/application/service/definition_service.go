package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/editorial-workflow/internal/application/port"
	"github.com/garyjia/editorial-workflow/internal/domain/entity"
	"github.com/garyjia/editorial-workflow/internal/domain/workflow"
)

// DefinitionService manages workflow definitions, their states and transition rules.
// Definitions referenced by instances are never rewritten: saving one forks a new version.
type DefinitionService struct {
	definitions port.DefinitionRepository
	instances   port.InstanceRepository
	txManager   port.TransactionManager
	stateColors map[string]string
	logger      Logger
	now         func() time.Time
}

// NewDefinitionService creates a new DefinitionService.
// stateColors supplies a default color code per state slug.
func NewDefinitionService(
	definitions port.DefinitionRepository,
	instances port.InstanceRepository,
	txManager port.TransactionManager,
	stateColors map[string]string,
	logger Logger,
) *DefinitionService {
	return &DefinitionService{
		definitions: definitions,
		instances:   instances,
		txManager:   txManager,
		stateColors: stateColors,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create validates and stores a new definition at version 1
func (s *DefinitionService) Create(ctx context.Context, def *entity.WorkflowDefinition) (*entity.WorkflowDefinition, error) {
	d := def.Clone()
	d.ID = uuid.NewString()
	d.Version = 1
	d.Created = s.now()
	d.LastModified = d.Created
	s.prepare(d)

	if err := workflow.ValidateDefinition(d); err != nil {
		return nil, err
	}

	if existing, err := s.definitions.GetLatestByName(ctx, d.Name); err == nil && existing != nil {
		return nil, fmt.Errorf("%w: name %q is already in use", workflow.ErrInvalidDefinition, d.Name)
	} else if err != nil && !errors.Is(err, workflow.ErrNotFound) {
		return nil, fmt.Errorf("check definition name: %w", err)
	}

	if err := s.definitions.Create(ctx, d); err != nil {
		s.logger.Error("Failed to create definition", "error", err, "name", d.Name)
		return nil, fmt.Errorf("create definition: %w", err)
	}

	s.logger.Info("Definition created", "id", d.ID, "name", d.Name)
	return d, nil
}

// Get returns a definition by id
func (s *DefinitionService) Get(ctx context.Context, id string) (*entity.WorkflowDefinition, error) {
	def, err := s.definitions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", workflow.ErrUnknownDefinition, id)
		}
		return nil, fmt.Errorf("get definition: %w", err)
	}
	return def, nil
}

// GetByName returns the latest version of a definition
func (s *DefinitionService) GetByName(ctx context.Context, name string) (*entity.WorkflowDefinition, error) {
	def, err := s.definitions.GetLatestByName(ctx, name)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", workflow.ErrUnknownDefinition, name)
		}
		return nil, fmt.Errorf("get definition by name: %w", err)
	}
	return def, nil
}

// List returns definitions ordered by name and version
func (s *DefinitionService) List(ctx context.Context, activeOnly bool) ([]*entity.WorkflowDefinition, error) {
	defs, err := s.definitions.List(ctx, activeOnly)
	if err != nil {
		s.logger.Error("Failed to list definitions", "error", err)
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	return defs, nil
}

// Update saves a changed definition. An unreferenced definition is edited in place;
// a referenced one is deactivated and replaced by a new version with a new id.
// The returned definition is the one that now carries the changes.
func (s *DefinitionService) Update(ctx context.Context, def *entity.WorkflowDefinition) (*entity.WorkflowDefinition, error) {
	var saved *entity.WorkflowDefinition

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.definitions.GetByID(txCtx, def.ID)
		if err != nil {
			if errors.Is(err, workflow.ErrNotFound) {
				return fmt.Errorf("%w: %s", workflow.ErrUnknownDefinition, def.ID)
			}
			return fmt.Errorf("get definition: %w", err)
		}
		latest, err := s.definitions.GetLatestByName(txCtx, current.Name)
		if err != nil {
			return fmt.Errorf("get latest version: %w", err)
		}
		if latest.Version > current.Version {
			return fmt.Errorf("%w: version %d of %q has been superseded by version %d", workflow.ErrInvalidDefinition, current.Version, current.Name, latest.Version)
		}

		d := def.Clone()
		d.Created = current.Created
		d.Version = current.Version
		d.LastModified = s.now()
		s.prepare(d)
		if err := workflow.ValidateDefinition(d); err != nil {
			return err
		}

		if d.Name != current.Name {
			if other, err := s.definitions.GetLatestByName(txCtx, d.Name); err == nil && other != nil {
				return fmt.Errorf("%w: name %q is already in use", workflow.ErrInvalidDefinition, d.Name)
			} else if err != nil && !errors.Is(err, workflow.ErrNotFound) {
				return fmt.Errorf("check definition name: %w", err)
			}
		}

		refs, err := s.instances.CountByDefinitionID(txCtx, current.ID)
		if err != nil {
			return fmt.Errorf("count instances: %w", err)
		}

		if refs == 0 {
			if err := s.definitions.Update(txCtx, d); err != nil {
				return fmt.Errorf("update definition: %w", err)
			}
			saved = d
			return nil
		}

		retired := current.Clone()
		retired.IsActive = false
		retired.LastModified = d.LastModified
		if err := s.definitions.Update(txCtx, retired); err != nil {
			return fmt.Errorf("retire definition: %w", err)
		}

		d.ID = uuid.NewString()
		d.Version = latest.Version + 1
		d.Created = d.LastModified
		if err := s.definitions.Create(txCtx, d); err != nil {
			return fmt.Errorf("create definition version: %w", err)
		}
		saved = d
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update definition", "error", err, "id", def.ID)
		return nil, err
	}

	if saved.ID != def.ID {
		s.logger.Info("Definition forked", "previous_id", def.ID, "id", saved.ID, "version", saved.Version)
	} else {
		s.logger.Info("Definition updated", "id", saved.ID)
	}
	return saved, nil
}

// Delete removes a definition no instance references
func (s *DefinitionService) Delete(ctx context.Context, id string) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := s.definitions.GetByID(txCtx, id); err != nil {
			if errors.Is(err, workflow.ErrNotFound) {
				return fmt.Errorf("%w: %s", workflow.ErrUnknownDefinition, id)
			}
			return fmt.Errorf("get definition: %w", err)
		}

		refs, err := s.instances.CountByDefinitionID(txCtx, id)
		if err != nil {
			return fmt.Errorf("count instances: %w", err)
		}
		if refs > 0 {
			return fmt.Errorf("%w: %d instances", workflow.ErrDefinitionInUse, refs)
		}

		return s.definitions.Delete(txCtx, id)
	})
	if err != nil {
		s.logger.Error("Failed to delete definition", "error", err, "id", id)
		return err
	}

	s.logger.Info("Definition deleted", "id", id)
	return nil
}

// AddState adds a state to a definition
func (s *DefinitionService) AddState(ctx context.Context, definitionID string, state entity.WorkflowState) (*entity.WorkflowDefinition, error) {
	return s.modify(ctx, definitionID, func(d *entity.WorkflowDefinition) error {
		if state.ID == "" {
			state.ID = uuid.NewString()
		}
		d.States = append(d.States, state)
		return nil
	})
}

// UpdateState replaces the state with the same id
func (s *DefinitionService) UpdateState(ctx context.Context, definitionID string, state entity.WorkflowState) (*entity.WorkflowDefinition, error) {
	return s.modify(ctx, definitionID, func(d *entity.WorkflowDefinition) error {
		for i := range d.States {
			if d.States[i].ID == state.ID {
				d.States[i] = state
				return nil
			}
		}
		return fmt.Errorf("%w: %s", workflow.ErrUnknownState, state.ID)
	})
}

// RemoveState removes a state and every rule touching it
func (s *DefinitionService) RemoveState(ctx context.Context, definitionID, stateID string) (*entity.WorkflowDefinition, error) {
	return s.modify(ctx, definitionID, func(d *entity.WorkflowDefinition) error {
		states := d.States[:0]
		found := false
		for _, st := range d.States {
			if st.ID == stateID {
				found = true
				continue
			}
			states = append(states, st)
		}
		if !found {
			return fmt.Errorf("%w: %s", workflow.ErrUnknownState, stateID)
		}
		d.States = states

		rules := d.Transitions[:0]
		for _, r := range d.Transitions {
			if r.FromStateID != stateID && r.ToStateID != stateID {
				rules = append(rules, r)
			}
		}
		d.Transitions = rules
		return nil
	})
}

// AddTransition adds a transition rule to a definition
func (s *DefinitionService) AddTransition(ctx context.Context, definitionID string, rule entity.TransitionRule) (*entity.WorkflowDefinition, error) {
	return s.modify(ctx, definitionID, func(d *entity.WorkflowDefinition) error {
		if rule.ID == "" {
			rule.ID = uuid.NewString()
		}
		d.Transitions = append(d.Transitions, rule)
		return nil
	})
}

// UpdateTransition replaces the rule with the same id
func (s *DefinitionService) UpdateTransition(ctx context.Context, definitionID string, rule entity.TransitionRule) (*entity.WorkflowDefinition, error) {
	return s.modify(ctx, definitionID, func(d *entity.WorkflowDefinition) error {
		for i := range d.Transitions {
			if d.Transitions[i].ID == rule.ID {
				d.Transitions[i] = rule
				return nil
			}
		}
		return fmt.Errorf("%w: %s", workflow.ErrNoSuchTransition, rule.ID)
	})
}

// RemoveTransition removes a rule from a definition
func (s *DefinitionService) RemoveTransition(ctx context.Context, definitionID, ruleID string) (*entity.WorkflowDefinition, error) {
	return s.modify(ctx, definitionID, func(d *entity.WorkflowDefinition) error {
		for i := range d.Transitions {
			if d.Transitions[i].ID == ruleID {
				d.Transitions = append(d.Transitions[:i], d.Transitions[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", workflow.ErrNoSuchTransition, ruleID)
	})
}

func (s *DefinitionService) modify(ctx context.Context, definitionID string, fn func(d *entity.WorkflowDefinition) error) (*entity.WorkflowDefinition, error) {
	current, err := s.Get(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	d := current.Clone()
	if err := fn(d); err != nil {
		return nil, err
	}
	return s.Update(ctx, d)
}

// prepare fills ids of new states and rules, role sets and default colors.
// Rule endpoints may name a state by slug; they are rewritten to the state id.
func (s *DefinitionService) prepare(d *entity.WorkflowDefinition) {
	bySlug := make(map[string]string, len(d.States))
	ids := make(map[string]bool, len(d.States))
	for i := range d.States {
		if d.States[i].ID == "" {
			d.States[i].ID = uuid.NewString()
		}
		if d.States[i].ColorCode == "" {
			d.States[i].ColorCode = s.stateColors[d.States[i].StateID]
		}
		bySlug[d.States[i].StateID] = d.States[i].ID
		ids[d.States[i].ID] = true
	}
	for i := range d.Transitions {
		if d.Transitions[i].ID == "" {
			d.Transitions[i].ID = uuid.NewString()
		}
		if id, ok := bySlug[d.Transitions[i].FromStateID]; ok && !ids[d.Transitions[i].FromStateID] {
			d.Transitions[i].FromStateID = id
		}
		if id, ok := bySlug[d.Transitions[i].ToStateID]; ok && !ids[d.Transitions[i].ToStateID] {
			d.Transitions[i].ToStateID = id
		}
		if d.Transitions[i].AllowedRoles == nil {
			d.Transitions[i].AllowedRoles = entity.NewRoleSet()
		}
	}
}
