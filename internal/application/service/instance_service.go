package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/editorial-workflow/internal/application/port"
	"github.com/garyjia/editorial-workflow/internal/domain/entity"
	"github.com/garyjia/editorial-workflow/internal/domain/event"
	"github.com/garyjia/editorial-workflow/internal/domain/workflow"
)

// TransitionCommand asks to move a content item along a rule or to a target state
type TransitionCommand struct {
	ContentID        string
	TransitionRuleID string
	TargetStateID    string
	Actor            entity.Actor
	Comment          string
}

// InstanceService runs content items through their workflows.
// Every state mutation is followed by an attempt to publish a state-change event;
// publish failures are logged and never undo the mutation.
type InstanceService struct {
	definitions port.DefinitionRepository
	instances   port.InstanceRepository
	bindings    port.BindingRepository
	txManager   port.TransactionManager
	publisher   port.EventPublisher
	content     port.ContentPublisher
	adminRoles  entity.RoleSet
	observer    TransitionObserver
	logger      Logger
	now         func() time.Time
}

// NewInstanceService creates a new InstanceService.
// adminRoles gates cancel, hold and resume; an empty set allows every actor.
func NewInstanceService(
	repos Repositories,
	txManager port.TransactionManager,
	publisher port.EventPublisher,
	content port.ContentPublisher,
	adminRoles entity.RoleSet,
	observer TransitionObserver,
	logger Logger,
) *InstanceService {
	if observer == nil {
		observer = nopObserver{}
	}
	return &InstanceService{
		definitions: repos.Definitions,
		instances:   repos.Instances,
		bindings:    repos.Bindings,
		txManager:   txManager,
		publisher:   publisher,
		content:     content,
		adminRoles:  adminRoles,
		observer:    observer,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateInstance puts a content item into a workflow at the definition's initial state
func (s *InstanceService) CreateInstance(ctx context.Context, contentID, contentType, definitionID string, actor entity.Actor) (*entity.WorkflowInstance, error) {
	if contentID == "" {
		return nil, fmt.Errorf("%w: content id is required", workflow.ErrUnknownContent)
	}

	def, err := s.loadDefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	if !def.IsActive {
		return nil, fmt.Errorf("%w: %s version %d is inactive", workflow.ErrUnknownDefinition, def.Name, def.Version)
	}
	if !def.AppliesTo(contentType) {
		return nil, fmt.Errorf("%w: content type %q is not accepted by %s", workflow.ErrUnknownContent, contentType, def.Name)
	}

	initial, err := workflow.NewGraph(def).InitialState()
	if err != nil {
		return nil, err
	}

	now := s.now()
	inst := &entity.WorkflowInstance{
		ID:                   uuid.NewString(),
		ContentID:            contentID,
		ContentType:          contentType,
		WorkflowDefinitionID: def.ID,
		CurrentStateID:       initial.ID,
		Status:               entity.StatusActive,
		CreatedBy:            actor.UserID,
		Created:              now,
		LastModified:         now,
		Version:              1,
	}
	inst.History = []entity.HistoryEntry{{
		ID:              uuid.NewString(),
		InstanceID:      inst.ID,
		Kind:            entity.HistoryKindCreated,
		ToStateID:       initial.ID,
		PerformedBy:     actor.UserID,
		PerformedByName: actor.DisplayName,
		Timestamp:       now,
		Comment:         "workflow started",
		Success:         true,
	}}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ensureNotInWorkflow(txCtx, contentID); err != nil {
			return err
		}
		if err := s.instances.Create(txCtx, inst); err != nil {
			return fmt.Errorf("create instance: %w", err)
		}
		return s.bindings.Upsert(txCtx, &entity.WorkflowContentExtension{
			ContentID:                 contentID,
			CurrentWorkflowInstanceID: inst.ID,
			LastModified:              now,
		})
	})
	if err != nil {
		s.logger.Error("Failed to create instance", "error", err, "content_id", contentID, "definition_id", definitionID)
		return nil, err
	}

	evt := s.newEvent(inst, def)
	evt.ToState = initial.StateID
	evt.UserID = actor.UserID
	evt.Username = actor.DisplayName
	evt.Comments = "workflow started"
	evt.IsAutomaticTransition = true
	evt.Success = true
	s.emit(ctx, evt)

	s.logger.Info("Instance created", "id", inst.ID, "content_id", contentID, "definition_id", def.ID)
	return inst, nil
}

func (s *InstanceService) ensureNotInWorkflow(ctx context.Context, contentID string) error {
	binding, err := s.bindings.Get(ctx, contentID)
	if errors.Is(err, workflow.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get binding: %w", err)
	}

	existing, err := s.instances.GetByID(ctx, binding.CurrentWorkflowInstanceID)
	if errors.Is(err, workflow.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get bound instance: %w", err)
	}
	if !existing.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is bound to instance %s (%s)", workflow.ErrAlreadyInWorkflow, contentID, existing.ID, existing.Status)
	}
	return nil
}

// PerformTransition moves a content item along one rule. The attempt is published as an event
// whether it succeeds or fails.
func (s *InstanceService) PerformTransition(ctx context.Context, cmd TransitionCommand) (*entity.WorkflowInstance, error) {
	inst, def, err := s.resolve(ctx, cmd.ContentID)
	if err != nil {
		s.emitFailure(ctx, s.attemptEvent(cmd, inst, def), err)
		return nil, err
	}

	g := workflow.NewGraph(def)
	outcome, err := workflow.Transition(inst, g, workflow.TransitionRequest{
		TargetStateID:    cmd.TargetStateID,
		TransitionRuleID: cmd.TransitionRuleID,
		Actor:            cmd.Actor,
		Comment:          cmd.Comment,
	}, s.now())
	if err != nil {
		s.emitFailure(ctx, s.attemptEvent(cmd, inst, def), err)
		return nil, err
	}

	appended := outcome.Instance.History[len(inst.History):]
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.instances.Update(txCtx, outcome.Instance, inst.Version, appended); err != nil {
			return err
		}
		if outcome.Completed {
			if err := s.bindings.Delete(txCtx, inst.ContentID); err != nil && !errors.Is(err, workflow.ErrNotFound) {
				return fmt.Errorf("delete binding: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to persist transition", "error", err, "instance_id", inst.ID, "content_id", inst.ContentID)
		s.emitFailure(ctx, s.attemptEvent(cmd, inst, def), err)
		return nil, err
	}

	if outcome.Published && s.content != nil {
		if err := s.content.MarkPublished(ctx, inst.ContentID, inst.ContentType, cmd.Actor); err != nil {
			s.logger.Error("Failed to mark content published", "error", err, "content_id", inst.ContentID)
		}
	}

	evt := s.newEvent(outcome.Instance, def)
	evt.FromState = outcome.From.StateID
	evt.ToState = outcome.To.StateID
	evt.UserID = cmd.Actor.UserID
	evt.Username = cmd.Actor.DisplayName
	evt.Comments = cmd.Comment
	evt.TransitionRuleID = outcome.Rule.ID
	evt.Success = true
	if outcome.Published {
		evt = evt.WithMetadata(event.MetaPublished, strconv.FormatBool(true))
	}
	s.observer.ObserveTransition("success")
	s.emit(ctx, evt)

	s.logger.Info("Transition performed",
		"instance_id", inst.ID,
		"content_id", inst.ContentID,
		"from", outcome.From.StateID,
		"to", outcome.To.StateID,
		"status", outcome.Instance.Status,
	)
	return outcome.Instance, nil
}

// GetAvailableTransitions returns the rules the roles may execute from the content's current state.
// Content without a workflow has none.
func (s *InstanceService) GetAvailableTransitions(ctx context.Context, contentID string, roles entity.RoleSet) ([]entity.TransitionRule, error) {
	inst, def, err := s.resolve(ctx, contentID)
	if err != nil {
		if errors.Is(err, workflow.ErrNoActiveWorkflow) {
			return []entity.TransitionRule{}, nil
		}
		return nil, err
	}
	return workflow.AvailableTransitions(inst, workflow.NewGraph(def), roles), nil
}

// GetWorkflowInstance returns the content's current instance, or its latest one once finished
func (s *InstanceService) GetWorkflowInstance(ctx context.Context, contentID string) (*entity.WorkflowInstance, error) {
	inst, err := s.lookup(ctx, contentID)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// GetInstance returns an instance by id
func (s *InstanceService) GetInstance(ctx context.Context, id string) (*entity.WorkflowInstance, error) {
	inst, err := s.instances.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return nil, fmt.Errorf("%w: instance %s", workflow.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return inst, nil
}

// CancelInstance ends the content's workflow without completing it
func (s *InstanceService) CancelInstance(ctx context.Context, contentID string, actor entity.Actor, comment string) (*entity.WorkflowInstance, error) {
	return s.changeLifecycle(ctx, contentID, workflow.ActionCancel, actor, comment)
}

// HoldInstance suspends the content's workflow
func (s *InstanceService) HoldInstance(ctx context.Context, contentID string, actor entity.Actor, comment string) (*entity.WorkflowInstance, error) {
	return s.changeLifecycle(ctx, contentID, workflow.ActionHold, actor, comment)
}

// ResumeInstance reactivates a suspended workflow
func (s *InstanceService) ResumeInstance(ctx context.Context, contentID string, actor entity.Actor, comment string) (*entity.WorkflowInstance, error) {
	return s.changeLifecycle(ctx, contentID, workflow.ActionResume, actor, comment)
}

func (s *InstanceService) changeLifecycle(ctx context.Context, contentID string, action workflow.LifecycleAction, actor entity.Actor, comment string) (*entity.WorkflowInstance, error) {
	inst, def, err := s.resolve(ctx, contentID)

	fail := func(err error) (*entity.WorkflowInstance, error) {
		evt := s.attemptEvent(TransitionCommand{ContentID: contentID, Actor: actor, Comment: comment}, inst, def)
		if inst != nil {
			evt.ToState = evt.FromState
		}
		s.emitFailure(ctx, evt.WithMetadata(event.MetaLifecycle, action.String()), err)
		return nil, err
	}

	if err != nil {
		return fail(err)
	}
	if len(s.adminRoles) > 0 && !s.adminRoles.Intersects(actor.Roles) {
		return fail(fmt.Errorf("%w: %s requires one of %v", workflow.ErrForbidden, action, s.adminRoles.Slice()))
	}

	updated, err := workflow.ApplyLifecycle(inst, action, actor, comment, s.now())
	if err != nil {
		return fail(err)
	}

	appended := updated.History[len(inst.History):]
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.instances.Update(txCtx, updated, inst.Version, appended); err != nil {
			return err
		}
		if updated.Status.IsTerminal() {
			if err := s.bindings.Delete(txCtx, inst.ContentID); err != nil && !errors.Is(err, workflow.ErrNotFound) {
				return fmt.Errorf("delete binding: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to persist lifecycle change", "error", err, "instance_id", inst.ID, "action", action.String())
		return fail(err)
	}

	state := currentSlug(def, updated.CurrentStateID)
	evt := s.newEvent(updated, def)
	evt.FromState = state
	evt.ToState = state
	evt.UserID = actor.UserID
	evt.Username = actor.DisplayName
	evt.Comments = updated.LastEntry().Comment
	evt.Success = true
	s.emit(ctx, evt.WithMetadata(event.MetaLifecycle, action.String()))

	s.logger.Info("Instance lifecycle changed", "instance_id", inst.ID, "action", action.String(), "status", updated.Status)
	return updated, nil
}

// lookup finds the bound instance, falling back to the content's latest instance
func (s *InstanceService) lookup(ctx context.Context, contentID string) (*entity.WorkflowInstance, error) {
	binding, err := s.bindings.Get(ctx, contentID)
	switch {
	case err == nil:
		inst, err := s.instances.GetByID(ctx, binding.CurrentWorkflowInstanceID)
		if err == nil {
			return inst, nil
		}
		if !errors.Is(err, workflow.ErrNotFound) {
			return nil, fmt.Errorf("get bound instance: %w", err)
		}
	case !errors.Is(err, workflow.ErrNotFound):
		return nil, fmt.Errorf("get binding: %w", err)
	}

	inst, err := s.instances.GetLatestByContentID(ctx, contentID)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", workflow.ErrNoActiveWorkflow, contentID)
		}
		return nil, fmt.Errorf("get latest instance: %w", err)
	}
	return inst, nil
}

func (s *InstanceService) resolve(ctx context.Context, contentID string) (*entity.WorkflowInstance, *entity.WorkflowDefinition, error) {
	inst, err := s.lookup(ctx, contentID)
	if err != nil {
		return nil, nil, err
	}
	def, err := s.loadDefinition(ctx, inst.WorkflowDefinitionID)
	if err != nil {
		return inst, nil, err
	}
	return inst, def, nil
}

func (s *InstanceService) loadDefinition(ctx context.Context, id string) (*entity.WorkflowDefinition, error) {
	def, err := s.definitions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", workflow.ErrUnknownDefinition, id)
		}
		return nil, fmt.Errorf("get definition: %w", err)
	}
	return def, nil
}

func (s *InstanceService) newEvent(inst *entity.WorkflowInstance, def *entity.WorkflowDefinition) *event.WorkflowStateChangedEvent {
	evt := event.NewStateChanged(inst.ID, inst.ContentID, inst.ContentType)
	evt.Timestamp = inst.LastModified
	evt.Metadata[event.MetaInstanceStatus] = inst.Status.String()
	if def != nil {
		evt.Metadata[event.MetaDefinitionID] = def.ID
	}
	return evt
}

// attemptEvent describes a transition attempt with whatever could be resolved before it failed
func (s *InstanceService) attemptEvent(cmd TransitionCommand, inst *entity.WorkflowInstance, def *entity.WorkflowDefinition) *event.WorkflowStateChangedEvent {
	var evt *event.WorkflowStateChangedEvent
	if inst != nil {
		evt = s.newEvent(inst, def)
		evt.Timestamp = s.now()
		evt.FromState = currentSlug(def, inst.CurrentStateID)
	} else {
		evt = event.NewStateChanged("", cmd.ContentID, "")
	}

	evt.ToState = cmd.TargetStateID
	evt.TransitionRuleID = cmd.TransitionRuleID
	if def != nil {
		g := workflow.NewGraph(def)
		if cmd.TransitionRuleID != "" {
			if rule, ok := g.Rule(cmd.TransitionRuleID); ok && cmd.TargetStateID == "" {
				evt.ToState = rule.ToStateID
			}
		}
		if to, err := g.GetState(evt.ToState); err == nil {
			evt.ToState = to.StateID
		}
	}

	evt.UserID = cmd.Actor.UserID
	evt.Username = cmd.Actor.DisplayName
	evt.Comments = cmd.Comment
	return evt
}

func currentSlug(def *entity.WorkflowDefinition, stateID string) string {
	if def == nil {
		return stateID
	}
	if st, err := workflow.NewGraph(def).GetState(stateID); err == nil {
		return st.StateID
	}
	return stateID
}

func (s *InstanceService) emitFailure(ctx context.Context, evt *event.WorkflowStateChangedEvent, cause error) {
	s.observer.ObserveTransition(string(workflow.KindOf(cause)))
	failed := evt.Failed(cause).WithMetadata(event.MetaErrorKind, string(workflow.KindOf(cause)))
	s.emit(ctx, failed)
}

// emit publishes without the caller's cancellation so a finished request still reports its outcome
func (s *InstanceService) emit(ctx context.Context, evt *event.WorkflowStateChangedEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		s.logger.Error("Failed to publish state change event",
			"error", err,
			"event_id", evt.EventID,
			"instance_id", evt.WorkflowInstanceID,
			"content_id", evt.ContentID,
		)
	}
}
