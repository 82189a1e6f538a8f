package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"github.com/garyjia/editorial-workflow/internal/domain/entity"
)

// LifecycleAction moves an instance between statuses
type LifecycleAction string

const (
	ActionComplete LifecycleAction = "complete"
	ActionCancel   LifecycleAction = "cancel"
	ActionHold     LifecycleAction = "hold"
	ActionResume   LifecycleAction = "resume"
)

// String returns the string representation of the action
func (a LifecycleAction) String() string {
	return string(a)
}

// newLifecycle builds a status machine whose state lives on the instance itself.
// Completed and Cancelled have no outgoing triggers.
func newLifecycle(inst *entity.WorkflowInstance) *stateless.StateMachine {
	sm := stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) {
			return inst.Status, nil
		},
		func(_ context.Context, s stateless.State) error {
			inst.Status = s.(entity.InstanceStatus)
			return nil
		},
		stateless.FiringImmediate,
	)

	sm.Configure(entity.StatusActive).
		Permit(ActionComplete, entity.StatusCompleted).
		Permit(ActionCancel, entity.StatusCancelled).
		Permit(ActionHold, entity.StatusOnHold)

	sm.Configure(entity.StatusOnHold).
		Permit(ActionResume, entity.StatusActive).
		Permit(ActionCancel, entity.StatusCancelled)

	sm.Configure(entity.StatusCompleted)
	sm.Configure(entity.StatusCancelled)

	return sm
}

// fireLifecycle changes inst.Status in place
func fireLifecycle(inst *entity.WorkflowInstance, action LifecycleAction) error {
	sm := newLifecycle(inst)
	ok, err := sm.CanFire(action)
	if err != nil || !ok {
		return fmt.Errorf("%w: cannot %s instance %s in status %s", ErrInvalidLifecycleChange, action, inst.ID, inst.Status)
	}
	if err := sm.Fire(action); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLifecycleChange, err)
	}
	return nil
}

// PermittedActions returns the lifecycle actions allowed from a status
func PermittedActions(status entity.InstanceStatus) []LifecycleAction {
	inst := &entity.WorkflowInstance{Status: status}
	triggers, err := newLifecycle(inst).PermittedTriggers()
	if err != nil {
		return nil
	}
	out := make([]LifecycleAction, 0, len(triggers))
	for _, t := range triggers {
		if a, ok := t.(LifecycleAction); ok {
			out = append(out, a)
		}
	}
	return out
}

// ApplyLifecycle returns a copy of the instance with the action applied and a lifecycle note
// appended to its history. The current state is not changed.
func ApplyLifecycle(inst *entity.WorkflowInstance, action LifecycleAction, actor entity.Actor, comment string, now time.Time) (*entity.WorkflowInstance, error) {
	out := inst.Clone()
	if err := fireLifecycle(out, action); err != nil {
		return nil, err
	}

	if comment == "" {
		comment = fmt.Sprintf("status changed from %s to %s", inst.Status, out.Status)
	}
	out.History = append(out.History, entity.HistoryEntry{
		ID:              uuid.NewString(),
		InstanceID:      out.ID,
		Kind:            entity.HistoryKindLifecycle,
		FromStateID:     out.CurrentStateID,
		ToStateID:       out.CurrentStateID,
		PerformedBy:     actor.UserID,
		PerformedByName: actor.DisplayName,
		Timestamp:       now,
		Comment:         comment,
		Success:         true,
	})
	out.LastModified = now

	return out, nil
}
