package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/editorial-workflow/internal/domain/entity"
)

// TransitionRequest asks to move an instance either along a rule or to a target state.
// When both are set they must agree.
type TransitionRequest struct {
	TargetStateID    string
	TransitionRuleID string
	Actor            entity.Actor
	Comment          string
}

// Outcome is the result of a successful transition
type Outcome struct {
	Instance  *entity.WorkflowInstance
	From      *entity.WorkflowState
	To        *entity.WorkflowState
	Rule      *entity.TransitionRule
	Published bool
	Completed bool
}

// Transition validates one transition and computes the resulting instance.
// The input instance is never modified and no I/O is performed.
func Transition(inst *entity.WorkflowInstance, g *Graph, req TransitionRequest, now time.Time) (*Outcome, error) {
	if inst.Status != entity.StatusActive {
		return nil, fmt.Errorf("%w: instance %s is %s", ErrInstanceNotActive, inst.ID, inst.Status)
	}
	if g.Definition().ID != inst.WorkflowDefinitionID {
		return nil, fmt.Errorf("%w: instance %s uses %s, got %s", ErrDefinitionMismatch, inst.ID, inst.WorkflowDefinitionID, g.Definition().ID)
	}

	from, err := g.GetState(inst.CurrentStateID)
	if err != nil {
		return nil, err
	}

	to, err := resolveTarget(g, req)
	if err != nil {
		return nil, err
	}

	rule, err := g.GetActiveTransition(from.ID, to.ID)
	if err != nil {
		return nil, err
	}
	if req.TransitionRuleID != "" && rule.ID != req.TransitionRuleID {
		return nil, fmt.Errorf("%w: rule %s is not active from %s", ErrNoSuchTransition, req.TransitionRuleID, from.StateID)
	}

	if !CanTransition(rule, req.Actor.Roles) {
		return nil, fmt.Errorf("%w: %s -> %s requires one of [%s]", ErrForbidden, from.StateID, to.StateID, strings.Join(rule.AllowedRoles.Slice(), ", "))
	}
	if rule.RequiresComment && strings.TrimSpace(req.Comment) == "" {
		return nil, fmt.Errorf("%w: %s -> %s", ErrCommentRequired, from.StateID, to.StateID)
	}

	out := inst.Clone()
	out.CurrentStateID = to.ID
	out.LastModified = now
	out.History = append(out.History, entity.HistoryEntry{
		ID:               uuid.NewString(),
		InstanceID:       out.ID,
		Kind:             entity.HistoryKindTransition,
		FromStateID:      from.ID,
		ToStateID:        to.ID,
		TransitionRuleID: rule.ID,
		PerformedBy:      req.Actor.UserID,
		PerformedByName:  req.Actor.DisplayName,
		Timestamp:        now,
		Comment:          req.Comment,
		Success:          true,
	})

	if to.IsPublished {
		out.History = append(out.History, entity.HistoryEntry{
			ID:               uuid.NewString(),
			InstanceID:       out.ID,
			Kind:             entity.HistoryKindPublished,
			FromStateID:      to.ID,
			ToStateID:        to.ID,
			TransitionRuleID: rule.ID,
			PerformedBy:      req.Actor.UserID,
			PerformedByName:  req.Actor.DisplayName,
			Timestamp:        now,
			Comment:          "content published",
			Success:          true,
		})
	}

	if to.IsFinal {
		if err := fireLifecycle(out, ActionComplete); err != nil {
			return nil, err
		}
	}

	return &Outcome{
		Instance:  out,
		From:      from,
		To:        to,
		Rule:      rule,
		Published: to.IsPublished,
		Completed: out.Status == entity.StatusCompleted,
	}, nil
}

func resolveTarget(g *Graph, req TransitionRequest) (*entity.WorkflowState, error) {
	if req.TransitionRuleID != "" {
		rule, ok := g.Rule(req.TransitionRuleID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown rule %s", ErrNoSuchTransition, req.TransitionRuleID)
		}
		to, err := g.GetState(rule.ToStateID)
		if err != nil {
			return nil, err
		}
		if req.TargetStateID != "" && req.TargetStateID != to.ID && req.TargetStateID != to.StateID {
			return nil, fmt.Errorf("%w: rule %s does not lead to %s", ErrNoSuchTransition, rule.ID, req.TargetStateID)
		}
		return to, nil
	}
	if req.TargetStateID == "" {
		return nil, fmt.Errorf("%w: target state or transition rule is required", ErrUnknownState)
	}
	return g.GetState(req.TargetStateID)
}

// AvailableTransitions returns the active rules from the instance's current state that the
// roles may execute. Non-active instances have none.
func AvailableTransitions(inst *entity.WorkflowInstance, g *Graph, roles entity.RoleSet) []entity.TransitionRule {
	out := []entity.TransitionRule{}
	if inst == nil || inst.Status != entity.StatusActive {
		return out
	}
	for _, rule := range g.OutgoingActive(inst.CurrentStateID) {
		rule := rule
		if CanTransition(&rule, roles) {
			out = append(out, rule)
		}
	}
	return out
}
