package entity

import "time"

// HistoryKind tells apart transitions from the notes written around them
type HistoryKind string

const (
	HistoryKindCreated    HistoryKind = "created"
	HistoryKindTransition HistoryKind = "transition"
	HistoryKindPublished  HistoryKind = "published"
	HistoryKindLifecycle  HistoryKind = "lifecycle"
)

// HistoryEntry is one immutable entry of an instance's history.
// FromStateID is empty for the entry written when the instance is created.
type HistoryEntry struct {
	ID               string      `json:"id"`
	InstanceID       string      `json:"instance_id"`
	Kind             HistoryKind `json:"kind"`
	FromStateID      string      `json:"from_state_id,omitempty"`
	ToStateID        string      `json:"to_state_id"`
	TransitionRuleID string      `json:"transition_rule_id,omitempty"`
	PerformedBy      string      `json:"performed_by"`
	PerformedByName  string      `json:"performed_by_name"`
	Timestamp        time.Time   `json:"timestamp"`
	Comment          string      `json:"comment,omitempty"`
	Success          bool        `json:"success"`
	ErrorMessage     string      `json:"error_message,omitempty"`
}
