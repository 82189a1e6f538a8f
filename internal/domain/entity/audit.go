package entity

import "time"

// StateChangeRecord is the audit log's denormalized copy of one state-change event
type StateChangeRecord struct {
	ID                    string            `json:"id"`
	EventID               string            `json:"event_id"`
	WorkflowInstanceID    string            `json:"workflow_instance_id"`
	ContentID             string            `json:"content_id"`
	ContentType           string            `json:"content_type"`
	FromState             string            `json:"from_state,omitempty"`
	ToState               string            `json:"to_state"`
	UserID                string            `json:"user_id"`
	Username              string            `json:"username"`
	Timestamp             time.Time         `json:"timestamp"`
	Comments              string            `json:"comments,omitempty"`
	TransitionRuleID      string            `json:"transition_rule_id,omitempty"`
	IsAutomaticTransition bool              `json:"is_automatic_transition"`
	Metadata              map[string]string `json:"metadata,omitempty"`
	Success               bool              `json:"success"`
	ErrorMessage          string            `json:"error_message,omitempty"`
	RecordedAt            time.Time         `json:"recorded_at"`
}

// AuditSummary aggregates the audit log of one content item
type AuditSummary struct {
	ContentID    string             `json:"content_id"`
	TotalCount   int                `json:"total_count"`
	SuccessCount int                `json:"success_count"`
	FailureCount int                `json:"failure_count"`
	LastChange   *StateChangeRecord `json:"last_change,omitempty"`
}
