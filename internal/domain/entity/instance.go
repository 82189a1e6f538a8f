package entity

import "time"

// InstanceStatus is the lifecycle status of a workflow instance
type InstanceStatus string

const (
	StatusActive    InstanceStatus = "Active"
	StatusCompleted InstanceStatus = "Completed"
	StatusCancelled InstanceStatus = "Cancelled"
	StatusOnHold    InstanceStatus = "OnHold"
)

// IsTerminal returns true if no further change is allowed
func (s InstanceStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsValid returns true if the status is one of the defined constants
func (s InstanceStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled, StatusOnHold:
		return true
	default:
		return false
	}
}

// String returns the string representation of the status
func (s InstanceStatus) String() string {
	return string(s)
}

// WorkflowInstance is the live execution context of a definition bound to one content item
type WorkflowInstance struct {
	ID                   string         `json:"id"`
	ContentID            string         `json:"content_id"`
	ContentType          string         `json:"content_type"`
	WorkflowDefinitionID string         `json:"workflow_definition_id"`
	CurrentStateID       string         `json:"current_state_id"`
	Status               InstanceStatus `json:"status"`
	CreatedBy            string         `json:"created_by"`
	Created              time.Time      `json:"created"`
	LastModified         time.Time      `json:"last_modified"`
	// Version is bumped on every persisted change and guards against lost updates
	Version int64          `json:"version"`
	History []HistoryEntry `json:"history"`
}

// Clone returns a copy whose history can be appended without touching the original
func (i *WorkflowInstance) Clone() *WorkflowInstance {
	out := *i
	out.History = append([]HistoryEntry(nil), i.History...)
	return &out
}

// LastEntry returns the most recent history entry, or nil for an empty history
func (i *WorkflowInstance) LastEntry() *HistoryEntry {
	if len(i.History) == 0 {
		return nil
	}
	return &i.History[len(i.History)-1]
}

// WorkflowContentExtension links a content item to its current workflow instance
type WorkflowContentExtension struct {
	ContentID                 string    `json:"content_id"`
	CurrentWorkflowInstanceID string    `json:"current_workflow_instance_id"`
	LastModified              time.Time `json:"last_modified"`
}
