package event

// Type identifies the type of workflow event
type Type string

const (
	TypeStateChanged Type = "workflow.state_changed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	return t == TypeStateChanged
}

// Message metadata keys set on every queued event
const (
	MetadataEventType  = "event_type"
	MetadataRoutingKey = "routing_key"
)

// Keys used in WorkflowStateChangedEvent.Metadata
const (
	MetaPublished      = "published"
	MetaLifecycle      = "lifecycle"
	MetaInstanceStatus = "instanceStatus"
	MetaErrorKind      = "errorKind"
	MetaDefinitionID   = "workflowDefinitionId"
)
