package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkflowStateChangedEvent is emitted for every transition attempt, successful or not
type WorkflowStateChangedEvent struct {
	EventID               string            `json:"eventId"`
	WorkflowInstanceID    string            `json:"workflowInstanceId"`
	ContentID             string            `json:"contentId"`
	ContentType           string            `json:"contentType"`
	FromState             string            `json:"fromState"`
	ToState               string            `json:"toState"`
	UserID                string            `json:"userId"`
	Username              string            `json:"username"`
	Timestamp             time.Time         `json:"timestamp"`
	Comments              string            `json:"comments"`
	TransitionRuleID      string            `json:"transitionRuleId"`
	IsAutomaticTransition bool              `json:"isAutomaticTransition"`
	Metadata              map[string]string `json:"metadata"`
	Success               bool              `json:"success"`
	ErrorMessage          string            `json:"errorMessage"`
}

// NewStateChanged creates an event with a fresh id and the current time
func NewStateChanged(instanceID, contentID, contentType string) *WorkflowStateChangedEvent {
	return &WorkflowStateChangedEvent{
		EventID:            uuid.NewString(),
		WorkflowInstanceID: instanceID,
		ContentID:          contentID,
		ContentType:        contentType,
		Timestamp:          time.Now().UTC(),
		Metadata:           map[string]string{},
	}
}

// Type returns the event type
func (e *WorkflowStateChangedEvent) Type() Type {
	return TypeStateChanged
}

// RoutingKey groups events so that one instance's events stay in order
func (e *WorkflowStateChangedEvent) RoutingKey() string {
	if e.WorkflowInstanceID != "" {
		return e.WorkflowInstanceID
	}
	return e.ContentID
}

// WithMetadata returns a copy of the event with an added metadata entry
func (e *WorkflowStateChangedEvent) WithMetadata(key, value string) *WorkflowStateChangedEvent {
	out := *e
	out.Metadata = make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata[key] = value
	return &out
}

// Failed marks the event as the record of a rejected attempt
func (e *WorkflowStateChangedEvent) Failed(err error) *WorkflowStateChangedEvent {
	out := *e
	out.Success = false
	if err != nil {
		out.ErrorMessage = err.Error()
	}
	return &out
}

// Validate checks the fields every consumer relies on
func (e *WorkflowStateChangedEvent) Validate() error {
	if e.EventID == "" {
		return errors.New("event id is required")
	}
	if e.ContentID == "" {
		return errors.New("content id is required")
	}
	if e.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}

// Encode serializes the event to its JSON wire form
func Encode(e *WorkflowStateChangedEvent) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses and validates a JSON wire payload
func Decode(payload []byte) (*WorkflowStateChangedEvent, error) {
	var e WorkflowStateChangedEvent
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("malformed event payload: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}
	return &e, nil
}
