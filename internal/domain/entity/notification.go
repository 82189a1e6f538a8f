package entity

import "time"

// StateChangedNotification is the notification feed's view of one state-change event
type StateChangedNotification struct {
	ID                 string    `json:"id"`
	EventID            string    `json:"event_id"`
	WorkflowInstanceID string    `json:"workflow_instance_id"`
	ContentID          string    `json:"content_id"`
	ContentType        string    `json:"content_type"`
	FromState          string    `json:"from_state,omitempty"`
	ToState            string    `json:"to_state"`
	UserID             string    `json:"user_id"`
	Username           string    `json:"username"`
	Title              string    `json:"title"`
	Message            string    `json:"message"`
	Success            bool      `json:"success"`
	Timestamp          time.Time `json:"timestamp"`
	CreatedAt          time.Time `json:"created_at"`
}

// TransitionFrequency counts how often content moved between two states
type TransitionFrequency struct {
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Count     int    `json:"count"`
}
