package event

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"state changed", TypeStateChanged, true},
		{"unknown", Type("instance.created"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewStateChanged(t *testing.T) {
	before := time.Now().UTC()
	evt := NewStateChanged("inst-1", "content-1", "page")

	if evt.EventID == "" {
		t.Error("EventID should be generated")
	}
	if evt.WorkflowInstanceID != "inst-1" || evt.ContentID != "content-1" || evt.ContentType != "page" {
		t.Errorf("unexpected identity fields: %+v", evt)
	}
	if evt.Timestamp.Before(before) {
		t.Error("Timestamp should be set to now")
	}
	if evt.Metadata == nil {
		t.Error("Metadata should be initialized")
	}
}

func TestEvent_UniqueIDs(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		evt := NewStateChanged("inst", "content", "page")
		if ids[evt.EventID] {
			t.Errorf("Duplicate event ID found: %s", evt.EventID)
		}
		ids[evt.EventID] = true
	}
}

func TestEvent_WithMetadata(t *testing.T) {
	original := NewStateChanged("inst-1", "content-1", "page").WithMetadata("a", "1")
	modified := original.WithMetadata("b", "2")

	if _, exists := original.Metadata["b"]; exists {
		t.Error("Original event should not be modified")
	}
	if modified.Metadata["a"] != "1" || modified.Metadata["b"] != "2" {
		t.Errorf("Modified event metadata = %v", modified.Metadata)
	}
	if modified.EventID != original.EventID {
		t.Error("Modified event should keep the event id")
	}
}

func TestEvent_Failed(t *testing.T) {
	evt := NewStateChanged("inst-1", "content-1", "page")
	evt.Success = true

	failed := evt.Failed(errors.New("forbidden"))

	if failed.Success {
		t.Error("Failed event should not be successful")
	}
	if failed.ErrorMessage != "forbidden" {
		t.Errorf("ErrorMessage = %q, want %q", failed.ErrorMessage, "forbidden")
	}
	if !evt.Success {
		t.Error("Original event should not be modified")
	}
}

func TestEvent_RoutingKey(t *testing.T) {
	if got := NewStateChanged("inst-1", "content-1", "page").RoutingKey(); got != "inst-1" {
		t.Errorf("RoutingKey() = %q, want instance id", got)
	}
	if got := NewStateChanged("", "content-1", "page").RoutingKey(); got != "content-1" {
		t.Errorf("RoutingKey() = %q, want content id when no instance", got)
	}
}

func TestEncode_CamelCaseContract(t *testing.T) {
	evt := NewStateChanged("inst-1", "content-1", "page")
	payload, err := Encode(evt)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}

	for _, key := range []string{
		"eventId", "workflowInstanceId", "contentId", "contentType", "fromState", "toState",
		"userId", "username", "timestamp", "comments", "transitionRuleId",
		"isAutomaticTransition", "metadata", "success", "errorMessage",
	} {
		if _, ok := fields[key]; !ok {
			t.Errorf("payload is missing %q", key)
		}
	}
}

func TestDecode(t *testing.T) {
	evt := NewStateChanged("inst-1", "content-1", "page")
	evt.FromState = "draft"
	evt.ToState = "review"
	payload, _ := Encode(evt)

	decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if decoded.EventID != evt.EventID || decoded.ToState != "review" {
		t.Errorf("decoded event = %+v", decoded)
	}

	if _, err := Decode([]byte("{not json")); err == nil || !strings.Contains(err.Error(), "malformed") {
		t.Errorf("Decode() of garbage error = %v, want malformed", err)
	}

	if _, err := Decode([]byte(`{"contentId":"c"}`)); err == nil || !strings.Contains(err.Error(), "invalid event") {
		t.Errorf("Decode() without id error = %v, want invalid event", err)
	}
}
