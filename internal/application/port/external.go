package port

import (
	"context"

	"github.com/garyjia/editorial-workflow/internal/domain/entity"
	"github.com/garyjia/editorial-workflow/internal/domain/event"
)

// EventPublisher enqueues state-change events for asynchronous consumers.
// A nil error only means the event was accepted by the queue.
type EventPublisher interface {
	Publish(ctx context.Context, evt *event.WorkflowStateChangedEvent) error
}

// ContentPublisher marks content as published in the content store
type ContentPublisher interface {
	MarkPublished(ctx context.Context, contentID, contentType string, actor entity.Actor) error
}
