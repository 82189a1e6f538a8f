package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/editorial-workflow/internal/application/port"
	"github.com/garyjia/editorial-workflow/internal/domain/entity"
	"github.com/garyjia/editorial-workflow/internal/domain/event"
)

const defaultNotificationPageSize = 50

// NotificationService materializes state-change events into the notification feed
type NotificationService struct {
	notifications port.NotificationRepository
	logger        Logger
	now           func() time.Time
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(notifications port.NotificationRepository, logger Logger) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// HandleEvent stores one notification per event. Redelivered events are ignored.
func (s *NotificationService) HandleEvent(ctx context.Context, evt *event.WorkflowStateChangedEvent) error {
	title, message := describe(evt)
	n := &entity.StateChangedNotification{
		ID:                 uuid.NewString(),
		EventID:            evt.EventID,
		WorkflowInstanceID: evt.WorkflowInstanceID,
		ContentID:          evt.ContentID,
		ContentType:        evt.ContentType,
		FromState:          evt.FromState,
		ToState:            evt.ToState,
		UserID:             evt.UserID,
		Username:           evt.Username,
		Title:              title,
		Message:            message,
		Success:            evt.Success,
		Timestamp:          evt.Timestamp,
		CreatedAt:          s.now(),
	}

	created, err := s.notifications.Create(ctx, n)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	if !created {
		s.logger.Info("Notification already exists", "event_id", evt.EventID)
	}
	return nil
}

func describe(evt *event.WorkflowStateChangedEvent) (string, string) {
	who := evt.Username
	if who == "" {
		who = evt.UserID
	}
	item := evt.ContentID
	if evt.ContentType != "" {
		item = evt.ContentType + " " + evt.ContentID
	}

	switch {
	case !evt.Success:
		return "Workflow change rejected",
			fmt.Sprintf("%s could not move %s to %s: %s", who, item, evt.ToState, evt.ErrorMessage)
	case evt.Metadata[event.MetaLifecycle] != "":
		return fmt.Sprintf("Workflow %s", evt.Metadata[event.MetaInstanceStatus]),
			fmt.Sprintf("%s applied %s to %s", who, evt.Metadata[event.MetaLifecycle], item)
	case evt.FromState == "":
		return "Workflow started",
			fmt.Sprintf("%s entered the workflow at %s", item, evt.ToState)
	case evt.Metadata[event.MetaPublished] == "true":
		return "Content published",
			fmt.Sprintf("%s published %s", who, item)
	default:
		return fmt.Sprintf("Moved to %s", evt.ToState),
			fmt.Sprintf("%s moved %s from %s to %s", who, item, evt.FromState, evt.ToState)
	}
}

// List returns notifications newest first
func (s *NotificationService) List(ctx context.Context, limit, offset int) ([]*entity.StateChangedNotification, error) {
	if limit <= 0 {
		limit = defaultNotificationPageSize
	}
	if offset < 0 {
		offset = 0
	}
	items, err := s.notifications.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("Failed to list notifications", "error", err)
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

// ListByContent returns the notifications of a content item, newest first
func (s *NotificationService) ListByContent(ctx context.Context, contentID string) ([]*entity.StateChangedNotification, error) {
	items, err := s.notifications.ListByContentID(ctx, contentID)
	if err != nil {
		s.logger.Error("Failed to list notifications", "error", err, "content_id", contentID)
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

// TransitionFrequency counts successful moves per state pair
func (s *NotificationService) TransitionFrequency(ctx context.Context) ([]entity.TransitionFrequency, error) {
	freq, err := s.notifications.TransitionFrequency(ctx)
	if err != nil {
		s.logger.Error("Failed to summarize transitions", "error", err)
		return nil, fmt.Errorf("transition frequency: %w", err)
	}
	return freq, nil
}

// Purge deletes notifications created before the cutoff
func (s *NotificationService) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.notifications.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return n, nil
}
