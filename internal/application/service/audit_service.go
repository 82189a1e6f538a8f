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

// AuditService materializes state-change events into the append-only audit log
// and answers reporting queries over it
type AuditService struct {
	records port.AuditRepository
	logger  Logger
	now     func() time.Time
}

// NewAuditService creates a new AuditService
func NewAuditService(records port.AuditRepository, logger Logger) *AuditService {
	return &AuditService{
		records: records,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// HandleEvent stores one audit record per event. Redelivered events are ignored.
func (s *AuditService) HandleEvent(ctx context.Context, evt *event.WorkflowStateChangedEvent) error {
	rec := &entity.StateChangeRecord{
		ID:                    uuid.NewString(),
		EventID:               evt.EventID,
		WorkflowInstanceID:    evt.WorkflowInstanceID,
		ContentID:             evt.ContentID,
		ContentType:           evt.ContentType,
		FromState:             evt.FromState,
		ToState:               evt.ToState,
		UserID:                evt.UserID,
		Username:              evt.Username,
		Timestamp:             evt.Timestamp,
		Comments:              evt.Comments,
		TransitionRuleID:      evt.TransitionRuleID,
		IsAutomaticTransition: evt.IsAutomaticTransition,
		Metadata:              evt.Metadata,
		Success:               evt.Success,
		ErrorMessage:          evt.ErrorMessage,
		RecordedAt:            s.now(),
	}

	created, err := s.records.Create(ctx, rec)
	if err != nil {
		return fmt.Errorf("create audit record: %w", err)
	}
	if !created {
		s.logger.Info("Audit record already exists", "event_id", evt.EventID)
	}
	return nil
}

// History returns the audit records of a content item, newest first
func (s *AuditService) History(ctx context.Context, contentID string, limit int) ([]*entity.StateChangeRecord, error) {
	records, err := s.records.ListByContentID(ctx, contentID, limit)
	if err != nil {
		s.logger.Error("Failed to list audit records", "error", err, "content_id", contentID)
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	return records, nil
}

// Summary returns success and failure counts and the last change of a content item
func (s *AuditService) Summary(ctx context.Context, contentID string) (*entity.AuditSummary, error) {
	summary, err := s.records.Summary(ctx, contentID)
	if err != nil {
		s.logger.Error("Failed to summarize audit records", "error", err, "content_id", contentID)
		return nil, fmt.Errorf("summarize audit records: %w", err)
	}
	return summary, nil
}

// Purge deletes audit records created before the cutoff
func (s *AuditService) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.records.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit records: %w", err)
	}
	return n, nil
}
