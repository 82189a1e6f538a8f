package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/garyjia/editorial-workflow/internal/application/port"
	"github.com/garyjia/editorial-workflow/internal/domain/entity"
)

// AuditRepository implements port.AuditRepository
type AuditRepository struct {
	store *Store
}

func copyRecord(rec *entity.StateChangeRecord) *entity.StateChangeRecord {
	out := *rec
	if rec.Metadata != nil {
		out.Metadata = make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Create stores the record unless its event was already recorded
func (r *AuditRepository) Create(ctx context.Context, rec *entity.StateChangeRecord) (bool, error) {
	created := false
	err := r.store.write(ctx, func(txn *memdb.Txn) error {
		existing, err := txn.First(tableAudit, "event", rec.EventID)
		if err != nil {
			return fmt.Errorf("failed to look up audit record: %w", err)
		}
		if existing != nil {
			return nil
		}
		if err := txn.Insert(tableAudit, copyRecord(rec)); err != nil {
			return fmt.Errorf("failed to create audit record: %w", err)
		}
		created = true
		return nil
	})
	return created, err
}

// ListByContentID returns a content item's records, newest first
func (r *AuditRepository) ListByContentID(ctx context.Context, contentID string, limit int) ([]*entity.StateChangeRecord, error) {
	it, err := r.store.read(ctx).Get(tableAudit, "content", contentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	records := []*entity.StateChangeRecord{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		records = append(records, copyRecord(obj.(*entity.StateChangeRecord)))
	}
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].RecordedAt.After(records[j].RecordedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Summary counts a content item's records and returns the latest one
func (r *AuditRepository) Summary(ctx context.Context, contentID string) (*entity.AuditSummary, error) {
	records, err := r.ListByContentID(ctx, contentID, 0)
	if err != nil {
		return nil, err
	}

	summary := &entity.AuditSummary{ContentID: contentID, TotalCount: len(records)}
	for _, rec := range records {
		if rec.Success {
			summary.SuccessCount++
		} else {
			summary.FailureCount++
		}
	}
	if len(records) > 0 {
		summary.LastChange = records[0]
	}
	return summary, nil
}

// DeleteOlderThan removes records stored before the cutoff
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.store.write(ctx, func(txn *memdb.Txn) error {
		it, err := txn.Get(tableAudit, "id_prefix", "")
		if err != nil {
			return fmt.Errorf("failed to scan audit records: %w", err)
		}
		var stale []interface{}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			if obj.(*entity.StateChangeRecord).RecordedAt.Before(cutoff) {
				stale = append(stale, obj)
			}
		}
		for _, obj := range stale {
			if err := txn.Delete(tableAudit, obj); err != nil {
				return fmt.Errorf("failed to delete audit record: %w", err)
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	store *Store
}

// Create stores the notification unless its event was already recorded
func (r *NotificationRepository) Create(ctx context.Context, n *entity.StateChangedNotification) (bool, error) {
	created := false
	err := r.store.write(ctx, func(txn *memdb.Txn) error {
		existing, err := txn.First(tableNotification, "event", n.EventID)
		if err != nil {
			return fmt.Errorf("failed to look up notification: %w", err)
		}
		if existing != nil {
			return nil
		}
		stored := *n
		if err := txn.Insert(tableNotification, &stored); err != nil {
			return fmt.Errorf("failed to create notification: %w", err)
		}
		created = true
		return nil
	})
	return created, err
}

// List returns notifications newest first
func (r *NotificationRepository) List(ctx context.Context, limit, offset int) ([]*entity.StateChangedNotification, error) {
	items, err := r.collect(ctx, "id_prefix", "")
	if err != nil {
		return nil, err
	}
	if offset >= len(items) {
		return []*entity.StateChangedNotification{}, nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// ListByContentID returns a content item's notifications newest first
func (r *NotificationRepository) ListByContentID(ctx context.Context, contentID string) ([]*entity.StateChangedNotification, error) {
	return r.collect(ctx, "content", contentID)
}

// TransitionFrequency counts successful moves between two different states
func (r *NotificationRepository) TransitionFrequency(ctx context.Context) ([]entity.TransitionFrequency, error) {
	items, err := r.collect(ctx, "id_prefix", "")
	if err != nil {
		return nil, err
	}

	counts := make(map[[2]string]int)
	for _, n := range items {
		if !n.Success || n.FromState == "" || n.FromState == n.ToState {
			continue
		}
		counts[[2]string{n.FromState, n.ToState}]++
	}

	freq := make([]entity.TransitionFrequency, 0, len(counts))
	for pair, count := range counts {
		freq = append(freq, entity.TransitionFrequency{FromState: pair[0], ToState: pair[1], Count: count})
	}
	sort.Slice(freq, func(i, j int) bool {
		if freq[i].Count != freq[j].Count {
			return freq[i].Count > freq[j].Count
		}
		if freq[i].FromState != freq[j].FromState {
			return freq[i].FromState < freq[j].FromState
		}
		return freq[i].ToState < freq[j].ToState
	})
	return freq, nil
}

// DeleteOlderThan removes notifications created before the cutoff
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := r.store.write(ctx, func(txn *memdb.Txn) error {
		it, err := txn.Get(tableNotification, "id_prefix", "")
		if err != nil {
			return fmt.Errorf("failed to scan notifications: %w", err)
		}
		var stale []interface{}
		for obj := it.Next(); obj != nil; obj = it.Next() {
			if obj.(*entity.StateChangedNotification).CreatedAt.Before(cutoff) {
				stale = append(stale, obj)
			}
		}
		for _, obj := range stale {
			if err := txn.Delete(tableNotification, obj); err != nil {
				return fmt.Errorf("failed to delete notification: %w", err)
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (r *NotificationRepository) collect(ctx context.Context, index string, args ...interface{}) ([]*entity.StateChangedNotification, error) {
	it, err := r.store.read(ctx).Get(tableNotification, index, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	items := []*entity.StateChangedNotification{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		n := *obj.(*entity.StateChangedNotification)
		items = append(items, &n)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.After(items[j].Timestamp)
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

// Verify interface compliance
var (
	_ port.AuditRepository        = (*AuditRepository)(nil)
	_ port.NotificationRepository = (*NotificationRepository)(nil)
)
