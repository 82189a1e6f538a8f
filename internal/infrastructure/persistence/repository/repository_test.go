package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/editorial-workflow/internal/domain/entity"
	"github.com/garyjia/editorial-workflow/internal/domain/workflow"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/editorial-workflow/pkg/database"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "workflow.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).Migrate())
	return db
}

func sampleDefinition(id string, version int) *entity.WorkflowDefinition {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &entity.WorkflowDefinition{
		ID:           id,
		Name:         "Editorial",
		Description:  "Standard review",
		Version:      version,
		IsActive:     true,
		ContentTypes: []string{"page", "post"},
		States: []entity.WorkflowState{
			{ID: "s-draft", StateID: "draft", Name: "Draft", IsInitial: true, SortOrder: 1, ColorCode: "#6c757d"},
			{ID: "s-review", StateID: "review", Name: "In Review", SortOrder: 2},
			{ID: "s-published", StateID: "published", Name: "Published", IsPublished: true, IsFinal: true, SortOrder: 3},
		},
		Transitions: []entity.TransitionRule{
			{ID: "r-submit", FromStateID: "s-draft", ToStateID: "s-review", AllowedRoles: entity.NewRoleSet("Editor", "Author"), IsActive: true, SortOrder: 1},
			{ID: "r-publish", FromStateID: "s-review", ToStateID: "s-published", AllowedRoles: entity.NewRoleSet("Publisher"), RequiresComment: true, IsActive: true, SortOrder: 2},
		},
		Created:      now,
		LastModified: now,
	}
}

func sampleInstance(id, contentID, definitionID string, created time.Time) *entity.WorkflowInstance {
	return &entity.WorkflowInstance{
		ID:                   id,
		ContentID:            contentID,
		ContentType:          "page",
		WorkflowDefinitionID: definitionID,
		CurrentStateID:       "s-draft",
		Status:               entity.StatusActive,
		CreatedBy:            "u-1",
		Created:              created,
		LastModified:         created,
		Version:              1,
		History: []entity.HistoryEntry{
			{ID: id + "-h0", InstanceID: id, Kind: entity.HistoryKindCreated, ToStateID: "s-draft", PerformedBy: "u-1", Timestamp: created, Success: true},
		},
	}
}

func TestDefinitionRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewDefinitionRepository(db.DB, zap.NewNop())

	require.NoError(t, repo.Create(ctx, sampleDefinition("def-1", 1)))

	got, err := repo.GetByID(ctx, "def-1")
	require.NoError(t, err)
	assert.Equal(t, "Editorial", got.Name)
	assert.Equal(t, []string{"page", "post"}, got.ContentTypes)
	require.Len(t, got.States, 3)
	assert.Equal(t, "draft", got.States[0].StateID)
	assert.True(t, got.States[0].IsInitial)
	require.Len(t, got.Transitions, 2)
	assert.Equal(t, []string{"Author", "Editor"}, got.Transitions[0].AllowedRoles.Slice())
	assert.True(t, got.Transitions[1].RequiresComment)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestDefinitionRepository_VersionsShareStateIDs(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewDefinitionRepository(db.DB, zap.NewNop())

	require.NoError(t, repo.Create(ctx, sampleDefinition("def-1", 1)))
	require.NoError(t, repo.Create(ctx, sampleDefinition("def-2", 2)))

	err := repo.Create(ctx, sampleDefinition("def-3", 2))
	assert.ErrorIs(t, err, workflow.ErrInvalidDefinition)

	latest, err := repo.GetLatestByName(ctx, "Editorial")
	require.NoError(t, err)
	assert.Equal(t, "def-2", latest.ID)
	assert.Len(t, latest.States, 3)

	defs, err := repo.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, 1, defs[0].Version)
	assert.Len(t, defs[1].Transitions, 2)
}

func TestDefinitionRepository_UpdateReplacesChildren(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewDefinitionRepository(db.DB, zap.NewNop())
	require.NoError(t, repo.Create(ctx, sampleDefinition("def-1", 1)))

	def, err := repo.GetByID(ctx, "def-1")
	require.NoError(t, err)
	def.Description = "Trimmed"
	def.IsActive = false
	def.ContentTypes = nil
	def.States = def.States[:2]
	def.Transitions = def.Transitions[:1]
	require.NoError(t, repo.Update(ctx, def))

	got, err := repo.GetByID(ctx, "def-1")
	require.NoError(t, err)
	assert.Equal(t, "Trimmed", got.Description)
	assert.False(t, got.IsActive)
	assert.Empty(t, got.ContentTypes)
	assert.Len(t, got.States, 2)
	assert.Len(t, got.Transitions, 1)

	active, err := repo.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, repo.Delete(ctx, "def-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "def-1"), workflow.ErrNotFound)
}

func TestInstanceRepository_UpdateChecksVersion(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	logger := zap.NewNop()
	require.NoError(t, NewDefinitionRepository(db.DB, logger).Create(ctx, sampleDefinition("def-1", 1)))
	repo := NewInstanceRepository(db.DB, logger)

	created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, sampleInstance("inst-1", "content-1", "def-1", created)))

	inst, err := repo.GetByID(ctx, "inst-1")
	require.NoError(t, err)
	require.Len(t, inst.History, 1)

	entry := entity.HistoryEntry{
		ID: "h-1", InstanceID: "inst-1", Kind: entity.HistoryKindTransition,
		FromStateID: "s-draft", ToStateID: "s-review", TransitionRuleID: "r-submit",
		PerformedBy: "u-1", PerformedByName: "User One", Timestamp: created.Add(time.Minute), Success: true,
	}
	inst.CurrentStateID = "s-review"
	inst.LastModified = entry.Timestamp
	require.NoError(t, repo.Update(ctx, inst, 1, []entity.HistoryEntry{entry}))
	assert.Equal(t, int64(2), inst.Version)

	err = repo.Update(ctx, inst, 1, []entity.HistoryEntry{{ID: "h-2", Kind: entity.HistoryKindTransition, ToStateID: "s-draft", Timestamp: created}})
	assert.ErrorIs(t, err, workflow.ErrConcurrentModification)

	stored, err := repo.GetByID(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "s-review", stored.CurrentStateID)
	assert.Equal(t, int64(2), stored.Version)
	require.Len(t, stored.History, 2)
	assert.Equal(t, "r-submit", stored.History[1].TransitionRuleID)
	assert.Equal(t, "User One", stored.History[1].PerformedByName)
}

func TestInstanceRepository_ConcurrentUpdatesOneWins(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	logger := zap.NewNop()
	require.NoError(t, NewDefinitionRepository(db.DB, logger).Create(ctx, sampleDefinition("def-1", 1)))
	repo := NewInstanceRepository(db.DB, logger)
	txManager := sqlite.NewTransactor(db.DB, logger)

	created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, sampleInstance("inst-1", "content-1", "def-1", created)))

	const writers = 6
	start := make(chan struct{})
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst := sampleInstance("inst-1", "content-1", "def-1", created)
			inst.CurrentStateID = "s-review"
			inst.LastModified = created.Add(time.Minute)
			entry := entity.HistoryEntry{
				ID: fmt.Sprintf("h-%d", i), InstanceID: "inst-1", Kind: entity.HistoryKindTransition,
				FromStateID: "s-draft", ToStateID: "s-review", TransitionRuleID: "r-submit",
				PerformedBy: fmt.Sprintf("u-%d", i), Timestamp: inst.LastModified, Success: true,
			}

			<-start
			errs[i] = txManager.WithTransaction(ctx, func(txCtx context.Context) error {
				return repo.Update(txCtx, inst, 1, []entity.HistoryEntry{entry})
			})
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, workflow.ErrConcurrentModification)
	}
	assert.Equal(t, 1, wins)

	stored, err := repo.GetByID(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
	assert.Len(t, stored.History, 2, "only the winner appends history")
}

func TestInstanceRepository_LatestByContent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	logger := zap.NewNop()
	require.NoError(t, NewDefinitionRepository(db.DB, logger).Create(ctx, sampleDefinition("def-1", 1)))
	repo := NewInstanceRepository(db.DB, logger)

	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, sampleInstance("inst-old", "content-1", "def-1", base)))
	require.NoError(t, repo.Create(ctx, sampleInstance("inst-new", "content-1", "def-1", base.Add(time.Hour))))

	latest, err := repo.GetLatestByContentID(ctx, "content-1")
	require.NoError(t, err)
	assert.Equal(t, "inst-new", latest.ID)

	_, err = repo.GetLatestByContentID(ctx, "content-2")
	assert.ErrorIs(t, err, workflow.ErrNotFound)

	n, err := repo.CountByDefinitionID(ctx, "def-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTransaction_RollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	logger := zap.NewNop()
	require.NoError(t, NewDefinitionRepository(db.DB, logger).Create(ctx, sampleDefinition("def-1", 1)))

	txManager := sqlite.NewTransactor(db.DB, logger)
	instances := NewInstanceRepository(db.DB, logger)
	bindings := NewBindingRepository(db.DB, logger)

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	boom := errors.New("boom")
	err := txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := instances.Create(txCtx, sampleInstance("inst-1", "content-1", "def-1", now)); err != nil {
			return err
		}
		if err := bindings.Upsert(txCtx, &entity.WorkflowContentExtension{
			ContentID: "content-1", CurrentWorkflowInstanceID: "inst-1", LastModified: now,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = instances.GetByID(ctx, "inst-1")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
	_, err = bindings.Get(ctx, "content-1")
	assert.ErrorIs(t, err, workflow.ErrNotFound)
}

func TestBindingRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	logger := zap.NewNop()
	require.NoError(t, NewDefinitionRepository(db.DB, logger).Create(ctx, sampleDefinition("def-1", 1)))
	instances := NewInstanceRepository(db.DB, logger)
	repo := NewBindingRepository(db.DB, logger)

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, instances.Create(ctx, sampleInstance("inst-1", "content-1", "def-1", now)))
	require.NoError(t, instances.Create(ctx, sampleInstance("inst-2", "content-1", "def-1", now.Add(time.Hour))))

	require.NoError(t, repo.Upsert(ctx, &entity.WorkflowContentExtension{ContentID: "content-1", CurrentWorkflowInstanceID: "inst-1", LastModified: now}))
	require.NoError(t, repo.Upsert(ctx, &entity.WorkflowContentExtension{ContentID: "content-1", CurrentWorkflowInstanceID: "inst-2", LastModified: now}))

	b, err := repo.Get(ctx, "content-1")
	require.NoError(t, err)
	assert.Equal(t, "inst-2", b.CurrentWorkflowInstanceID)

	require.NoError(t, repo.Delete(ctx, "content-1"))
	assert.ErrorIs(t, repo.Delete(ctx, "content-1"), workflow.ErrNotFound)
}

func TestAuditRepository_IdempotentAndRetention(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewAuditRepository(db.DB, zap.NewNop())

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	old := &entity.StateChangeRecord{
		ID: "r-1", EventID: "e-1", ContentID: "content-1", ToState: "draft",
		Success: true, Timestamp: now.Add(-48 * time.Hour), RecordedAt: now.Add(-48 * time.Hour),
	}
	failed := &entity.StateChangeRecord{
		ID: "r-2", EventID: "e-2", ContentID: "content-1", FromState: "draft", ToState: "review",
		Success: false, ErrorMessage: "forbidden", Metadata: map[string]string{"errorKind": "permission_denied"},
		Timestamp: now, RecordedAt: now,
	}

	for _, rec := range []*entity.StateChangeRecord{old, failed} {
		created, err := repo.Create(ctx, rec)
		require.NoError(t, err)
		assert.True(t, created)
	}

	created, err := repo.Create(ctx, &entity.StateChangeRecord{
		ID: "r-3", EventID: "e-2", ContentID: "content-1", Timestamp: now, RecordedAt: now,
	})
	require.NoError(t, err)
	assert.False(t, created)

	history, err := repo.ListByContentID(ctx, "content-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "r-2", history[0].ID)
	assert.Equal(t, "permission_denied", history[0].Metadata["errorKind"])

	summary, err := repo.Summary(ctx, "content-1")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalCount)
	assert.Equal(t, 1, summary.SuccessCount)
	assert.Equal(t, 1, summary.FailureCount)
	require.NotNil(t, summary.LastChange)
	assert.Equal(t, "r-2", summary.LastChange.ID)

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	history, err = repo.ListByContentID(ctx, "content-1", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestNotificationRepository_FrequencyAndPaging(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewNotificationRepository(db.DB, zap.NewNop())

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	items := []*entity.StateChangedNotification{
		{ID: "n-1", EventID: "e-1", ContentID: "a", ToState: "draft", Title: "Workflow started", Message: "m", Success: true, Timestamp: now.Add(-3 * time.Minute), CreatedAt: now.Add(-72 * time.Hour)},
		{ID: "n-2", EventID: "e-2", ContentID: "a", FromState: "draft", ToState: "review", Title: "Moved to review", Message: "m", Success: true, Timestamp: now.Add(-2 * time.Minute), CreatedAt: now},
		{ID: "n-3", EventID: "e-3", ContentID: "b", FromState: "draft", ToState: "review", Title: "Moved to review", Message: "m", Success: true, Timestamp: now.Add(-time.Minute), CreatedAt: now},
		{ID: "n-4", EventID: "e-4", ContentID: "b", FromState: "review", ToState: "published", Title: "Workflow change rejected", Message: "m", Success: false, Timestamp: now, CreatedAt: now},
	}
	for _, n := range items {
		created, err := repo.Create(ctx, n)
		require.NoError(t, err)
		assert.True(t, created)
	}

	page, err := repo.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "n-4", page[0].ID)

	byContent, err := repo.ListByContentID(ctx, "a")
	require.NoError(t, err)
	require.Len(t, byContent, 2)
	assert.Equal(t, "n-2", byContent[0].ID)

	freq, err := repo.TransitionFrequency(ctx)
	require.NoError(t, err)
	require.Len(t, freq, 1)
	assert.Equal(t, entity.TransitionFrequency{FromState: "draft", ToState: "review", Count: 2}, freq[0])

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
