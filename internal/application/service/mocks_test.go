package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/editorial-workflow/internal/application/port"
	"github.com/garyjia/editorial-workflow/internal/domain/entity"
	"github.com/garyjia/editorial-workflow/internal/domain/event"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/persistence/memory"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockPublisher struct {
	mu          sync.Mutex
	publishFunc func(ctx context.Context, evt *event.WorkflowStateChangedEvent) error
	events      []*event.WorkflowStateChangedEvent
}

func (m *mockPublisher) Publish(ctx context.Context, evt *event.WorkflowStateChangedEvent) error {
	m.mu.Lock()
	m.events = append(m.events, evt)
	m.mu.Unlock()
	if m.publishFunc != nil {
		return m.publishFunc(ctx, evt)
	}
	return nil
}

func (m *mockPublisher) published() []*event.WorkflowStateChangedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*event.WorkflowStateChangedEvent(nil), m.events...)
}

func (m *mockPublisher) last() *event.WorkflowStateChangedEvent {
	events := m.published()
	if len(events) == 0 {
		return nil
	}
	return events[len(events)-1]
}

type mockContentPublisher struct {
	markPublishedFunc func(ctx context.Context, contentID, contentType string, actor entity.Actor) error
	calls             []string
}

func (m *mockContentPublisher) MarkPublished(ctx context.Context, contentID, contentType string, actor entity.Actor) error {
	m.calls = append(m.calls, contentID)
	if m.markPublishedFunc != nil {
		return m.markPublishedFunc(ctx, contentID, contentType, actor)
	}
	return nil
}

type mockObserver struct {
	mu      sync.Mutex
	results []string
}

func (m *mockObserver) ObserveTransition(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
}

// mockInstanceRepo wraps a real repository and lets a test intercept Update
type mockInstanceRepo struct {
	port.InstanceRepository
	updateFunc func(ctx context.Context, inst *entity.WorkflowInstance, expectedVersion int64, appended []entity.HistoryEntry) error
}

func (m *mockInstanceRepo) Update(ctx context.Context, inst *entity.WorkflowInstance, expectedVersion int64, appended []entity.HistoryEntry) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, inst, expectedVersion, appended)
	}
	return m.InstanceRepository.Update(ctx, inst, expectedVersion, appended)
}

type testEnv struct {
	store         *memory.Store
	repos         Repositories
	definitions   *DefinitionService
	instances     *InstanceService
	audit         *AuditService
	notifications *NotificationService
	publisher     *mockPublisher
	content       *mockContentPublisher
	observer      *mockObserver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := memory.NewStore(zap.NewNop())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	env := &testEnv{
		store: store,
		repos: Repositories{
			Definitions:   store.Definitions(),
			Instances:     store.Instances(),
			Bindings:      store.Bindings(),
			Audit:         store.Audit(),
			Notifications: store.Notifications(),
		},
		publisher: &mockPublisher{},
		content:   &mockContentPublisher{},
		observer:  &mockObserver{},
	}
	env.rebuild()
	return env
}

// rebuild recreates the services after a test swapped one of the repositories
func (e *testEnv) rebuild() {
	logger := &mockLogger{}
	colors := map[string]string{"draft": "#6c757d", "published": "#28a745"}
	e.definitions = NewDefinitionService(e.repos.Definitions, e.repos.Instances, e.store, colors, logger)
	e.instances = NewInstanceService(e.repos, e.store, e.publisher, e.content, entity.NewRoleSet("Admin"), e.observer, logger)
	e.audit = NewAuditService(e.repos.Audit, logger)
	e.notifications = NewNotificationService(e.repos.Notifications, logger)
}

func actorWith(id string, roles ...string) entity.Actor {
	return entity.Actor{UserID: id, DisplayName: "User " + id, Roles: entity.NewRoleSet(roles...)}
}

// editorialDefinition is the draft -> review -> published flow used across the service tests.
// Rules name their endpoints by slug.
func editorialDefinition() *entity.WorkflowDefinition {
	return &entity.WorkflowDefinition{
		Name:         "Editorial",
		IsActive:     true,
		ContentTypes: []string{"page", "post"},
		States: []entity.WorkflowState{
			{StateID: "draft", Name: "Draft", IsInitial: true, SortOrder: 1},
			{StateID: "review", Name: "In Review", SortOrder: 2},
			{StateID: "published", Name: "Published", IsPublished: true, IsFinal: true, SortOrder: 3},
		},
		Transitions: []entity.TransitionRule{
			{ID: "submit", FromStateID: "draft", ToStateID: "review", AllowedRoles: entity.NewRoleSet("Editor"), IsActive: true},
			{ID: "reject", FromStateID: "review", ToStateID: "draft", AllowedRoles: entity.NewRoleSet("Reviewer"), RequiresComment: true, IsActive: true, SortOrder: 2},
			{ID: "publish", FromStateID: "review", ToStateID: "published", AllowedRoles: entity.NewRoleSet("Publisher", "Admin"), IsActive: true, SortOrder: 1},
		},
	}
}

func (e *testEnv) createDefinition(t *testing.T) *entity.WorkflowDefinition {
	t.Helper()
	def, err := e.definitions.Create(context.Background(), editorialDefinition())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return def
}

func stateBySlug(t *testing.T, def *entity.WorkflowDefinition, slug string) entity.WorkflowState {
	t.Helper()
	for _, s := range def.States {
		if s.StateID == slug {
			return s
		}
	}
	t.Fatalf("state %q not found", slug)
	return entity.WorkflowState{}
}

type failingNotifications struct {
	port.NotificationRepository
	err error
}

func (f *failingNotifications) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, f.err
}
