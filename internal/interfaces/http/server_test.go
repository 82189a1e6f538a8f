package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/editorial-workflow/internal/application/service"
	"github.com/garyjia/editorial-workflow/internal/domain/entity"
	"github.com/garyjia/editorial-workflow/internal/domain/workflow"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/persistence/memory"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/queue"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/worker"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

type testServer struct {
	server  *Server
	manager *worker.WorkerManager
	pingErr error
}

// newTestServer wires the services over the in-memory store and the in-process
// queue, with the audit and notification consumers running
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	store, err := memory.NewStore(logger)
	require.NoError(t, err)

	transport, err := queue.NewTransport(queue.TransportConfig{Kind: queue.TransportGoChannel}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = transport.Close() })

	const topic = "workflow.state_changed"
	publisher := queue.NewPublisher(transport.Publisher(), queue.PublisherConfig{Topic: topic}, nil, logger)

	repos := service.Repositories{
		Definitions:   store.Definitions(),
		Instances:     store.Instances(),
		Bindings:      store.Bindings(),
		Audit:         store.Audit(),
		Notifications: store.Notifications(),
	}
	definitions := service.NewDefinitionService(repos.Definitions, repos.Instances, store, nil, nopLogger{})
	instances := service.NewInstanceService(repos, store, publisher, nil, entity.NewRoleSet("Admin"), nil, nopLogger{})
	audit := service.NewAuditService(repos.Audit, nopLogger{})
	notifications := service.NewNotificationService(repos.Notifications, nopLogger{})

	manager := worker.NewWorkerManager(logger)
	for name, handler := range map[string]queue.HandlerFunc{
		"audit":        audit.HandleEvent,
		"notification": notifications.HandleEvent,
	} {
		sub, err := transport.Subscriber(name)
		require.NoError(t, err)
		manager.Register(queue.NewConsumer(name, sub, queue.ConsumerConfig{Topic: topic}, handler, nil, logger))
	}
	require.NoError(t, manager.StartAll(context.Background()))
	t.Cleanup(func() { _ = manager.StopAll() })
	t.Cleanup(func() { _ = publisher.Close(context.Background()) })

	ts := &testServer{manager: manager}
	ts.server = NewServer(DefaultServerConfig(), Dependencies{
		Definitions:   definitions,
		Instances:     instances,
		Audit:         audit,
		Notifications: notifications,
		Workers:       manager,
		Ping:          func(context.Context) error { return ts.pingErr },
		RoleMapping:   map[string][]string{"ChiefEditor": {"Editor", "Publisher"}},
	}, nopLogger{})
	return ts
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type problemBody struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, user string, roles string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(HeaderUserID, user)
		req.Header.Set(HeaderUserName, "User "+user)
	}
	if roles != "" {
		req.Header.Set(HeaderUserRoles, roles)
	}

	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	require.True(t, resp.Success, rec.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, out))
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problemBody {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p problemBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p), rec.Body.String())
	return p
}

func editorialBody() map[string]interface{} {
	return map[string]interface{}{
		"name":          "Editorial",
		"is_active":     true,
		"content_types": []string{"page"},
		"states": []map[string]interface{}{
			{"state_id": "draft", "name": "Draft", "is_initial": true, "sort_order": 1},
			{"state_id": "review", "name": "In Review", "sort_order": 2},
			{"state_id": "published", "name": "Published", "is_published": true, "is_final": true, "sort_order": 3},
		},
		"transitions": []map[string]interface{}{
			{"id": "submit", "from_state_id": "draft", "to_state_id": "review", "allowed_roles": []string{"Editor"}, "is_active": true},
			{"id": "reject", "from_state_id": "review", "to_state_id": "draft", "allowed_roles": []string{"Reviewer"}, "requires_comment": true, "is_active": true},
			{"id": "publish", "from_state_id": "review", "to_state_id": "published", "allowed_roles": []string{"Publisher"}, "is_active": true},
		},
	}
}

func (ts *testServer) createDefinition(t *testing.T) entity.WorkflowDefinition {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/definitions", editorialBody(), "admin", "Admin")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var def entity.WorkflowDefinition
	decodeData(t, rec, &def)
	return def
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthResponse
	decodeData(t, rec, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "running", health.Workers)
	assert.ElementsMatch(t, []string{"audit", "notification"}, health.Names)

	ts.pingErr = errors.New("database is closed")
	rec = ts.do(t, http.MethodGet, "/health", nil, "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unreachable")
}

func TestEditorialFlow(t *testing.T) {
	ts := newTestServer(t)
	def := ts.createDefinition(t)
	assert.Len(t, def.States, 3)

	rec := ts.do(t, http.MethodPost, "/api/content/page-1/workflow", map[string]string{"content_type": "page", "definition_id": def.ID}, "ed", "Editor")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inst entity.WorkflowInstance
	decodeData(t, rec, &inst)
	assert.Equal(t, entity.StatusActive, inst.Status)

	// Only editors submit
	rec = ts.do(t, http.MethodPost, "/api/content/page-1/workflow/transitions", map[string]string{"transition_rule_id": "submit"}, "rev", "Reviewer")
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
	assert.Equal(t, string(workflow.KindPermissionDenied), decodeProblem(t, rec).Type)

	rec = ts.do(t, http.MethodPost, "/api/content/page-1/workflow/transitions", map[string]string{"transition_rule_id": "submit", "comment": "ready"}, "ed", "Editor")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/content/page-1/workflow/transitions", nil, "rev", "Reviewer")
	require.Equal(t, http.StatusOK, rec.Code)
	var rules []entity.TransitionRule
	decodeData(t, rec, &rules)
	require.Len(t, rules, 1)
	assert.Equal(t, "reject", rules[0].ID)

	rec = ts.do(t, http.MethodPost, "/api/content/page-1/workflow/transitions", map[string]string{"transition_rule_id": "reject"}, "rev", "Reviewer")
	require.Equal(t, http.StatusPreconditionFailed, rec.Code, rec.Body.String())
	assert.Equal(t, string(workflow.KindPreconditionFailed), decodeProblem(t, rec).Type)

	// ChiefEditor is mapped to Publisher
	rec = ts.do(t, http.MethodPost, "/api/content/page-1/workflow/transitions", map[string]string{"transition_rule_id": "publish"}, "chief", "ChiefEditor")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &inst)
	assert.Equal(t, entity.StatusCompleted, inst.Status)
	// created, submit, publish and the published note
	require.Len(t, inst.History, 4)
	assert.Equal(t, entity.HistoryKindPublished, inst.History[3].Kind)
	assert.Equal(t, inst.CurrentStateID, inst.History[len(inst.History)-1].ToStateID)

	rec = ts.do(t, http.MethodGet, "/api/instances/"+inst.ID, nil, "ed", "Editor")
	require.Equal(t, http.StatusOK, rec.Code)

	// Creation, two successful moves and two rejected attempts reach the audit log
	var summary entity.AuditSummary
	require.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/api/content/page-1/audit/summary", nil, "ed", "Editor")
		if rec.Code != http.StatusOK {
			return false
		}
		decodeData(t, rec, &summary)
		return summary.TotalCount == 5
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 3, summary.SuccessCount)
	assert.Equal(t, 2, summary.FailureCount)

	rec = ts.do(t, http.MethodGet, "/api/content/page-1/audit?limit=2", nil, "ed", "Editor")
	var records []entity.StateChangeRecord
	decodeData(t, rec, &records)
	assert.Len(t, records, 2)

	require.Eventually(t, func() bool {
		rec := ts.do(t, http.MethodGet, "/api/content/page-1/notifications", nil, "ed", "Editor")
		var items []entity.StateChangedNotification
		decodeData(t, rec, &items)
		return len(items) == 5
	}, 5*time.Second, 20*time.Millisecond)

	rec = ts.do(t, http.MethodGet, "/api/reports/transition-frequency", nil, "ed", "Editor")
	var freq []entity.TransitionFrequency
	decodeData(t, rec, &freq)
	assert.NotEmpty(t, freq)
}

func TestInstanceErrors(t *testing.T) {
	ts := newTestServer(t)
	def := ts.createDefinition(t)

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		roles      string
		wantStatus int
		wantType   string
	}{
		{
			name:       "no workflow for content",
			method:     http.MethodGet,
			path:       "/api/content/missing/workflow",
			wantStatus: http.StatusNotFound,
			wantType:   string(workflow.KindNotFound),
		},
		{
			name:       "unknown definition",
			method:     http.MethodPost,
			path:       "/api/content/page-9/workflow",
			body:       map[string]string{"content_type": "page", "definition_id": "nope"},
			wantStatus: http.StatusBadRequest,
			wantType:   string(workflow.KindValidation),
		},
		{
			name:       "content type not accepted",
			method:     http.MethodPost,
			path:       "/api/content/post-1/workflow",
			body:       map[string]string{"content_type": "post", "definition_id": def.ID},
			wantStatus: http.StatusBadRequest,
			wantType:   string(workflow.KindValidation),
		},
		{
			name:       "missing body fields",
			method:     http.MethodPost,
			path:       "/api/content/page-9/workflow",
			body:       map[string]string{},
			wantStatus: http.StatusBadRequest,
			wantType:   string(workflow.KindValidation),
		},
		{
			name:       "transition without rule or target",
			method:     http.MethodPost,
			path:       "/api/content/page-9/workflow/transitions",
			body:       map[string]string{"comment": "hi"},
			wantStatus: http.StatusBadRequest,
			wantType:   string(workflow.KindValidation),
		},
		{
			name:       "unknown definition id",
			method:     http.MethodGet,
			path:       "/api/definitions/nope",
			wantStatus: http.StatusNotFound,
			wantType:   string(workflow.KindNotFound),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, tt.body, "ed", "Editor")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			p := decodeProblem(t, rec)
			assert.Equal(t, tt.wantType, p.Type)
			assert.Equal(t, tt.wantStatus, p.Status)
		})
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	ts := newTestServer(t)
	def := ts.createDefinition(t)

	rec := ts.do(t, http.MethodPost, "/api/content/page-1/workflow", map[string]string{"content_type": "page", "definition_id": def.ID}, "ed", "Editor")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/content/page-1/workflow/hold", map[string]string{"comment": "legal"}, "ed", "Editor")
	assert.Equal(t, http.StatusForbidden, rec.Code, "only administrators change the lifecycle")

	rec = ts.do(t, http.MethodPost, "/api/content/page-1/workflow/hold", map[string]string{"comment": "legal"}, "admin", "Admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var inst entity.WorkflowInstance
	decodeData(t, rec, &inst)
	assert.Equal(t, entity.StatusOnHold, inst.Status)

	rec = ts.do(t, http.MethodPost, "/api/content/page-1/workflow/transitions", map[string]string{"transition_rule_id": "submit"}, "ed", "Editor")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/content/page-1/workflow/resume", nil, "admin", "Admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/content/page-1/workflow/cancel", nil, "admin", "Admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &inst)
	assert.Equal(t, entity.StatusCancelled, inst.Status)

	rec = ts.do(t, http.MethodPost, "/api/content/page-1/workflow/resume", nil, "admin", "Admin")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestDefinitionEndpoints(t *testing.T) {
	ts := newTestServer(t)
	def := ts.createDefinition(t)

	rec := ts.do(t, http.MethodPost, "/api/definitions", editorialBody(), "admin", "Admin")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "names are unique")

	rec = ts.do(t, http.MethodGet, "/api/definitions?name=Editorial", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var defs []entity.WorkflowDefinition
	decodeData(t, rec, &defs)
	require.Len(t, defs, 1)
	assert.Equal(t, def.ID, defs[0].ID)

	state := map[string]interface{}{"state_id": "archived", "name": "Archived", "is_final": true, "sort_order": 4}
	rec = ts.do(t, http.MethodPost, "/api/definitions/"+def.ID+"/states", state, "admin", "Admin")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var updated entity.WorkflowDefinition
	decodeData(t, rec, &updated)
	assert.Len(t, updated.States, 4)
	assert.Equal(t, def.ID, updated.ID, "unreferenced definitions are edited in place")

	rec = ts.do(t, http.MethodDelete, "/api/definitions/"+def.ID+"/transitions/reject", nil, "admin", "Admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &updated)
	assert.Len(t, updated.Transitions, 2)

	rec = ts.do(t, http.MethodGet, "/api/definitions?active=true", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/definitions/"+def.ID, nil, "admin", "Admin")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/definitions/"+def.ID, nil, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExpandRoles(t *testing.T) {
	mapping := map[string][]string{"ChiefEditor": {"Editor", "Publisher"}, "Publisher": {"Reviewer"}}

	roles := ExpandRoles(splitRoles(" ChiefEditor , Author,,"), mapping)
	assert.Equal(t, []string{"Author", "ChiefEditor", "Editor", "Publisher"}, roles.Slice(), "expansion is one level")

	assert.Empty(t, splitRoles(""))
}

func TestStatusFor(t *testing.T) {
	tests := map[workflow.Kind]int{
		workflow.KindValidation:             http.StatusBadRequest,
		workflow.KindPermissionDenied:       http.StatusForbidden,
		workflow.KindPreconditionFailed:     http.StatusPreconditionFailed,
		workflow.KindConcurrentModification: http.StatusConflict,
		workflow.KindConfiguration:          http.StatusInternalServerError,
		workflow.KindTransport:              http.StatusServiceUnavailable,
		workflow.KindNotFound:               http.StatusNotFound,
		workflow.KindInternal:               http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, statusFor(kind), string(kind))
	}
}
