package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/study-planner/planner-core/internal/application/command"
	"github.com/study-planner/planner-core/internal/application/query"
	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/internal/infrastructure/messaging"
	"github.com/study-planner/planner-core/internal/infrastructure/persistence/memory"
	"github.com/study-planner/planner-core/internal/infrastructure/persistence/storetest"
	"github.com/study-planner/planner-core/internal/interface/http/handlers"
	"github.com/study-planner/planner-core/pkg/timeutil"
)

type fixture struct {
	server *Server
	pub    *storetest.RecordingPublisher
	repo   *memory.TaskRepository
	owner  shared.ID
	task   *task.Task
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	calendar := timeutil.MustCalendar("", timeutil.Fixed(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)))

	f := &fixture{pub: &storetest.RecordingPublisher{}, owner: shared.NewID()}
	f.repo = memory.NewTaskRepository(f.pub, nil)
	f.task = storetest.NewTask(t, f.owner)
	require.NoError(t, f.repo.Create(context.Background(), f.task))

	cfg := command.DefaultConfig()
	f.server = NewServer(DefaultConfig(), Dependencies{
		UseCases: UseCases{
			CompleteTask:     command.NewCompleteTaskHandler(f.repo, calendar, nil, cfg),
			UncompleteTask:   command.NewUncompleteTaskHandler(f.repo, calendar, nil, cfg),
			RegisterTaskNote: command.NewRegisterTaskNoteHandler(f.repo, calendar, nil, cfg),
			RemoveTask:       command.NewRemoveTaskHandler(f.repo, calendar, nil, cfg),
			DailyProgress:    query.NewGetDailyProgressHandler(memory.NewProgressRepository(), calendar),
			ListTasks:        query.NewListTasksHandler(f.repo, calendar),
		},
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// ══════════════════════════════════════════════════════════════════════════════
// Probes
// ══════════════════════════════════════════════════════════════════════════════

func TestLive(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/live", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestHealth_FailingCheck(t *testing.T) {
	checker := handlers.NewHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error { return nil })
	checker.AddCheck("nats", func(context.Context) error { return errors.New("no servers available") })

	s := NewServer(DefaultConfig(), Dependencies{Health: checker})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Healthy)
	assert.Equal(t, "Some checks failed: nats", status.Message)
	assert.True(t, status.Checks["postgres"].Healthy)
}

func TestHealth_DetailedCheck(t *testing.T) {
	checker := handlers.NewHealthChecker("test")
	checker.AddDetailedCheck("postgres", func(context.Context) (map[string]any, error) {
		return map[string]any{"total_conns": 4, "max_conns": 10}, nil
	})

	status := checker.Check(context.Background())
	require.True(t, status.Healthy)
	assert.Equal(t, 4, status.Checks["postgres"].Details["total_conns"])

	s := NewServer(DefaultConfig(), Dependencies{Health: checker})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, rec.Body.String(), `"max_conns":10`)
}

func TestReady_RequiresRunningServer(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/ready", "", "").Code)

	f.server.markRunning()
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/ready", "", "").Code)
}

func TestHealthChecker_Timeout(t *testing.T) {
	checker := handlers.NewHealthChecker("")
	checker.SetTimeout(10 * time.Millisecond)
	checker.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	status := checker.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Contains(t, status.Checks["slow"].Message, "deadline")
}

func TestDispatcherStats(t *testing.T) {
	d := messaging.NewDispatcher(messaging.DefaultDispatcherConfig())
	require.NoError(t, d.RegisterHandler(task.EventTaskCompleted, "broken", func(context.Context, shared.Event) error {
		return errors.New("boom")
	}))
	d.Seal()

	owner := shared.NewID()
	tk := storetest.NewTask(t, owner)
	ev, err := tk.Complete(owner, shared.MustParseCalendarDate("2024-01-10"), 60)
	require.NoError(t, err)
	_ = d.Dispatch(context.Background(), ev)

	s := NewServer(DefaultConfig(), Dependencies{Dispatcher: d})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/dispatcher", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[dispatcherStatsResponse](t, rec)
	assert.Equal(t, "continue", resp.Policy)
	assert.EqualValues(t, 1, resp.Metrics.TotalFailures)
	require.Len(t, resp.DeadLetters, 1)
	assert.Equal(t, "broken", resp.DeadLetters[0].Handler)
	assert.Equal(t, ev.EventID(), resp.DeadLetters[0].EventID)
}

// ══════════════════════════════════════════════════════════════════════════════
// Use case endpoints
// ══════════════════════════════════════════════════════════════════════════════

func TestCompleteTask(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/tasks/"+f.task.ID.String()+"/complete", f.owner.String(),
		`{"elapsed_time_in_seconds": 1500}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[TaskResponse](t, rec)
	assert.True(t, resp.Finished)
	assert.Equal(t, "2024-01-10", resp.CompletedOn)
	assert.Equal(t, 1500, resp.ElapsedTime)
	assert.NotEmpty(t, resp.EventID)
	assert.Empty(t, resp.DispatchWarning)
	assert.Equal(t, []shared.EventType{task.EventTaskCompleted}, f.pub.Types())
}

func TestCompleteTask_DispatchFailureIsAWarning(t *testing.T) {
	f := newFixture(t)
	f.pub.Err = errors.New("consumer down")

	rec := f.do(t, http.MethodPost, "/api/v1/tasks/"+f.task.ID.String()+"/complete", f.owner.String(),
		`{"elapsed_time_in_seconds": 60}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decodeBody[TaskResponse](t, rec).DispatchWarning)
}

func TestCommandErrors(t *testing.T) {
	f := newFixture(t)
	path := "/api/v1/tasks/" + f.task.ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   string
		status int
		reason shared.FailureReason
	}{
		{"other user", http.MethodPost, path + "/complete", shared.NewID().String(), `{"elapsed_time_in_seconds": 60}`, http.StatusForbidden, shared.ReasonUnauthorized},
		{"unknown task", http.MethodPost, "/api/v1/tasks/" + shared.NewID().String() + "/complete", f.owner.String(), `{"elapsed_time_in_seconds": 60}`, http.StatusNotFound, shared.ReasonNotFound},
		{"zero elapsed time", http.MethodPost, path + "/complete", f.owner.String(), `{"elapsed_time_in_seconds": 0}`, http.StatusBadRequest, shared.ReasonValidation},
		{"malformed body", http.MethodPost, path + "/complete", f.owner.String(), `{"elapsed`, http.StatusBadRequest, shared.ReasonValidation},
		{"unknown field", http.MethodPut, path + "/note", f.owner.String(), `{"rating": 5}`, http.StatusBadRequest, shared.ReasonValidation},
		{"missing user", http.MethodDelete, path, "", "", http.StatusBadRequest, shared.ReasonValidation},
		{"uncomplete pending", http.MethodPost, path + "/uncomplete", f.owner.String(), "", http.StatusBadRequest, shared.ReasonValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.user, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, string(tt.reason), decodeBody[ErrorResponse](t, rec).Error)
		})
	}
	assert.Empty(t, f.pub.Types())
}

func TestRegisterNoteThenRemove(t *testing.T) {
	f := newFixture(t)
	path := "/api/v1/tasks/" + f.task.ID.String()

	rec := f.do(t, http.MethodPut, path+"/note", f.owner.String(), `{"correct_count": 8, "incorrect_count": 2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodDelete, path, f.owner.String(), "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := f.repo.OfID(context.Background(), f.task.ID)
	assert.True(t, shared.IsNotFound(err))
}

func TestListTasks(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/v1/users/"+f.owner.String()+"/tasks", "", "")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[query.ListTasksResult](t, rec)
	require.Len(t, resp.Tasks, 1)
	assert.True(t, resp.Tasks[0].Overdue)
	assert.Equal(t, 1, resp.Pending)
}

func TestDailyProgress(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/users/"+f.owner.String()+"/progress?history=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/users/not-a-uuid/progress", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{})
	h := s.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler bug")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
