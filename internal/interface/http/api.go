package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/study-planner/planner-core/internal/application/command"
	"github.com/study-planner/planner-core/internal/application/query"
	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
)

// UserIDHeader names the acting student. Authentication happens upstream.
const UserIDHeader = "X-User-ID"

// UseCases are the application handlers the API delegates to.
type UseCases struct {
	CompleteTask     *command.CompleteTaskHandler
	UncompleteTask   *command.UncompleteTaskHandler
	RegisterTaskNote *command.RegisterTaskNoteHandler
	RemoveTask       *command.RemoveTaskHandler

	DailyProgress *query.GetDailyProgressHandler
	ListTasks     *query.ListTasksHandler
}

func (s *Server) registerUseCaseRoutes(mux *http.ServeMux) {
	uc := s.deps.UseCases

	if uc.CompleteTask != nil {
		mux.HandleFunc("POST /api/v1/tasks/{id}/complete", s.handleCompleteTask)
	}
	if uc.UncompleteTask != nil {
		mux.HandleFunc("POST /api/v1/tasks/{id}/uncomplete", s.handleUncompleteTask)
	}
	if uc.RegisterTaskNote != nil {
		mux.HandleFunc("PUT /api/v1/tasks/{id}/note", s.handleRegisterTaskNote)
	}
	if uc.RemoveTask != nil {
		mux.HandleFunc("DELETE /api/v1/tasks/{id}", s.handleRemoveTask)
	}
	if uc.DailyProgress != nil {
		mux.HandleFunc("GET /api/v1/users/{id}/progress", s.handleDailyProgress)
	}
	if uc.ListTasks != nil {
		mux.HandleFunc("GET /api/v1/users/{id}/tasks", s.handleListTasks)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE BODIES
// ══════════════════════════════════════════════════════════════════════════════

type completeTaskRequest struct {
	ElapsedTimeInSeconds int    `json:"elapsed_time_in_seconds"`
	CompletedOn          string `json:"completed_on,omitempty"`
}

type registerNoteRequest struct {
	Comment        *string `json:"comment,omitempty"`
	CorrectCount   *int    `json:"correct_count,omitempty"`
	IncorrectCount *int    `json:"incorrect_count,omitempty"`
	Date           string  `json:"date,omitempty"`
}

// TaskResponse is the state of a task after a command.
type TaskResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Cycle       int    `json:"cycle"`
	Finished    bool   `json:"finished"`
	PlannedDate string `json:"planned_date,omitempty"`
	CompletedOn string `json:"completed_on,omitempty"`
	ElapsedTime int    `json:"elapsed_time_in_seconds,omitempty"`
	EventID     string `json:"event_id,omitempty"`

	// DispatchWarning is set when the task was saved but a consumer failed.
	DispatchWarning string `json:"dispatch_warning,omitempty"`
}

func newTaskResponse(t task.Task, eventID string, dispatchErr error) TaskResponse {
	resp := TaskResponse{
		ID:       t.ID.String(),
		Type:     t.Type.String(),
		Cycle:    t.Cycle,
		Finished: t.Finished,
		EventID:  eventID,
	}
	if t.PlannedDate != nil {
		resp.PlannedDate = t.PlannedDate.String()
	}
	if t.CompletedOn != nil {
		resp.CompletedOn = t.CompletedOn.String()
	}
	if t.ElapsedTime != nil {
		resp.ElapsedTime = t.ElapsedTime.Int()
	}
	if dispatchErr != nil {
		resp.DispatchWarning = "task saved, follow-up processing failed"
	}
	return resp
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	var req completeTaskRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.UseCases.CompleteTask.Handle(r.Context(), command.CompleteTaskCommand{
		TaskID:               r.PathValue("id"),
		RequesterID:          r.Header.Get(UserIDHeader),
		ElapsedTimeInSeconds: req.ElapsedTimeInSeconds,
		CompletedOn:          req.CompletedOn,
	})
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskResponse(res.Task, res.Event.EventID(), res.DispatchErr))
}

func (s *Server) handleUncompleteTask(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.UseCases.UncompleteTask.Handle(r.Context(), command.UncompleteTaskCommand{
		TaskID:      r.PathValue("id"),
		RequesterID: r.Header.Get(UserIDHeader),
	})
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskResponse(res.Task, res.Event.EventID(), res.DispatchErr))
}

func (s *Server) handleRegisterTaskNote(w http.ResponseWriter, r *http.Request) {
	var req registerNoteRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.deps.UseCases.RegisterTaskNote.Handle(r.Context(), command.RegisterTaskNoteCommand{
		TaskID:         r.PathValue("id"),
		RequesterID:    r.Header.Get(UserIDHeader),
		Comment:        req.Comment,
		CorrectCount:   req.CorrectCount,
		IncorrectCount: req.IncorrectCount,
		Date:           req.Date,
	})
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTaskResponse(res.Task, res.Event.EventID(), res.DispatchErr))
}

func (s *Server) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	err := s.deps.UseCases.RemoveTask.Handle(r.Context(), command.RemoveTaskCommand{
		TaskID:      r.PathValue("id"),
		RequesterID: r.Header.Get(UserIDHeader),
	})
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERY ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleDailyProgress(w http.ResponseWriter, r *http.Request) {
	q := query.GetDailyProgressQuery{
		UserID: r.PathValue("id"),
		Date:   r.URL.Query().Get("date"),
	}
	if raw := r.URL.Query().Get("history"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, string(shared.ReasonValidation), "history must be a number")
			return
		}
		q.HistoryDays = days
	}

	res, err := s.deps.UseCases.DailyProgress.Handle(r.Context(), q)
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	res, err := s.deps.UseCases.ListTasks.Handle(r.Context(), query.ListTasksQuery{
		OwnerID:          r.PathValue("id"),
		DueBy:            params.Get("due_by"),
		AllPending:       params.Get("all") == "true",
		IncludeCompleted: params.Get("completed") == "true",
	})
	if err != nil {
		s.writeUseCaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, string(shared.ReasonValidation), "malformed request body")
		return false
	}
	return true
}

// writeUseCaseError maps a use case failure to a status code. Internal
// details stay in the log.
func (s *Server) writeUseCaseError(w http.ResponseWriter, r *http.Request, err error) {
	reason, message := shared.ReasonOf(err)

	status := http.StatusInternalServerError
	switch reason {
	case shared.ReasonNotFound:
		status = http.StatusNotFound
	case shared.ReasonUnauthorized:
		status = http.StatusForbidden
	case shared.ReasonValidation:
		status = http.StatusBadRequest
	}
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}

	if status >= 500 {
		s.logger.Error("use case failed", "path", r.URL.Path, "request_id", RequestID(r.Context()), "error", err)
	}
	writeJSONError(w, status, string(reason), message)
}
