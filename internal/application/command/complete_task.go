package command

import (
	"context"
	"log/slog"

	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE TASK COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// CompleteTaskCommand marks a task as done.
type CompleteTaskCommand struct {
	TaskID      string `validate:"required,uuid"`
	RequesterID string `validate:"required,uuid"`

	ElapsedTimeInSeconds int `validate:"gt=0"`

	// CompletedOn defaults to today in the configured timezone.
	CompletedOn string `validate:"omitempty,datetime=2006-01-02"`
}

// Validate validates the command.
func (c CompleteTaskCommand) Validate() error {
	return checkStruct("CompleteTask", c)
}

// CompleteTaskResult contains the result of completing a task.
type CompleteTaskResult struct {
	// Task is the saved state.
	Task task.Task

	Event task.TaskCompletedEvent

	// DispatchErr is set when a consumer of the event failed.
	DispatchErr error
}

// CompleteTaskHandler handles CompleteTaskCommand.
type CompleteTaskHandler struct {
	deps
}

// NewCompleteTaskHandler creates a new CompleteTaskHandler.
func NewCompleteTaskHandler(tasks task.Repository, calendar *timeutil.Calendar, logger *slog.Logger, config Config) *CompleteTaskHandler {
	return &CompleteTaskHandler{deps: newDeps(tasks, calendar, logger, config, "complete_task")}
}

// Handle executes the command.
func (h *CompleteTaskHandler) Handle(ctx context.Context, cmd CompleteTaskCommand) (*CompleteTaskResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	ids, err := parseIDs("CompleteTask", cmd.TaskID, cmd.RequesterID)
	if err != nil {
		return nil, err
	}
	completedOn, err := h.resolveDate("CompleteTask", cmd.CompletedOn)
	if err != nil {
		return nil, err
	}
	elapsed, err := task.NewElapsedTimeInSeconds(cmd.ElapsedTimeInSeconds)
	if err != nil {
		return nil, err
	}

	t, err := h.tasks.OfID(ctx, ids[0])
	if err != nil {
		return nil, err
	}

	event, err := t.Complete(ids[1], completedOn, elapsed)
	if err != nil {
		h.logger.Debug("completion rejected", "task_id", cmd.TaskID, "error", err)
		return nil, err
	}

	dispatchErr, err := h.save(ctx, t)
	if err != nil {
		return nil, err
	}

	h.logger.Info("task completed",
		"task_id", cmd.TaskID,
		"completed_on", completedOn.String(),
		"elapsed_seconds", elapsed.Int(),
	)

	return &CompleteTaskResult{
		Task:        t.Snapshot(),
		Event:       event,
		DispatchErr: dispatchErr,
	}, nil
}
