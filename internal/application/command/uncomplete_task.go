package command

import (
	"context"
	"log/slog"

	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNCOMPLETE TASK COMMAND
// Returns a completed task to pending. Successors already planned and
// progress already credited are kept.
// ══════════════════════════════════════════════════════════════════════════════

// UncompleteTaskCommand reverts a completion.
type UncompleteTaskCommand struct {
	TaskID      string `validate:"required,uuid"`
	RequesterID string `validate:"required,uuid"`
}

// Validate validates the command.
func (c UncompleteTaskCommand) Validate() error {
	return checkStruct("UncompleteTask", c)
}

// UncompleteTaskResult contains the result of uncompleting a task.
type UncompleteTaskResult struct {
	Task        task.Task
	Event       task.TaskUncompleteEvent
	DispatchErr error
}

// UncompleteTaskHandler handles UncompleteTaskCommand.
type UncompleteTaskHandler struct {
	deps
}

// NewUncompleteTaskHandler creates a new UncompleteTaskHandler.
func NewUncompleteTaskHandler(tasks task.Repository, calendar *timeutil.Calendar, logger *slog.Logger, config Config) *UncompleteTaskHandler {
	return &UncompleteTaskHandler{deps: newDeps(tasks, calendar, logger, config, "uncomplete_task")}
}

// Handle executes the command.
func (h *UncompleteTaskHandler) Handle(ctx context.Context, cmd UncompleteTaskCommand) (*UncompleteTaskResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	ids, err := parseIDs("UncompleteTask", cmd.TaskID, cmd.RequesterID)
	if err != nil {
		return nil, err
	}

	t, err := h.tasks.OfID(ctx, ids[0])
	if err != nil {
		return nil, err
	}

	event, err := t.Uncomplete(ids[1])
	if err != nil {
		return nil, err
	}

	dispatchErr, err := h.save(ctx, t)
	if err != nil {
		return nil, err
	}

	h.logger.Info("task uncompleted", "task_id", cmd.TaskID)

	return &UncompleteTaskResult{
		Task:        t.Snapshot(),
		Event:       event,
		DispatchErr: dispatchErr,
	}, nil
}
