package command

import (
	"context"
	"log/slog"

	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/pkg/timeutil"
)

// RemoveTaskCommand deletes a pending task on behalf of its owner.
type RemoveTaskCommand struct {
	TaskID      string `validate:"required,uuid"`
	RequesterID string `validate:"required,uuid"`
}

// Validate validates the command.
func (c RemoveTaskCommand) Validate() error {
	return checkStruct("RemoveTask", c)
}

// RemoveTaskHandler handles RemoveTaskCommand. Removal emits no event.
type RemoveTaskHandler struct {
	deps
}

// NewRemoveTaskHandler creates a new RemoveTaskHandler.
func NewRemoveTaskHandler(tasks task.Repository, calendar *timeutil.Calendar, logger *slog.Logger, config Config) *RemoveTaskHandler {
	return &RemoveTaskHandler{deps: newDeps(tasks, calendar, logger, config, "remove_task")}
}

// Handle executes the command.
func (h *RemoveTaskHandler) Handle(ctx context.Context, cmd RemoveTaskCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	ids, err := parseIDs("RemoveTask", cmd.TaskID, cmd.RequesterID)
	if err != nil {
		return err
	}

	t, err := h.tasks.OfID(ctx, ids[0])
	if err != nil {
		return err
	}
	if err := t.StudentRemove(ids[1]); err != nil {
		return err
	}
	if err := h.tasks.Delete(ctx, t.ID); err != nil {
		h.logger.Error("failed to delete task", "task_id", cmd.TaskID, "error", err)
		return err
	}

	h.logger.Info("task removed", "task_id", cmd.TaskID)
	return nil
}
