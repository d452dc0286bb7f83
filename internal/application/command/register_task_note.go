package command

import (
	"context"
	"log/slog"

	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER TASK NOTE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// RegisterTaskNoteCommand records a comment and/or answer counts on a task.
// Nil fields leave the stored note unchanged; at least one is required.
type RegisterTaskNoteCommand struct {
	TaskID      string `validate:"required,uuid"`
	RequesterID string `validate:"required,uuid"`

	Comment        *string `validate:"omitempty,max=1000"`
	CorrectCount   *int    `validate:"omitempty,gte=0"`
	IncorrectCount *int    `validate:"omitempty,gte=0"`

	// Date is used when the task is not completed. Defaults to today.
	Date string `validate:"omitempty,datetime=2006-01-02"`
}

// Validate validates the command.
func (c RegisterTaskNoteCommand) Validate() error {
	return checkStruct("RegisterTaskNote", c)
}

// RegisterTaskNoteResult contains the result of registering a note.
type RegisterTaskNoteResult struct {
	Task        task.Task
	Event       task.TaskNoteRegisteredEvent
	DispatchErr error
}

// RegisterTaskNoteHandler handles RegisterTaskNoteCommand.
type RegisterTaskNoteHandler struct {
	deps
}

// NewRegisterTaskNoteHandler creates a new RegisterTaskNoteHandler.
func NewRegisterTaskNoteHandler(tasks task.Repository, calendar *timeutil.Calendar, logger *slog.Logger, config Config) *RegisterTaskNoteHandler {
	return &RegisterTaskNoteHandler{deps: newDeps(tasks, calendar, logger, config, "register_task_note")}
}

// Handle executes the command.
func (h *RegisterTaskNoteHandler) Handle(ctx context.Context, cmd RegisterTaskNoteCommand) (*RegisterTaskNoteResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	ids, err := parseIDs("RegisterTaskNote", cmd.TaskID, cmd.RequesterID)
	if err != nil {
		return nil, err
	}
	on, err := h.resolveDate("RegisterTaskNote", cmd.Date)
	if err != nil {
		return nil, err
	}
	input, err := cmd.noteInput()
	if err != nil {
		return nil, err
	}

	t, err := h.tasks.OfID(ctx, ids[0])
	if err != nil {
		return nil, err
	}

	event, err := t.RegisterNote(ids[1], input, on)
	if err != nil {
		return nil, err
	}

	dispatchErr, err := h.save(ctx, t)
	if err != nil {
		return nil, err
	}

	h.logger.Info("note registered", "task_id", cmd.TaskID, "date", event.Date.String())

	return &RegisterTaskNoteResult{
		Task:        t.Snapshot(),
		Event:       event,
		DispatchErr: dispatchErr,
	}, nil
}

func (c RegisterTaskNoteCommand) noteInput() (task.NoteInput, error) {
	var input task.NoteInput

	if c.Comment != nil {
		comment, err := task.NewCommentNote(*c.Comment)
		if err != nil {
			return input, err
		}
		input.Comment = &comment
	}
	if c.CorrectCount != nil {
		v, err := task.NewQuestionResultNote(*c.CorrectCount)
		if err != nil {
			return input, err
		}
		input.CorrectCount = &v
	}
	if c.IncorrectCount != nil {
		v, err := task.NewQuestionResultNote(*c.IncorrectCount)
		if err != nil {
			return input, err
		}
		input.IncorrectCount = &v
	}
	return input, nil
}
