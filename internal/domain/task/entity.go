// Package task contains the Task aggregate: one scheduled unit of study,
// exercise or review work owned by a student, and the events it emits as it
// moves through its lifecycle.
package task

import (
	"errors"
	"time"

	"github.com/study-planner/planner-core/internal/domain/shared"
)

const domainName = "task"

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// Causes carried inside *shared.DomainError. Match them with errors.Is, or
// match the kind with shared.IsValidation / shared.IsUnauthorized.
var (
	// ErrUnauthorizedTaskManipulation - requester is not the task owner.
	ErrUnauthorizedTaskManipulation = errors.New("unauthorized task manipulation")

	// ErrTaskNotFound - no task with the given id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskAlreadyExists - Create called with an id that is already stored.
	ErrTaskAlreadyExists = errors.New("task already exists")

	// ErrTaskAlreadyCompleted - complete called on a completed task.
	ErrTaskAlreadyCompleted = errors.New("task already completed")

	// ErrTaskNotCompleted - uncomplete called on a pending task.
	ErrTaskNotCompleted = errors.New("task is not completed")

	// ErrTaskProtected - completed tasks keep the student's history and cannot be removed.
	ErrTaskProtected = errors.New("completed task cannot be removed")

	// ErrEmptyNote - note registration without any field.
	ErrEmptyNote = errors.New("note must contain a comment or an answer count")

	ErrInvalidTaskType       = errors.New("invalid task type")
	ErrInvalidElapsedTime    = errors.New("invalid elapsed time")
	ErrInvalidQuestionResult = errors.New("invalid question result")
	ErrInvalidComment        = errors.New("invalid comment")
	ErrInvalidCycle          = errors.New("invalid cycle")
	ErrInvalidDate           = errors.New("invalid date")
	ErrMissingReference      = errors.New("missing reference")
	ErrInconsistentState     = errors.New("finished flag does not match completion date")
	ErrInvalidSchedule       = errors.New("invalid interval table")
)

func unauthorized(op string) error {
	return shared.WrapError(domainName, op, shared.ErrUnauthorized,
		"only the owner can manipulate this task", ErrUnauthorizedTaskManipulation)
}

func invalid(op, message string, cause error) error {
	return shared.WrapError(domainName, op, shared.ErrValidation, message, cause)
}

// NotFound builds the error stores return when OfID finds nothing.
func NotFound(op string, id shared.ID) error {
	return shared.WrapError(domainName, op, shared.ErrNotFound, "task "+id.String()+" not found", ErrTaskNotFound)
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: TASK
// ══════════════════════════════════════════════════════════════════════════════

// Task is a scheduled unit of work. State changes go through the transition
// methods, which record a domain event in the embedded buffer and return it.
// The repository flushes the buffer after a successful write.
type Task struct {
	shared.Entity

	ID       shared.ID
	OwnerID  shared.ID
	CourseID shared.ID
	TopicID  shared.ID
	Type     TaskType

	// Cycle is the repetition index within the spaced schedule, starting at 0.
	Cycle int

	PlannedDate *shared.CalendarDate
	CompletedOn *shared.CalendarDate

	ElapsedTime *ElapsedTimeInSeconds

	// Finished is true exactly when CompletedOn is set.
	Finished bool

	// IsExtra marks tasks added on top of the regular schedule.
	IsExtra bool

	EstimatedTimeToComplete *ElapsedTimeInSeconds

	Note *TaskNote

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskNote is the student's note on a task.
type TaskNote struct {
	Comment        *CommentNote
	CorrectCount   *QuestionResultNote
	IncorrectCount *QuestionResultNote
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NoteInput is the set of note fields supplied in one registration.
// Nil fields are left unchanged.
type NoteInput struct {
	Comment        *CommentNote
	CorrectCount   *QuestionResultNote
	IncorrectCount *QuestionResultNote
}

// IsEmpty reports whether no field is set.
func (n NoteInput) IsEmpty() bool {
	return n.Comment == nil && n.CorrectCount == nil && n.IncorrectCount == nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewTaskParams contains the parameters for creating a task.
type NewTaskParams struct {
	ID                      shared.ID // generated when zero
	OwnerID                 shared.ID
	CourseID                shared.ID
	TopicID                 shared.ID
	Type                    TaskType
	Cycle                   int
	PlannedDate             *shared.CalendarDate
	IsExtra                 bool
	EstimatedTimeToComplete *ElapsedTimeInSeconds
}

// New creates a pending task.
func New(params NewTaskParams) (*Task, error) {
	if params.OwnerID.IsZero() || params.CourseID.IsZero() || params.TopicID.IsZero() {
		return nil, invalid("New", "owner, course and topic are required", ErrMissingReference)
	}
	if !params.Type.IsValid() {
		return nil, invalid("New", "unknown task type", ErrInvalidTaskType)
	}
	if params.Cycle < 0 {
		return nil, invalid("New", "cycle must not be negative", ErrInvalidCycle)
	}
	if params.EstimatedTimeToComplete != nil && !params.EstimatedTimeToComplete.IsValid() {
		return nil, invalid("New", "estimated time must be positive", ErrInvalidElapsedTime)
	}

	id := params.ID
	if id.IsZero() {
		id = shared.NewID()
	}

	now := time.Now().UTC()

	return &Task{
		ID:                      id,
		OwnerID:                 params.OwnerID,
		CourseID:                params.CourseID,
		TopicID:                 params.TopicID,
		Type:                    params.Type,
		Cycle:                   params.Cycle,
		PlannedDate:             copyDate(params.PlannedDate),
		IsExtra:                 params.IsExtra,
		EstimatedTimeToComplete: copyElapsed(params.EstimatedTimeToComplete),
		CreatedAt:               now,
		UpdatedAt:               now,
	}, nil
}

// Reconstitute checks a task loaded from storage. It records no events.
func Reconstitute(t *Task) (*Task, error) {
	if t.ID.IsZero() {
		return nil, invalid("Reconstitute", "task id is required", ErrMissingReference)
	}
	if !t.Type.IsValid() {
		return nil, invalid("Reconstitute", "unknown task type", ErrInvalidTaskType)
	}
	if t.Cycle < 0 {
		return nil, invalid("Reconstitute", "cycle must not be negative", ErrInvalidCycle)
	}
	if t.Finished != (t.CompletedOn != nil) {
		return nil, invalid("Reconstitute", "finished flag does not match completion date", ErrInconsistentState)
	}
	t.ClearEvents()
	return t, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS (state transitions)
// ══════════════════════════════════════════════════════════════════════════════

// IsOwnedBy reports whether userID owns the task.
func (t *Task) IsOwnedBy(userID shared.ID) bool {
	return t.OwnerID == userID
}

// Complete marks the task as done on completedOn after elapsed seconds of work.
func (t *Task) Complete(requesterID shared.ID, completedOn shared.CalendarDate, elapsed ElapsedTimeInSeconds) (TaskCompletedEvent, error) {
	if !t.IsOwnedBy(requesterID) {
		return TaskCompletedEvent{}, unauthorized("Complete")
	}
	if t.Finished {
		return TaskCompletedEvent{}, invalid("Complete", "task is already completed", ErrTaskAlreadyCompleted)
	}
	if completedOn.IsZero() {
		return TaskCompletedEvent{}, invalid("Complete", "completion date is required", ErrInvalidDate)
	}
	if !elapsed.IsValid() {
		return TaskCompletedEvent{}, invalid("Complete", "elapsed time must be a positive number of seconds", ErrInvalidElapsedTime)
	}

	t.CompletedOn = &completedOn
	t.Finished = true
	t.ElapsedTime = &elapsed
	t.UpdatedAt = time.Now().UTC()

	event := NewTaskCompletedEvent(t.Snapshot())
	t.RecordEvent(event)
	return event, nil
}

// Uncomplete returns a completed task to the pending state.
func (t *Task) Uncomplete(requesterID shared.ID) (TaskUncompleteEvent, error) {
	if !t.IsOwnedBy(requesterID) {
		return TaskUncompleteEvent{}, unauthorized("Uncomplete")
	}
	if !t.Finished {
		return TaskUncompleteEvent{}, invalid("Uncomplete", "task is not completed", ErrTaskNotCompleted)
	}

	t.CompletedOn = nil
	t.Finished = false
	t.ElapsedTime = nil
	t.UpdatedAt = time.Now().UTC()

	event := NewTaskUncompleteEvent(t.Snapshot())
	t.RecordEvent(event)
	return event, nil
}

// StudentRemove checks that requesterID may delete the task. It emits no
// event: the caller deletes through the repository.
func (t *Task) StudentRemove(requesterID shared.ID) error {
	if !t.IsOwnedBy(requesterID) {
		return unauthorized("StudentRemove")
	}
	if t.Finished {
		return invalid("StudentRemove", "completed task cannot be removed", ErrTaskProtected)
	}
	return nil
}

// RegisterNote merges input into the task note. The event carries both the
// new and the previous values so consumers can apply deltas. The event date
// is the completion date when the task is completed, otherwise on.
func (t *Task) RegisterNote(requesterID shared.ID, input NoteInput, on shared.CalendarDate) (TaskNoteRegisteredEvent, error) {
	if !t.IsOwnedBy(requesterID) {
		return TaskNoteRegisteredEvent{}, unauthorized("RegisterNote")
	}
	if input.IsEmpty() {
		return TaskNoteRegisteredEvent{}, invalid("RegisterNote", "note must contain a comment or an answer count", ErrEmptyNote)
	}

	date := on
	if t.CompletedOn != nil {
		date = *t.CompletedOn
	}
	if date.IsZero() {
		return TaskNoteRegisteredEvent{}, invalid("RegisterNote", "note date is required", ErrInvalidDate)
	}

	now := time.Now().UTC()
	previous := TaskNote{}
	if t.Note == nil {
		t.Note = &TaskNote{CreatedAt: now}
	} else {
		previous = t.Note.clone()
	}

	if input.Comment != nil {
		t.Note.Comment = copyComment(input.Comment)
	}
	if input.CorrectCount != nil {
		t.Note.CorrectCount = copyCount(input.CorrectCount)
	}
	if input.IncorrectCount != nil {
		t.Note.IncorrectCount = copyCount(input.IncorrectCount)
	}
	t.Note.UpdatedAt = now
	t.UpdatedAt = now

	event := NewTaskNoteRegisteredEvent(TaskNoteRegisteredPayload{
		TaskID:                 t.ID,
		UserID:                 t.OwnerID,
		TopicID:                t.TopicID,
		Date:                   date,
		CommentNote:            copyComment(input.Comment),
		CorrectCount:           copyCount(input.CorrectCount),
		IncorrectCount:         copyCount(input.IncorrectCount),
		PreviousCommentNote:    previous.Comment,
		PreviousCorrectCount:   previous.CorrectCount,
		PreviousIncorrectCount: previous.IncorrectCount,
	})
	t.RecordEvent(event)
	return event, nil
}

// Snapshot returns a deep copy of the task without its event buffer.
func (t *Task) Snapshot() Task {
	s := Task{
		ID:                      t.ID,
		OwnerID:                 t.OwnerID,
		CourseID:                t.CourseID,
		TopicID:                 t.TopicID,
		Type:                    t.Type,
		Cycle:                   t.Cycle,
		PlannedDate:             copyDate(t.PlannedDate),
		CompletedOn:             copyDate(t.CompletedOn),
		ElapsedTime:             copyElapsed(t.ElapsedTime),
		Finished:                t.Finished,
		IsExtra:                 t.IsExtra,
		EstimatedTimeToComplete: copyElapsed(t.EstimatedTimeToComplete),
		CreatedAt:               t.CreatedAt,
		UpdatedAt:               t.UpdatedAt,
	}
	if t.Note != nil {
		n := t.Note.clone()
		s.Note = &n
	}
	return s
}

func (n TaskNote) clone() TaskNote {
	return TaskNote{
		Comment:        copyComment(n.Comment),
		CorrectCount:   copyCount(n.CorrectCount),
		IncorrectCount: copyCount(n.IncorrectCount),
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}

func copyDate(d *shared.CalendarDate) *shared.CalendarDate {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func copyElapsed(e *ElapsedTimeInSeconds) *ElapsedTimeInSeconds {
	if e == nil {
		return nil
	}
	v := *e
	return &v
}

func copyCount(c *QuestionResultNote) *QuestionResultNote {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

func copyComment(c *CommentNote) *CommentNote {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}
