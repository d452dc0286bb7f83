package task

import (
	"github.com/study-planner/planner-core/internal/domain/shared"
)

// Event type tags. They are the wire contract with every consumer.
const (
	EventTaskCompleted      shared.EventType = "task.completed"
	EventTaskUncompleted    shared.EventType = "task.uncompleted"
	EventTaskNoteRegistered shared.EventType = "task.note_registered"
)

// ═══════════════════════════════════════════════════════════════════════════
// Lifecycle Events
// ═══════════════════════════════════════════════════════════════════════════

// TaskCompletedEvent is emitted when the owner completes a task.
// Task is a snapshot taken right after the transition.
type TaskCompletedEvent struct {
	shared.BaseEvent
	Task Task `json:"task"`
}

// Payload implements Event interface.
func (e TaskCompletedEvent) Payload() map[string]interface{} {
	return taskPayload(e.Task)
}

// NewTaskCompletedEvent creates a new TaskCompletedEvent.
func NewTaskCompletedEvent(snapshot Task) TaskCompletedEvent {
	return TaskCompletedEvent{
		BaseEvent: shared.NewBaseEvent(EventTaskCompleted, snapshot.ID.String()),
		Task:      snapshot,
	}
}

// TaskUncompleteEvent is emitted when the owner reverts a completion.
type TaskUncompleteEvent struct {
	shared.BaseEvent
	Task Task `json:"task"`
}

// Payload implements Event interface.
func (e TaskUncompleteEvent) Payload() map[string]interface{} {
	return taskPayload(e.Task)
}

// NewTaskUncompleteEvent creates a new TaskUncompleteEvent.
func NewTaskUncompleteEvent(snapshot Task) TaskUncompleteEvent {
	return TaskUncompleteEvent{
		BaseEvent: shared.NewBaseEvent(EventTaskUncompleted, snapshot.ID.String()),
		Task:      snapshot,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Note Events
// ═══════════════════════════════════════════════════════════════════════════

// TaskNoteRegisteredPayload holds the new note values and the values they
// replaced. Nil new values were not part of the registration.
type TaskNoteRegisteredPayload struct {
	TaskID  shared.ID           `json:"task_id"`
	UserID  shared.ID           `json:"user_id"`
	TopicID shared.ID           `json:"topic_id"`
	Date    shared.CalendarDate `json:"date"`

	CommentNote    *CommentNote        `json:"comment_note,omitempty"`
	CorrectCount   *QuestionResultNote `json:"correct_count,omitempty"`
	IncorrectCount *QuestionResultNote `json:"incorrect_count,omitempty"`

	PreviousCommentNote    *CommentNote        `json:"previous_comment_note,omitempty"`
	PreviousCorrectCount   *QuestionResultNote `json:"previous_correct_count,omitempty"`
	PreviousIncorrectCount *QuestionResultNote `json:"previous_incorrect_count,omitempty"`
}

// TaskNoteRegisteredEvent is emitted when the owner registers a note.
type TaskNoteRegisteredEvent struct {
	shared.BaseEvent
	TaskNoteRegisteredPayload
}

// Payload implements Event interface.
func (e TaskNoteRegisteredEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"task_id":  e.TaskID.String(),
		"user_id":  e.UserID.String(),
		"topic_id": e.TopicID.String(),
		"date":     e.Date.String(),
	}
	putComment(p, "comment_note", e.CommentNote)
	putCount(p, "correct_count", e.CorrectCount)
	putCount(p, "incorrect_count", e.IncorrectCount)
	putComment(p, "previous_comment_note", e.PreviousCommentNote)
	putCount(p, "previous_correct_count", e.PreviousCorrectCount)
	putCount(p, "previous_incorrect_count", e.PreviousIncorrectCount)
	return p
}

// NewTaskNoteRegisteredEvent creates a new TaskNoteRegisteredEvent.
func NewTaskNoteRegisteredEvent(payload TaskNoteRegisteredPayload) TaskNoteRegisteredEvent {
	return TaskNoteRegisteredEvent{
		BaseEvent:                 shared.NewBaseEvent(EventTaskNoteRegistered, payload.TaskID.String()),
		TaskNoteRegisteredPayload: payload,
	}
}

func taskPayload(t Task) map[string]interface{} {
	p := map[string]interface{}{
		"id":        t.ID.String(),
		"owner_id":  t.OwnerID.String(),
		"course_id": t.CourseID.String(),
		"topic_id":  t.TopicID.String(),
		"type":      t.Type.String(),
		"cycle":     t.Cycle,
		"finished":  t.Finished,
		"is_extra":  t.IsExtra,
	}
	if t.PlannedDate != nil {
		p["planned_date"] = t.PlannedDate.String()
	}
	if t.CompletedOn != nil {
		p["completed_on"] = t.CompletedOn.String()
	}
	if t.ElapsedTime != nil {
		p["elapsed_time_in_seconds"] = t.ElapsedTime.Int()
	}
	if t.EstimatedTimeToComplete != nil {
		p["estimated_time_to_complete"] = t.EstimatedTimeToComplete.Int()
	}
	return p
}

func putCount(p map[string]interface{}, key string, v *QuestionResultNote) {
	if v != nil {
		p[key] = v.Int()
	}
}

func putComment(p map[string]interface{}, key string, v *CommentNote) {
	if v != nil {
		p[key] = v.String()
	}
}
