package task

import (
	"context"

	"github.com/study-planner/planner-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository stores tasks. Create and Save flush the task's pending events
// through the dispatcher once the write has succeeded; when the write fails
// nothing is dispatched and the events stay buffered.
type Repository interface {
	// Create inserts a new task and flushes its events.
	Create(ctx context.Context, t *Task) error

	// Save updates an existing task and flushes its events.
	// Returns a NotFound error if the task does not exist.
	Save(ctx context.Context, t *Task) error

	// OfID returns the task with the given id.
	// Returns a NotFound error (wrapping ErrTaskNotFound) if there is none.
	OfID(ctx context.Context, id shared.ID) (*Task, error)

	// Delete removes a task. Returns a NotFound error if there is none.
	Delete(ctx context.Context, id shared.ID) error

	// TopicsThatHaveTasks returns the distinct topics the user has tasks in.
	TopicsThatHaveTasks(ctx context.Context, userID shared.ID) ([]shared.ID, error)

	// DeleteByUserAndCourse removes every task of the user in the course.
	DeleteByUserAndCourse(ctx context.Context, userID, courseID shared.ID) error

	// ExistsInCycle reports whether the user already has a task of the given
	// type for the topic at the given cycle.
	ExistsInCycle(ctx context.Context, ownerID, topicID shared.ID, taskType TaskType, cycle int) (bool, error)
}

// TopicActivityChecker tells whether a topic still takes part in the user's
// schedule: the topic is active and the user is enrolled in its course.
type TopicActivityChecker interface {
	IsTopicActive(ctx context.Context, userID, courseID, topicID shared.ID) (bool, error)
}
