// Package memory provides in-process stores used by tests and by local runs
// without DATABASE_URL.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/internal/infrastructure/persistence"
)

// TaskRepository implements task.Repository in memory. Stored tasks are
// detached copies; callers see changes only after Save.
type TaskRepository struct {
	mu      sync.RWMutex
	tasks   map[shared.ID]task.Task
	flusher *persistence.EventFlusher

	// failWrites makes every write fail, for tests of the flush contract.
	failWrites error
}

// Compile-time check
var _ task.Repository = (*TaskRepository)(nil)

// NewTaskRepository creates an empty store that publishes through publisher.
func NewTaskRepository(publisher shared.EventPublisher, logger *slog.Logger) *TaskRepository {
	return &TaskRepository{
		tasks:   make(map[shared.ID]task.Task),
		flusher: persistence.NewEventFlusher(publisher, logger),
	}
}

// FailWrites makes subsequent writes return err; nil restores normal behaviour.
func (r *TaskRepository) FailWrites(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWrites = err
}

// Create inserts a new task and flushes its events.
func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	return r.flusher.Commit(ctx, t, func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.failWrites != nil {
			return r.failWrites
		}
		if _, exists := r.tasks[t.ID]; exists {
			return shared.WrapError("task", "Create", shared.ErrValidation, "task already exists", task.ErrTaskAlreadyExists)
		}
		r.tasks[t.ID] = t.Snapshot()
		return nil
	})
}

// Save updates an existing task and flushes its events.
func (r *TaskRepository) Save(ctx context.Context, t *task.Task) error {
	return r.flusher.Commit(ctx, t, func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		if r.failWrites != nil {
			return r.failWrites
		}
		if _, exists := r.tasks[t.ID]; !exists {
			return task.NotFound("Save", t.ID)
		}
		r.tasks[t.ID] = t.Snapshot()
		return nil
	})
}

// OfID returns a copy of the stored task.
func (r *TaskRepository) OfID(ctx context.Context, id shared.ID) (*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.tasks[id]
	if !ok {
		return nil, task.NotFound("OfID", id)
	}
	snapshot := stored.Snapshot()
	return &snapshot, nil
}

// Delete removes a task.
func (r *TaskRepository) Delete(ctx context.Context, id shared.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWrites != nil {
		return r.failWrites
	}
	if _, ok := r.tasks[id]; !ok {
		return task.NotFound("Delete", id)
	}
	delete(r.tasks, id)
	return nil
}

// TopicsThatHaveTasks returns the distinct topics of the user's tasks.
func (r *TaskRepository) TopicsThatHaveTasks(ctx context.Context, userID shared.ID) ([]shared.ID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[shared.ID]struct{})
	topics := make([]shared.ID, 0)
	for _, t := range r.tasks {
		if t.OwnerID != userID {
			continue
		}
		if _, ok := seen[t.TopicID]; ok {
			continue
		}
		seen[t.TopicID] = struct{}{}
		topics = append(topics, t.TopicID)
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].String() < topics[j].String() })
	return topics, nil
}

// DeleteByUserAndCourse removes the user's tasks in the course.
func (r *TaskRepository) DeleteByUserAndCourse(ctx context.Context, userID, courseID shared.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWrites != nil {
		return r.failWrites
	}
	for id, t := range r.tasks {
		if t.OwnerID == userID && t.CourseID == courseID {
			delete(r.tasks, id)
		}
	}
	return nil
}

// ExistsInCycle reports whether a matching task is stored.
func (r *TaskRepository) ExistsInCycle(ctx context.Context, ownerID, topicID shared.ID, taskType task.TaskType, cycle int) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.tasks {
		if t.OwnerID == ownerID && t.TopicID == topicID && t.Type == taskType && t.Cycle == cycle {
			return true, nil
		}
	}
	return false, nil
}

// ListByOwner returns the user's tasks ordered by topic, type and cycle.
func (r *TaskRepository) ListByOwner(ctx context.Context, ownerID shared.ID) ([]*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*task.Task
	for _, t := range r.tasks {
		if t.OwnerID != ownerID {
			continue
		}
		snapshot := t.Snapshot()
		out = append(out, &snapshot)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.TopicID != b.TopicID {
			return a.TopicID.String() < b.TopicID.String()
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Cycle < b.Cycle
	})
	return out, nil
}
