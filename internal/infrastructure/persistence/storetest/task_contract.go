// Package storetest holds the behaviour every task.Repository must show,
// so each store runs the same checks against its own backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
)

// RecordingPublisher remembers every published event and optionally fails.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
	Err    error
}

// Publish implements shared.EventPublisher.
func (p *RecordingPublisher) Publish(ctx context.Context, event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.Err
}

// Types returns the types of the published events in order.
func (p *RecordingPublisher) Types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]shared.EventType, len(p.events))
	for i, e := range p.events {
		types[i] = e.EventType()
	}
	return types
}

// Factory builds an empty repository wired to publisher.
type Factory func(t *testing.T, publisher shared.EventPublisher) task.Repository

// NewTask builds a pending study task for owner.
func NewTask(t *testing.T, owner shared.ID) *task.Task {
	t.Helper()
	planned := shared.MustParseCalendarDate("2024-01-09")
	tk, err := task.New(task.NewTaskParams{
		OwnerID:     owner,
		CourseID:    shared.NewID(),
		TopicID:     shared.NewID(),
		Type:        task.TypeStudy,
		PlannedDate: &planned,
	})
	require.NoError(t, err)
	return tk
}

// RunTaskRepositoryContract runs the shared checks against newRepo.
func RunTaskRepositoryContract(t *testing.T, newRepo Factory) {
	ctx := context.Background()
	completedOn := shared.MustParseCalendarDate("2024-01-10")

	t.Run("create then load", func(t *testing.T) {
		pub := &RecordingPublisher{}
		repo := newRepo(t, pub)
		owner := shared.NewID()
		tk := NewTask(t, owner)

		require.NoError(t, repo.Create(ctx, tk))

		loaded, err := repo.OfID(ctx, tk.ID)
		require.NoError(t, err)
		assert.Equal(t, tk.ID, loaded.ID)
		assert.Equal(t, owner, loaded.OwnerID)
		assert.Equal(t, task.TypeStudy, loaded.Type)
		require.NotNil(t, loaded.PlannedDate)
		assert.Equal(t, *tk.PlannedDate, *loaded.PlannedDate)
		assert.False(t, loaded.Finished)
		assert.Empty(t, pub.Types())
	})

	t.Run("missing task is not found", func(t *testing.T) {
		repo := newRepo(t, &RecordingPublisher{})

		_, err := repo.OfID(ctx, shared.NewID())
		assert.True(t, shared.IsNotFound(err))
		assert.ErrorIs(t, err, task.ErrTaskNotFound)
	})

	t.Run("save flushes events in insertion order and clears the buffer", func(t *testing.T) {
		pub := &RecordingPublisher{}
		repo := newRepo(t, pub)
		owner := shared.NewID()
		tk := NewTask(t, owner)
		require.NoError(t, repo.Create(ctx, tk))

		_, err := tk.Complete(owner, completedOn, 1800)
		require.NoError(t, err)
		correct := task.QuestionResultNote(4)
		_, err = tk.RegisterNote(owner, task.NoteInput{CorrectCount: &correct}, completedOn)
		require.NoError(t, err)

		require.NoError(t, repo.Save(ctx, tk))

		assert.Equal(t, []shared.EventType{task.EventTaskCompleted, task.EventTaskNoteRegistered}, pub.Types())
		assert.Empty(t, tk.PendingEvents())

		loaded, err := repo.OfID(ctx, tk.ID)
		require.NoError(t, err)
		assert.True(t, loaded.Finished)
		require.NotNil(t, loaded.CompletedOn)
		assert.Equal(t, completedOn, *loaded.CompletedOn)
		require.NotNil(t, loaded.ElapsedTime)
		assert.Equal(t, task.ElapsedTimeInSeconds(1800), *loaded.ElapsedTime)
		require.NotNil(t, loaded.Note)
		require.NotNil(t, loaded.Note.CorrectCount)
		assert.Equal(t, correct, *loaded.Note.CorrectCount)
	})

	t.Run("failed write dispatches nothing and keeps the buffer", func(t *testing.T) {
		pub := &RecordingPublisher{}
		repo := newRepo(t, pub)
		owner := shared.NewID()
		tk := NewTask(t, owner)

		_, err := tk.Complete(owner, completedOn, 60)
		require.NoError(t, err)

		err = repo.Save(ctx, tk)
		require.Error(t, err)
		assert.True(t, shared.IsNotFound(err))
		assert.Empty(t, pub.Types())
		assert.Len(t, tk.PendingEvents(), 1)
	})

	t.Run("dispatch failure keeps the write", func(t *testing.T) {
		pub := &RecordingPublisher{Err: errors.New("handler down")}
		repo := newRepo(t, pub)
		owner := shared.NewID()
		tk := NewTask(t, owner)
		require.NoError(t, repo.Create(ctx, tk))

		_, err := tk.Complete(owner, completedOn, 60)
		require.NoError(t, err)

		err = repo.Save(ctx, tk)
		assert.ErrorIs(t, err, shared.ErrEventDispatch)
		assert.True(t, shared.IsInfrastructure(err))
		assert.Empty(t, tk.PendingEvents())

		loaded, err := repo.OfID(ctx, tk.ID)
		require.NoError(t, err)
		assert.True(t, loaded.Finished)
	})

	t.Run("queries and deletes", func(t *testing.T) {
		repo := newRepo(t, &RecordingPublisher{})
		owner := shared.NewID()

		first := NewTask(t, owner)
		second, err := task.New(task.NewTaskParams{
			OwnerID: owner, CourseID: first.CourseID, TopicID: shared.NewID(),
			Type: task.TypeReview, Cycle: 2,
		})
		require.NoError(t, err)
		foreign := NewTask(t, shared.NewID())

		for _, tk := range []*task.Task{first, second, foreign} {
			require.NoError(t, repo.Create(ctx, tk))
		}

		topics, err := repo.TopicsThatHaveTasks(ctx, owner)
		require.NoError(t, err)
		assert.ElementsMatch(t, []shared.ID{first.TopicID, second.TopicID}, topics)

		exists, err := repo.ExistsInCycle(ctx, owner, second.TopicID, task.TypeReview, 2)
		require.NoError(t, err)
		assert.True(t, exists)
		exists, err = repo.ExistsInCycle(ctx, owner, second.TopicID, task.TypeReview, 3)
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, repo.Delete(ctx, foreign.ID))
		_, err = repo.OfID(ctx, foreign.ID)
		assert.True(t, shared.IsNotFound(err))
		assert.True(t, shared.IsNotFound(repo.Delete(ctx, foreign.ID)))

		require.NoError(t, repo.DeleteByUserAndCourse(ctx, owner, first.CourseID))
		topics, err = repo.TopicsThatHaveTasks(ctx, owner)
		require.NoError(t, err)
		assert.Empty(t, topics)
	})

	t.Run("duplicate create is rejected without dispatch", func(t *testing.T) {
		pub := &RecordingPublisher{}
		repo := newRepo(t, pub)
		tk := NewTask(t, shared.NewID())
		require.NoError(t, repo.Create(ctx, tk))

		err := repo.Create(ctx, tk)
		assert.ErrorIs(t, err, task.ErrTaskAlreadyExists)
		assert.Empty(t, pub.Types())
	})
}
