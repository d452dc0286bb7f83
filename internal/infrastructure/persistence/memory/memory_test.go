package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/study-planner/planner-core/internal/domain/progress"
	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/internal/infrastructure/persistence/storetest"
)

func TestTaskRepositoryContract(t *testing.T) {
	storetest.RunTaskRepositoryContract(t, func(t *testing.T, publisher shared.EventPublisher) task.Repository {
		return NewTaskRepository(publisher, nil)
	})
}

func TestTaskRepository_InjectedWriteFailure(t *testing.T) {
	ctx := context.Background()
	pub := &storetest.RecordingPublisher{}
	repo := NewTaskRepository(pub, nil)
	owner := shared.NewID()
	tk := storetest.NewTask(t, owner)
	require.NoError(t, repo.Create(ctx, tk))

	_, err := tk.Complete(owner, shared.MustParseCalendarDate("2024-01-10"), 60)
	require.NoError(t, err)

	diskFull := errors.New("disk full")
	repo.FailWrites(diskFull)
	assert.ErrorIs(t, repo.Save(ctx, tk), diskFull)
	assert.Empty(t, pub.Types())
	assert.Len(t, tk.PendingEvents(), 1)

	repo.FailWrites(nil)
	require.NoError(t, repo.Save(ctx, tk))
	assert.Equal(t, []shared.EventType{task.EventTaskCompleted}, pub.Types())
}

func TestTaskRepository_LoadedTaskIsDetached(t *testing.T) {
	ctx := context.Background()
	repo := NewTaskRepository(nil, nil)
	owner := shared.NewID()
	tk := storetest.NewTask(t, owner)
	require.NoError(t, repo.Create(ctx, tk))

	loaded, err := repo.OfID(ctx, tk.ID)
	require.NoError(t, err)
	_, err = loaded.Complete(owner, shared.MustParseCalendarDate("2024-01-10"), 60)
	require.NoError(t, err)

	again, err := repo.OfID(ctx, tk.ID)
	require.NoError(t, err)
	assert.False(t, again.Finished)

	list, err := repo.ListByOwner(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestProgressRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewProgressRepository()
	user := shared.NewID()
	day := shared.MustParseCalendarDate("2024-01-10")

	_, err := repo.Get(ctx, user, day)
	assert.ErrorIs(t, err, progress.ErrProgressNotFound)

	p := progress.New(user, day)
	p.ApplyCompletion(shared.NewID(), shared.NewID(), 1800)
	require.NoError(t, repo.Save(ctx, p))

	p.ApplyCompletion(shared.NewID(), shared.NewID(), 10)
	loaded, err := repo.Get(ctx, user, day)
	require.NoError(t, err)
	assert.Equal(t, 1800, loaded.StudyTimeSeconds, "stored record is a copy")

	require.NoError(t, repo.Save(ctx, progress.New(user, day.AddDays(2))))
	require.NoError(t, repo.Save(ctx, progress.New(user, day.AddDays(5))))
	require.NoError(t, repo.Save(ctx, progress.New(shared.NewID(), day)))

	list, err := repo.ListRange(ctx, user, day, day.AddDays(3))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, day, list[0].Date)
	assert.Equal(t, day.AddDays(2), list[1].Date)
}

func TestTopicCatalog(t *testing.T) {
	ctx := context.Background()
	user, course, topic := shared.NewID(), shared.NewID(), shared.NewID()

	c := NewTopicCatalog(true)
	active, err := c.IsTopicActive(ctx, user, course, topic)
	require.NoError(t, err)
	assert.True(t, active)

	c.SetTopicActive(course, topic, false)
	active, _ = c.IsTopicActive(ctx, user, course, topic)
	assert.False(t, active)

	c.SetTopicActive(course, topic, true)
	c.SetEnrolled(user, course, false)
	active, _ = c.IsTopicActive(ctx, user, course, topic)
	assert.False(t, active)

	strict := NewTopicCatalog(false)
	active, _ = strict.IsTopicActive(ctx, user, course, topic)
	assert.False(t, active)
}
