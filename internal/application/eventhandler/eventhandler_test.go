package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/internal/infrastructure/messaging"
	"github.com/study-planner/planner-core/internal/infrastructure/persistence/memory"
)

// ═══════════════════════════════════════════════════════════════════════════
// fixtures
// ═══════════════════════════════════════════════════════════════════════════

type planner struct {
	dispatcher *messaging.Dispatcher
	tasks      *memory.TaskRepository
	progress   *memory.ProgressRepository
	topics     *memory.TopicCatalog
	creation   *TaskCreationService
	daily      *DailyProgressService
}

func newPlanner(t *testing.T, policy task.SpacingPolicy) *planner {
	t.Helper()
	d := messaging.NewDispatcher(messaging.DefaultDispatcherConfig())
	p := &planner{
		dispatcher: d,
		tasks:      memory.NewTaskRepository(d, nil),
		progress:   memory.NewProgressRepository(),
		topics:     memory.NewTopicCatalog(true),
	}
	p.creation = NewTaskCreationService(p.tasks, p.topics, policy, nil, DefaultTaskCreationConfig())
	p.daily = NewDailyProgressService(p.progress, nil)
	require.NoError(t, Register(d, p.creation, p.daily))
	d.Seal()
	return p
}

func (p *planner) seed(t *testing.T, owner shared.ID, typ task.TaskType) *task.Task {
	t.Helper()
	planned := shared.MustParseCalendarDate("2024-01-08")
	tk, err := p.creation.CreateInitialTask(context.Background(), task.NewTaskParams{
		OwnerID:     owner,
		CourseID:    shared.NewID(),
		TopicID:     shared.NewID(),
		Type:        typ,
		PlannedDate: &planned,
	})
	require.NoError(t, err)
	return tk
}

func successors(t *testing.T, repo *memory.TaskRepository, of *task.Task) []*task.Task {
	t.Helper()
	all, err := repo.ListByOwner(context.Background(), of.OwnerID)
	require.NoError(t, err)
	var out []*task.Task
	for _, tk := range all {
		if tk.TopicID == of.TopicID && tk.Cycle > of.Cycle {
			out = append(out, tk)
		}
	}
	return out
}

type topicCheckerMock struct{ mock.Mock }

func (m *topicCheckerMock) IsTopicActive(ctx context.Context, userID, courseID, topicID shared.ID) (bool, error) {
	args := m.Called(ctx, userID, courseID, topicID)
	return args.Bool(0), args.Error(1)
}

// flakyTasks fails the first n Create calls with a transient error.
type flakyTasks struct {
	task.Repository
	failures int32
	calls    atomic.Int32
}

func (f *flakyTasks) Create(ctx context.Context, t *task.Task) error {
	if f.calls.Add(1) <= f.failures {
		return fmt.Errorf("insert task: %w", shared.ErrTransient)
	}
	return f.Repository.Create(ctx, t)
}

// ═══════════════════════════════════════════════════════════════════════════
// end to end
// ═══════════════════════════════════════════════════════════════════════════

func TestCompletion_PlansSuccessorAndCreditsProgress(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, nil)
	owner := shared.NewID()
	day := shared.MustParseCalendarDate("2024-01-10")

	tk := p.seed(t, owner, task.TypeStudy)
	_, err := tk.Complete(owner, day, 1800)
	require.NoError(t, err)
	require.NoError(t, p.tasks.Save(ctx, tk))

	next := successors(t, p.tasks, tk)
	require.Len(t, next, 1)
	assert.Equal(t, 1, next[0].Cycle)
	assert.Equal(t, tk.Type, next[0].Type)
	assert.False(t, next[0].Finished)
	require.NotNil(t, next[0].PlannedDate)
	assert.True(t, next[0].PlannedDate.After(day))
	assert.Equal(t, day.AddDays(task.DefaultIntervals[0]), *next[0].PlannedDate)

	record, err := p.progress.Get(ctx, owner, day)
	require.NoError(t, err)
	assert.True(t, record.HasCompleted(tk.ID))
	assert.Equal(t, 1800, record.StudyTimeSeconds)
	assert.Equal(t, []shared.ID{tk.TopicID}, record.SubjectsStudied)
}

func TestCompletion_UsesConfiguredSpacing(t *testing.T) {
	ctx := context.Background()
	table, err := task.ParseIntervalTable("review:2,5,14")
	require.NoError(t, err)
	p := newPlanner(t, table)
	owner := shared.NewID()

	tk := p.seed(t, owner, task.TypeReview)
	day := shared.MustParseCalendarDate("2024-02-27")
	_, err = tk.Complete(owner, day, 60)
	require.NoError(t, err)
	require.NoError(t, p.tasks.Save(ctx, tk))

	next := successors(t, p.tasks, tk)
	require.Len(t, next, 1)
	assert.Equal(t, shared.MustParseCalendarDate("2024-02-29"), *next[0].PlannedDate)

	_, err = next[0].Complete(owner, *next[0].PlannedDate, 60)
	require.NoError(t, err)
	require.NoError(t, p.tasks.Save(ctx, next[0]))

	third := successors(t, p.tasks, next[0])
	require.Len(t, third, 1)
	assert.Equal(t, 2, third[0].Cycle)
	assert.Equal(t, shared.MustParseCalendarDate("2024-03-05"), *third[0].PlannedDate)
}

func TestCompletion_RecompletionDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, nil)
	owner := shared.NewID()
	day := shared.MustParseCalendarDate("2024-01-10")

	tk := p.seed(t, owner, task.TypeStudy)
	_, err := tk.Complete(owner, day, 1800)
	require.NoError(t, err)
	require.NoError(t, p.tasks.Save(ctx, tk))

	_, err = tk.Uncomplete(owner)
	require.NoError(t, err)
	require.NoError(t, p.tasks.Save(ctx, tk))

	_, err = tk.Complete(owner, day, 1800)
	require.NoError(t, err)
	require.NoError(t, p.tasks.Save(ctx, tk))

	assert.Len(t, successors(t, p.tasks, tk), 1)

	record, err := p.progress.Get(ctx, owner, day)
	require.NoError(t, err)
	assert.Equal(t, 1800, record.StudyTimeSeconds, "replayed completion credits nothing")
	assert.Equal(t, 1, record.TotalTasksCompleted)
}

func TestCompletion_InactiveTopicSkipsSuccessorOnly(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, nil)
	owner := shared.NewID()
	day := shared.MustParseCalendarDate("2024-01-10")

	tk := p.seed(t, owner, task.TypeExercise)
	p.topics.SetTopicActive(tk.CourseID, tk.TopicID, false)

	_, err := tk.Complete(owner, day, 300)
	require.NoError(t, err)
	require.NoError(t, p.tasks.Save(ctx, tk))

	assert.Empty(t, successors(t, p.tasks, tk))

	record, err := p.progress.Get(ctx, owner, day)
	require.NoError(t, err)
	assert.True(t, record.HasCompleted(tk.ID))
}

func TestNoteRegistration_TalliesDeltas(t *testing.T) {
	ctx := context.Background()
	p := newPlanner(t, nil)
	owner := shared.NewID()
	day := shared.MustParseCalendarDate("2024-01-10")

	tk := p.seed(t, owner, task.TypeExercise)
	_, err := tk.Complete(owner, day, 600)
	require.NoError(t, err)

	five, eight, two := task.QuestionResultNote(5), task.QuestionResultNote(8), task.QuestionResultNote(2)
	_, err = tk.RegisterNote(owner, task.NoteInput{CorrectCount: &five, IncorrectCount: &two}, day)
	require.NoError(t, err)
	require.NoError(t, p.tasks.Save(ctx, tk))

	_, err = tk.RegisterNote(owner, task.NoteInput{CorrectCount: &eight}, day)
	require.NoError(t, err)
	require.NoError(t, p.tasks.Save(ctx, tk))

	record, err := p.progress.Get(ctx, owner, day)
	require.NoError(t, err)
	assert.Equal(t, 8, record.TotalCorrect)
	assert.Equal(t, 2, record.TotalIncorrect)

	correct, incorrect := record.TopicTally(tk.TopicID)
	assert.Equal(t, 8, correct)
	assert.Equal(t, 2, incorrect)
}

// ═══════════════════════════════════════════════════════════════════════════
// TaskCreationService
// ═══════════════════════════════════════════════════════════════════════════

func completedTask(t *testing.T, owner shared.ID) task.Task {
	t.Helper()
	tk, err := task.New(task.NewTaskParams{
		OwnerID: owner, CourseID: shared.NewID(), TopicID: shared.NewID(), Type: task.TypeStudy,
	})
	require.NoError(t, err)
	_, err = tk.Complete(owner, shared.MustParseCalendarDate("2024-01-10"), 120)
	require.NoError(t, err)
	return tk.Snapshot()
}

func TestTaskCreation_RetriesTransientFailures(t *testing.T) {
	repo := &flakyTasks{Repository: memory.NewTaskRepository(nil, nil), failures: 2}
	svc := NewTaskCreationService(repo, nil, nil, nil, TaskCreationConfig{MaxAttempts: 3})

	next, err := svc.CreateNextTask(context.Background(), completedTask(t, shared.NewID()))
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, int32(3), repo.calls.Load())
}

func TestTaskCreation_GivesUpAfterBudget(t *testing.T) {
	repo := &flakyTasks{Repository: memory.NewTaskRepository(nil, nil), failures: 10}
	svc := NewTaskCreationService(repo, nil, nil, nil, TaskCreationConfig{MaxAttempts: 2})

	next, err := svc.CreateNextTask(context.Background(), completedTask(t, shared.NewID()))
	assert.Nil(t, next)
	assert.ErrorIs(t, err, shared.ErrTransient)
	assert.Equal(t, int32(2), repo.calls.Load())
}

func TestTaskCreation_ValidationErrorIsNotRetried(t *testing.T) {
	repo := memory.NewTaskRepository(nil, nil)
	repo.FailWrites(shared.NewDomainError("task", "Create", shared.ErrValidation, "rejected"))
	svc := NewTaskCreationService(repo, nil, nil, nil, DefaultTaskCreationConfig())

	_, err := svc.CreateNextTask(context.Background(), completedTask(t, shared.NewID()))
	assert.True(t, shared.IsValidation(err))
}

func TestTaskCreation_TopicCheckFailure(t *testing.T) {
	owner := shared.NewID()
	done := completedTask(t, owner)

	checker := &topicCheckerMock{}
	lookupErr := errors.New("catalog unavailable")
	checker.On("IsTopicActive", mock.Anything, owner, done.CourseID, done.TopicID).Return(false, lookupErr)

	svc := NewTaskCreationService(memory.NewTaskRepository(nil, nil), checker, nil, nil, DefaultTaskCreationConfig())

	next, err := svc.CreateNextTask(context.Background(), done)
	assert.Nil(t, next)
	assert.ErrorIs(t, err, lookupErr)
	checker.AssertExpectations(t)
}

func TestTaskCreation_RejectsUncompletedTask(t *testing.T) {
	svc := NewTaskCreationService(memory.NewTaskRepository(nil, nil), nil, nil, nil, DefaultTaskCreationConfig())
	_, err := svc.CreateNextTask(context.Background(), task.Task{ID: shared.NewID()})
	assert.Error(t, err)
}

func TestTaskCreation_HandleIgnoresOtherEvents(t *testing.T) {
	svc := NewTaskCreationService(memory.NewTaskRepository(nil, nil), nil, nil, nil, DefaultTaskCreationConfig())
	err := svc.Handle(context.Background(), task.NewTaskUncompleteEvent(task.Task{ID: shared.NewID()}))
	assert.NoError(t, err)
}

func TestCreateInitialTask_ForcesCycleZero(t *testing.T) {
	repo := memory.NewTaskRepository(nil, nil)
	svc := NewTaskCreationService(repo, nil, nil, nil, DefaultTaskCreationConfig())

	tk, err := svc.CreateInitialTask(context.Background(), task.NewTaskParams{
		OwnerID: shared.NewID(), CourseID: shared.NewID(), TopicID: shared.NewID(),
		Type: task.TypeLawStudy, Cycle: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, tk.Cycle)

	_, err = svc.CreateInitialTask(context.Background(), task.NewTaskParams{Type: task.TypeStudy})
	assert.True(t, shared.IsValidation(err))
}

// ═══════════════════════════════════════════════════════════════════════════
// DailyProgressService
// ═══════════════════════════════════════════════════════════════════════════

func TestDailyProgress_CommentOnlyNoteCreatesDay(t *testing.T) {
	repo := memory.NewProgressRepository()
	svc := NewDailyProgressService(repo, nil)
	comment := task.CommentNote("felt good")
	payload := task.TaskNoteRegisteredPayload{
		TaskID: shared.NewID(), UserID: shared.NewID(), TopicID: shared.NewID(),
		Date:        shared.MustParseCalendarDate("2024-01-10"),
		CommentNote: &comment,
	}

	require.NoError(t, svc.HandleTaskNoteRegistration(context.Background(), payload))
	record, err := repo.Get(context.Background(), payload.UserID, payload.Date)
	require.NoError(t, err)
	assert.Zero(t, record.TotalCorrect)
	assert.Zero(t, record.TotalIncorrect)
	assert.Empty(t, record.Performance)
}

func TestDailyProgress_NoteOnFreshDayUsesPrevious(t *testing.T) {
	repo := memory.NewProgressRepository()
	svc := NewDailyProgressService(repo, nil)
	prev, now := task.QuestionResultNote(5), task.QuestionResultNote(8)
	payload := task.TaskNoteRegisteredPayload{
		TaskID: shared.NewID(), UserID: shared.NewID(), TopicID: shared.NewID(),
		Date:                 shared.MustParseCalendarDate("2024-01-11"),
		CorrectCount:         &now,
		PreviousCorrectCount: &prev,
	}

	require.NoError(t, svc.HandleTaskNoteRegistration(context.Background(), payload))
	require.NoError(t, svc.Handle(context.Background(), task.NewTaskNoteRegisteredEvent(payload)))

	record, err := repo.Get(context.Background(), payload.UserID, payload.Date)
	require.NoError(t, err)
	assert.Equal(t, 3, record.TotalCorrect, "replay adds nothing")
}

func TestDailyProgress_LateNoteEventIsIgnored(t *testing.T) {
	repo := memory.NewProgressRepository()
	svc := NewDailyProgressService(repo, nil)
	ctx := context.Background()
	five, eight := task.QuestionResultNote(5), task.QuestionResultNote(8)
	base := task.TaskNoteRegisteredPayload{
		TaskID: shared.NewID(), UserID: shared.NewID(), TopicID: shared.NewID(),
		Date: shared.MustParseCalendarDate("2024-01-10"),
	}

	first := base
	first.CorrectCount = &five
	older := task.NewTaskNoteRegisteredEvent(first)

	second := base
	second.CorrectCount = &eight
	second.PreviousCorrectCount = &five
	newer := task.NewTaskNoteRegisteredEvent(second)
	newer.BaseEvent.Timestamp = older.OccurredAt().Add(time.Minute)

	require.NoError(t, svc.Handle(ctx, older))
	require.NoError(t, svc.Handle(ctx, newer))
	require.NoError(t, svc.Handle(ctx, older))

	record, err := repo.Get(ctx, base.UserID, base.Date)
	require.NoError(t, err)
	assert.Equal(t, 8, record.TotalCorrect)
}

func TestDailyProgress_CompletionWithoutDateFails(t *testing.T) {
	svc := NewDailyProgressService(memory.NewProgressRepository(), nil)
	err := svc.HandleTaskCompletion(context.Background(), task.Task{ID: shared.NewID()})
	assert.Error(t, err)
}

// ═══════════════════════════════════════════════════════════════════════════
// registration
// ═══════════════════════════════════════════════════════════════════════════

func TestRegister_Order(t *testing.T) {
	p := newPlanner(t, nil)

	assert.Equal(t, []string{TaskCreationHandlerName, DailyProgressHandlerName},
		p.dispatcher.Handlers(task.EventTaskCompleted))
	assert.Equal(t, []string{DailyProgressHandlerName},
		p.dispatcher.Handlers(task.EventTaskNoteRegistered))
	assert.Empty(t, p.dispatcher.Handlers(task.EventTaskUncompleted))
}

func TestRegister_SealedDispatcher(t *testing.T) {
	d := messaging.NewDispatcher(messaging.DefaultDispatcherConfig())
	d.Seal()

	err := Register(d,
		NewTaskCreationService(memory.NewTaskRepository(nil, nil), nil, nil, nil, DefaultTaskCreationConfig()),
		NewDailyProgressService(memory.NewProgressRepository(), nil),
	)
	assert.ErrorIs(t, err, messaging.ErrDispatcherSealed)
}

func TestRegister_SkipsDisabledService(t *testing.T) {
	d := messaging.NewDispatcher(messaging.DefaultDispatcherConfig())
	require.NoError(t, Register(d, nil, NewDailyProgressService(memory.NewProgressRepository(), nil)))

	assert.Equal(t, []string{DailyProgressHandlerName}, d.Handlers(task.EventTaskCompleted))
	assert.Equal(t, []string{DailyProgressHandlerName}, d.Handlers(task.EventTaskNoteRegistered))
}
