package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/study-planner/planner-core/internal/domain/progress"
	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/internal/infrastructure/persistence/memory"
	"github.com/study-planner/planner-core/pkg/timeutil"
)

var calendar = timeutil.MustCalendar("", timeutil.Fixed(time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)))

func TestGetDailyProgress_TodayWithHistory(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProgressRepository()
	user, topic := shared.NewID(), shared.NewID()
	today := shared.MustParseCalendarDate("2024-01-10")

	p := progress.New(user, today)
	taskID := shared.NewID()
	p.ApplyCompletion(taskID, topic, 3900)
	correct := 4
	p.ApplyNote(progress.NoteCounts{TopicID: topic, TaskID: taskID, Correct: &correct})
	require.NoError(t, repo.Save(ctx, p))

	earlier := progress.New(user, today.AddDays(-2))
	earlier.ApplyCompletion(shared.NewID(), topic, 600)
	require.NoError(t, repo.Save(ctx, earlier))

	tooOld := progress.New(user, today.AddDays(-10))
	tooOld.ApplyCompletion(shared.NewID(), topic, 600)
	require.NoError(t, repo.Save(ctx, tooOld))

	res, err := NewGetDailyProgressHandler(repo, calendar).Handle(ctx, GetDailyProgressQuery{
		UserID: user.String(), HistoryDays: 7,
	})
	require.NoError(t, err)

	assert.Equal(t, "2024-01-10", res.Day.Date)
	assert.True(t, res.Day.IsToday)
	assert.Equal(t, []string{taskID.String()}, res.Day.CompletedTaskIDs)
	assert.Equal(t, "1h 05m", res.Day.StudyTime)
	assert.Equal(t, 1.0, res.Day.Accuracy)
	require.Len(t, res.Day.Performance, 1)
	assert.Equal(t, 4, res.Day.Performance[0].CorrectAmount)

	require.Len(t, res.History, 1)
	assert.Equal(t, "2024-01-08", res.History[0].Date)
	assert.Equal(t, 2, res.PeriodTasks)
	assert.Equal(t, 4500, res.PeriodStudyTimeSeconds)
	assert.Equal(t, 2, res.ActiveDays)
}

func TestGetDailyProgress_EmptyDay(t *testing.T) {
	res, err := NewGetDailyProgressHandler(memory.NewProgressRepository(), calendar).Handle(context.Background(),
		GetDailyProgressQuery{UserID: shared.NewID().String(), Date: "2024-01-05"})
	require.NoError(t, err)

	assert.Equal(t, "2024-01-05", res.Day.Date)
	assert.False(t, res.Day.IsToday)
	assert.False(t, res.Day.IsActive)
	assert.Empty(t, res.Day.CompletedTaskIDs)
	assert.Equal(t, "0m", res.Day.StudyTime)
}

func TestGetDailyProgress_Validation(t *testing.T) {
	h := NewGetDailyProgressHandler(memory.NewProgressRepository(), calendar)

	for _, q := range []GetDailyProgressQuery{
		{},
		{UserID: "nope"},
		{UserID: shared.NewID().String(), Date: "10/01/2024"},
		{UserID: shared.NewID().String(), HistoryDays: MaxHistoryDays + 1},
	} {
		_, err := h.Handle(context.Background(), q)
		assert.True(t, shared.IsValidation(err), "query %+v", q)
	}
}

func TestListTasks_Agenda(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTaskRepository(nil, nil)
	owner := shared.NewID()

	newTask := func(planned string) *task.Task {
		params := task.NewTaskParams{OwnerID: owner, CourseID: shared.NewID(), TopicID: shared.NewID(), Type: task.TypeStudy}
		if planned != "" {
			d := shared.MustParseCalendarDate(planned)
			params.PlannedDate = &d
		}
		tk, err := task.New(params)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, tk))
		return tk
	}

	overdue := newTask("2024-01-08")
	dueToday := newTask("2024-01-10")
	future := newTask("2024-01-20")
	unplanned := newTask("")
	done := newTask("2024-01-09")
	_, err := done.Complete(owner, shared.MustParseCalendarDate("2024-01-09"), 60)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, done))
	newTaskForOther, err := task.New(task.NewTaskParams{OwnerID: shared.NewID(), CourseID: shared.NewID(), TopicID: shared.NewID(), Type: task.TypeReview})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, newTaskForOther))

	h := NewListTasksHandler(repo, calendar)

	res, err := h.Handle(ctx, ListTasksQuery{OwnerID: owner.String()})
	require.NoError(t, err)
	ids := func(r *ListTasksResult) []string {
		out := make([]string, len(r.Tasks))
		for i, dto := range r.Tasks {
			out[i] = dto.ID
		}
		return out
	}
	assert.Equal(t, []string{overdue.ID.String(), dueToday.ID.String(), unplanned.ID.String()}, ids(res))
	assert.Equal(t, 3, res.Pending)
	assert.Equal(t, 1, res.Overdue)
	assert.True(t, res.Tasks[0].Overdue)

	res, err = h.Handle(ctx, ListTasksQuery{OwnerID: owner.String(), AllPending: true, IncludeCompleted: true})
	require.NoError(t, err)
	assert.Equal(t, []string{
		overdue.ID.String(), dueToday.ID.String(), future.ID.String(), unplanned.ID.String(), done.ID.String(),
	}, ids(res))
	assert.Equal(t, "2024-01-09", res.Tasks[4].CompletedOn)

	_, err = h.Handle(ctx, ListTasksQuery{OwnerID: "x"})
	assert.True(t, shared.IsValidation(err))
}
