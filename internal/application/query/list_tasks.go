package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST TASKS QUERY
// The student's agenda: pending tasks due by a day, optionally with the
// completed ones.
// ══════════════════════════════════════════════════════════════════════════════

// TaskLister lists every task of an owner.
type TaskLister interface {
	ListByOwner(ctx context.Context, ownerID shared.ID) ([]*task.Task, error)
}

// ListTasksQuery contains the parameters of the query.
type ListTasksQuery struct {
	OwnerID string `validate:"required,uuid"`

	// DueBy keeps pending tasks planned on or before it. Defaults to today.
	// Unplanned pending tasks are always kept.
	DueBy string `validate:"omitempty,datetime=2006-01-02"`

	// AllPending ignores DueBy.
	AllPending bool

	IncludeCompleted bool
}

// Validate validates the query.
func (q ListTasksQuery) Validate() error {
	if err := validate.Struct(q); err != nil {
		return invalidQuery("ListTasks", err)
	}
	return nil
}

// TaskDTO is one task of the agenda.
type TaskDTO struct {
	ID          string `json:"id"`
	CourseID    string `json:"course_id"`
	TopicID     string `json:"topic_id"`
	Type        string `json:"type"`
	Cycle       int    `json:"cycle"`
	PlannedDate string `json:"planned_date,omitempty"`
	CompletedOn string `json:"completed_on,omitempty"`
	Finished    bool   `json:"finished"`
	IsExtra     bool   `json:"is_extra"`
	Overdue     bool   `json:"overdue"`
}

// ListTasksResult contains the result of the query.
type ListTasksResult struct {
	Tasks   []TaskDTO `json:"tasks"`
	Pending int       `json:"pending"`
	Overdue int       `json:"overdue"`
}

// ListTasksHandler handles ListTasksQuery.
type ListTasksHandler struct {
	tasks    TaskLister
	calendar *timeutil.Calendar
}

// NewListTasksHandler creates the handler.
func NewListTasksHandler(tasks TaskLister, calendar *timeutil.Calendar) *ListTasksHandler {
	if calendar == nil {
		calendar = timeutil.MustCalendar("", nil)
	}
	return &ListTasksHandler{tasks: tasks, calendar: calendar}
}

// Handle executes the query. Pending tasks come first ordered by planned
// date, unplanned ones last.
func (h *ListTasksHandler) Handle(ctx context.Context, q ListTasksQuery) (*ListTasksResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ownerID, err := shared.ParseID(q.OwnerID)
	if err != nil {
		return nil, err
	}

	y, m, d := h.calendar.Today()
	today, err := shared.NewCalendarDate(y, m, d)
	if err != nil {
		return nil, err
	}
	dueBy := today
	if q.DueBy != "" {
		if dueBy, err = shared.ParseCalendarDate(q.DueBy); err != nil {
			return nil, err
		}
	}

	all, err := h.tasks.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	result := &ListTasksResult{Tasks: make([]TaskDTO, 0, len(all))}
	for _, t := range all {
		if t.Finished {
			if q.IncludeCompleted {
				result.Tasks = append(result.Tasks, toTaskDTO(t, today))
			}
			continue
		}
		if !q.AllPending && t.PlannedDate != nil && t.PlannedDate.After(dueBy) {
			continue
		}

		dto := toTaskDTO(t, today)
		result.Tasks = append(result.Tasks, dto)
		result.Pending++
		if dto.Overdue {
			result.Overdue++
		}
	}

	sort.SliceStable(result.Tasks, func(i, j int) bool {
		a, b := result.Tasks[i], result.Tasks[j]
		if a.Finished != b.Finished {
			return !a.Finished
		}
		if (a.PlannedDate == "") != (b.PlannedDate == "") {
			return a.PlannedDate != ""
		}
		return a.PlannedDate < b.PlannedDate
	})

	return result, nil
}

func toTaskDTO(t *task.Task, today shared.CalendarDate) TaskDTO {
	dto := TaskDTO{
		ID:       t.ID.String(),
		CourseID: t.CourseID.String(),
		TopicID:  t.TopicID.String(),
		Type:     t.Type.String(),
		Cycle:    t.Cycle,
		Finished: t.Finished,
		IsExtra:  t.IsExtra,
	}
	if t.PlannedDate != nil {
		dto.PlannedDate = t.PlannedDate.String()
		dto.Overdue = !t.Finished && t.PlannedDate.Before(today)
	}
	if t.CompletedOn != nil {
		dto.CompletedOn = t.CompletedOn.String()
	}
	return dto
}
