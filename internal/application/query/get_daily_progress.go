// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/study-planner/planner-core/internal/domain/progress"
	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/pkg/timeutil"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func invalidQuery(op string, err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fe.Field())
		}
		return shared.WrapError("query", op, shared.ErrValidation, "invalid fields: "+strings.Join(fields, ", "), err)
	}
	return shared.WrapError("query", op, shared.ErrValidation, err.Error(), err)
}

// ══════════════════════════════════════════════════════════════════════════════
// GET DAILY PROGRESS QUERY
// Reads the analytics record of one day and, optionally, the days before it.
// ══════════════════════════════════════════════════════════════════════════════

// MaxHistoryDays bounds GetDailyProgressQuery.HistoryDays.
const MaxHistoryDays = 90

// GetDailyProgressQuery contains the parameters of the query.
type GetDailyProgressQuery struct {
	UserID string `validate:"required,uuid"`

	// Date defaults to today in the configured timezone.
	Date string `validate:"omitempty,datetime=2006-01-02"`

	// HistoryDays adds that many days before Date. Zero means none.
	HistoryDays int `validate:"gte=0,lte=90"`
}

// Validate validates the query.
func (q GetDailyProgressQuery) Validate() error {
	if err := validate.Struct(q); err != nil {
		return invalidQuery("GetDailyProgress", err)
	}
	return nil
}

// SubjectPerformanceDTO is the tally of one topic for a day.
type SubjectPerformanceDTO struct {
	TopicID         string `json:"topic_id"`
	CorrectAmount   int    `json:"correct_amount"`
	IncorrectAmount int    `json:"incorrect_amount"`
}

// DailyProgressDTO is one day of progress.
type DailyProgressDTO struct {
	Date    string `json:"date"`
	IsToday bool   `json:"is_today"`

	CompletedTaskIDs []string `json:"completed_task_ids"`
	TasksCompleted   int      `json:"tasks_completed"`

	StudyTimeSeconds int    `json:"study_time_seconds"`
	StudyTime        string `json:"study_time"`

	SubjectsStudied []string                `json:"subjects_studied"`
	Performance     []SubjectPerformanceDTO `json:"performance,omitempty"`

	TotalCorrect   int     `json:"total_correct"`
	TotalIncorrect int     `json:"total_incorrect"`
	Accuracy       float64 `json:"accuracy"`

	IsActive bool `json:"is_active"`
}

// GetDailyProgressResult contains the result of the query.
type GetDailyProgressResult struct {
	UserID string           `json:"user_id"`
	Day    DailyProgressDTO `json:"day"`

	// History holds the recorded days before Day, oldest first.
	History []DailyProgressDTO `json:"history,omitempty"`

	PeriodTasks            int `json:"period_tasks"`
	PeriodStudyTimeSeconds int `json:"period_study_time_seconds"`
	ActiveDays             int `json:"active_days"`

	GeneratedAt time.Time `json:"generated_at"`
}

// GetDailyProgressHandler handles GetDailyProgressQuery.
type GetDailyProgressHandler struct {
	progress progress.Repository
	calendar *timeutil.Calendar
}

// NewGetDailyProgressHandler creates the handler.
func NewGetDailyProgressHandler(repo progress.Repository, calendar *timeutil.Calendar) *GetDailyProgressHandler {
	if calendar == nil {
		calendar = timeutil.MustCalendar("", nil)
	}
	return &GetDailyProgressHandler{progress: repo, calendar: calendar}
}

// Handle executes the query. A day without a record is returned empty.
func (h *GetDailyProgressHandler) Handle(ctx context.Context, q GetDailyProgressQuery) (*GetDailyProgressResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	userID, err := shared.ParseID(q.UserID)
	if err != nil {
		return nil, err
	}

	y, m, d := h.calendar.Today()
	today, err := shared.NewCalendarDate(y, m, d)
	if err != nil {
		return nil, err
	}
	day := today
	if q.Date != "" {
		if day, err = shared.ParseCalendarDate(q.Date); err != nil {
			return nil, err
		}
	}

	record, err := h.progress.Get(ctx, userID, day)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("get daily progress: %w", err)
		}
		record = progress.New(userID, day)
	}

	result := &GetDailyProgressResult{
		UserID:      userID.String(),
		Day:         buildDailyProgressDTO(record, today),
		GeneratedAt: time.Now().UTC(),
	}
	result.accumulate(result.Day)

	if q.HistoryDays > 0 {
		records, err := h.progress.ListRange(ctx, userID, day.AddDays(-q.HistoryDays), day.AddDays(-1))
		if err != nil {
			return nil, fmt.Errorf("list daily progress: %w", err)
		}
		for _, r := range records {
			dto := buildDailyProgressDTO(r, today)
			result.History = append(result.History, dto)
			result.accumulate(dto)
		}
	}

	return result, nil
}

func (r *GetDailyProgressResult) accumulate(day DailyProgressDTO) {
	r.PeriodTasks += day.TasksCompleted
	r.PeriodStudyTimeSeconds += day.StudyTimeSeconds
	if day.IsActive {
		r.ActiveDays++
	}
}

func buildDailyProgressDTO(p *progress.UserDailyProgress, today shared.CalendarDate) DailyProgressDTO {
	dto := DailyProgressDTO{
		Date:             p.Date.String(),
		IsToday:          p.Date.Equal(today),
		CompletedTaskIDs: idStrings(p.CompletedTaskIDs()),
		TasksCompleted:   p.TotalTasksCompleted,
		StudyTimeSeconds: p.StudyTimeSeconds,
		StudyTime:        formatStudyTime(p.StudyTimeSeconds),
		SubjectsStudied:  idStrings(p.SubjectsStudied),
		TotalCorrect:     p.TotalCorrect,
		TotalIncorrect:   p.TotalIncorrect,
		Accuracy:         p.Accuracy(),
		IsActive:         p.TotalTasksCompleted > 0 || p.TotalCorrect+p.TotalIncorrect > 0,
	}

	seen := make(map[shared.ID]bool)
	for _, e := range p.Performance {
		if seen[e.TopicID] {
			continue
		}
		seen[e.TopicID] = true
		correct, incorrect := p.TopicTally(e.TopicID)
		dto.Performance = append(dto.Performance, SubjectPerformanceDTO{
			TopicID:         e.TopicID.String(),
			CorrectAmount:   correct,
			IncorrectAmount: incorrect,
		})
	}
	return dto
}

func idStrings(ids []shared.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// formatStudyTime renders seconds as "1h 05m" or "12m".
func formatStudyTime(seconds int) string {
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}
