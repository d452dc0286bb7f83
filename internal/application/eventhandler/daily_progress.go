package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/study-planner/planner-core/internal/domain/progress"
	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
)

// ═══════════════════════════════════════════════════════════════════════════
// DAILY PROGRESS SERVICE
// Folds task completions and note registrations into UserDailyProgress.
// Every update is idempotent: replaying an event leaves the record as is.
// ═══════════════════════════════════════════════════════════════════════════

// DailyProgressService maintains the per-day analytics records.
type DailyProgressService struct {
	progress progress.Repository
	logger   *slog.Logger
}

// NewDailyProgressService creates the service.
func NewDailyProgressService(repo progress.Repository, logger *slog.Logger) *DailyProgressService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DailyProgressService{
		progress: repo,
		logger:   logger.With("handler", "daily_progress"),
	}
}

// Handle implements shared.EventHandler for task.completed and
// task.note_registered.
func (s *DailyProgressService) Handle(ctx context.Context, event shared.Event) error {
	switch e := event.(type) {
	case task.TaskCompletedEvent:
		return s.HandleTaskCompletion(ctx, e.Task)
	case task.TaskNoteRegisteredEvent:
		return s.applyNote(ctx, e.TaskNoteRegisteredPayload, e.OccurredAt())
	default:
		s.logger.Warn("received unexpected event", "event_type", event.EventType())
		return nil
	}
}

// HandleTaskCompletion credits the completed task to the owner's record for
// its completion day.
func (s *DailyProgressService) HandleTaskCompletion(ctx context.Context, completed task.Task) error {
	if completed.CompletedOn == nil {
		return fmt.Errorf("task %s has no completion date", completed.ID)
	}

	record, err := progress.GetOrNew(ctx, s.progress, completed.OwnerID, *completed.CompletedOn)
	if err != nil {
		s.logger.Error("failed to load daily progress",
			"user_id", completed.OwnerID.String(),
			"date", completed.CompletedOn.String(),
			"error", err,
		)
		return fmt.Errorf("load daily progress: %w", err)
	}

	elapsed := 0
	if completed.ElapsedTime != nil {
		elapsed = completed.ElapsedTime.Int()
	}

	if !record.ApplyCompletion(completed.ID, completed.TopicID, elapsed) {
		s.logger.Debug("completion already credited",
			"task_id", completed.ID.String(),
			"date", completed.CompletedOn.String(),
		)
		return nil
	}

	if err := s.progress.Save(ctx, record); err != nil {
		s.logger.Error("failed to save daily progress",
			"user_id", completed.OwnerID.String(),
			"date", completed.CompletedOn.String(),
			"error", err,
		)
		return fmt.Errorf("save daily progress: %w", err)
	}

	s.logger.Info("completion credited",
		"user_id", completed.OwnerID.String(),
		"task_id", completed.ID.String(),
		"date", completed.CompletedOn.String(),
		"elapsed_seconds", elapsed,
		"study_time_seconds", record.StudyTimeSeconds,
	)
	return nil
}

// HandleTaskNoteRegistration upserts the note's day and moves its answer
// tallies by the change the registration made. A comment-only note leaves
// the tallies untouched but still creates the day.
func (s *DailyProgressService) HandleTaskNoteRegistration(ctx context.Context, note task.TaskNoteRegisteredPayload) error {
	return s.applyNote(ctx, note, time.Time{})
}

// applyNote orders registrations of one task by registeredAt; see
// progress.UserDailyProgress.ApplyNote.
func (s *DailyProgressService) applyNote(ctx context.Context, note task.TaskNoteRegisteredPayload, registeredAt time.Time) error {
	record, err := progress.GetOrNew(ctx, s.progress, note.UserID, note.Date)
	if err != nil {
		return fmt.Errorf("load daily progress: %w", err)
	}

	var correct, incorrect int
	if note.CorrectCount != nil || note.IncorrectCount != nil {
		correct, incorrect = record.ApplyNote(progress.NoteCounts{
			TopicID:           note.TopicID,
			TaskID:            note.TaskID,
			Correct:           countPtr(note.CorrectCount),
			Incorrect:         countPtr(note.IncorrectCount),
			PreviousCorrect:   countPtr(note.PreviousCorrectCount),
			PreviousIncorrect: countPtr(note.PreviousIncorrectCount),
			RegisteredAt:      registeredAt,
		})
	}

	if err := s.progress.Save(ctx, record); err != nil {
		s.logger.Error("failed to save daily progress",
			"user_id", note.UserID.String(),
			"date", note.Date.String(),
			"error", err,
		)
		return fmt.Errorf("save daily progress: %w", err)
	}

	s.logger.Info("note tallied",
		"user_id", note.UserID.String(),
		"task_id", note.TaskID.String(),
		"date", note.Date.String(),
		"correct_delta", correct,
		"incorrect_delta", incorrect,
	)
	return nil
}

func countPtr(c *task.QuestionResultNote) *int {
	if c == nil {
		return nil
	}
	v := c.Int()
	return &v
}
