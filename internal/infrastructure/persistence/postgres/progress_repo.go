package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/study-planner/planner-core/internal/domain/progress"
	"github.com/study-planner/planner-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const progressColumns = `
	user_id, date, completed_tasks, study_time_seconds, subjects_studied, performance,
	total_tasks_completed, total_correct, total_incorrect, created_at, updated_at`

// ProgressRepository implements progress.Repository for PostgreSQL.
// The map and slice fields are stored as JSONB.
type ProgressRepository struct {
	db Querier
}

var _ progress.Repository = (*ProgressRepository)(nil)

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{db: conn.Pool()}
}

// Get returns the record for (userID, date).
func (r *ProgressRepository) Get(ctx context.Context, userID shared.ID, date shared.CalendarDate) (*progress.UserDailyProgress, error) {
	row := r.db.QueryRow(ctx, `SELECT `+progressColumns+` FROM user_daily_progress
		WHERE user_id = $1 AND date = $2`, userID.String(), date.Time())

	p, err := scanProgress(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, progress.NotFound("Get", userID, date)
		}
		return nil, err
	}
	return p, nil
}

// Save upserts the record keyed by (UserID, Date).
func (r *ProgressRepository) Save(ctx context.Context, p *progress.UserDailyProgress) error {
	completed, subjects, performance, err := encodeProgress(p)
	if err != nil {
		return shared.WrapError("progress", "Save", shared.ErrInfrastructure, "encode progress", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO user_daily_progress (`+progressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, date) DO UPDATE SET
			completed_tasks = EXCLUDED.completed_tasks,
			study_time_seconds = EXCLUDED.study_time_seconds,
			subjects_studied = EXCLUDED.subjects_studied,
			performance = EXCLUDED.performance,
			total_tasks_completed = EXCLUDED.total_tasks_completed,
			total_correct = EXCLUDED.total_correct,
			total_incorrect = EXCLUDED.total_incorrect,
			updated_at = EXCLUDED.updated_at`,
		p.UserID.String(), p.Date.Time(), completed, p.StudyTimeSeconds, subjects, performance,
		p.TotalTasksCompleted, p.TotalCorrect, p.TotalIncorrect, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return infraError("progress", "Save", err)
	}
	return nil
}

// ListRange returns the user's records between from and to inclusive.
func (r *ProgressRepository) ListRange(ctx context.Context, userID shared.ID, from, to shared.CalendarDate) ([]*progress.UserDailyProgress, error) {
	rows, err := r.db.Query(ctx, `SELECT `+progressColumns+` FROM user_daily_progress
		WHERE user_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date`, userID.String(), from.Time(), to.Time())
	if err != nil {
		return nil, infraError("progress", "ListRange", err)
	}
	defer rows.Close()

	out := make([]*progress.UserDailyProgress, 0)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Mapping
// ─────────────────────────────────────────────────────────────────────────────

// performanceRow is the JSONB form of progress.SubjectPerformance.
type performanceRow struct {
	TopicID         shared.ID `json:"topic_id"`
	TaskID          shared.ID `json:"task_id"`
	CorrectAmount   int       `json:"correct"`
	IncorrectAmount int       `json:"incorrect"`
	LastCorrect     int       `json:"last_correct"`
	LastIncorrect   int       `json:"last_incorrect"`
	LastNoteAt      time.Time `json:"last_note_at"`
}

func encodeProgress(p *progress.UserDailyProgress) (completed, subjects, performance []byte, err error) {
	// shared.ID implements TextMarshaler, so it works as a JSON object key.
	if completed, err = json.Marshal(p.CompletedTasks); err != nil {
		return nil, nil, nil, err
	}
	if subjects, err = json.Marshal(p.SubjectsStudied); err != nil {
		return nil, nil, nil, err
	}

	rows := make([]performanceRow, len(p.Performance))
	for i, sp := range p.Performance {
		rows[i] = performanceRow(sp)
	}
	if performance, err = json.Marshal(rows); err != nil {
		return nil, nil, nil, err
	}
	return completed, subjects, performance, nil
}

func scanProgress(s pgx.Row) (*progress.UserDailyProgress, error) {
	var (
		rawUser                          string
		date                             time.Time
		completed, subjects, performance []byte
		p                                progress.UserDailyProgress
	)
	err := s.Scan(
		&rawUser, &date, &completed, &p.StudyTimeSeconds, &subjects, &performance,
		&p.TotalTasksCompleted, &p.TotalCorrect, &p.TotalIncorrect, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, infraError("progress", "scan", err)
	}

	if p.UserID, err = shared.ParseID(rawUser); err != nil {
		return nil, err
	}
	p.Date = shared.CalendarDateOf(date)

	p.CompletedTasks = make(map[shared.ID]int)
	if err := json.Unmarshal(completed, &p.CompletedTasks); err != nil {
		return nil, fmt.Errorf("decode completed_tasks: %w", err)
	}
	if err := json.Unmarshal(subjects, &p.SubjectsStudied); err != nil {
		return nil, fmt.Errorf("decode subjects_studied: %w", err)
	}
	var rows []performanceRow
	if err := json.Unmarshal(performance, &rows); err != nil {
		return nil, fmt.Errorf("decode performance: %w", err)
	}
	p.Performance = make([]progress.SubjectPerformance, len(rows))
	for i, row := range rows {
		p.Performance[i] = progress.SubjectPerformance(row)
	}
	return &p, nil
}
