package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/internal/infrastructure/persistence"
)

// ══════════════════════════════════════════════════════════════════════════════
// TASK REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const taskColumns = `
	id, owner_id, course_id, topic_id, type, cycle, planned_date, completed_on,
	elapsed_time_in_seconds, finished, is_extra, estimated_time_to_complete,
	note_comment, note_correct_count, note_incorrect_count, note_created_at, note_updated_at,
	created_at, updated_at`

// TaskRepository implements task.Repository for PostgreSQL. Writes go
// through the EventFlusher, so events are dispatched only after the
// statement succeeded.
type TaskRepository struct {
	db      Querier
	flusher *persistence.EventFlusher
}

var _ task.Repository = (*TaskRepository)(nil)

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(conn *Connection, publisher shared.EventPublisher, logger *slog.Logger) *TaskRepository {
	return &TaskRepository{
		db:      conn.Pool(),
		flusher: persistence.NewEventFlusher(publisher, logger),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new task and flushes its events.
func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	return r.flusher.Commit(ctx, t, func(ctx context.Context) error {
		row := toTaskRow(t)
		_, err := r.db.Exec(ctx, `INSERT INTO tasks (`+taskColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
			row.args()...,
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.WrapError("task", "Create", shared.ErrValidation, "task already exists", task.ErrTaskAlreadyExists)
			}
			return infraError("task", "Create", err)
		}
		return nil
	})
}

// Save updates an existing task and flushes its events.
func (r *TaskRepository) Save(ctx context.Context, t *task.Task) error {
	return r.flusher.Commit(ctx, t, func(ctx context.Context) error {
		row := toTaskRow(t)
		tag, err := r.db.Exec(ctx, `
			UPDATE tasks SET
				owner_id = $2, course_id = $3, topic_id = $4, type = $5, cycle = $6,
				planned_date = $7, completed_on = $8, elapsed_time_in_seconds = $9,
				finished = $10, is_extra = $11, estimated_time_to_complete = $12,
				note_comment = $13, note_correct_count = $14, note_incorrect_count = $15,
				note_created_at = $16, note_updated_at = $17,
				created_at = $18, updated_at = $19
			WHERE id = $1`,
			row.args()...,
		)
		if err != nil {
			return infraError("task", "Save", err)
		}
		if tag.RowsAffected() == 0 {
			return task.NotFound("Save", t.ID)
		}
		return nil
	})
}

// Delete removes a task.
func (r *TaskRepository) Delete(ctx context.Context, id shared.ID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id.String())
	if err != nil {
		return infraError("task", "Delete", err)
	}
	if tag.RowsAffected() == 0 {
		return task.NotFound("Delete", id)
	}
	return nil
}

// DeleteByUserAndCourse removes every task of the user in the course.
func (r *TaskRepository) DeleteByUserAndCourse(ctx context.Context, userID, courseID shared.ID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM tasks WHERE owner_id = $1 AND course_id = $2`, userID.String(), courseID.String())
	if err != nil {
		return infraError("task", "DeleteByUserAndCourse", err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// OfID returns the task with the given id.
func (r *TaskRepository) OfID(ctx context.Context, id shared.ID) (*task.Task, error) {
	row := r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id.String())

	t, err := scanTask(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, task.NotFound("OfID", id)
		}
		return nil, err
	}
	return t, nil
}

// TopicsThatHaveTasks returns the distinct topics the user has tasks in.
func (r *TaskRepository) TopicsThatHaveTasks(ctx context.Context, userID shared.ID) ([]shared.ID, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT topic_id::text FROM tasks WHERE owner_id = $1 ORDER BY 1`, userID.String())
	if err != nil {
		return nil, infraError("task", "TopicsThatHaveTasks", err)
	}
	defer rows.Close()

	topics := make([]shared.ID, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan topic id: %w", err)
		}
		id, err := shared.ParseID(raw)
		if err != nil {
			return nil, err
		}
		topics = append(topics, id)
	}
	return topics, rows.Err()
}

// ExistsInCycle reports whether a task of the type exists for the topic at cycle.
func (r *TaskRepository) ExistsInCycle(ctx context.Context, ownerID, topicID shared.ID, taskType task.TaskType, cycle int) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tasks
			WHERE owner_id = $1 AND topic_id = $2 AND type = $3 AND cycle = $4
		)`,
		ownerID.String(), topicID.String(), string(taskType), cycle,
	).Scan(&exists)
	if err != nil {
		return false, infraError("task", "ExistsInCycle", err)
	}
	return exists, nil
}

// ListByOwner returns every task of the owner ordered by planned date.
func (r *TaskRepository) ListByOwner(ctx context.Context, ownerID shared.ID) ([]*task.Task, error) {
	rows, err := r.db.Query(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE owner_id = $1
		ORDER BY planned_date NULLS LAST, cycle, created_at`, ownerID.String())
	if err != nil {
		return nil, infraError("task", "ListByOwner", err)
	}
	defer rows.Close()

	out := make([]*task.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Mapping
// ─────────────────────────────────────────────────────────────────────────────

// taskRow is the column form of a task.
type taskRow struct {
	ID, OwnerID, CourseID, TopicID string
	Type                           string
	Cycle                          int
	PlannedDate, CompletedOn       *time.Time
	ElapsedTime                    *int
	Finished, IsExtra              bool
	Estimated                      *int
	NoteComment                    *string
	NoteCorrect, NoteIncorrect     *int
	NoteCreatedAt, NoteUpdatedAt   *time.Time
	CreatedAt, UpdatedAt           time.Time
}

func (r taskRow) args() []any {
	return []any{
		r.ID, r.OwnerID, r.CourseID, r.TopicID, r.Type, r.Cycle, r.PlannedDate, r.CompletedOn,
		r.ElapsedTime, r.Finished, r.IsExtra, r.Estimated,
		r.NoteComment, r.NoteCorrect, r.NoteIncorrect, r.NoteCreatedAt, r.NoteUpdatedAt,
		r.CreatedAt, r.UpdatedAt,
	}
}

func toTaskRow(t *task.Task) taskRow {
	row := taskRow{
		ID:          t.ID.String(),
		OwnerID:     t.OwnerID.String(),
		CourseID:    t.CourseID.String(),
		TopicID:     t.TopicID.String(),
		Type:        string(t.Type),
		Cycle:       t.Cycle,
		PlannedDate: dateToTime(t.PlannedDate),
		CompletedOn: dateToTime(t.CompletedOn),
		Finished:    t.Finished,
		IsExtra:     t.IsExtra,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.ElapsedTime != nil {
		v := t.ElapsedTime.Int()
		row.ElapsedTime = &v
	}
	if t.EstimatedTimeToComplete != nil {
		v := t.EstimatedTimeToComplete.Int()
		row.Estimated = &v
	}
	if n := t.Note; n != nil {
		if n.Comment != nil {
			s := n.Comment.String()
			row.NoteComment = &s
		}
		if n.CorrectCount != nil {
			v := n.CorrectCount.Int()
			row.NoteCorrect = &v
		}
		if n.IncorrectCount != nil {
			v := n.IncorrectCount.Int()
			row.NoteIncorrect = &v
		}
		created, updated := n.CreatedAt, n.UpdatedAt
		row.NoteCreatedAt, row.NoteUpdatedAt = &created, &updated
	}
	return row
}

func scanTask(s pgx.Row) (*task.Task, error) {
	var row taskRow
	err := s.Scan(
		&row.ID, &row.OwnerID, &row.CourseID, &row.TopicID, &row.Type, &row.Cycle,
		&row.PlannedDate, &row.CompletedOn, &row.ElapsedTime, &row.Finished, &row.IsExtra, &row.Estimated,
		&row.NoteComment, &row.NoteCorrect, &row.NoteIncorrect, &row.NoteCreatedAt, &row.NoteUpdatedAt,
		&row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, err
		}
		return nil, infraError("task", "scan", err)
	}
	return row.toTask()
}

func (r taskRow) toTask() (*task.Task, error) {
	ids := make([]shared.ID, 4)
	for i, raw := range []string{r.ID, r.OwnerID, r.CourseID, r.TopicID} {
		id, err := shared.ParseID(raw)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}

	t := &task.Task{
		ID:          ids[0],
		OwnerID:     ids[1],
		CourseID:    ids[2],
		TopicID:     ids[3],
		Type:        task.TaskType(r.Type),
		Cycle:       r.Cycle,
		PlannedDate: timeToDate(r.PlannedDate),
		CompletedOn: timeToDate(r.CompletedOn),
		Finished:    r.Finished,
		IsExtra:     r.IsExtra,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ElapsedTime != nil {
		v := task.ElapsedTimeInSeconds(*r.ElapsedTime)
		t.ElapsedTime = &v
	}
	if r.Estimated != nil {
		v := task.ElapsedTimeInSeconds(*r.Estimated)
		t.EstimatedTimeToComplete = &v
	}
	if r.NoteCreatedAt != nil {
		note := &task.TaskNote{CreatedAt: *r.NoteCreatedAt}
		if r.NoteUpdatedAt != nil {
			note.UpdatedAt = *r.NoteUpdatedAt
		}
		if r.NoteComment != nil {
			c := task.CommentNote(*r.NoteComment)
			note.Comment = &c
		}
		if r.NoteCorrect != nil {
			v := task.QuestionResultNote(*r.NoteCorrect)
			note.CorrectCount = &v
		}
		if r.NoteIncorrect != nil {
			v := task.QuestionResultNote(*r.NoteIncorrect)
			note.IncorrectCount = &v
		}
		t.Note = note
	}
	return task.Reconstitute(t)
}

func dateToTime(d *shared.CalendarDate) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time()
	return &t
}

func timeToDate(t *time.Time) *shared.CalendarDate {
	if t == nil {
		return nil
	}
	d := shared.CalendarDateOf(*t)
	return &d
}
