package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded migrations and records them in
// schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
	logger     *slog.Logger
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
		logger:     logger.With("component", "migrator"),
	}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Pool().Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`, m.tableName))
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Pool().Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}

		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName), mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		m.logger.Info("migration applied", "version", mig.Version, "name", mig.Name)
	}
	return nil
}

// Rollback reverts the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.ensureTable(ctx); err != nil {
		return err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	last := 0
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			mig = &m.migrations[i]
		}
	}
	if mig == nil || mig.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status lists the embedded migrations with their applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_tasks", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_user_daily_progress", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_topic_catalog", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: TASKS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS tasks (
    id UUID PRIMARY KEY,
    owner_id UUID NOT NULL,
    course_id UUID NOT NULL,
    topic_id UUID NOT NULL,
    type VARCHAR(20) NOT NULL,
    cycle INTEGER NOT NULL DEFAULT 0,
    planned_date DATE,
    completed_on DATE,
    elapsed_time_in_seconds INTEGER,
    finished BOOLEAN NOT NULL DEFAULT FALSE,
    is_extra BOOLEAN NOT NULL DEFAULT FALSE,
    estimated_time_to_complete INTEGER,

    note_comment TEXT,
    note_correct_count INTEGER,
    note_incorrect_count INTEGER,
    note_created_at TIMESTAMP WITH TIME ZONE,
    note_updated_at TIMESTAMP WITH TIME ZONE,

    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_type CHECK (type IN ('study', 'lawStudy', 'exercise', 'review')),
    CONSTRAINT valid_cycle CHECK (cycle >= 0),
    CONSTRAINT valid_elapsed CHECK (elapsed_time_in_seconds IS NULL OR elapsed_time_in_seconds > 0),
    CONSTRAINT valid_counts CHECK (
        (note_correct_count IS NULL OR note_correct_count >= 0) AND
        (note_incorrect_count IS NULL OR note_incorrect_count >= 0)
    ),
    CONSTRAINT finished_matches_completion CHECK (finished = (completed_on IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_tasks_owner ON tasks(owner_id);
CREATE INDEX IF NOT EXISTS idx_tasks_owner_course ON tasks(owner_id, course_id);
CREATE INDEX IF NOT EXISTS idx_tasks_successor ON tasks(owner_id, topic_id, type, cycle);
CREATE INDEX IF NOT EXISTS idx_tasks_pending_planned ON tasks(owner_id, planned_date) WHERE NOT finished;
`

const migration001Down = `
DROP TABLE IF EXISTS tasks;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: USER DAILY PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS user_daily_progress (
    user_id UUID NOT NULL,
    date DATE NOT NULL,
    completed_tasks JSONB NOT NULL DEFAULT '{}'::jsonb,
    study_time_seconds INTEGER NOT NULL DEFAULT 0,
    subjects_studied JSONB NOT NULL DEFAULT '[]'::jsonb,
    performance JSONB NOT NULL DEFAULT '[]'::jsonb,
    total_tasks_completed INTEGER NOT NULL DEFAULT 0,
    total_correct INTEGER NOT NULL DEFAULT 0,
    total_incorrect INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, date)
);
`

const migration002Down = `
DROP TABLE IF EXISTS user_daily_progress;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: TOPIC CATALOG
// Read by the topic activity check; written by course management.
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS topics (
    id UUID NOT NULL,
    course_id UUID NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    PRIMARY KEY (course_id, id)
);

CREATE TABLE IF NOT EXISTS course_enrollments (
    user_id UUID NOT NULL,
    course_id UUID NOT NULL,
    enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    active BOOLEAN NOT NULL DEFAULT TRUE,
    PRIMARY KEY (user_id, course_id)
);
`

const migration003Down = `
DROP TABLE IF EXISTS course_enrollments;
DROP TABLE IF EXISTS topics;
`
