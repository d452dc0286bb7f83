package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/study-planner/planner-core/config"
	"github.com/study-planner/planner-core/internal/application/command"
	"github.com/study-planner/planner-core/internal/application/query"
	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/internal/infrastructure/persistence/postgres"
)

// cliCommand runs one maintenance command against a wired app.
type cliCommand func(ctx context.Context, a *app, args []string) error

var cliCommands = map[string]cliCommand{
	"seed-task":   seedTask,
	"complete":    completeTask,
	"uncomplete":  uncompleteTask,
	"note":        registerNote,
	"remove":      removeTask,
	"tasks":       listTasks,
	"progress":    showProgress,
	"flush-cache": flushCache,
}

var stdout io.Writer = os.Stdout

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

func migrate(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	down := fs.Bool("down", false, "roll back the last migration")
	status := fs.Bool("status", false, "list migrations")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("migrate needs DATABASE_URL")
	}

	dbCfg := postgres.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	conn, err := postgres.NewConnection(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	migrator := postgres.NewMigrator(conn, log)
	switch {
	case *status:
		migrations, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
		for _, m := range migrations {
			applied := "-"
			if m.IsApplied {
				applied = m.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, applied)
		}
		return w.Flush()
	case *down:
		return migrator.Rollback(ctx)
	default:
		return migrator.Migrate(ctx)
	}
}

func migrateUp(ctx context.Context, a *app, log *slog.Logger) error {
	log.Info("checking database migrations...")
	if err := postgres.NewMigrator(a.db, log).Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("database schema is up to date")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TASK COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// seedTask enrolls the user in the course, activates the topic and creates
// its cycle 0 task.
func seedTask(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("seed-task", flag.ContinueOnError)
	user := fs.String("user", "", "owner id")
	course := fs.String("course", "", "course id")
	topic := fs.String("topic", "", "topic id (generated when empty)")
	topicName := fs.String("topic-name", "", "topic display name")
	kind := fs.String("type", string(task.TypeStudy), "task type")
	planned := fs.String("planned", "", "planned date, YYYY-MM-DD (defaults to today)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	params := task.NewTaskParams{}
	var err error
	if params.OwnerID, err = shared.ParseID(*user); err != nil {
		return fmt.Errorf("-user: %w", err)
	}
	if params.CourseID, err = shared.ParseID(*course); err != nil {
		return fmt.Errorf("-course: %w", err)
	}
	params.TopicID = shared.NewID()
	if *topic != "" {
		if params.TopicID, err = shared.ParseID(*topic); err != nil {
			return fmt.Errorf("-topic: %w", err)
		}
	}
	if params.Type, err = task.ParseTaskType(*kind); err != nil {
		return fmt.Errorf("-type: %w", err)
	}
	date, err := plannedDate(a, *planned)
	if err != nil {
		return err
	}
	params.PlannedDate = &date

	if err := a.topics.UpsertTopic(ctx, params.CourseID, params.TopicID, *topicName, true); err != nil {
		return err
	}
	if err := a.topics.SetEnrolled(ctx, params.OwnerID, params.CourseID, true); err != nil {
		return err
	}

	t, err := a.creation.CreateInitialTask(ctx, params)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"id":           t.ID.String(),
		"topic_id":     t.TopicID.String(),
		"type":         t.Type.String(),
		"planned_date": t.PlannedDate.String(),
	})
}

func plannedDate(a *app, raw string) (shared.CalendarDate, error) {
	if raw != "" {
		return shared.ParseCalendarDate(raw)
	}
	y, m, d := a.calendar.Today()
	return shared.NewCalendarDate(y, m, d)
}

func completeTask(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("complete", flag.ContinueOnError)
	id, user := taskFlags(fs)
	elapsed := fs.Int("elapsed", 0, "time spent, in seconds")
	on := fs.String("on", "", "completion date, YYYY-MM-DD (defaults to today)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.useCases.CompleteTask.Handle(ctx, command.CompleteTaskCommand{
		TaskID: *id, RequesterID: *user, ElapsedTimeInSeconds: *elapsed, CompletedOn: *on,
	})
	if err != nil {
		return err
	}
	reportDispatch(a, res.DispatchErr)
	return printJSON(map[string]any{"id": res.Task.ID.String(), "completed_on": res.Task.CompletedOn.String()})
}

func uncompleteTask(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("uncomplete", flag.ContinueOnError)
	id, user := taskFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.useCases.UncompleteTask.Handle(ctx, command.UncompleteTaskCommand{TaskID: *id, RequesterID: *user})
	if err != nil {
		return err
	}
	reportDispatch(a, res.DispatchErr)
	return printJSON(map[string]any{"id": res.Task.ID.String(), "finished": res.Task.Finished})
}

func registerNote(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("note", flag.ContinueOnError)
	id, user := taskFlags(fs)
	comment := fs.String("comment", "", "free text comment")
	correct := fs.Int("correct", -1, "correct answers")
	incorrect := fs.Int("incorrect", -1, "incorrect answers")
	date := fs.String("date", "", "date credited when the task is pending")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cmd := command.RegisterTaskNoteCommand{TaskID: *id, RequesterID: *user, Date: *date}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "comment":
			cmd.Comment = comment
		case "correct":
			cmd.CorrectCount = correct
		case "incorrect":
			cmd.IncorrectCount = incorrect
		}
	})

	res, err := a.useCases.RegisterTaskNote.Handle(ctx, cmd)
	if err != nil {
		return err
	}
	reportDispatch(a, res.DispatchErr)
	return printJSON(map[string]any{"id": res.Task.ID.String(), "event_id": res.Event.EventID()})
}

func removeTask(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ContinueOnError)
	id, user := taskFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.useCases.RemoveTask.Handle(ctx, command.RemoveTaskCommand{TaskID: *id, RequesterID: *user})
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

func listTasks(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ContinueOnError)
	user := fs.String("user", "", "owner id")
	dueBy := fs.String("due-by", "", "keep pending tasks due by this date")
	all := fs.Bool("all", false, "every pending task")
	completed := fs.Bool("completed", false, "include completed tasks")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.useCases.ListTasks.Handle(ctx, query.ListTasksQuery{
		OwnerID: *user, DueBy: *dueBy, AllPending: *all, IncludeCompleted: *completed,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tCYCLE\tPLANNED\tSTATUS")
	for _, t := range res.Tasks {
		status := "pending"
		switch {
		case t.Finished:
			status = "done " + t.CompletedOn
		case t.Overdue:
			status = "overdue"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", t.ID, t.Type, t.Cycle, t.PlannedDate, status)
	}
	fmt.Fprintf(w, "\n%d pending, %d overdue\n", res.Pending, res.Overdue)
	return w.Flush()
}

func showProgress(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("progress", flag.ContinueOnError)
	user := fs.String("user", "", "user id")
	date := fs.String("date", "", "day, YYYY-MM-DD (defaults to today)")
	history := fs.Int("history", 0, "days before -date to include")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := a.useCases.DailyProgress.Handle(ctx, query.GetDailyProgressQuery{
		UserID: *user, Date: *date, HistoryDays: *history,
	})
	if err != nil {
		return err
	}
	return printJSON(res)
}

func flushCache(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("flush-cache", flag.ContinueOnError)
	user := fs.String("user", "", "user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if a.cached == nil {
		return errors.New("flush-cache needs Redis")
	}
	userID, err := shared.ParseID(*user)
	if err != nil {
		return fmt.Errorf("-user: %w", err)
	}
	return a.cached.FlushUser(ctx, userID)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func taskFlags(fs *flag.FlagSet) (id, user *string) {
	id = fs.String("task", "", "task id")
	user = fs.String("user", "", "requesting user id")
	return id, user
}

func reportDispatch(a *app, err error) {
	if err != nil {
		a.log.Warn("saved, but an event consumer failed", "error", err)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
