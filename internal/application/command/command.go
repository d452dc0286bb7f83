// Package command contains the task use cases (CQRS - Commands). Each one
// loads a task, runs a transition and saves it; the save flushes the
// resulting events to the dispatcher before the use case returns.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/pkg/timeutil"
)

const domainName = "command"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is shared by the task command handlers.
type Config struct {
	// FailOnDispatchError turns a dispatch failure after a successful save
	// into a failed call. When false the failure is logged and reported in
	// the result.
	FailOnDispatchError bool
}

// DefaultConfig returns the default command configuration.
func DefaultConfig() Config {
	return Config{FailOnDispatchError: false}
}

// deps is what every task command handler needs.
type deps struct {
	tasks    task.Repository
	calendar *timeutil.Calendar
	logger   *slog.Logger
	config   Config
}

func newDeps(tasks task.Repository, calendar *timeutil.Calendar, logger *slog.Logger, config Config, name string) deps {
	if logger == nil {
		logger = slog.Default()
	}
	if calendar == nil {
		calendar = timeutil.MustCalendar("", nil)
	}
	return deps{
		tasks:    tasks,
		calendar: calendar,
		logger:   logger.With("command", name),
		config:   config,
	}
}

// checkStruct runs the struct tags of cmd and turns failures into a
// Validation error naming the offending fields.
func checkStruct(op string, cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return shared.WrapError(domainName, op, shared.ErrValidation, "invalid command", err)
	}

	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			problems = append(problems, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		problems = append(problems, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
	}
	return shared.WrapError(domainName, op, shared.ErrValidation, strings.Join(problems, "; "), err)
}

func parseIDs(op string, raw ...string) ([]shared.ID, error) {
	ids := make([]shared.ID, len(raw))
	for i, s := range raw {
		id, err := shared.ParseID(s)
		if err != nil {
			return nil, shared.WrapError(domainName, op, shared.ErrValidation, "malformed id", err)
		}
		ids[i] = id
	}
	return ids, nil
}

// resolveDate parses raw, or returns today in the configured zone when raw
// is empty.
func (d deps) resolveDate(op, raw string) (shared.CalendarDate, error) {
	if raw == "" {
		y, m, day := d.calendar.Today()
		return shared.NewCalendarDate(y, m, day)
	}
	date, err := shared.ParseCalendarDate(raw)
	if err != nil {
		return shared.CalendarDate{}, shared.WrapError(domainName, op, shared.ErrValidation, "malformed date", err)
	}
	return date, nil
}

// save persists t. A dispatch failure is returned as dispatchErr; it only
// fails the call when FailOnDispatchError is set.
func (d deps) save(ctx context.Context, t *task.Task) (dispatchErr error, err error) {
	err = d.tasks.Save(ctx, t)
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, shared.ErrEventDispatch):
		d.logger.Warn("task saved but event dispatch failed",
			"task_id", t.ID.String(),
			"error", err,
		)
		if d.config.FailOnDispatchError {
			return err, err
		}
		return err, nil
	default:
		d.logger.Error("failed to save task", "task_id", t.ID.String(), "error", err)
		return nil, err
	}
}
