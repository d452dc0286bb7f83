// Package eventhandler holds the consumers of task lifecycle events.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
	"github.com/study-planner/planner-core/pkg/retry"
)

// ═══════════════════════════════════════════════════════════════════════════
// TASK CREATION SERVICE
// Plans the next cycle of a task once the current one is completed.
//
// 1. Skip when the topic left the user's schedule
// 2. Skip when the successor cycle already exists
// 3. Plan the successor at completedOn + interval(type, cycle+1)
// 4. Create it, retrying transient store failures
// ═══════════════════════════════════════════════════════════════════════════

// TaskCreationService creates the successor of a completed task.
type TaskCreationService struct {
	tasks  task.Repository
	topics task.TopicActivityChecker
	policy task.SpacingPolicy

	retrier *retry.Retrier
	logger  *slog.Logger
	config  TaskCreationConfig
}

// TaskCreationConfig configures TaskCreationService.
type TaskCreationConfig struct {
	// MaxAttempts bounds Create calls for one successor.
	MaxAttempts int

	// InitialDelay is the backoff before the second attempt.
	InitialDelay time.Duration
}

// DefaultTaskCreationConfig returns the default configuration.
func DefaultTaskCreationConfig() TaskCreationConfig {
	return TaskCreationConfig{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
	}
}

// NewTaskCreationService creates the service. A nil policy falls back to
// task.DefaultIntervalTable.
func NewTaskCreationService(
	tasks task.Repository,
	topics task.TopicActivityChecker,
	policy task.SpacingPolicy,
	logger *slog.Logger,
	config TaskCreationConfig,
) *TaskCreationService {
	if logger == nil {
		logger = slog.Default()
	}
	if policy == nil {
		policy = task.DefaultIntervalTable()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultTaskCreationConfig().MaxAttempts
	}

	return &TaskCreationService{
		tasks:   tasks,
		topics:  topics,
		policy:  policy,
		retrier: retry.StoreRetrier(config.MaxAttempts, config.InitialDelay, shared.IsRetryable),
		logger:  logger.With("handler", "task_creation"),
		config:  config,
	}
}

// Handle implements shared.EventHandler for task.completed.
func (s *TaskCreationService) Handle(ctx context.Context, event shared.Event) error {
	completed, ok := event.(task.TaskCompletedEvent)
	if !ok {
		s.logger.Warn("received unexpected event", "event_type", event.EventType())
		return nil
	}

	_, err := s.CreateNextTask(ctx, completed.Task)
	return err
}

// CreateNextTask creates the successor of completed. It returns (nil, nil)
// when the successor is skipped.
func (s *TaskCreationService) CreateNextTask(ctx context.Context, completed task.Task) (*task.Task, error) {
	if completed.CompletedOn == nil {
		return nil, fmt.Errorf("task %s has no completion date", completed.ID)
	}

	log := s.logger.With(
		"task_id", completed.ID.String(),
		"user_id", completed.OwnerID.String(),
		"topic_id", completed.TopicID.String(),
	)

	// 1. Topic still scheduled?
	if s.topics != nil {
		active, err := s.topics.IsTopicActive(ctx, completed.OwnerID, completed.CourseID, completed.TopicID)
		if err != nil {
			log.Error("failed to check topic activity", "error", err)
			return nil, fmt.Errorf("check topic activity: %w", err)
		}
		if !active {
			log.Debug("topic inactive, successor skipped")
			return nil, nil
		}
	}

	nextCycle := completed.Cycle + 1

	// 2. Successor already planned by an earlier completion?
	exists, err := s.tasks.ExistsInCycle(ctx, completed.OwnerID, completed.TopicID, completed.Type, nextCycle)
	if err != nil {
		log.Error("failed to look up successor", "cycle", nextCycle, "error", err)
		return nil, fmt.Errorf("look up successor: %w", err)
	}
	if exists {
		log.Debug("successor already exists", "cycle", nextCycle)
		return nil, nil
	}

	// 3. Plan
	planned := task.NextPlannedDate(s.policy, *completed.CompletedOn, completed.Type, nextCycle)

	next, err := task.New(task.NewTaskParams{
		OwnerID:                 completed.OwnerID,
		CourseID:                completed.CourseID,
		TopicID:                 completed.TopicID,
		Type:                    completed.Type,
		Cycle:                   nextCycle,
		PlannedDate:             &planned,
		EstimatedTimeToComplete: completed.EstimatedTimeToComplete,
	})
	if err != nil {
		return nil, fmt.Errorf("build successor: %w", err)
	}

	// 4. Persist
	if err := s.create(ctx, next); err != nil {
		log.Error("failed to create successor", "cycle", nextCycle, "error", err)
		return nil, err
	}

	log.Info("successor planned",
		"next_task_id", next.ID.String(),
		"cycle", nextCycle,
		"planned_date", planned.String(),
	)
	return next, nil
}

// CreateInitialTask creates cycle 0 of a topic. Course seeding calls it for
// every topic a user enrolls in.
func (s *TaskCreationService) CreateInitialTask(ctx context.Context, params task.NewTaskParams) (*task.Task, error) {
	params.Cycle = 0
	t, err := task.New(params)
	if err != nil {
		return nil, err
	}
	if err := s.create(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("initial task created",
		"task_id", t.ID.String(),
		"user_id", t.OwnerID.String(),
		"topic_id", t.TopicID.String(),
		"type", t.Type.String(),
	)
	return t, nil
}

func (s *TaskCreationService) create(ctx context.Context, t *task.Task) error {
	return s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.tasks.Create(ctx, t)
	})
}
