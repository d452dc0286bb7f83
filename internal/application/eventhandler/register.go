package eventhandler

import (
	"fmt"

	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
)

// Registrar is the registration side of the event dispatcher.
type Registrar interface {
	RegisterHandler(eventType shared.EventType, name string, handler shared.EventHandler) error
}

// Handler names as they appear in dispatch outcomes and logs.
const (
	TaskCreationHandlerName  = "task_creation"
	DailyProgressHandlerName = "daily_progress"
)

type subscription struct {
	eventType shared.EventType
	name      string
	handler   shared.EventHandler
}

// Register subscribes both services. Order matters: on task.completed the
// successor is planned before progress is credited. A nil service is left
// out.
func Register(r Registrar, creation *TaskCreationService, daily *DailyProgressService) error {
	var subscriptions []subscription
	if creation != nil {
		subscriptions = append(subscriptions,
			subscription{task.EventTaskCompleted, TaskCreationHandlerName, creation.Handle})
	}
	if daily != nil {
		subscriptions = append(subscriptions,
			subscription{task.EventTaskCompleted, DailyProgressHandlerName, daily.Handle},
			subscription{task.EventTaskNoteRegistered, DailyProgressHandlerName, daily.Handle})
	}

	for _, sub := range subscriptions {
		if err := r.RegisterHandler(sub.eventType, sub.name, sub.handler); err != nil {
			return fmt.Errorf("register %s for %s: %w", sub.name, sub.eventType, err)
		}
	}
	return nil
}
