package memory

import (
	"context"
	"sync"

	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
)

type topicKey struct {
	courseID shared.ID
	topicID  shared.ID
}

type enrollmentKey struct {
	userID   shared.ID
	courseID shared.ID
}

// TopicCatalog implements task.TopicActivityChecker in memory. Topics and
// enrollments that were never set fall back to defaultActive.
type TopicCatalog struct {
	mu            sync.RWMutex
	topics        map[topicKey]bool
	enrollments   map[enrollmentKey]bool
	defaultActive bool
}

var _ task.TopicActivityChecker = (*TopicCatalog)(nil)

// NewTopicCatalog creates a catalog.
func NewTopicCatalog(defaultActive bool) *TopicCatalog {
	return &TopicCatalog{
		topics:        make(map[topicKey]bool),
		enrollments:   make(map[enrollmentKey]bool),
		defaultActive: defaultActive,
	}
}

// SetTopicActive marks a topic of a course as active or inactive.
func (c *TopicCatalog) SetTopicActive(courseID, topicID shared.ID, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topicKey{courseID, topicID}] = active
}

// SetEnrolled records whether the user is enrolled in the course.
func (c *TopicCatalog) SetEnrolled(userID, courseID shared.ID, enrolled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enrollments[enrollmentKey{userID, courseID}] = enrolled
}

// IsTopicActive implements task.TopicActivityChecker.
func (c *TopicCatalog) IsTopicActive(ctx context.Context, userID, courseID, topicID shared.ID) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	active, ok := c.topics[topicKey{courseID, topicID}]
	if !ok {
		active = c.defaultActive
	}
	enrolled, ok := c.enrollments[enrollmentKey{userID, courseID}]
	if !ok {
		enrolled = c.defaultActive
	}
	return active && enrolled, nil
}
