package postgres

import (
	"context"

	"github.com/study-planner/planner-core/internal/domain/shared"
	"github.com/study-planner/planner-core/internal/domain/task"
)

// TopicCatalog implements task.TopicActivityChecker over the topics and
// course_enrollments tables.
type TopicCatalog struct {
	db Querier
}

var _ task.TopicActivityChecker = (*TopicCatalog)(nil)

// NewTopicCatalog creates a new TopicCatalog.
func NewTopicCatalog(conn *Connection) *TopicCatalog {
	return &TopicCatalog{db: conn.Pool()}
}

// IsTopicActive reports whether the topic is active and the user is
// actively enrolled in its course. Unknown topics are inactive.
func (c *TopicCatalog) IsTopicActive(ctx context.Context, userID, courseID, topicID shared.ID) (bool, error) {
	var active bool
	err := c.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM topics t
			JOIN course_enrollments e ON e.course_id = t.course_id
			WHERE t.id = $3 AND t.course_id = $2 AND t.active
			  AND e.user_id = $1 AND e.active
		)`,
		userID.String(), courseID.String(), topicID.String(),
	).Scan(&active)
	if err != nil {
		return false, infraError("topic", "IsTopicActive", err)
	}
	return active, nil
}

// UpsertTopic stores a topic of a course.
func (c *TopicCatalog) UpsertTopic(ctx context.Context, courseID, topicID shared.ID, name string, active bool) error {
	_, err := c.db.Exec(ctx, `
		INSERT INTO topics (id, course_id, name, active) VALUES ($1, $2, $3, $4)
		ON CONFLICT (course_id, id) DO UPDATE SET name = EXCLUDED.name, active = EXCLUDED.active`,
		topicID.String(), courseID.String(), name, active,
	)
	if err != nil {
		return infraError("topic", "UpsertTopic", err)
	}
	return nil
}

// SetEnrolled records whether the user is enrolled in the course.
func (c *TopicCatalog) SetEnrolled(ctx context.Context, userID, courseID shared.ID, enrolled bool) error {
	_, err := c.db.Exec(ctx, `
		INSERT INTO course_enrollments (user_id, course_id, active) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, course_id) DO UPDATE SET active = EXCLUDED.active`,
		userID.String(), courseID.String(), enrolled,
	)
	if err != nil {
		return infraError("topic", "SetEnrolled", err)
	}
	return nil
}
