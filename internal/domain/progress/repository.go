package progress

import (
	"context"
	"errors"

	"github.com/study-planner/planner-core/internal/domain/shared"
)

// ErrProgressNotFound - no record for the (user, date) pair.
var ErrProgressNotFound = errors.New("daily progress not found")

// NotFound builds the error stores return when Get finds nothing.
func NotFound(op string, userID shared.ID, date shared.CalendarDate) error {
	return shared.WrapError(domainName, op, shared.ErrNotFound,
		"no progress for "+date.String(), ErrProgressNotFound)
}

// Repository is the analytics store for UserDailyProgress.
type Repository interface {
	// Get returns the record for (userID, date).
	// Returns a NotFound error (wrapping ErrProgressNotFound) if there is none.
	Get(ctx context.Context, userID shared.ID, date shared.CalendarDate) (*UserDailyProgress, error)

	// Save upserts the record keyed by (UserID, Date).
	Save(ctx context.Context, p *UserDailyProgress) error

	// ListRange returns the records of the user between from and to
	// inclusive, ordered by date. Days without a record are omitted.
	ListRange(ctx context.Context, userID shared.ID, from, to shared.CalendarDate) ([]*UserDailyProgress, error)
}

// GetOrNew loads the record for (userID, date) or returns a fresh one.
func GetOrNew(ctx context.Context, repo Repository, userID shared.ID, date shared.CalendarDate) (*UserDailyProgress, error) {
	p, err := repo.Get(ctx, userID, date)
	if err == nil {
		return p, nil
	}
	if shared.IsNotFound(err) {
		return New(userID, date), nil
	}
	return nil, err
}
