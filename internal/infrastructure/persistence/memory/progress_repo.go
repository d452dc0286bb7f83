package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/study-planner/planner-core/internal/domain/progress"
	"github.com/study-planner/planner-core/internal/domain/shared"
)

type progressKey struct {
	userID shared.ID
	date   shared.CalendarDate
}

// ProgressRepository implements progress.Repository in memory.
type ProgressRepository struct {
	mu      sync.RWMutex
	records map[progressKey]*progress.UserDailyProgress
}

var _ progress.Repository = (*ProgressRepository)(nil)

// NewProgressRepository creates an empty store.
func NewProgressRepository() *ProgressRepository {
	return &ProgressRepository{
		records: make(map[progressKey]*progress.UserDailyProgress),
	}
}

// Get returns a copy of the record for (userID, date).
func (r *ProgressRepository) Get(ctx context.Context, userID shared.ID, date shared.CalendarDate) (*progress.UserDailyProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.records[progressKey{userID, date}]
	if !ok {
		return nil, progress.NotFound("Get", userID, date)
	}
	return p.Clone(), nil
}

// Save upserts a copy of p.
func (r *ProgressRepository) Save(ctx context.Context, p *progress.UserDailyProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[progressKey{p.UserID, p.Date}] = p.Clone()
	return nil
}

// ListRange returns the user's records between from and to inclusive.
func (r *ProgressRepository) ListRange(ctx context.Context, userID shared.ID, from, to shared.CalendarDate) ([]*progress.UserDailyProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*progress.UserDailyProgress, 0)
	for key, p := range r.records {
		if key.userID != userID || key.date.Before(from) || key.date.After(to) {
			continue
		}
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
