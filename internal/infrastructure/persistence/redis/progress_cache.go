package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/study-planner/planner-core/internal/domain/progress"
	"github.com/study-planner/planner-core/internal/domain/shared"
)

// TTLProgress is the default lifetime of a cached daily progress record.
const TTLProgress = 10 * time.Minute

// JSONStore is the part of Cache the decorators need.
type JSONStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

var _ JSONStore = (*Cache)(nil)

// ProgressKey is the cache key of one (user, date) record.
func ProgressKey(userID shared.ID, date shared.CalendarDate) string {
	return progressUserPrefix(userID) + date.String()
}

func progressUserPrefix(userID shared.ID) string {
	return "progress:" + userID.String() + ":"
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ProgressCache is a read-through cache over a progress.Repository.
// Save writes to the backing store first and then drops the cached copy,
// so a failed invalidation can only leave a stale entry until its TTL.
// Cache failures never fail a call; they are logged and the store is used.
type ProgressCache struct {
	next   progress.Repository
	store  JSONStore
	ttl    time.Duration
	logger *slog.Logger
}

var _ progress.Repository = (*ProgressCache)(nil)

// NewProgressCache wraps next. A non-positive ttl means TTLProgress.
func NewProgressCache(next progress.Repository, store JSONStore, ttl time.Duration, logger *slog.Logger) *ProgressCache {
	if ttl <= 0 {
		ttl = TTLProgress
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressCache{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: logger.With("component", "progress_cache"),
	}
}

// Get returns the cached record or loads it from the backing store.
// Misses are not cached.
func (c *ProgressCache) Get(ctx context.Context, userID shared.ID, date shared.CalendarDate) (*progress.UserDailyProgress, error) {
	key := ProgressKey(userID, date)

	var cached progress.UserDailyProgress
	err := c.store.Get(ctx, key, &cached)
	switch {
	case err == nil:
		if cached.CompletedTasks == nil {
			cached.CompletedTasks = make(map[shared.ID]int)
		}
		return &cached, nil
	case !errors.Is(err, ErrCacheMiss):
		c.logger.Warn("cache read failed", "key", key, "error", err)
	}

	p, err := c.next.Get(ctx, userID, date)
	if err != nil {
		return nil, err
	}

	if err := c.store.Set(ctx, key, p, c.ttl); err != nil {
		c.logger.Warn("cache fill failed", "key", key, "error", err)
	}
	return p, nil
}

// Save upserts through the backing store and invalidates the cached copy.
func (c *ProgressCache) Save(ctx context.Context, p *progress.UserDailyProgress) error {
	if err := c.next.Save(ctx, p); err != nil {
		return err
	}

	key := ProgressKey(p.UserID, p.Date)
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("cache invalidation failed", "key", key, "error", err)
	}
	return nil
}

// ListRange is not cached.
func (c *ProgressCache) ListRange(ctx context.Context, userID shared.ID, from, to shared.CalendarDate) ([]*progress.UserDailyProgress, error) {
	return c.next.ListRange(ctx, userID, from, to)
}

// FlushUser drops every cached day of userID. Unlike the read path it
// reports cache failures, since flushing is all it does.
func (c *ProgressCache) FlushUser(ctx context.Context, userID shared.ID) error {
	if err := c.store.DeleteByPattern(ctx, progressUserPrefix(userID)+"*"); err != nil {
		return fmt.Errorf("flush progress cache of %s: %w", userID, err)
	}
	c.logger.Info("progress cache flushed", "user_id", userID.String())
	return nil
}
