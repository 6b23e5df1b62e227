package analytics

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/singleflight"

	"github.com/example/taskboard/domain/metrics"
	"github.com/example/taskboard/modules/board"
)

// computeTimeout bounds a shared dashboard computation.
const computeTimeout = 10 * time.Second

// Service computes dashboards from the board snapshot with cache-aside
// caching.
type Service struct {
	board   board.BoardPort
	cache   DashboardCache
	sfGroup singleflight.Group
	gen     atomic.Uint64
	logger  types.Logger
	now     func() time.Time
}

// NewService creates a new analytics service.
func NewService(port board.BoardPort, cache DashboardCache, logger types.Logger) *Service {
	if cache == nil {
		cache = noCache{}
	}
	return &Service{
		board:  port,
		cache:  cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// cacheKey identifies a dashboard by window and calendar day.
func cacheKey(windowDays int, now time.Time) string {
	return fmt.Sprintf("dashboard:%d:%s", windowDays, now.UTC().Format(metrics.DateLayout))
}

// Dashboard returns the dashboard for the trailing window. The boolean
// reports whether it was served from the cache.
func (s *Service) Dashboard(ctx context.Context, windowDays int) (metrics.Dashboard, bool, error) {
	windowDays = metrics.ClampWindow(windowDays)
	now := s.now()
	key := cacheKey(windowDays, now)

	var cached metrics.Dashboard
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("Cache read failed", "key", key, "error", err)
	}
	if found {
		s.logger.Debug("Cache hit", "key", key)
		return cached, true, nil
	}

	// Concurrent misses for the same key share a single snapshot read. The
	// shared computation runs on a detached context so one caller leaving
	// does not fail the others.
	ch := s.sfGroup.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), computeTimeout)
		defer cancel()

		gen := s.gen.Load()
		tasks, err := s.board.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		d := metrics.BuildDashboard(tasks, windowDays, now)

		// Skip the write if the board changed while computing.
		if s.gen.Load() == gen {
			if err := s.cache.Set(ctx, key, d); err != nil {
				s.logger.Warn("Failed to cache dashboard", "key", key, "error", err)
			}
		}
		return d, nil
	})

	select {
	case <-ctx.Done():
		return metrics.Dashboard{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return metrics.Dashboard{}, false, res.Err
		}
		return res.Val.(metrics.Dashboard), false, nil
	}
}

// Invalidate drops every cached dashboard.
func (s *Service) Invalidate(ctx context.Context) {
	s.gen.Add(1)
	if err := s.cache.DeletePattern(ctx, "dashboard:*"); err != nil {
		s.logger.Warn("Failed to invalidate dashboards", "error", err)
	}
}

// CacheStats returns the cache statistics.
func (s *Service) CacheStats() StatsSnapshot {
	return s.cache.Stats()
}
