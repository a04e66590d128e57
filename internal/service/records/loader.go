package records

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mamachat/internal/models"
	"mamachat/internal/observability"
	"mamachat/internal/redis"
)

// Source is the read-only data a snapshot is gathered from.
type Source interface {
	Profile(ctx context.Context, userID int64) (*models.UserProfile, error)
	LatestReading(ctx context.Context, userID int64, kind models.VitalKind) (*models.HealthReading, error)
	UpcomingAppointments(ctx context.Context, userID int64, now time.Time) ([]models.Appointment, error)
	RecentUserMessages(ctx context.Context, userID int64, limit int) ([]string, error)
}

type LoaderOptions struct {
	MemoryLimit int
	// CacheTTL of zero disables caching.
	CacheTTL time.Duration
	Redis    *redis.Client
	Metrics  *observability.Metrics
	Now      func() time.Time
}

// Loader assembles the open-time snapshot of a user.
type Loader struct {
	src     Source
	cache   *snapshotCache
	limit   int
	metrics *observability.Metrics
	now     func() time.Time
}

func NewLoader(src Source, opts LoaderOptions) *Loader {
	l := &Loader{src: src, limit: opts.MemoryLimit, metrics: opts.Metrics, now: opts.Now}
	if l.limit <= 0 {
		l.limit = 3
	}
	if l.now == nil {
		l.now = time.Now
	}
	if opts.CacheTTL > 0 {
		l.cache = newSnapshotCache(opts.Redis, opts.CacheTTL)
	}
	return l
}

// Start listens for cross-instance invalidations until ctx ends.
func (l *Loader) Start(ctx context.Context) {
	if l.cache != nil {
		l.cache.startListener(ctx, nil)
	}
}

// Load gathers the snapshot concurrently. A failing source degrades to its
// empty value and is logged; Load itself never fails.
func (l *Loader) Load(ctx context.Context, userID int64) models.UserSnapshot {
	if l.cache != nil {
		if snap, result, ok := l.cache.get(ctx, userID); ok {
			l.metrics.CacheResult(result)
			return snap
		}
		l.metrics.CacheResult("miss")
	}

	var (
		snap     models.UserSnapshot
		mu       sync.Mutex
		g        errgroup.Group
		degraded bool
	)
	fail := func(format string, args ...any) {
		log.Printf(format, args...)
		mu.Lock()
		degraded = true
		mu.Unlock()
	}
	g.Go(func() error {
		p, err := l.src.Profile(ctx, userID)
		if err != nil {
			fail("records: load profile failed user=%d: %v", userID, err)
			return nil
		}
		mu.Lock()
		snap.Profile = p
		mu.Unlock()
		return nil
	})
	for _, kind := range models.VitalKinds {
		g.Go(func() error {
			r, err := l.src.LatestReading(ctx, userID, kind)
			if err != nil {
				fail("records: load %s reading failed user=%d: %v", kind, userID, err)
				return nil
			}
			mu.Lock()
			snap.Context.Health.Set(kind, r)
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		appts, err := l.src.UpcomingAppointments(ctx, userID, l.now())
		if err != nil {
			fail("records: load appointments failed user=%d: %v", userID, err)
			return nil
		}
		mu.Lock()
		snap.Context.Appointments = appts
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		topics, err := l.src.RecentUserMessages(ctx, userID, l.limit)
		if err != nil {
			fail("records: load recent topics failed user=%d: %v", userID, err)
			return nil
		}
		mu.Lock()
		snap.Context.RecentTopics = topics
		mu.Unlock()
		return nil
	})
	_ = g.Wait()

	if l.cache != nil && !degraded {
		l.cache.set(ctx, userID, snap)
	}
	return snap
}

// Invalidate drops any cached snapshot of userID, locally and on other instances.
func (l *Loader) Invalidate(ctx context.Context, userID int64) {
	if l.cache != nil {
		l.cache.invalidate(ctx, userID)
	}
}
