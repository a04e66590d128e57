package records

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"mamachat/internal/config"
	"mamachat/internal/models"
	"mamachat/internal/redis"
)

type stubSource struct {
	calls      atomic.Int32
	profileErr error
	readingErr error
}

func (s *stubSource) Profile(context.Context, int64) (*models.UserProfile, error) {
	s.calls.Add(1)
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	return &models.UserProfile{Name: "Ada"}, nil
}

func (s *stubSource) LatestReading(_ context.Context, _ int64, kind models.VitalKind) (*models.HealthReading, error) {
	if s.readingErr != nil && kind == models.VitalBloodSugar {
		return nil, s.readingErr
	}
	if kind == models.VitalWeight {
		return &models.HealthReading{Kind: kind, Weight: 70, Unit: "kg"}, nil
	}
	return nil, nil
}

func (s *stubSource) UpcomingAppointments(context.Context, int64, time.Time) ([]models.Appointment, error) {
	return []models.Appointment{{Type: "checkup", Date: "2030-01-01"}}, nil
}

func (s *stubSource) RecentUserMessages(_ context.Context, _ int64, limit int) ([]string, error) {
	if limit != 3 {
		return nil, errors.New("unexpected limit")
	}
	return []string{"sleep"}, nil
}

func TestLoaderGathersSnapshot(t *testing.T) {
	loader := NewLoader(&stubSource{}, LoaderOptions{})
	snap := loader.Load(context.Background(), 1)
	if snap.Profile == nil || snap.Profile.Name != "Ada" {
		t.Fatalf("profile missing: %#v", snap.Profile)
	}
	if snap.Context.Health.Weight == nil || snap.Context.Health.BloodPressure != nil {
		t.Fatalf("health = %#v", snap.Context.Health)
	}
	if len(snap.Context.Appointments) != 1 || len(snap.Context.RecentTopics) != 1 {
		t.Fatalf("context = %#v", snap.Context)
	}
}

func TestLoaderDegradesFailedSources(t *testing.T) {
	src := &stubSource{profileErr: errors.New("db down"), readingErr: errors.New("timeout")}
	loader := NewLoader(src, LoaderOptions{CacheTTL: time.Minute})
	snap := loader.Load(context.Background(), 1)
	if snap.Profile != nil || snap.Context.Health.BloodSugar != nil {
		t.Fatalf("failed sources should be empty: %#v", snap)
	}
	if snap.Context.Health.Weight == nil || len(snap.Context.Appointments) != 1 {
		t.Fatalf("healthy sources should survive: %#v", snap.Context)
	}
	loader.Load(context.Background(), 1)
	if src.calls.Load() != 2 {
		t.Fatalf("degraded snapshot must not be cached, profile calls=%d", src.calls.Load())
	}
}

func TestLoaderLocalCache(t *testing.T) {
	src := &stubSource{}
	loader := NewLoader(src, LoaderOptions{CacheTTL: time.Minute})
	ctx := context.Background()
	loader.Load(ctx, 7)
	loader.Load(ctx, 7)
	if src.calls.Load() != 1 {
		t.Fatalf("expected cached snapshot, profile calls=%d", src.calls.Load())
	}
	loader.Invalidate(ctx, 7)
	loader.Load(ctx, 7)
	if src.calls.Load() != 2 {
		t.Fatalf("invalidate should force a reload, profile calls=%d", src.calls.Load())
	}
}

func TestSnapshotCacheRedis(t *testing.T) {
	client := newTestRedis(t)
	defer client.Close()

	ctx := context.Background()
	cache := newSnapshotCache(client, time.Minute)
	received := make(chan invalidateMessage, 1)
	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cache.startListener(listenCtx, func(msg invalidateMessage) { received <- msg })

	snap := models.UserSnapshot{Profile: &models.UserProfile{Name: "Ada"}}
	cache.set(ctx, 9, snap)
	cache.dropLocal(9)
	got, source, ok := cache.get(ctx, 9)
	if !ok || source != "redis" || got.Profile == nil || got.Profile.Name != "Ada" {
		t.Fatalf("redis lookup = %#v %s %v", got, source, ok)
	}

	cache.invalidate(ctx, 9)
	if _, _, ok := cache.get(ctx, 9); ok {
		t.Fatalf("snapshot should be invalidated")
	}
	select {
	case msg := <-received:
		if msg.UserID != 9 {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatalf("did not receive pubsub message")
	}
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed records tests")
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("atoi port: %v", err)
	}
	client, err := redis.NewRedisClient(&config.Config{Redis: config.RedisConfig{Host: host, Port: port}})
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.FlushDB(ctx); err != nil {
		t.Fatalf("flush db: %v", err)
	}
	return client
}
