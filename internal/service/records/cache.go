package records

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"mamachat/internal/models"
	"mamachat/internal/redis"
)

const (
	redisInvalidateChannel = "records:invalidate"
	localSnapshotTTL       = 30 * time.Second
)

type invalidateMessage struct {
	UserID int64 `json:"user_id"`
}

type localEntry struct {
	snapshot models.UserSnapshot
	expires  time.Time
}

// snapshotCache keeps user snapshots in process and in redis. Redis is
// optional; invalidations fan out to other instances over pub/sub.
type snapshotCache struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.Mutex
	local map[int64]localEntry
}

func newSnapshotCache(client *redis.Client, ttl time.Duration) *snapshotCache {
	return &snapshotCache{client: client, ttl: ttl, local: make(map[int64]localEntry)}
}

func snapshotKey(userID int64) string {
	return fmt.Sprintf("records:snapshot:%d", userID)
}

func (c *snapshotCache) get(ctx context.Context, userID int64) (models.UserSnapshot, string, bool) {
	now := time.Now()
	c.mu.Lock()
	entry, ok := c.local[userID]
	if ok && now.Before(entry.expires) {
		c.mu.Unlock()
		return entry.snapshot, "local", true
	}
	delete(c.local, userID)
	c.mu.Unlock()

	if c.client == nil {
		return models.UserSnapshot{}, "miss", false
	}
	raw, err := c.client.Get(ctx, snapshotKey(userID))
	if err != nil {
		if err != redis.ErrCacheMiss {
			log.Printf("records: load snapshot rdb failed user=%d: %v", userID, err)
		}
		return models.UserSnapshot{}, "miss", false
	}
	var snap models.UserSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		log.Printf("records: decode snapshot rdb failed user=%d: %v", userID, err)
		return models.UserSnapshot{}, "miss", false
	}
	c.storeLocal(userID, snap)
	return snap, "redis", true
}

func (c *snapshotCache) set(ctx context.Context, userID int64, snap models.UserSnapshot) {
	c.storeLocal(userID, snap)
	if c.client == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("records: snapshot marshal failed user=%d: %v", userID, err)
		return
	}
	if err := c.client.Set(ctx, snapshotKey(userID), data, c.ttl); err != nil {
		log.Printf("records: cache snapshot rdb failed user=%d: %v", userID, err)
	}
}

func (c *snapshotCache) storeLocal(userID int64, snap models.UserSnapshot) {
	ttl := localSnapshotTTL
	if c.ttl < ttl {
		ttl = c.ttl
	}
	c.mu.Lock()
	c.local[userID] = localEntry{snapshot: snap, expires: time.Now().Add(ttl)}
	c.mu.Unlock()
}

func (c *snapshotCache) dropLocal(userID int64) {
	c.mu.Lock()
	delete(c.local, userID)
	c.mu.Unlock()
}

// invalidate removes the snapshot everywhere and tells other instances.
func (c *snapshotCache) invalidate(ctx context.Context, userID int64) {
	c.dropLocal(userID)
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, snapshotKey(userID)); err != nil && err != redis.ErrCacheMiss {
		log.Printf("records: invalidate snapshot rdb failed user=%d: %v", userID, err)
	}
	c.publishInvalidation(ctx, invalidateMessage{UserID: userID})
}

func (c *snapshotCache) publishInvalidation(ctx context.Context, msg invalidateMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("records: invalidation marshal failed: %v", err)
		return
	}
	if err := c.client.Publish(ctx, redisInvalidateChannel, payload); err != nil {
		log.Printf("records: publish invalidation failed: %v", err)
	}
}

// startListener drops local entries named on the invalidation channel until ctx ends.
func (c *snapshotCache) startListener(ctx context.Context, handler func(invalidateMessage)) {
	if c.client == nil {
		return
	}
	ch, err := c.client.Subscribe(ctx, redisInvalidateChannel)
	if err != nil {
		log.Printf("records: invalidation listener not started: %v", err)
		return
	}
	go func() {
		for payload := range ch {
			var inv invalidateMessage
			if err := json.Unmarshal([]byte(payload), &inv); err != nil {
				log.Printf("records: invalidation decode failed: %v", err)
				continue
			}
			c.dropLocal(inv.UserID)
			if handler != nil {
				handler(inv)
			}
		}
	}()
}
