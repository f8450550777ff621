package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PollGate holds back feed polling after a rate-limit response. Block marks
// a key as off-limits for a duration; Blocked reports whether the hold is
// still in force. Keys are shared across worker instances when backed by
// Redis, so one throttled worker quiets the others too.
type PollGate interface {
	Block(ctx context.Context, key string, d time.Duration) error
	Blocked(ctx context.Context, key string) (bool, error)
}

// ============================================================================
// REDIS-BACKED GATE
// ============================================================================

type redisGate struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisGate creates a gate backed by Redis key TTLs
func NewRedisGate(rdb *redis.Client) PollGate {
	return &redisGate{rdb: rdb, prefix: "pollgate:"}
}

func (g *redisGate) Block(ctx context.Context, key string, d time.Duration) error {
	return g.rdb.Set(ctx, g.prefix+key, 1, d).Err()
}

func (g *redisGate) Blocked(ctx context.Context, key string) (bool, error) {
	n, err := g.rdb.Exists(ctx, g.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ============================================================================
// IN-PROCESS GATE
// ============================================================================

type memoryGate struct {
	mu    sync.Mutex
	until map[string]time.Time
	clock Clock
}

// NewMemoryGate creates an in-process gate. Used when Redis is not
// configured; the hold then only covers this instance.
func NewMemoryGate(clock Clock) PollGate {
	return &memoryGate{
		until: make(map[string]time.Time),
		clock: clock,
	}
}

func (g *memoryGate) Block(_ context.Context, key string, d time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.until[key] = g.clock.Now().Add(d)
	return nil
}

func (g *memoryGate) Blocked(_ context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	deadline, ok := g.until[key]
	if !ok {
		return false, nil
	}
	if g.clock.Now().After(deadline) {
		delete(g.until, key)
		return false, nil
	}
	return true, nil
}
