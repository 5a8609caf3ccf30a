package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotHeld = errors.New("session lease not held")

// Registry enforces at most one live session per user.
type Registry interface {
	Acquire(ctx context.Context, userID string) error
	Refresh(ctx context.Context, userID string) error
	Release(ctx context.Context, userID string) error
}

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{active: make(map[string]struct{})}
}

func (r *MemoryRegistry) Acquire(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[userID]; ok {
		return ErrSessionActive
	}
	r.active[userID] = struct{}{}
	return nil
}

func (r *MemoryRegistry) Refresh(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[userID]; !ok {
		return ErrNotHeld
	}
	return nil
}

func (r *MemoryRegistry) Release(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[userID]; !ok {
		return ErrNotHeld
	}
	delete(r.active, userID)
	return nil
}

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisRegistry shares session ownership across instances. Each lease is a
// key holding this instance's token with a TTL, so a crashed instance frees
// its users once the lease expires.
type RedisRegistry struct {
	rdb   *redis.Client
	ttl   time.Duration
	token string
}

func NewRedisRegistry(rdb *redis.Client, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisRegistry{rdb: rdb, ttl: ttl, token: uuid.NewString()}
}

func sessionKey(userID string) string {
	return fmt.Sprintf("tracking:session:%s", userID)
}

func (r *RedisRegistry) Acquire(ctx context.Context, userID string) error {
	ok, err := r.rdb.SetNX(ctx, sessionKey(userID), r.token, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire session lease: %w", err)
	}
	if !ok {
		return ErrSessionActive
	}
	return nil
}

func (r *RedisRegistry) Refresh(ctx context.Context, userID string) error {
	n, err := refreshScript.Run(ctx, r.rdb, []string{sessionKey(userID)}, r.token, r.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("refresh session lease: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (r *RedisRegistry) Release(ctx context.Context, userID string) error {
	n, err := releaseScript.Run(ctx, r.rdb, []string{sessionKey(userID)}, r.token).Int()
	if err != nil {
		return fmt.Errorf("release session lease: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
