// Package blacklist records consumed single-use tokens. Records outlive the
// token by a retention window so a replay after expiry is still seen as a
// replay.
package blacklist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRetention is how long a consumed record is kept past the token's
// expiry.
const DefaultRetention = 30 * 24 * time.Hour

// Store tracks consumed token identifiers.
type Store interface {
	// Consume marks id as used. It returns false when id was already consumed.
	Consume(ctx context.Context, id string, expiresAt time.Time) (bool, error)
	IsConsumed(ctx context.Context, id string) (bool, error)
}

// RedisStore keeps consumed tokens in Redis with a TTL of the token's
// remaining lifetime plus the retention window.
type RedisStore struct {
	redis     *redis.Client
	now       func() time.Time
	retention time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{redis: client, now: time.Now, retention: DefaultRetention}
}

// WithRetention overrides DefaultRetention. Zero or less keeps records forever.
func (s *RedisStore) WithRetention(d time.Duration) *RedisStore {
	s.retention = d
	return s
}

func key(id string) string {
	return fmt.Sprintf("consumed:token:%s", id)
}

func (s *RedisStore) Consume(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	// a zero expiration makes SETNX persistent
	var ttl time.Duration
	if s.retention > 0 {
		ttl = expiresAt.Add(s.retention).Sub(s.now())
		if ttl < time.Second {
			ttl = time.Second
		}
	}

	ok, err := s.redis.SetNX(ctx, key(id), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to consume token: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) IsConsumed(ctx context.Context, id string) (bool, error) {
	n, err := s.redis.Exists(ctx, key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check consumed token: %w", err)
	}
	return n > 0, nil
}

// MemoryStore is a process-local Store. Entries past their retention are
// pruned on write.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	now       func() time.Time
	retention time.Duration
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		entries:   make(map[string]time.Time),
		now:       now,
		retention: DefaultRetention,
	}
}

// WithRetention overrides DefaultRetention. Zero or less keeps records forever.
func (s *MemoryStore) WithRetention(d time.Duration) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retention = d
	return s
}

func (s *MemoryStore) stale(now, expiresAt time.Time) bool {
	return s.retention > 0 && now.After(expiresAt.Add(s.retention))
}

func (s *MemoryStore) Consume(_ context.Context, id string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, exp := range s.entries {
		if s.stale(now, exp) {
			delete(s.entries, k)
		}
	}

	if _, ok := s.entries[id]; ok {
		return false, nil
	}
	s.entries[id] = expiresAt
	return true, nil
}

func (s *MemoryStore) IsConsumed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.entries[id]
	if !ok {
		return false, nil
	}
	if s.stale(s.now(), exp) {
		delete(s.entries, id)
		return false, nil
	}
	return true, nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

var (
	_ Store = (*RedisStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
