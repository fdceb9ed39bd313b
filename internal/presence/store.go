package presence

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

// Store persists per-user online flags so other processes (and the room
// listing) can read them.
type Store interface {
	SetOnline(ctx context.Context, userID int, online bool) error
	IsOnline(ctx context.Context, userID int) (bool, error)
}

// RedisStore keeps online flags in Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func presenceKey(userID int) string {
	return fmt.Sprintf("presence:%d", userID)
}

func (s *RedisStore) SetOnline(ctx context.Context, userID int, online bool) error {
	if !online {
		return s.client.Del(ctx, presenceKey(userID)).Err()
	}
	return s.client.Set(ctx, presenceKey(userID), "1", 0).Err()
}

func (s *RedisStore) IsOnline(ctx context.Context, userID int) (bool, error) {
	count, err := s.client.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MemoryStore is the single-process Store, also used in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	online map[int]bool
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{online: make(map[int]bool)}
}

func (s *MemoryStore) SetOnline(_ context.Context, userID int, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if online {
		s.online[userID] = true
	} else {
		delete(s.online, userID)
	}
	return nil
}

func (s *MemoryStore) IsOnline(_ context.Context, userID int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online[userID], nil
}
