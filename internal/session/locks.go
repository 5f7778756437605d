package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes logins per user. The invalidate-all-then-create sequence
// in Login is not atomic at the store, so concurrent logins for the same user
// must not interleave between the two writes.
type Locker interface {
	// Lock blocks until the key is held or ctx is done, and returns the
	// release function.
	Lock(ctx context.Context, key string) (func(), error)
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// KeyedMutex is the in-process Locker. Entries are dropped once the last
// holder releases, so the map stays bounded by concurrent logins.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

func (m *KeyedMutex) Lock(_ context.Context, key string) (func(), error) {
	m.mu.Lock()
	entry, ok := m.entries[key]
	if !ok {
		entry = &keyedEntry{}
		m.entries[key] = entry
	}
	entry.refs++
	m.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		m.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(m.entries, key)
		}
		m.mu.Unlock()
	}, nil
}

// RedisLocker serializes logins across server instances with SET NX and a
// TTL. A crashed holder leaks the key for at most the TTL.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := "login_lock:" + key
	holder := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, holder, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}

	return func() {
		// Release only our own hold; the TTL bounds anything we miss here.
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if val, err := l.client.Get(ctx, lockKey).Result(); err == nil && val == holder {
			_ = l.client.Del(ctx, lockKey).Err()
		}
	}, nil
}
