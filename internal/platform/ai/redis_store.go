package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis, for deployments where cached
// generations should survive restarts and be shared across replicas.
//
// Each entry lives under its own key so Redis can expire it physically;
// the physical TTL is twice the logical one, which stays with the
// ResponseCache. A sorted set scored by StoredAt (milliseconds) indexes
// entries for Len and OldestKey.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	physTTL time.Duration
}

// NewRedisStore creates a RedisStore using the given client. The client is
// owned by the caller. logicalTTL is the ResponseCache TTL; entries are
// physically expired at twice that age in case eviction never reaches them.
func NewRedisStore(client *redis.Client, prefix string, logicalTTL time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "ai:cache"
	}
	if logicalTTL <= 0 {
		logicalTTL = DefaultCacheConfig().TTL
	}
	return &RedisStore{
		client:  client,
		prefix:  prefix,
		physTTL: 2 * logicalTTL,
	}
}

func (s *RedisStore) entryKey(key string) string {
	return s.prefix + ":entry:" + key
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":index"
}

// Get retrieves an entry by key. A physically expired entry is pruned from
// the index and reported as a miss.
func (s *RedisStore) Get(ctx context.Context, key string) (CacheEntry, bool, error) {
	data, err := s.client.Get(ctx, s.entryKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			if err := s.client.ZRem(ctx, s.indexKey(), key).Err(); err != nil {
				return CacheEntry{}, false, fmt.Errorf("prune cache index: %w", err)
			}
			return CacheEntry{}, false, nil
		}
		return CacheEntry{}, false, fmt.Errorf("get cache entry: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return CacheEntry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return entry, true, nil
}

// Set stores an entry and indexes it by StoredAt.
func (s *RedisStore) Set(ctx context.Context, entry CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.entryKey(entry.Key), data, s.physTTL)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(entry.StoredAt.UnixMilli()),
		Member: entry.Key,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set cache entry: %w", err)
	}
	return nil
}

// Delete removes an entry and its index member.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.entryKey(key))
	pipe.ZRem(ctx, s.indexKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// Len returns the number of indexed entries. Entries Redis expired but the
// index still lists are counted until a Get or OldestKey prunes them; the
// overcount only makes eviction run sooner.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return int(n), nil
}

// OldestKey returns the key with the smallest StoredAt, pruning index
// members whose entry Redis already expired.
func (s *RedisStore) OldestKey(ctx context.Context) (string, bool, error) {
	for {
		keys, err := s.client.ZRange(ctx, s.indexKey(), 0, 0).Result()
		if err != nil {
			return "", false, fmt.Errorf("read cache index: %w", err)
		}
		if len(keys) == 0 {
			return "", false, nil
		}

		key := keys[0]
		exists, err := s.client.Exists(ctx, s.entryKey(key)).Result()
		if err != nil {
			return "", false, fmt.Errorf("check cache entry: %w", err)
		}
		if exists > 0 {
			return key, true, nil
		}
		if err := s.client.ZRem(ctx, s.indexKey(), key).Err(); err != nil {
			return "", false, fmt.Errorf("prune cache index: %w", err)
		}
	}
}

// Clear removes all entries and the index.
func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read cache index: %w", err)
	}

	pipe := s.client.TxPipeline()
	for _, key := range keys {
		pipe.Del(ctx, s.entryKey(key))
	}
	pipe.Del(ctx, s.indexKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection, for readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
