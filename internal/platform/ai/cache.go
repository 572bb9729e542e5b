package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Store interface
// ---------------------------------------------------------------------------

// Store defines the interface for a response cache backend. Implementations
// must be safe for concurrent use. TTL enforcement is the ResponseCache's
// job; a backend may additionally expire entries on its own as long as it
// never keeps them longer than the cache would.
type Store interface {
	Get(ctx context.Context, key string) (CacheEntry, bool, error)
	Set(ctx context.Context, entry CacheEntry) error
	Delete(ctx context.Context, key string) error
	Len(ctx context.Context) (int, error)
	OldestKey(ctx context.Context) (string, bool, error)
	Clear(ctx context.Context) error
}

// CacheEntry holds a cached generation result and the time it was stored.
type CacheEntry struct {
	Key      string    `json:"key"`
	Result   Result    `json:"result"`
	StoredAt time.Time `json:"stored_at"`
}

// ---------------------------------------------------------------------------
// MemoryStore
// ---------------------------------------------------------------------------

// MemoryStore is a thread-safe in-memory Store.
type MemoryStore struct {
	entries map[string]CacheEntry
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]CacheEntry),
	}
}

// Get retrieves an entry by key.
func (s *MemoryStore) Get(ctx context.Context, key string) (CacheEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	return entry, ok, nil
}

// Set stores an entry under its key, replacing any previous value.
func (s *MemoryStore) Set(ctx context.Context, entry CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = entry
	return nil
}

// Delete removes a single entry.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// OldestKey returns the key with the smallest StoredAt. Ties break on the
// lexicographically smaller key so eviction order is deterministic.
func (s *MemoryStore) OldestKey(ctx context.Context) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for key, entry := range s.entries {
		if !found || entry.StoredAt.Before(oldestAt) ||
			(entry.StoredAt.Equal(oldestAt) && key < oldestKey) {
			oldestKey = key
			oldestAt = entry.StoredAt
			found = true
		}
	}
	return oldestKey, found, nil
}

// Clear removes all entries.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]CacheEntry)
	return nil
}

// ---------------------------------------------------------------------------
// ResponseCache
// ---------------------------------------------------------------------------

// CacheConfig holds response cache settings.
type CacheConfig struct {
	TTL        time.Duration // how long an entry stays fresh
	MaxEntries int           // bound on stored entries; oldest evicted first
}

// DefaultCacheConfig returns the default cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        5 * time.Minute,
		MaxEntries: 1000,
	}
}

// ResponseCache caches generation results keyed by request content. Entries
// expire lazily: an entry older than the TTL is deleted on lookup and
// reported as a miss. An entry whose age equals the TTL exactly is still
// fresh.
type ResponseCache struct {
	store      Store
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// NewResponseCache creates a ResponseCache on top of the given backend.
func NewResponseCache(store Store, cfg CacheConfig) *ResponseCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheConfig().TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultCacheConfig().MaxEntries
	}
	return &ResponseCache{
		store:      store,
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
	}
}

// TTL returns the configured entry lifetime.
func (c *ResponseCache) TTL() time.Duration {
	return c.ttl
}

// Get looks up a fresh entry. Expired entries are removed and reported as
// a miss.
func (c *ResponseCache) Get(ctx context.Context, key string) (Result, bool, error) {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return Result{}, false, err
	}
	if !ok {
		return Result{}, false, nil
	}
	if c.now().Sub(entry.StoredAt) > c.ttl {
		if err := c.store.Delete(ctx, key); err != nil {
			return Result{}, false, err
		}
		return Result{}, false, nil
	}
	return entry.Result, true, nil
}

// Set stores a result under the given key. When the cache is full the
// oldest entries are evicted first.
func (c *ResponseCache) Set(ctx context.Context, key string, res Result) error {
	n, err := c.store.Len(ctx)
	if err != nil {
		return err
	}
	// Usually evicts at most one entry; the loop also restores the bound
	// when the backend was loaded under a larger limit.
	for ; n >= c.maxEntries; n-- {
		oldest, ok, err := c.store.OldestKey(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := c.store.Delete(ctx, oldest); err != nil {
			return err
		}
	}
	return c.store.Set(ctx, CacheEntry{
		Key:      key,
		Result:   res,
		StoredAt: c.now(),
	})
}

// Len returns the number of stored entries, expired ones included.
func (c *ResponseCache) Len(ctx context.Context) (int, error) {
	return c.store.Len(ctx)
}

// Clear drops all entries.
func (c *ResponseCache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// ---------------------------------------------------------------------------
// Cache keys
// ---------------------------------------------------------------------------

// CacheKey derives the cache key for a generation request: a SHA-256 hex
// digest over the task type, the normalized prompt, and the sorted auxiliary
// parameters. Prompts differing only in case or whitespace map to the same
// key.
func CacheKey(taskType TaskType, prompt string, aux map[string]string) string {
	pairs := make([]string, 0, len(aux))
	for k, v := range aux {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	var b strings.Builder
	b.WriteString(string(taskType))
	b.WriteByte('\n')
	b.WriteString(NormalizePrompt(prompt))
	b.WriteByte('\n')
	b.WriteString(strings.Join(pairs, "&"))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// NormalizePrompt lowercases a prompt, trims surrounding whitespace, and
// collapses internal whitespace runs to single spaces.
func NormalizePrompt(prompt string) string {
	return strings.ToLower(strings.Join(strings.Fields(prompt), " "))
}
