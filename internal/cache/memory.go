package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore is an in-process Store guarded by a RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time

	hits   int64
	misses int64
}

// NewMemoryStore creates an empty store with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used in tests.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Now returns the store's current time.
func (s *MemoryStore) Now() time.Time {
	return s.now()
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || !s.live(entry) {
		atomic.AddInt64(&s.misses, 1)
		return Entry{}, false, nil
	}
	atomic.AddInt64(&s.hits, 1)
	return entry, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, entry Entry) error {
	if entry.WrittenAt.IsZero() {
		entry.WrittenAt = s.now()
	}
	s.mu.Lock()
	s.entries[entry.Key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.entries = make(map[string]Entry)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	stats := Stats{
		Entries: len(s.entries),
		Hits:    atomic.LoadInt64(&s.hits),
		Misses:  atomic.LoadInt64(&s.misses),
		TTL:     s.ttl.String(),
		Keys:    make([]KeyStat, 0, len(s.entries)),
	}
	for key, entry := range s.entries {
		expired := !s.live(entry)
		if expired {
			stats.Expired++
		} else {
			stats.Live++
		}
		stats.Keys = append(stats.Keys, KeyStat{
			Key:     key,
			Origin:  entry.Origin,
			Age:     now.Sub(entry.WrittenAt),
			Expired: expired,
		})
	}
	sort.Slice(stats.Keys, func(i, j int) bool { return stats.Keys[i].Key < stats.Keys[j].Key })
	return stats, nil
}

func (s *MemoryStore) live(entry Entry) bool {
	return s.now().Sub(entry.WrittenAt) < s.ttl
}
