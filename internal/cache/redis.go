package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "fitfi:cache:"

// RedisStore is a Store backed by Redis. Entries are written with a Redis
// expiry of twice the TTL so stats can still report recently expired keys.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time

	hits   int64
	misses int64
}

// NewRedisStore parses url and connects. The connection is verified with PING.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStoreWithClient(client, DefaultRedisPrefix, ttl), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		atomic.AddInt64(&s.misses, 1)
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode redis entry %s: %w", key, err)
	}
	if s.now().Sub(entry.WrittenAt) >= s.ttl {
		atomic.AddInt64(&s.misses, 1)
		return Entry{}, false, nil
	}
	atomic.AddInt64(&s.hits, 1)
	return entry, true, nil
}

func (s *RedisStore) Set(ctx context.Context, entry Entry) error {
	if entry.WrittenAt.IsZero() {
		entry.WrittenAt = s.now()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode redis entry %s: %w", entry.Key, err)
	}
	if err := s.client.Set(ctx, s.prefix+entry.Key, raw, 2*s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", entry.Key, err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	_, err := s.DeletePrefix(ctx, "")
	return err
}

func (s *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.scan(ctx, s.prefix+prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	keys, err := s.scan(ctx, s.prefix)
	if err != nil {
		return Stats{}, err
	}

	now := s.now()
	stats := Stats{
		Hits:   atomic.LoadInt64(&s.hits),
		Misses: atomic.LoadInt64(&s.misses),
		TTL:    s.ttl.String(),
		Keys:   make([]KeyStat, 0, len(keys)),
	}
	for _, full := range keys {
		raw, err := s.client.Get(ctx, full).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Stats{}, fmt.Errorf("redis get %s: %w", full, err)
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		age := now.Sub(entry.WrittenAt)
		expired := age >= s.ttl
		if expired {
			stats.Expired++
		} else {
			stats.Live++
		}
		stats.Keys = append(stats.Keys, KeyStat{
			Key:     strings.TrimPrefix(full, s.prefix),
			Origin:  entry.Origin,
			Age:     age,
			Expired: expired,
		})
	}
	stats.Entries = len(stats.Keys)
	sort.Slice(stats.Keys, func(i, j int) bool { return stats.Keys[i].Key < stats.Keys[j].Key })
	return stats, nil
}

func (s *RedisStore) scan(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan %s: %w", prefix, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
