// Package cache holds fetched envelopes keyed by family and options.
// Entries expire lazily: an entry older than the TTL is reported absent
// but stays in the store until it is overwritten or flushed.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fitfi/service_layer/internal/domain"
)

// Entry is one cached result.
type Entry struct {
	Key       string        `json:"key"`
	Payload   []byte        `json:"payload"`
	WrittenAt time.Time     `json:"written_at"`
	Origin    domain.Origin `json:"origin"`
}

// Decode unmarshals the payload into dest.
func (e Entry) Decode(dest any) error {
	if err := json.Unmarshal(e.Payload, dest); err != nil {
		return fmt.Errorf("decode cache entry %s: %w", e.Key, err)
	}
	return nil
}

// NewEntry marshals value into an entry written now.
func NewEntry(key string, value any, origin domain.Origin, now time.Time) (Entry, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal cache entry %s: %w", key, err)
	}
	return Entry{Key: key, Payload: payload, WrittenAt: now, Origin: origin}, nil
}

// KeyStat describes one stored key.
type KeyStat struct {
	Key     string        `json:"key"`
	Origin  domain.Origin `json:"origin"`
	Age     time.Duration `json:"age"`
	Expired bool          `json:"expired"`
}

// Stats is a read-only view of the store.
type Stats struct {
	Entries int       `json:"entries"`
	Live    int       `json:"live"`
	Expired int       `json:"expired"`
	Hits    int64     `json:"hits"`
	Misses  int64     `json:"misses"`
	TTL     string    `json:"ttl"`
	Keys    []KeyStat `json:"keys"`
}

// Store is the cache contract used by the fetch orchestrator.
type Store interface {
	// Get returns the entry for key when it exists and is younger than the TTL.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set stores or replaces an entry.
	Set(ctx context.Context, entry Entry) error
	// Clear removes every entry.
	Clear(ctx context.Context) error
	// DeletePrefix removes every key starting with prefix and returns how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// Stats reports entry counts without mutating the store.
	Stats(ctx context.Context) (Stats, error)
}

// Key builds "{family}_{options}" where options is the JSON encoding of opts.
// encoding/json writes struct fields in declaration order and map keys
// sorted, so equal options always produce the same key.
func Key(family string, opts any) string {
	if opts == nil {
		return family + "_{}"
	}
	data, err := json.Marshal(opts)
	if err != nil {
		return family + "_" + fmt.Sprintf("%v", opts)
	}
	return family + "_" + string(data)
}

// FamilyPrefix returns the key prefix shared by every entry of family.
func FamilyPrefix(family string) string {
	return strings.TrimSuffix(family, "_") + "_"
}
