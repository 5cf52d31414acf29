// Package fetch resolves entity reads through the cache, the remote store,
// the local snapshot and finally a safe default. Reads never fail: every
// call returns a Response describing which tier produced the data and which
// tiers failed on the way.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/fitfi/service_layer/internal/cache"
	"github.com/fitfi/service_layer/internal/domain"
	"github.com/fitfi/service_layer/internal/logging"
	"github.com/fitfi/service_layer/internal/metrics"
	"github.com/fitfi/service_layer/internal/remote"
)

// Entity families. Each is also the cache key prefix.
const (
	FamilyProducts    = "products"
	FamilyOutfits     = "outfits"
	FamilyUser        = "user"
	FamilyTribes      = "tribes"
	FamilyTribe       = "tribe"
	FamilyChallenges  = "challenges"
	FamilyChallenge   = "challenge"
	FamilySubmissions = "submissions"
)

// Families lists every family in a stable order.
var Families = []string{
	FamilyProducts, FamilyOutfits, FamilyUser, FamilyTribes,
	FamilyTribe, FamilyChallenges, FamilyChallenge, FamilySubmissions,
}

// Response is the envelope returned for every read.
type Response[T any] struct {
	Data   T             `json:"data"`
	Origin domain.Origin `json:"origin"`
	Cached bool          `json:"cached"`
	Errors []string      `json:"errors,omitempty"`
}

// Source is a tier able to answer every family. Single-item lookups return
// nil without error when nothing matches.
type Source interface {
	Products(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error)
	Outfits(ctx context.Context, f domain.OutfitFilter) ([]domain.Outfit, error)
	User(ctx context.Context, id string) (*domain.UserProfile, error)
	Tribes(ctx context.Context, f domain.TribeFilter) ([]domain.Tribe, error)
	TribeBySlug(ctx context.Context, l domain.TribeLookup) (*domain.Tribe, error)
	Challenges(ctx context.Context, f domain.ChallengeFilter) ([]domain.TribeChallenge, error)
	Challenge(ctx context.Context, id string) (*domain.TribeChallenge, error)
	Submissions(ctx context.Context, f domain.SubmissionFilter) ([]domain.TribeChallengeSubmission, error)
}

// Service is the fetch orchestrator.
type Service struct {
	store     cache.Store
	remote    Source
	remoteErr error
	snapshot  Source
	dedupe    bool
	group     singleflight.Group
	log       *logrus.Entry
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRemote enables the remote tier.
func WithRemote(src Source) Option {
	return func(s *Service) {
		s.remote = src
	}
}

// WithRemoteUnavailable marks the remote tier as enabled but impossible to
// construct. Every miss records err and moves on to the snapshot.
func WithRemoteUnavailable(err error) Option {
	return func(s *Service) {
		if err == nil {
			err = remote.ErrUnavailable
		}
		s.remoteErr = err
	}
}

// WithDedupe collapses concurrent misses for the same key into one resolution.
func WithDedupe(enabled bool) Option {
	return func(s *Service) {
		s.dedupe = enabled
	}
}

// WithClock replaces the time source used for cache entries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a Service. Without WithRemote the remote tier is skipped
// silently.
func New(store cache.Store, snapshot Source, logger *logging.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Service{
		store:    store,
		snapshot: snapshot,
		dedupe:   true,
		log:      logger.WithComponent("fetch"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RemoteEnabled reports whether the remote tier is active.
func (s *Service) RemoteEnabled() bool {
	return s.remote != nil
}

// =============================================================================
// Cache administration
// =============================================================================

// ClearCache removes every cached entry.
func (s *Service) ClearCache(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	metrics.SetCacheEntries(0)
	s.log.Info("cache cleared")
	return nil
}

// CacheStats reports the cache contents without mutating it.
func (s *Service) CacheStats(ctx context.Context) (cache.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return cache.Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	metrics.SetCacheEntries(stats.Entries)
	return stats, nil
}

// Invalidate removes every cached entry of the given families.
func (s *Service) Invalidate(ctx context.Context, families ...string) (int, error) {
	total := 0
	for _, family := range families {
		n, err := s.store.DeletePrefix(ctx, cache.FamilyPrefix(family))
		if err != nil {
			return total, fmt.Errorf("invalidate %s: %w", family, err)
		}
		total += n
	}
	if total > 0 {
		s.log.WithFields(logrus.Fields{"families": families, "removed": total}).Debug("cache invalidated")
	}
	return total, nil
}
