package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitfi/service_layer/internal/cache"
	"github.com/fitfi/service_layer/internal/domain"
	"github.com/fitfi/service_layer/internal/logging"
	"github.com/fitfi/service_layer/internal/remote"
	"github.com/fitfi/service_layer/internal/snapshot"
)

// fakeSource answers from in-memory data and counts calls.
type fakeSource struct {
	err     error
	gate    chan struct{}
	calls   int32
	product []domain.Product
	users   map[string]domain.UserProfile
	tribes  []domain.Tribe
}

func (f *fakeSource) enter(ctx context.Context) error {
	atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func (f *fakeSource) Calls() int { return int(atomic.LoadInt32(&f.calls)) }

func (f *fakeSource) Products(ctx context.Context, flt domain.ProductFilter) ([]domain.Product, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	out := []domain.Product{}
	for _, p := range f.product {
		if flt.Match(p) {
			out = append(out, p)
		}
	}
	if flt.Limit > 0 && len(out) > flt.Limit {
		out = out[:flt.Limit]
	}
	return out, nil
}

func (f *fakeSource) Outfits(ctx context.Context, _ domain.OutfitFilter) ([]domain.Outfit, error) {
	return []domain.Outfit{}, f.enter(ctx)
}

func (f *fakeSource) User(ctx context.Context, id string) (*domain.UserProfile, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	if u, ok := f.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (f *fakeSource) Tribes(ctx context.Context, _ domain.TribeFilter) ([]domain.Tribe, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	return append([]domain.Tribe{}, f.tribes...), nil
}

func (f *fakeSource) TribeBySlug(ctx context.Context, l domain.TribeLookup) (*domain.Tribe, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	for _, t := range f.tribes {
		if t.Slug == l.Slug {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}

func (f *fakeSource) Challenges(ctx context.Context, _ domain.ChallengeFilter) ([]domain.TribeChallenge, error) {
	return []domain.TribeChallenge{}, f.enter(ctx)
}

func (f *fakeSource) Challenge(ctx context.Context, _ string) (*domain.TribeChallenge, error) {
	return nil, f.enter(ctx)
}

func (f *fakeSource) Submissions(ctx context.Context, _ domain.SubmissionFilter) ([]domain.TribeChallengeSubmission, error) {
	return []domain.TribeChallengeSubmission{}, f.enter(ctx)
}

func catalogue() []domain.Product {
	return []domain.Product{
		{ID: "p1", Title: "Wrap Dress", Gender: domain.GenderFemale},
		{ID: "p2", Title: "Silk Blouse", Gender: domain.GenderFemale},
		{ID: "p3", Title: "Chinos", Gender: domain.GenderMale},
	}
}

func newService(store cache.Store, snap Source, opts ...Option) *Service {
	return New(store, snap, logging.NewNop(), opts...)
}

func TestCacheHitLaw(t *testing.T) {
	ctx := context.Background()
	rem := &fakeSource{product: catalogue()}
	snap := &fakeSource{product: catalogue()}
	svc := newService(cache.NewMemoryStore(5*time.Minute), snap, WithRemote(rem))

	first := svc.Products(ctx, domain.ProductFilter{Gender: domain.GenderFemale})
	require.Equal(t, domain.OriginRemote, first.Origin)
	assert.False(t, first.Cached)
	assert.Len(t, first.Data, 2)

	second := svc.Products(ctx, domain.ProductFilter{Gender: domain.GenderFemale})
	assert.True(t, second.Cached)
	assert.Equal(t, domain.OriginRemote, second.Origin, "cached responses keep the original origin")
	assert.Equal(t, first.Data, second.Data)
	assert.Empty(t, second.Errors)

	assert.Equal(t, 1, rem.Calls(), "cache hit must not touch the remote")
	assert.Equal(t, 0, snap.Calls())
}

func TestTieringLaw(t *testing.T) {
	ctx := context.Background()
	rem := &fakeSource{err: remote.ErrUnavailable}
	snap := &fakeSource{product: catalogue()}
	svc := newService(cache.NewMemoryStore(time.Minute), snap, WithRemote(rem))

	resp := svc.Products(ctx, domain.ProductFilter{})

	assert.Equal(t, domain.OriginSnapshot, resp.Origin)
	assert.False(t, resp.Cached)
	assert.Len(t, resp.Data, 3)
	require.Len(t, resp.Errors, 1)
	assert.True(t, strings.HasPrefix(resp.Errors[0], "remote: "), resp.Errors[0])

	again := svc.Products(ctx, domain.ProductFilter{})
	assert.True(t, again.Cached)
	assert.Equal(t, domain.OriginSnapshot, again.Origin)
}

func TestTotalFailureLaw(t *testing.T) {
	ctx := context.Background()
	rem := &fakeSource{err: remote.ErrQueryFailed}
	snap := &fakeSource{err: snapshot.ErrLoadFailed}
	store := cache.NewMemoryStore(time.Minute)
	svc := newService(store, snap, WithRemote(rem))

	resp := svc.Tribes(ctx, domain.TribeFilter{})

	assert.Equal(t, domain.OriginDefault, resp.Origin)
	assert.False(t, resp.Cached)
	assert.NotNil(t, resp.Data)
	assert.Empty(t, resp.Data)
	require.GreaterOrEqual(t, len(resp.Errors), 2)
	assert.True(t, strings.HasPrefix(resp.Errors[0], "remote: "))
	assert.True(t, strings.HasPrefix(resp.Errors[1], "snapshot: "))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries, "defaults are never cached")
}

func TestTTLExpiryLaw(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	rem := &fakeSource{product: catalogue()}
	store := cache.NewMemoryStore(5 * time.Minute).WithClock(clock)
	svc := newService(store, nil, WithRemote(rem), WithClock(clock))

	svc.Products(ctx, domain.ProductFilter{})
	now = now.Add(5*time.Minute + time.Second)
	resp := svc.Products(ctx, domain.ProductFilter{})

	assert.False(t, resp.Cached)
	assert.Equal(t, 2, rem.Calls())
}

func TestRemoteDisabledIsSilent(t *testing.T) {
	snap := &fakeSource{product: catalogue()}
	svc := newService(cache.NewMemoryStore(time.Minute), snap)

	resp := svc.Products(context.Background(), domain.ProductFilter{})
	assert.Equal(t, domain.OriginSnapshot, resp.Origin)
	assert.Empty(t, resp.Errors)
	assert.False(t, svc.RemoteEnabled())
}

func TestRemoteMisconfiguredIsRecorded(t *testing.T) {
	snap := &fakeSource{product: catalogue()}
	svc := newService(cache.NewMemoryStore(time.Minute), snap, WithRemoteUnavailable(nil))

	resp := svc.Products(context.Background(), domain.ProductFilter{})
	assert.Equal(t, domain.OriginSnapshot, resp.Origin)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "remote: "+remote.ErrUnavailable.Error(), resp.Errors[0])
}

func TestSingleLookupNotFoundIsSoftMiss(t *testing.T) {
	ctx := context.Background()
	rem := &fakeSource{users: map[string]domain.UserProfile{}}
	snap := &fakeSource{users: map[string]domain.UserProfile{"u1": {ID: "u1", Name: "Ava"}}}
	svc := newService(cache.NewMemoryStore(time.Minute), snap, WithRemote(rem))

	found := svc.User(ctx, "u1")
	require.NotNil(t, found.Data)
	assert.Equal(t, domain.OriginSnapshot, found.Origin)
	assert.Empty(t, found.Errors)

	missing := svc.User(ctx, "u2")
	assert.Nil(t, missing.Data)
	assert.Equal(t, domain.OriginDefault, missing.Origin)
	assert.Empty(t, missing.Errors)
}

func TestTribeBySlugFallsBackToSnapshot(t *testing.T) {
	rem := &fakeSource{err: errors.New("boom")}
	snap := &fakeSource{tribes: []domain.Tribe{{ID: "t1", Slug: "denim-devotees", Name: "Denim Devotees"}}}
	svc := newService(cache.NewMemoryStore(time.Minute), snap, WithRemote(rem))

	resp := svc.TribeBySlug(context.Background(), domain.TribeLookup{Slug: "denim-devotees"})
	require.NotNil(t, resp.Data)
	assert.Equal(t, "t1", resp.Data.ID)
	assert.Equal(t, []string{"remote: boom"}, resp.Errors)
}

func TestConcurrentMissesAreCollapsed(t *testing.T) {
	ctx := context.Background()
	rem := &fakeSource{product: catalogue(), gate: make(chan struct{})}
	svc := newService(cache.NewMemoryStore(time.Minute), nil, WithRemote(rem))

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Response[[]domain.Product], callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Products(ctx, domain.ProductFilter{Limit: 2})
		}(i)
	}

	// Give every caller time to join the in-flight resolution.
	time.Sleep(50 * time.Millisecond)
	close(rem.gate)
	wg.Wait()

	assert.Equal(t, 1, rem.Calls())
	for _, r := range results {
		assert.Len(t, r.Data, 2)
	}
}

func TestCancelledCallerDoesNotDegradeCache(t *testing.T) {
	rem := &fakeSource{product: catalogue(), gate: make(chan struct{})}
	snap := &fakeSource{product: catalogue()}
	svc := newService(cache.NewMemoryStore(time.Minute), snap, WithRemote(rem), WithDedupe(false))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	gone := svc.Products(ctx, domain.ProductFilter{})
	assert.Equal(t, domain.OriginDefault, gone.Origin)
	assert.Empty(t, gone.Errors, "cancellation is not a tier failure")
	assert.Equal(t, 0, snap.Calls(), "later tiers are skipped once the caller is gone")

	close(rem.gate)
	next := svc.Products(context.Background(), domain.ProductFilter{})
	assert.Equal(t, domain.OriginRemote, next.Origin)
	assert.False(t, next.Cached)
	assert.Empty(t, next.Errors)
	assert.Equal(t, 2, rem.Calls())
}

func TestSharedResolutionSurvivesLeaderCancellation(t *testing.T) {
	rem := &fakeSource{product: catalogue(), gate: make(chan struct{})}
	snap := &fakeSource{product: catalogue()}
	svc := newService(cache.NewMemoryStore(time.Minute), snap, WithRemote(rem))

	leaderCtx, cancel := context.WithCancel(context.Background())
	var leader, follower Response[[]domain.Product]
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		leader = svc.Products(leaderCtx, domain.ProductFilter{})
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		defer wg.Done()
		follower = svc.Products(context.Background(), domain.ProductFilter{})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(rem.gate)
	wg.Wait()

	assert.Equal(t, 1, rem.Calls())
	assert.Equal(t, 0, snap.Calls())
	for _, r := range []Response[[]domain.Product]{leader, follower} {
		assert.Equal(t, domain.OriginRemote, r.Origin)
		assert.Empty(t, r.Errors)
		assert.Len(t, r.Data, 3)
	}

	cached := svc.Products(context.Background(), domain.ProductFilter{})
	assert.True(t, cached.Cached)
	assert.Equal(t, domain.OriginRemote, cached.Origin)
}

func TestSharedResultsAreIndependent(t *testing.T) {
	rem := &fakeSource{product: catalogue(), gate: make(chan struct{})}
	svc := newService(cache.NewMemoryStore(time.Minute), nil, WithRemote(rem))

	results := make([]Response[[]domain.Product], 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Products(context.Background(), domain.ProductFilter{})
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(rem.gate)
	wg.Wait()

	require.Equal(t, 1, rem.Calls())
	require.Len(t, results[0].Data, 3)
	require.Len(t, results[1].Data, 3)
	results[0].Data[0].Title = "changed"
	assert.Equal(t, "Wrap Dress", results[1].Data[0].Title)
}

func TestDedupeDisabled(t *testing.T) {
	rem := &fakeSource{product: catalogue()}
	svc := newService(cache.NewMemoryStore(time.Minute), nil, WithRemote(rem), WithDedupe(false))

	resp := svc.Products(context.Background(), domain.ProductFilter{})
	assert.Equal(t, domain.OriginRemote, resp.Origin)
}

func TestCacheAdministration(t *testing.T) {
	ctx := context.Background()
	rem := &fakeSource{product: catalogue(), tribes: []domain.Tribe{{ID: "t1", Slug: "s"}}}
	svc := newService(cache.NewMemoryStore(time.Minute), nil, WithRemote(rem))

	svc.Products(ctx, domain.ProductFilter{})
	svc.Products(ctx, domain.ProductFilter{Limit: 1})
	svc.Tribes(ctx, domain.TribeFilter{})
	svc.TribeBySlug(ctx, domain.TribeLookup{Slug: "s"})

	stats, err := svc.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Entries)

	removed, err := svc.Invalidate(ctx, FamilyTribes)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "tribes_ must not match tribe_ keys")

	require.NoError(t, svc.ClearCache(ctx))
	stats, err = svc.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
}

// Five female and three male snapshot products, remote disabled.
func TestScenario_SnapshotFemaleProducts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id":"f1","title":"Wrap Dress","gender":"female"},
		{"id":"m1","title":"Chinos","gender":"male"},
		{"id":"f2","title":"Silk Blouse","gender":"female"},
		{"id":"f3","title":"Wide Trousers","gender":"female"},
		{"id":"m2","title":"Oxford Shirt","gender":"male"},
		{"id":"f4","title":"Ankle Boots","gender":"female"},
		{"id":"f5","title":"Trench Coat","gender":"female"},
		{"id":"m3","title":"Derby Shoes","gender":"male"}
	]`), 0o600))

	snap := snapshot.New(snapshot.Paths{Products: path}, "", logging.NewNop())
	svc := newService(cache.NewMemoryStore(5*time.Minute), snap)

	resp := svc.Products(context.Background(), domain.ProductFilter{Gender: domain.GenderFemale, Limit: 2})

	assert.Equal(t, domain.OriginSnapshot, resp.Origin)
	assert.False(t, resp.Cached)
	assert.Empty(t, resp.Errors)
	require.Len(t, resp.Data, 2)
	for _, p := range resp.Data {
		assert.Equal(t, domain.GenderFemale, p.Gender)
	}
}
