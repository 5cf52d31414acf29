package warmup

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitfi/service_layer/internal/domain"
	"github.com/fitfi/service_layer/internal/fetch"
)

type fakeLoader struct {
	runs int32
}

func (l *fakeLoader) Products(context.Context, domain.ProductFilter) fetch.Response[[]domain.Product] {
	atomic.AddInt32(&l.runs, 1)
	return fetch.Response[[]domain.Product]{Data: []domain.Product{{ID: "p1"}, {ID: "p2"}}, Origin: domain.OriginSnapshot}
}

func (l *fakeLoader) Outfits(context.Context, domain.OutfitFilter) fetch.Response[[]domain.Outfit] {
	return fetch.Response[[]domain.Outfit]{Data: []domain.Outfit{}, Origin: domain.OriginDefault, Errors: []string{"snapshot: missing"}}
}

func (l *fakeLoader) Tribes(context.Context, domain.TribeFilter) fetch.Response[[]domain.Tribe] {
	return fetch.Response[[]domain.Tribe]{Data: []domain.Tribe{{ID: "t1"}}, Origin: domain.OriginRemote, Cached: true}
}

func TestRun(t *testing.T) {
	w := New(&fakeLoader{}, time.Second, nil)

	results := w.Run(context.Background())
	require.Len(t, results, 3)

	assert.Equal(t, Result{Family: fetch.FamilyProducts, Count: 2, Origin: domain.OriginSnapshot}, results[0])
	assert.Equal(t, domain.OriginDefault, results[1].Origin)
	assert.NotEmpty(t, results[1].Errors)
	assert.True(t, results[2].Cached)
	assert.False(t, w.LastRun().IsZero())
}

func TestStart_InvalidSchedule(t *testing.T) {
	w := New(&fakeLoader{}, time.Second, nil)
	err := w.Start(context.Background(), "every now and then")
	assert.Error(t, err)
}

func TestStart_RunsOnSchedule(t *testing.T) {
	loader := &fakeLoader{}
	w := New(loader, time.Second, nil)

	require.NoError(t, w.Start(context.Background(), "@every 1s"))
	assert.Error(t, w.Start(context.Background(), "@every 1s"), "double start")

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&loader.runs) > 0 }, 3*time.Second, 50*time.Millisecond)
	w.Stop()
	w.Stop()
}
