// Package warmup preloads the default listings into the cache on a cron
// schedule so the first reader after expiry does not pay for the fetch.
package warmup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/fitfi/service_layer/internal/domain"
	"github.com/fitfi/service_layer/internal/fetch"
	"github.com/fitfi/service_layer/internal/logging"
)

// Loader reads the listings that are warmed. *fetch.Service satisfies it.
type Loader interface {
	Products(ctx context.Context, f domain.ProductFilter) fetch.Response[[]domain.Product]
	Outfits(ctx context.Context, f domain.OutfitFilter) fetch.Response[[]domain.Outfit]
	Tribes(ctx context.Context, f domain.TribeFilter) fetch.Response[[]domain.Tribe]
}

// Result summarises one warm run per family.
type Result struct {
	Family string        `json:"family"`
	Count  int           `json:"count"`
	Origin domain.Origin `json:"origin"`
	Cached bool          `json:"cached"`
	Errors []string      `json:"errors,omitempty"`
}

// Warmer runs cache preloads.
type Warmer struct {
	loader  Loader
	timeout time.Duration
	log     *logrus.Entry

	mu      sync.Mutex
	cron    *cron.Cron
	lastRun time.Time
}

// New creates a warmer. Each run is bounded by timeout.
func New(loader Loader, timeout time.Duration, logger *logging.Logger) *Warmer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Warmer{
		loader:  loader,
		timeout: timeout,
		log:     logger.WithComponent("warmup"),
	}
}

// Run preloads products, outfits and tribes with their default filters.
func (w *Warmer) Run(ctx context.Context) []Result {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	products := w.loader.Products(ctx, domain.ProductFilter{})
	outfits := w.loader.Outfits(ctx, domain.OutfitFilter{})
	tribes := w.loader.Tribes(ctx, domain.TribeFilter{})

	results := []Result{
		{Family: fetch.FamilyProducts, Count: len(products.Data), Origin: products.Origin, Cached: products.Cached, Errors: products.Errors},
		{Family: fetch.FamilyOutfits, Count: len(outfits.Data), Origin: outfits.Origin, Cached: outfits.Cached, Errors: outfits.Errors},
		{Family: fetch.FamilyTribes, Count: len(tribes.Data), Origin: tribes.Origin, Cached: tribes.Cached, Errors: tribes.Errors},
	}

	w.mu.Lock()
	w.lastRun = time.Now()
	w.mu.Unlock()

	for _, r := range results {
		entry := w.log.WithFields(logrus.Fields{
			"family": r.Family,
			"count":  r.Count,
			"origin": r.Origin,
			"cached": r.Cached,
		})
		if len(r.Errors) > 0 {
			entry.WithField("errors", r.Errors).Warn("Warmup degraded")
			continue
		}
		entry.Debug("Warmup loaded")
	}
	return results
}

// LastRun returns when Run last completed.
func (w *Warmer) LastRun() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastRun
}

// Start schedules Run using a standard cron expression or descriptor such
// as "@every 4m". It returns an error for an invalid schedule or when the
// warmer is already running.
func (w *Warmer) Start(ctx context.Context, schedule string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cron != nil {
		return fmt.Errorf("warmup already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { w.Run(ctx) }); err != nil {
		return fmt.Errorf("invalid warmup schedule %q: %w", schedule, err)
	}
	c.Start()
	w.cron = c

	w.log.WithField("schedule", schedule).Info("Cache warmup scheduled")
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (w *Warmer) Stop() {
	w.mu.Lock()
	c := w.cron
	w.cron = nil
	w.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
}
