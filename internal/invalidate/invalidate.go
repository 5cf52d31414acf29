// Package invalidate purges cached families when rows change in the remote
// store, using Supabase realtime change feeds.
package invalidate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fitfi/service_layer/internal/fetch"
	"github.com/fitfi/service_layer/internal/logging"
	"github.com/fitfi/service_layer/internal/remote"
	"github.com/fitfi/service_layer/supabase/client"
)

// Watcher subscribes to row changes of a table.
type Watcher interface {
	WatchTable(ctx context.Context, schema, table string, handler client.ChangeHandler) error
}

// Target drops cache entries by family.
type Target interface {
	Invalidate(ctx context.Context, families ...string) (int, error)
}

// Routes maps a table name to the families cached from it.
type Routes map[string][]string

// DefaultRoutes maps the standard tables to their families.
func DefaultRoutes(t remote.Tables) Routes {
	return Routes{
		t.Products:     {fetch.FamilyProducts},
		t.Outfits:      {fetch.FamilyOutfits},
		t.Users:        {fetch.FamilyUser},
		t.Tribes:       {fetch.FamilyTribes, fetch.FamilyTribe},
		t.TribeMembers: {fetch.FamilyTribe},
		t.Challenges:   {fetch.FamilyChallenges, fetch.FamilyChallenge},
		t.Submissions:  {fetch.FamilySubmissions},
	}
}

// Subscriber wires change feeds to cache invalidation.
type Subscriber struct {
	watcher Watcher
	target  Target
	schema  string
	routes  Routes
	timeout time.Duration
	log     *logrus.Entry
}

// New creates a subscriber for the public schema.
func New(watcher Watcher, target Target, routes Routes, logger *logging.Logger) *Subscriber {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Subscriber{
		watcher: watcher,
		target:  target,
		schema:  "public",
		routes:  routes,
		timeout: 5 * time.Second,
		log:     logger.WithComponent("invalidate"),
	}
}

// Start subscribes to every routed table. It fails on the first table that
// cannot be watched.
func (s *Subscriber) Start(ctx context.Context) error {
	tables := make([]string, 0, len(s.routes))
	for table := range s.routes {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		if err := s.watcher.WatchTable(ctx, s.schema, table, s.Handle); err != nil {
			return fmt.Errorf("watch %s.%s: %w", s.schema, table, err)
		}
	}
	s.log.WithField("tables", tables).Info("Realtime invalidation started")
	return nil
}

// Handle purges the families routed from the event's table.
func (s *Subscriber) Handle(ev client.ChangeEvent) {
	families, ok := s.routes[ev.Table]
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.target.Invalidate(ctx, families...)
	entry := s.log.WithFields(logrus.Fields{
		"table":    ev.Table,
		"type":     ev.Type,
		"families": families,
	})
	if err != nil {
		entry.WithError(err).Warn("Cache invalidation failed")
		return
	}
	entry.WithField("removed", n).Debug("Cache invalidated")
}
