package invalidate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitfi/service_layer/internal/fetch"
	"github.com/fitfi/service_layer/internal/remote"
	"github.com/fitfi/service_layer/supabase/client"
)

type fakeWatcher struct {
	handlers map[string]client.ChangeHandler
	failOn   string
}

func (w *fakeWatcher) WatchTable(_ context.Context, schema, table string, h client.ChangeHandler) error {
	if table == w.failOn {
		return errors.New("join refused")
	}
	if w.handlers == nil {
		w.handlers = make(map[string]client.ChangeHandler)
	}
	w.handlers[schema+"."+table] = h
	return nil
}

type fakeTarget struct {
	calls [][]string
}

func (t *fakeTarget) Invalidate(_ context.Context, families ...string) (int, error) {
	t.calls = append(t.calls, families)
	return len(families), nil
}

func TestSubscriber_RoutesChanges(t *testing.T) {
	watcher := &fakeWatcher{}
	target := &fakeTarget{}
	tables := remote.DefaultTables()
	sub := New(watcher, target, DefaultRoutes(tables), nil)

	require.NoError(t, sub.Start(context.Background()))
	assert.Len(t, watcher.handlers, 7)

	watcher.handlers["public."+tables.Challenges](client.ChangeEvent{Table: tables.Challenges, Type: "UPDATE"})
	require.Len(t, target.calls, 1)
	assert.Equal(t, []string{fetch.FamilyChallenges, fetch.FamilyChallenge}, target.calls[0])
}

func TestSubscriber_IgnoresUnknownTable(t *testing.T) {
	target := &fakeTarget{}
	sub := New(&fakeWatcher{}, target, DefaultRoutes(remote.DefaultTables()), nil)

	sub.Handle(client.ChangeEvent{Table: "audit_log", Type: "INSERT"})
	assert.Empty(t, target.calls)
}

func TestSubscriber_StartFails(t *testing.T) {
	tables := remote.DefaultTables()
	sub := New(&fakeWatcher{failOn: tables.Outfits}, &fakeTarget{}, DefaultRoutes(tables), nil)

	err := sub.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "public.outfits")
}
