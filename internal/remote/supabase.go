package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fitfi/service_layer/supabase/client"
)

// SupabaseBackend talks to PostgREST through the Supabase client.
type SupabaseBackend struct {
	client *client.Client
}

// NewSupabaseBackend wraps a Supabase client.
func NewSupabaseBackend(c *client.Client) *SupabaseBackend {
	return &SupabaseBackend{client: c}
}

// Client exposes the underlying REST client.
func (b *SupabaseBackend) Client() *client.Client {
	return b.client
}

func (b *SupabaseBackend) Name() string { return "supabase" }

func (b *SupabaseBackend) Close() error { return nil }

func (b *SupabaseBackend) Select(ctx context.Context, q Query) ([]json.RawMessage, error) {
	columns := "*"
	if len(q.Columns) > 0 {
		columns = strings.Join(q.Columns, ",")
	}

	builder := b.client.From(q.Table).Select(columns)
	for _, f := range q.Eq {
		builder = builder.Eq(f.Column, f.Value)
	}
	for _, f := range q.Contains {
		builder = builder.Cs(f.Column, f.Value)
	}
	if q.OrderBy != "" {
		builder = builder.Order(q.OrderBy, !q.Desc)
	}
	builder = builder.Limit(q.Limit)
	if q.Single {
		builder = builder.Single()
	}

	resp, err := builder.Execute(ctx)
	if err != nil {
		if q.Single && errors.Is(err, client.ErrNotFound) {
			return nil, nil
		}
		return nil, classifySupabase(q.Table, err)
	}

	if q.Single {
		return []json.RawMessage{json.RawMessage(resp.Body)}, nil
	}

	var rows []json.RawMessage
	if err := resp.JSON(&rows); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrQueryFailed, q.Table, err)
	}
	return rows, nil
}

func (b *SupabaseBackend) Insert(ctx context.Context, table string, row any) error {
	if _, err := b.client.From(table).Insert(ctx, row); err != nil {
		return classifySupabase(table, err)
	}
	return nil
}

func (b *SupabaseBackend) Update(ctx context.Context, table, id string, set map[string]any) error {
	if _, err := b.client.From(table).Eq("id", id).Update(ctx, set); err != nil {
		return classifySupabase(table, err)
	}
	return nil
}

func classifySupabase(table string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, table, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrQueryFailed, table, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, table, err)
}
