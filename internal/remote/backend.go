// Package remote reads and writes entities in the primary store. Every call
// runs through the resilience policy; errors are classified as
// ErrUnavailable or ErrQueryFailed.
package remote

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	// ErrUnavailable means the store could not be reached or was never configured.
	ErrUnavailable = errors.New("remote unavailable")
	// ErrQueryFailed means the store answered with an error.
	ErrQueryFailed = errors.New("remote query failed")
)

// Filter is a column/value pair.
type Filter struct {
	Column string
	Value  string
}

// Query describes a read against one table.
type Query struct {
	Table    string
	Columns  []string
	Eq       []Filter
	Contains []Filter
	OrderBy  string
	Desc     bool
	Limit    int
	// Single expects at most one row; zero rows is not an error.
	Single bool
}

// Where appends an equality filter when value is non-empty.
func (q Query) Where(column, value string) Query {
	if value != "" {
		q.Eq = append(q.Eq, Filter{Column: column, Value: value})
	}
	return q
}

// Has appends an array-contains filter when value is non-empty.
func (q Query) Has(column, value string) Query {
	if value != "" {
		q.Contains = append(q.Contains, Filter{Column: column, Value: value})
	}
	return q
}

// Backend is a driver for the primary store.
type Backend interface {
	// Select returns matching rows as JSON objects.
	Select(ctx context.Context, q Query) ([]json.RawMessage, error)
	// Insert stores one row.
	Insert(ctx context.Context, table string, row any) error
	// Update sets columns on the row with the given id.
	Update(ctx context.Context, table, id string, set map[string]any) error
	// Name identifies the driver in logs.
	Name() string
	// Close releases resources.
	Close() error
}
