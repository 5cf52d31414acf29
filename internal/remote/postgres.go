package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fitfi/service_layer/internal/remote/migrations"
)

// PostgresBackend reads the same tables directly over SQL. Rows are
// converted to JSON in the database so decoding matches the REST backend.
type PostgresBackend struct {
	db *sqlx.DB
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresBackend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: database url not configured", ErrUnavailable)
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrUnavailable, err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	return NewPostgresBackend(db), nil
}

// NewPostgresBackend wraps an open handle.
func NewPostgresBackend(db *sqlx.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) Close() error { return b.db.Close() }

// Migrate applies the bundled schema. It is safe to run on every start.
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	if err := migrations.Apply(ctx, b.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Select(ctx context.Context, q Query) ([]json.RawMessage, error) {
	query, args := buildSelect(q)

	var rows []string
	if err := b.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classifyPostgres(q.Table, err)
	}

	out := make([]json.RawMessage, len(rows))
	for i, r := range rows {
		out[i] = json.RawMessage(r)
	}
	return out, nil
}

func (b *PostgresBackend) Insert(ctx context.Context, table string, row any) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("%w: encode %s row: %v", ErrQueryFailed, table, err)
	}
	query, err := buildInsert(table, payload)
	if err != nil {
		return fmt.Errorf("%w: encode %s row: %v", ErrQueryFailed, table, err)
	}
	if _, err := b.db.ExecContext(ctx, query, string(payload)); err != nil {
		return classifyPostgres(table, err)
	}
	return nil
}

// buildInsert names only the columns present and non-null in payload so
// column defaults apply to the rest.
func buildInsert(table string, payload []byte) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return "", err
	}
	columns := make([]string, 0, len(fields))
	for col, v := range fields {
		if string(v) == "null" {
			continue
		}
		columns = append(columns, pq.QuoteIdentifier(col))
	}
	if len(columns) == 0 {
		return "", errors.New("no columns")
	}
	sort.Strings(columns)

	ident := pq.QuoteIdentifier(table)
	list := strings.Join(columns, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM json_populate_record(NULL::%s, $1)",
		ident, list, list, ident), nil
}

func (b *PostgresBackend) Update(ctx context.Context, table, id string, set map[string]any) error {
	if len(set) == 0 {
		return nil
	}
	columns := make([]string, 0, len(set))
	for col := range set {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	assignments := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, col := range columns {
		assignments[i] = fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), i+1)
		args = append(args, set[col])
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d",
		pq.QuoteIdentifier(table), strings.Join(assignments, ", "), len(args))

	res, err := b.db.ExecContext(ctx, query, args...)
	if err != nil {
		return classifyPostgres(table, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s: no row with id %s", ErrQueryFailed, table, id)
	}
	return nil
}

// buildSelect renders q as
//
//	SELECT row_to_json(t) FROM (SELECT cols FROM table WHERE ... LIMIT n) t
func buildSelect(q Query) (string, []any) {
	columns := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			quoted[i] = pq.QuoteIdentifier(c)
		}
		columns = strings.Join(quoted, ", ")
	}

	var (
		where []string
		args  []any
	)
	for _, f := range q.Eq {
		args = append(args, f.Value)
		where = append(where, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(f.Column), len(args)))
	}
	for _, f := range q.Contains {
		args = append(args, f.Value)
		where = append(where, fmt.Sprintf("$%d = ANY(%s)", len(args), pq.QuoteIdentifier(f.Column)))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", columns, pq.QuoteIdentifier(q.Table))
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY %s %s", pq.QuoteIdentifier(q.OrderBy), dir)
	}
	limit := q.Limit
	if q.Single {
		limit = 1
	}
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}

	return "SELECT row_to_json(t) FROM (" + sb.String() + ") t", args
}

func classifyPostgres(table string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 is connection exception, 57P is operator intervention.
		if pqErr.Code.Class() == "08" || strings.HasPrefix(string(pqErr.Code), "57P") {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, table, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrQueryFailed, table, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, table, err)
}
