package remote

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitfi/service_layer/internal/domain"
	"github.com/fitfi/service_layer/internal/logging"
)

func newMockBackend(t *testing.T) (*PostgresBackend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresBackend(sqlx.NewDb(db, "postgres")), mock
}

func TestBuildSelect(t *testing.T) {
	q := Query{Table: "outfits", Limit: 5, OrderBy: "created_at", Desc: true}.
		Where("season", "spring").
		Has("tags", "streetstyle")

	sql, args := buildSelect(q)

	want := `SELECT row_to_json(t) FROM (SELECT * FROM "outfits" WHERE "season" = $1 AND $2 = ANY("tags") ORDER BY "created_at" DESC LIMIT 5) t`
	assert.Equal(t, want, sql)
	assert.Equal(t, []any{"spring", "streetstyle"}, args)
}

func TestBuildSelect_SingleForcesLimit(t *testing.T) {
	sql, _ := buildSelect(Query{Table: "users", Columns: []string{"id"}, Single: true}.Where("id", "u1"))
	assert.Equal(t, `SELECT row_to_json(t) FROM (SELECT "id" FROM "users" WHERE "id" = $1 LIMIT 1) t`, sql)
}

func TestPostgresBackend_ProductsThroughAdapter(t *testing.T) {
	backend, mock := newMockBackend(t)

	mock.ExpectQuery(`SELECT row_to_json(t) FROM (SELECT * FROM "products" WHERE "gender" = $1 LIMIT 2) t`).
		WithArgs("male").
		WillReturnRows(sqlmock.NewRows([]string{"row_to_json"}).
			AddRow(`{"id":"p6","title":"Chinos","gender":"male"}`).
			AddRow(`{"id":"p7","title":"Oxford","gender":"male"}`))

	adapter := NewAdapter(backend, DefaultTables(), fastPolicy(), logging.NewNop())
	products, err := adapter.Products(context.Background(), domain.ProductFilter{Gender: "male", Limit: 2})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Oxford", products[1].Title)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresBackend_SingleMissIsNil(t *testing.T) {
	backend, mock := newMockBackend(t)

	mock.ExpectQuery(`SELECT row_to_json(t) FROM (SELECT * FROM "tribe_challenges" WHERE "id" = $1 LIMIT 1) t`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"row_to_json"}))

	adapter := NewAdapter(backend, DefaultTables(), fastPolicy(), logging.NewNop())
	challenge, err := adapter.Challenge(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, challenge)
}

func TestPostgresBackend_Insert(t *testing.T) {
	backend, mock := newMockBackend(t)

	cols := `"created_at", "id", "reward_points", "status", "title", "tribe_id", "winner_reward_points"`
	mock.ExpectExec(`INSERT INTO "tribe_challenges" (` + cols + `) SELECT ` + cols +
		` FROM json_populate_record(NULL::"tribe_challenges", $1)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := backend.Insert(context.Background(), "tribe_challenges", domain.TribeChallenge{ID: "c1", Title: "Denim week", TribeID: "t1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildInsert_OmitsAbsentColumns(t *testing.T) {
	query, err := buildInsert("tribe_challenges", []byte(`{"id":"c1","title":"Denim week","rules":null}`))
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "tribe_challenges" ("id", "title") SELECT "id", "title" FROM json_populate_record(NULL::"tribe_challenges", $1)`, query)
	assert.NotContains(t, query, `"rules"`)
	assert.NotContains(t, query, `"tags"`)

	_, err = buildInsert("tribe_challenges", []byte(`{}`))
	assert.Error(t, err)
}

func TestPostgresBackend_Update(t *testing.T) {
	backend, mock := newMockBackend(t)

	mock.ExpectExec(`UPDATE "tribe_challenges" SET "status" = $1 WHERE id = $2`).
		WithArgs("closed", "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "tribe_challenges" SET "status" = $1 WHERE id = $2`).
		WithArgs("closed", "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, backend.Update(ctx, "tribe_challenges", "c1", map[string]any{"status": "closed"}))

	err := backend.Update(ctx, "tribe_challenges", "missing", map[string]any{"status": "closed"})
	assert.True(t, errors.Is(err, ErrQueryFailed))
}

func TestClassifyPostgres(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"syntax", &pq.Error{Code: "42601"}, ErrQueryFailed},
		{"connection", &pq.Error{Code: "08006"}, ErrUnavailable},
		{"shutdown", &pq.Error{Code: "57P01"}, ErrUnavailable},
		{"network", errors.New("dial tcp: connection refused"), ErrUnavailable},
		{"cancelled", context.Canceled, context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyPostgres("products", tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyPostgres() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 6; i++ {
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	b := NewPostgresBackend(sqlx.NewDb(db, "postgres"))
	require.NoError(t, b.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
