package records

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSelect(t *testing.T) {
	q := Query{
		Table: TableDonations,
		Filters: []Filter{
			Where("status", "paid"),
			{Column: "amount_cents", Op: Gte, Value: int64(10000)},
		},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   5,
	}

	sqlText, args, err := buildSelect(Postgres, q)
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, tier, amount_cents, email, status, checkout_id, created_at, paid_at FROM donations WHERE status = $1 AND amount_cents >= $2 ORDER BY created_at DESC LIMIT 5", sqlText)
	assert.Equal(t, []any{"paid", int64(10000)}, args)

	sqlText, _, err = buildSelect(SQLite, q)
	require.NoError(t, err)
	assert.Contains(t, sqlText, "WHERE status = ? AND amount_cents >= ?")
}

func TestBuildRejectsUnknownIdentifiers(t *testing.T) {
	_, _, err := buildSelect(Postgres, Query{Table: "users"})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, _, err = buildSelect(Postgres, Query{Table: TableDonations, Filters: []Filter{Where("1=1; --", 1)}})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, _, err = buildSelect(Postgres, Query{Table: TableDonations, Filters: []Filter{{Column: "status", Op: "LIKE", Value: "%"}}})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, _, err = buildSelect(Postgres, Query{Table: TableDonations, OrderBy: "random()"})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, _, err = buildUpdate(Postgres, TableDonations, nil, Record{"status": "paid"})
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, _, err = buildDelete(Postgres, TableDonations, nil)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, _, err = buildInsert(Postgres, TableDonations, Record{"nope": 1})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestSQLStore_InsertAndUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewSQLStore(db, Postgres)
	ctx := context.Background()
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO donations (amount_cents, id, status) VALUES ($1, $2, $3)")).
		WithArgs(int64(2500), "don_1", "pending").
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, s.Insert(ctx, TableDonations, Record{"id": "don_1", "amount_cents": int64(2500), "status": "pending"}))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE donations SET paid_at = $1, status = $2 WHERE checkout_id = $3")).
		WithArgs(now, "paid", "cs_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	n, err := s.Update(ctx, TableDonations, []Filter{Where("checkout_id", "cs_1")}, Record{"status": "paid", "paid_at": now})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_SelectCountDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewSQLStore(db, Postgres)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "session_id", "artifact_key", "receipts", "sha256", "created_at"}).
		AddRow("exp_1", "ses_a", "exports/ses_a.tar.gz", int64(3), []byte("abc"), time.Unix(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, session_id, artifact_key, receipts, sha256, created_at FROM evidence_exports WHERE session_id = $1")).
		WithArgs("ses_a").
		WillReturnRows(rows)

	got, err := s.Select(ctx, Query{Table: TableEvidenceExports, Filters: []Filter{Where("session_id", "ses_a")}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].String("sha256"))
	assert.Equal(t, int64(3), got[0].Int("receipts"))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM donations WHERE created_at < $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(7)))
	n, err := s.Count(ctx, TableDonations, []Filter{{Column: "created_at", Op: Lt, Value: time.Now()}})
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM donations WHERE status = $1")).
		WithArgs("abandoned").
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err = s.Delete(ctx, TableDonations, []Filter{Where("status", "abandoned")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mock.ExpectQuery(regexp.QuoteMeta("FROM donations WHERE id = $1 LIMIT 1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = s.Get(ctx, TableDonations, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRoundTrip(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "sita.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	for i, amount := range []int64{2500, 10000, 50000} {
		require.NoError(t, s.Insert(ctx, TableDonations, Record{
			"id":           []string{"don_a", "don_b", "don_c"}[i],
			"tier":         "backer",
			"amount_cents": amount,
			"email":        "donor@example.com",
			"status":       "pending",
			"checkout_id":  []string{"cs_a", "cs_b", "cs_c"}[i],
			"created_at":   time.Date(2026, 1, 15, 9, 30, i, 0, time.UTC),
		}))
	}

	n, err := s.Update(ctx, TableDonations, []Filter{Where("checkout_id", "cs_b")}, Record{"status": "paid"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rec, err := s.Get(ctx, TableDonations, "don_b")
	require.NoError(t, err)
	assert.Equal(t, "paid", rec.String("status"))
	assert.Equal(t, int64(10000), rec.Int("amount_cents"))

	big, err := s.Select(ctx, Query{
		Table:   TableDonations,
		Filters: []Filter{{Column: "amount_cents", Op: Gt, Value: int64(5000)}},
		OrderBy: "amount_cents",
		Desc:    true,
	})
	require.NoError(t, err)
	require.Len(t, big, 2)
	assert.Equal(t, "don_c", big[0].String("id"))

	count, err := s.Count(ctx, TableDonations, []Filter{Where("status", "pending")})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	removed, err := s.Delete(ctx, TableDonations, []Filter{Where("id", "don_a")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = s.Get(ctx, TableDonations, "don_a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenSQLiteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sita.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
