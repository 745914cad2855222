package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraledger/internal/store"
	"libraledger/internal/store/storetest"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		unique    bool
		retryable bool
	}{
		{"pq unique", &pq.Error{Code: "23505"}, true, false},
		{"pgconn unique", &pgconn.PgError{Code: "23505"}, true, false},
		{"pq serialization", &pq.Error{Code: "40001"}, false, true},
		{"pgconn deadlock", fmt.Errorf("insert loan: %w", &pgconn.PgError{Code: "40P01"}), false, true},
		{"sqlite unique", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}, true, false},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, false, true},
		{"plain", errors.New("boom"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.unique, store.IsUniqueViolation(tt.err))
			assert.Equal(t, tt.retryable, store.IsRetryable(tt.err))
		})
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := store.Open(context.Background(), "mysql", "whatever")
	assert.ErrorIs(t, err, store.ErrUnsupportedDriver)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := storetest.Open(t)
	require.NoError(t, db.Migrate(context.Background()))

	var codes []string
	err := db.View(context.Background(), func(ctx context.Context, s *store.Session) error {
		return s.Select(ctx, &codes, s.From("fine_types").Select("code").Order(goqu.C("id").Asc()))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"overdue", "damage", "lost"}, codes)
}

func TestUpdateRollsBackOnError(t *testing.T) {
	db := storetest.Open(t)
	ctx := context.Background()
	id := uuid.New()
	failure := errors.New("abort")

	err := db.Update(ctx, func(ctx context.Context, s *store.Session) error {
		_, err := s.Exec(ctx, s.Insert("books").Rows(goqu.Record{
			"id": id, "isbn": "978-0", "title": "Dune", "author": "Herbert", "created_at": time.Now().UTC(),
		}))
		require.NoError(t, err)
		return failure
	})
	assert.ErrorIs(t, err, failure)

	var count int
	err = db.View(ctx, func(ctx context.Context, s *store.Session) error {
		return s.Get(ctx, &count, s.From("books").Select(goqu.COUNT("*")).Where(goqu.C("id").Eq(id)))
	})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOneOpenLoanPerCopyIndex(t *testing.T) {
	db := storetest.Open(t)
	ctx := context.Background()
	now := time.Now().UTC()
	member, book, copyID := uuid.New(), uuid.New(), uuid.New()

	seed := func(ctx context.Context, s *store.Session) error {
		stmts := []*goqu.InsertDataset{
			s.Insert("members").Rows(goqu.Record{"id": member, "email": member.String() + "@example.org", "name": "M", "created_at": now}),
			s.Insert("books").Rows(goqu.Record{"id": book, "isbn": "1", "title": "T", "author": "A", "created_at": now}),
			s.Insert("book_copies").Rows(goqu.Record{"id": copyID, "book_id": book, "barcode": copyID.String()}),
		}
		for _, stmt := range stmts {
			if _, err := s.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	}
	require.NoError(t, db.Update(ctx, seed))

	openLoan := func(ctx context.Context, s *store.Session) error {
		_, err := s.Exec(ctx, s.Insert("loans").Rows(goqu.Record{
			"id": uuid.New(), "member_id": member, "book_copy_id": copyID,
			"loan_date": now, "expected_return_date": now.AddDate(0, 0, 15),
		}))
		return err
	}
	require.NoError(t, db.Update(ctx, openLoan))

	err := db.Update(ctx, openLoan)
	require.Error(t, err)
	assert.True(t, store.IsUniqueViolation(err))
}
