// internal/store/storetest/seed.go
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"libraledger/internal/store"
)

// SeedMember inserts an active member without credentials.
func SeedMember(t testing.TB, db *store.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	exec(t, db, func(s *store.Session) *goqu.InsertDataset {
		return s.Insert("members").Rows(goqu.Record{
			"id":         id,
			"email":      id.String() + "@example.org",
			"name":       "Member " + id.String()[:8],
			"status":     "active",
			"created_at": time.Now().UTC(),
		})
	})
	return id
}

// SeedCopy inserts a book titled title with one available copy and
// returns the copy id.
func SeedCopy(t testing.TB, db *store.DB, title, barcode string) uuid.UUID {
	t.Helper()
	bookID, copyID := uuid.New(), uuid.New()
	exec(t, db, func(s *store.Session) *goqu.InsertDataset {
		return s.Insert("books").Rows(goqu.Record{
			"id": bookID, "isbn": "", "title": title, "author": "Anonymous", "created_at": time.Now().UTC(),
		})
	})
	exec(t, db, func(s *store.Session) *goqu.InsertDataset {
		return s.Insert("book_copies").Rows(goqu.Record{
			"id": copyID, "book_id": bookID, "barcode": barcode, "available": true, "shelf_location": "",
		})
	})
	return copyID
}

// SeedLoan inserts a loan row as is; returnedAt may be nil.
func SeedLoan(t testing.TB, db *store.DB, memberID, copyID uuid.UUID, loanDate, due time.Time, returnedAt *time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	exec(t, db, func(s *store.Session) *goqu.InsertDataset {
		return s.Insert("loans").Rows(goqu.Record{
			"id":                   id,
			"member_id":            memberID,
			"book_copy_id":         copyID,
			"loan_date":            loanDate.UTC(),
			"expected_return_date": due.UTC(),
			"actual_return_date":   returnedAt,
		})
	})
	return id
}

func exec(t testing.TB, db *store.DB, build func(s *store.Session) *goqu.InsertDataset) {
	t.Helper()
	err := db.Update(context.Background(), func(ctx context.Context, s *store.Session) error {
		_, err := s.Exec(ctx, build(s))
		return err
	})
	require.NoError(t, err)
}
