package catalog

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraledger/internal/apperr"
	"libraledger/internal/store"
	"libraledger/internal/store/storetest"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newTestService(t *testing.T) (Service, *store.DB) {
	t.Helper()
	db := storetest.Open(t)
	return NewService(db, slog.New(slog.NewTextHandler(io.Discard, nil))), db
}

func TestAddBookAndCopy(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	book, err := svc.AddBook(ctx, "978-0441013593", "Dune", "Frank Herbert")
	require.NoError(t, err)

	c, err := svc.AddCopy(ctx, book.ID, "12345", "A-1")
	require.NoError(t, err)
	assert.True(t, c.Available)

	details, err := svc.GetCopy(ctx, "12345")
	require.NoError(t, err)
	assert.Equal(t, "Dune", details.Title)
	assert.Equal(t, c.ID, details.ID)
	assert.Equal(t, "A-1", details.ShelfLocation)
}

func TestAddCopyFailures(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AddCopy(ctx, uuid.New(), "999", "")
	assert.ErrorIs(t, err, apperr.ErrBookNotFound)

	book, err := svc.AddBook(ctx, "1", "Emma", "Austen")
	require.NoError(t, err)
	_, err = svc.AddCopy(ctx, book.ID, "dup", "")
	require.NoError(t, err)

	_, err = svc.AddCopy(ctx, book.ID, "dup", "")
	assert.ErrorIs(t, err, apperr.ErrBarcodeTaken)

	_, err = svc.AddCopy(ctx, book.ID, "  ", "")
	assert.ErrorIs(t, err, apperr.ErrMalformedRequest)
}

func TestRepositoryAvailability(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	var repo Repository

	book, err := svc.AddBook(ctx, "1", "Emma", "Austen")
	require.NoError(t, err)
	c, err := svc.AddCopy(ctx, book.ID, "777", "")
	require.NoError(t, err)

	err = db.Update(ctx, func(ctx context.Context, s *store.Session) error {
		return repo.SetCopyAvailability(ctx, s, c.ID, false)
	})
	require.NoError(t, err)

	err = db.View(ctx, func(ctx context.Context, s *store.Session) error {
		got, err := repo.FindCopyByBarcode(ctx, s, "777", false)
		require.NoError(t, err)
		assert.False(t, got.Available)

		_, err = repo.FindCopyByBarcode(ctx, s, "nope", false)
		assert.ErrorIs(t, err, apperr.ErrCopyNotFound)
		return nil
	})
	require.NoError(t, err)

	err = db.Update(ctx, func(ctx context.Context, s *store.Session) error {
		return repo.SetCopyAvailability(ctx, s, uuid.New(), true)
	})
	assert.ErrorIs(t, err, apperr.ErrCopyNotFound)
}

func TestHandler(t *testing.T) {
	svc, _ := newTestService(t)
	r := chi.NewRouter()
	NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/books",
		bytes.NewBufferString(`{"isbn":"1","title":"Emma","author":"Austen"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var book Book
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &book))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/books/"+book.ID.String()+"/copies",
		bytes.NewBufferString(`{"barcode":"12345","shelf_location":"B-2"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/copies/12345", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Emma"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/copies/00000", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"copy_not_found"`)
}
