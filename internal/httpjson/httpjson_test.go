package httpjson

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraledger/internal/apperr"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.ErrCopyNotFound, http.StatusNotFound},
		{apperr.ErrCopyUnavailable, http.StatusConflict},
		{fmt.Errorf("borrow: %w", apperr.ErrOutstandingFine), http.StatusForbidden},
		{apperr.ErrInvalidLoanDays, http.StatusUnprocessableEntity},
		{apperr.ErrMultipleOpen, http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestErrorBody(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("domain failure", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Error(rec, httptest.NewRequest(http.MethodPost, "/loans", nil), logger, apperr.ErrOutstandingFine)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"error":{"code":"outstanding_fine","message":"cannot borrow: outstanding fine"}}`, rec.Body.String())
	})

	t.Run("occurrence detail stays out of the body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		err := fmt.Errorf("pay: %w", apperr.ErrFineSettled.WithDetail("status %s", "paid"))
		Error(rec, httptest.NewRequest(http.MethodPost, "/members/x/fines/y/pay", nil), logger, err)

		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.JSONEq(t, `{"error":{"code":"fine_settled","message":"fine is already settled"}}`, rec.Body.String())

		rec = httptest.NewRecorder()
		Error(rec, httptest.NewRequest(http.MethodGet, "/copies/nope", nil), logger, apperr.ErrCopyNotFound.WithDetail("%q", "nope"))
		assert.JSONEq(t, `{"error":{"code":"copy_not_found","message":"no book copy with that barcode"}}`, rec.Body.String())
	})

	t.Run("storage failure hides detail", func(t *testing.T) {
		rec := httptest.NewRecorder()
		Error(rec, httptest.NewRequest(http.MethodPost, "/loans", nil), logger, errors.New("pq: password authentication failed"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "password")
	})
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	var v struct {
		Barcode string `json:"barcode"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"barcode":"1","extra":true}`))

	err := Decode(req, &v)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrMalformedRequest)
}

func TestParams(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/members/{memberID}", func(w http.ResponseWriter, r *http.Request) {
		if _, err := UUIDParam(r, "memberID"); err != nil {
			Error(w, r, slog.Default(), err)
			return
		}
		page, err := IntQuery(r, "page")
		if err != nil {
			Error(w, r, slog.Default(), err)
			return
		}
		Write(w, http.StatusOK, map[string]int{"page": page})
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/members/not-a-uuid", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/members/5f0c5b9e-8a57-4c43-9f5c-0d6a4c1f2e11?page=x", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/members/5f0c5b9e-8a57-4c43-9f5c-0d6a4c1f2e11?page=2", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"page":2}`, rec.Body.String())
}
