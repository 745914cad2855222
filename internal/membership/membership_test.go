package membership

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraledger/internal/apperr"
	"libraledger/internal/store"
	"libraledger/internal/store/storetest"
)

func newTestService(t *testing.T, loginsPerMinute int) (Service, *store.DB) {
	t.Helper()
	db := storetest.Open(t)
	return NewService(db, slog.New(slog.NewTextHandler(io.Discard, nil)), loginsPerMinute), db
}

func TestPasswordHashing(t *testing.T) {
	hash, salt, err := hashPassword("correct horse")
	require.NoError(t, err)

	ok, err := verifyPassword("correct horse", salt, hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifyPassword("battery staple", salt, hash)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = verifyPassword("x", "%%%", hash)
	assert.Error(t, err)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc, _ := newTestService(t, 5)
	ctx := context.Background()

	member, err := svc.RegisterMember(ctx, " Ada@Example.org ", "Ada", "analytical")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.org", member.Email)
	assert.Equal(t, StatusActive, member.Status)

	got, err := svc.Authenticate(ctx, "ada@example.org", "analytical")
	require.NoError(t, err)
	assert.Equal(t, member.ID, got.ID)

	_, err = svc.Authenticate(ctx, "ada@example.org", "wrong-password")
	assert.ErrorIs(t, err, apperr.ErrInvalidLogin)

	_, err = svc.Authenticate(ctx, "nobody@example.org", "analytical")
	assert.ErrorIs(t, err, apperr.ErrInvalidLogin)

	_, err = svc.RegisterMember(ctx, "ada@example.org", "Other", "analytical")
	assert.ErrorIs(t, err, apperr.ErrEmailTaken)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t, 5)
	ctx := context.Background()

	tests := []struct {
		name, email, member, password string
	}{
		{"bad email", "not-an-email", "A", "longenough"},
		{"missing name", "a@example.org", " ", "longenough"},
		{"short password", "a@example.org", "A", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RegisterMember(ctx, tt.email, tt.member, tt.password)
			assert.ErrorIs(t, err, apperr.ErrMalformedRequest)
		})
	}
}

func TestAuthenticateIsRateLimited(t *testing.T) {
	svc, _ := newTestService(t, 2)
	ctx := context.Background()

	_, err := svc.RegisterMember(ctx, "grace@example.org", "Grace", "compilers")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = svc.Authenticate(ctx, "grace@example.org", "wrong-guess")
		assert.ErrorIs(t, err, apperr.ErrInvalidLogin)
	}

	_, err = svc.Authenticate(ctx, "grace@example.org", "compilers")
	assert.ErrorIs(t, err, apperr.ErrRateLimited)
}

func TestRepositoryQueries(t *testing.T) {
	svc, db := newTestService(t, 5)
	ctx := context.Background()
	var repo Repository

	member, err := svc.RegisterMember(ctx, "alan@example.org", "Alan", "enigma-machine")
	require.NoError(t, err)

	err = db.View(ctx, func(ctx context.Context, s *store.Session) error {
		require.NoError(t, repo.MemberExists(ctx, s, member.ID))
		assert.ErrorIs(t, repo.MemberExists(ctx, s, uuid.New()), apperr.ErrMemberNotFound)

		n, err := repo.ActiveLoanCount(ctx, s, member.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdateMember(t *testing.T) {
	svc, _ := newTestService(t, 5)
	ctx := context.Background()

	member, err := svc.RegisterMember(ctx, "ken@example.org", "Ken", "unix-forever")
	require.NoError(t, err)

	updated, err := svc.UpdateMember(ctx, member.ID, StatusSuspended, 2)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, updated.Status)

	got, err := svc.GetMember(ctx, member.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, got.Status)
	assert.Equal(t, 2, got.MaxCheckouts)

	_, err = svc.UpdateMember(ctx, member.ID, "banned", 0)
	assert.ErrorIs(t, err, apperr.ErrMalformedRequest)

	_, err = svc.UpdateMember(ctx, uuid.New(), StatusActive, 0)
	assert.ErrorIs(t, err, apperr.ErrMemberNotFound)
}

func TestHandler(t *testing.T) {
	svc, _ := newTestService(t, 5)
	r := chi.NewRouter()
	NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Routes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/members",
		bytes.NewBufferString(`{"email":"liskov@example.org","name":"Barbara","password":"substitution"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login",
		bytes.NewBufferString(`{"email":"liskov@example.org","password":"nope-nope"}`)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/members/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
