package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraledger/internal/audit"
	"libraledger/internal/config"
	"libraledger/internal/store/storetest"
)

func testConfig() config.Config {
	return config.Config{
		HTTPAddr:           "127.0.0.1:0",
		RequestTimeout:     5 * time.Second,
		Loans:              config.Loans{DefaultDays: 15, MaxDays: 365, MaxActive: 5},
		Fines:              config.Fines{OverdueFineType: "overdue"},
		LoginRatePerMinute: 5,
	}
}

func TestHealthAndAudit(t *testing.T) {
	if os.Getenv("TEST_DATABASE_URL") != "" {
		t.Skip("audit counts span the whole database")
	}
	db := storetest.Open(t)
	srv, err := New(testConfig(), db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/audit")
	require.NoError(t, err)
	var report audit.Report
	require.NoError(t, jsoniter.NewDecoder(resp.Body).Decode(&report))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, report.Healthy)

	// an open loan on a copy still flagged available
	member := storetest.SeedMember(t, db)
	copyID := storetest.SeedCopy(t, db, "Emma", "e1")
	now := time.Now()
	storetest.SeedLoan(t, db, member, copyID, now, now.AddDate(0, 0, 15), nil)

	resp, err = http.Get(ts.URL + "/audit")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRoutesAreMounted(t *testing.T) {
	db := storetest.Open(t)
	srv, err := New(testConfig(), db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	for _, path := range []string{"/fine-types", "/copies/unknown", "/members/not-a-uuid"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.NotEqual(t, http.StatusMethodNotAllowed, rec.Code, path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"), path)
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	db := storetest.Open(t)
	srv, err := New(testConfig(), db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
