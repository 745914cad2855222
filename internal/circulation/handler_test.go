package circulation_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraledger/internal/circulation"
	"libraledger/internal/fines"
	"libraledger/internal/httpjson"
	"libraledger/internal/store/storetest"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	circulation.NewHandler(f.svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var body httpjson.ErrorBody
	require.NoError(t, json.Unmarshal(raw, &body), string(raw))
	return body.Error.Code
}

func TestBorrowAndReturnOverHTTP(t *testing.T) {
	f := newFixture(t, options{})
	srv := newServer(t, f)
	member := storetest.SeedMember(t, f.db)
	storetest.SeedCopy(t, f.db, "Dune", "12345")

	resp, raw := do(t, http.MethodPost, srv.URL+"/loans",
		`{"member_id":"`+member.String()+`","barcode":"12345"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var receipt circulation.Receipt
	require.NoError(t, json.Unmarshal(raw, &receipt))
	assert.Equal(t, "Dune", receipt.BookTitle)
	assert.Equal(t, member, receipt.Loan.MemberID)

	resp, raw = do(t, http.MethodPost, srv.URL+"/loans",
		`{"member_id":"`+storetest.SeedMember(t, f.db).String()+`","barcode":"12345"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "copy_unavailable", errorCode(t, raw))

	f.now = day0.AddDate(0, 0, 17)
	resp, raw = do(t, http.MethodPost, srv.URL+"/returns",
		`{"member_id":"`+member.String()+`","barcode":"12345"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var summary circulation.ReturnSummary
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.True(t, summary.Late)
	assert.Equal(t, 2, summary.OverdueDays)
	require.NotNil(t, summary.Fine)
	assert.Equal(t, "2", summary.Fine.Amount.String())

	resp, raw = do(t, http.MethodGet, srv.URL+"/members/"+member.String()+"/fines", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page fines.Page[fines.Fine]
	require.NoError(t, json.Unmarshal(raw, &page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, fines.DefaultPageSize, page.PageSize)

	resp, raw = do(t, http.MethodPost,
		srv.URL+"/members/"+member.String()+"/fines/"+summary.Fine.ID.String()+"/pay", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = do(t, http.MethodGet, srv.URL+"/loans/"+summary.LoanID.String()+"/events", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var events []struct {
		EventType string              `json:"event_type"`
		Version   int                 `json:"version"`
		Data      jsoniter.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &events))
	require.Len(t, events, 2)
	assert.Equal(t, 2, events[1].Version)
	var returned struct {
		Late bool `json:"late"`
	}
	require.NoError(t, json.Unmarshal(events[1].Data, &returned))
	assert.True(t, returned.Late)
}

func TestHandlerErrorMapping(t *testing.T) {
	f := newFixture(t, options{})
	srv := newServer(t, f)
	member := storetest.SeedMember(t, f.db)
	storetest.SeedCopy(t, f.db, "Emma", "e1")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed json", http.MethodPost, "/loans", `{"member_id":`, http.StatusUnprocessableEntity, "malformed_request"},
		{"unknown field", http.MethodPost, "/loans", `{"member":"x"}`, http.StatusUnprocessableEntity, "malformed_request"},
		{"unknown member", http.MethodPost, "/loans", `{"member_id":"` + uuid.NewString() + `","barcode":"e1"}`, http.StatusNotFound, "member_not_found"},
		{"unknown barcode", http.MethodPost, "/loans", `{"member_id":"` + member.String() + `","barcode":"nope"}`, http.StatusNotFound, "copy_not_found"},
		{"loan too long", http.MethodPost, "/loans", `{"member_id":"` + member.String() + `","barcode":"e1","loan_days":400}`, http.StatusUnprocessableEntity, "invalid_loan_days"},
		{"nothing to return", http.MethodPost, "/returns", `{"barcode":"e1"}`, http.StatusNotFound, "no_open_loan"},
		{"bad member id", http.MethodGet, "/members/abc/fines", "", http.StatusUnprocessableEntity, "malformed_request"},
		{"bad page", http.MethodGet, "/members/" + member.String() + "/fines?page_size=500", "", http.StatusUnprocessableEntity, "invalid_page"},
		{"unknown fine", http.MethodPost, "/fines/" + uuid.NewString() + "/revoke", "", http.StatusNotFound, "fine_not_found"},
		{"negative fine", http.MethodPost, "/members/" + member.String() + "/fines", `{"fine_type_id":2,"amount":"-1"}`, http.StatusUnprocessableEntity, "invalid_fine_amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := do(t, tt.method, srv.URL+tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, string(raw))
			assert.Equal(t, tt.code, errorCode(t, raw))
		})
	}
}

func TestFineTypesEndpoint(t *testing.T) {
	f := newFixture(t, options{})
	srv := newServer(t, f)

	resp, raw := do(t, http.MethodGet, srv.URL+"/fine-types", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var types []fines.FineType
	require.NoError(t, json.Unmarshal(raw, &types))
	require.Len(t, types, 3)
	assert.Equal(t, "overdue", types[0].Code)
	assert.Equal(t, "1", types[0].DailyRate.String())
}
