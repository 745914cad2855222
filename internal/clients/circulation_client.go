// internal/clients/circulation_client.go
package clients

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"libraledger/internal/apperr"
	"libraledger/internal/circulation"
	"libraledger/internal/fines"
	"libraledger/internal/httpjson"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// APIError is a failure response from the circulation service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Is matches the apperr sentinel with the same code, so callers can use
// errors.Is(err, apperr.ErrOutstandingFine) across the wire.
func (e *APIError) Is(target error) bool {
	var t *apperr.Error
	return errors.As(target, &t) && t.Code == e.Code
}

// CirculationClient talks to the circulation service over HTTP.
type CirculationClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewCirculationClient(baseURL string, timeout time.Duration) *CirculationClient {
	return &CirculationClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *CirculationClient) Borrow(ctx context.Context, memberID uuid.UUID, barcode string, loanDays int) (*circulation.Receipt, error) {
	req := struct {
		MemberID uuid.UUID `json:"member_id"`
		Barcode  string    `json:"barcode"`
		LoanDays int       `json:"loan_days,omitempty"`
	}{memberID, barcode, loanDays}

	var receipt circulation.Receipt
	if err := c.do(ctx, http.MethodPost, "/loans", req, http.StatusCreated, &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Return closes the open loan on barcode. A nil memberID is a desk return.
func (c *CirculationClient) Return(ctx context.Context, memberID uuid.UUID, barcode string) (*circulation.ReturnSummary, error) {
	req := struct {
		MemberID uuid.UUID `json:"member_id"`
		Barcode  string    `json:"barcode"`
	}{memberID, barcode}

	var summary circulation.ReturnSummary
	if err := c.do(ctx, http.MethodPost, "/returns", req, http.StatusOK, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *CirculationClient) ActiveFines(ctx context.Context, memberID uuid.UUID, page fines.PageRequest) (*fines.Page[fines.Fine], error) {
	return c.listFines(ctx, "/members/"+memberID.String()+"/fines", page)
}

func (c *CirculationClient) FineHistory(ctx context.Context, memberID uuid.UUID, page fines.PageRequest) (*fines.Page[fines.Fine], error) {
	return c.listFines(ctx, "/members/"+memberID.String()+"/fines/history", page)
}

func (c *CirculationClient) listFines(ctx context.Context, path string, page fines.PageRequest) (*fines.Page[fines.Fine], error) {
	q := url.Values{}
	if page.Page != 0 {
		q.Set("page", strconv.Itoa(page.Page))
	}
	if page.PageSize != 0 {
		q.Set("page_size", strconv.Itoa(page.PageSize))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out fines.Page[fines.Fine]
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *CirculationClient) AssignFine(ctx context.Context, memberID uuid.UUID, fineTypeID int64, reason string, amount decimal.Decimal) (*fines.Fine, error) {
	req := struct {
		FineTypeID int64           `json:"fine_type_id"`
		Reason     string          `json:"reason"`
		Amount     decimal.Decimal `json:"amount"`
	}{fineTypeID, reason, amount}

	var fine fines.Fine
	if err := c.do(ctx, http.MethodPost, "/members/"+memberID.String()+"/fines", req, http.StatusCreated, &fine); err != nil {
		return nil, err
	}
	return &fine, nil
}

func (c *CirculationClient) PayFine(ctx context.Context, memberID, fineID uuid.UUID) (*fines.Fine, error) {
	var fine fines.Fine
	path := fmt.Sprintf("/members/%s/fines/%s/pay", memberID, fineID)
	if err := c.do(ctx, http.MethodPost, path, nil, http.StatusOK, &fine); err != nil {
		return nil, err
	}
	return &fine, nil
}

func (c *CirculationClient) RevokeFine(ctx context.Context, fineID uuid.UUID) (*fines.Fine, error) {
	var fine fines.Fine
	if err := c.do(ctx, http.MethodPost, "/fines/"+fineID.String()+"/revoke", nil, http.StatusOK, &fine); err != nil {
		return nil, err
	}
	return &fine, nil
}

func (c *CirculationClient) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var e httpjson.ErrorBody
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error.Code == "" {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Code: e.Error.Code, Message: e.Error.Message}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
