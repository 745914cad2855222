// internal/circulation/handler.go
package circulation

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"libraledger/internal/fines"
	"libraledger/internal/httpjson"
	"libraledger/internal/journal"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the loan and fine endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/loans", h.handleBorrow)
	r.Post("/returns", h.handleReturn)
	r.Get("/loans/{loanID}/events", h.handleLoanEvents)

	r.Get("/members/{memberID}/loans", h.handleOpenLoans)
	r.Get("/members/{memberID}/fines", h.handleActiveFines)
	r.Get("/members/{memberID}/fines/history", h.handleFineHistory)
	r.Post("/members/{memberID}/fines", h.handleAssignFine)
	r.Post("/members/{memberID}/fines/{fineID}/pay", h.handlePayFine)

	r.Get("/fine-types", h.handleFineTypes)
	r.Post("/fines/{fineID}/revoke", h.handleRevokeFine)
	r.Get("/fines/{fineID}/events", h.handleFineEvents)
}

func (h *Handler) handleBorrow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID uuid.UUID `json:"member_id"`
		Barcode  string    `json:"barcode"`
		LoanDays int       `json:"loan_days"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	receipt, err := h.service.Borrow(r.Context(), req.MemberID, req.Barcode, req.LoanDays)
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	httpjson.Write(w, http.StatusCreated, receipt)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberID uuid.UUID `json:"member_id"`
		Barcode  string    `json:"barcode"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	summary, err := h.service.Return(r.Context(), req.MemberID, req.Barcode)
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	httpjson.Write(w, http.StatusOK, summary)
}

func (h *Handler) handleOpenLoans(w http.ResponseWriter, r *http.Request) {
	memberID, err := httpjson.UUIDParam(r, "memberID")
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	loans, err := h.service.OpenLoans(r.Context(), memberID)
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	httpjson.Write(w, http.StatusOK, loans)
}

func (h *Handler) handleActiveFines(w http.ResponseWriter, r *http.Request) {
	h.listFines(w, r, h.service.ListActiveFines)
}

func (h *Handler) handleFineHistory(w http.ResponseWriter, r *http.Request) {
	h.listFines(w, r, h.service.ListFineHistory)
}

func (h *Handler) listFines(w http.ResponseWriter, r *http.Request, list func(ctx context.Context, memberID uuid.UUID, page fines.PageRequest) (*fines.Page[fines.Fine], error)) {
	memberID, err := httpjson.UUIDParam(r, "memberID")
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}
	var req fines.PageRequest
	if req.Page, err = httpjson.IntQuery(r, "page"); err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}
	if req.PageSize, err = httpjson.IntQuery(r, "page_size"); err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	page, err := list(r.Context(), memberID, req)
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	httpjson.Write(w, http.StatusOK, page)
}

func (h *Handler) handleAssignFine(w http.ResponseWriter, r *http.Request) {
	memberID, err := httpjson.UUIDParam(r, "memberID")
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	var req struct {
		FineTypeID int64           `json:"fine_type_id"`
		Reason     string          `json:"reason"`
		Amount     decimal.Decimal `json:"amount"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	fine, err := h.service.AssignFine(r.Context(), memberID, req.FineTypeID, req.Reason, req.Amount)
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	httpjson.Write(w, http.StatusCreated, fine)
}

func (h *Handler) handlePayFine(w http.ResponseWriter, r *http.Request) {
	memberID, err := httpjson.UUIDParam(r, "memberID")
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}
	fineID, err := httpjson.UUIDParam(r, "fineID")
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	fine, err := h.service.PayFine(r.Context(), memberID, fineID)
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	httpjson.Write(w, http.StatusOK, fine)
}

func (h *Handler) handleRevokeFine(w http.ResponseWriter, r *http.Request) {
	fineID, err := httpjson.UUIDParam(r, "fineID")
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	fine, err := h.service.RevokeFine(r.Context(), fineID)
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	httpjson.Write(w, http.StatusOK, fine)
}

func (h *Handler) handleFineTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.FineTypes(r.Context())
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	httpjson.Write(w, http.StatusOK, types)
}

func (h *Handler) handleLoanEvents(w http.ResponseWriter, r *http.Request) {
	h.events(w, r, "loanID", h.service.LoanEvents)
}

func (h *Handler) handleFineEvents(w http.ResponseWriter, r *http.Request) {
	h.events(w, r, "fineID", h.service.FineEvents)
}

// eventView renders a journal entry with its payload inlined.
type eventView struct {
	journal.Event
	Data jsoniter.RawMessage `json:"data"`
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request, param string, load func(ctx context.Context, id uuid.UUID) ([]journal.Event, error)) {
	id, err := httpjson.UUIDParam(r, param)
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	events, err := load(r.Context(), id)
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	views := make([]eventView, len(events))
	for i, e := range events {
		views[i] = eventView{Event: e, Data: e.Payload()}
	}
	httpjson.Write(w, http.StatusOK, views)
}
