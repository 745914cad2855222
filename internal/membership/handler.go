// internal/membership/handler.go
package membership

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"libraledger/internal/httpjson"
)

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes mounts the membership endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/members", h.handleRegisterMember)
	r.Get("/members/{memberID}", h.handleGetMember)
	r.Patch("/members/{memberID}", h.handleUpdateMember)
	r.Post("/login", h.handleLogin)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	member, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	httpjson.Write(w, http.StatusOK, member)
}

func (h *Handler) handleRegisterMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	member, err := h.service.RegisterMember(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	httpjson.Write(w, http.StatusCreated, member)
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, err := httpjson.UUIDParam(r, "memberID")
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	httpjson.Write(w, http.StatusOK, member)
}

func (h *Handler) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id, err := httpjson.UUIDParam(r, "memberID")
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	var req struct {
		Status       Status `json:"status"`
		MaxCheckouts int    `json:"max_checkouts"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	member, err := h.service.UpdateMember(r.Context(), id, req.Status, req.MaxCheckouts)
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	httpjson.Write(w, http.StatusOK, member)
}
