// internal/catalog/handler.go
package catalog

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

// Routes mounts the catalog endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/books", h.handleAddBook)
	r.Post("/books/{bookID}/copies", h.handleAddCopy)
	r.Get("/copies/{barcode}", h.handleGetCopy)
}

func (h *Handler) handleAddBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ISBN   string `json:"isbn"`
		Title  string `json:"title"`
		Author string `json:"author"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	book, err := h.service.AddBook(r.Context(), req.ISBN, req.Title, req.Author)
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	httpjson.Write(w, http.StatusCreated, book)
}

func (h *Handler) handleAddCopy(w http.ResponseWriter, r *http.Request) {
	bookID, err := httpjson.UUIDParam(r, "bookID")
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	var req struct {
		Barcode       string `json:"barcode"`
		ShelfLocation string `json:"shelf_location"`
	}
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	c, err := h.service.AddCopy(r.Context(), bookID, req.Barcode, req.ShelfLocation)
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	httpjson.Write(w, http.StatusCreated, c)
}

func (h *Handler) handleGetCopy(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetCopy(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		httpjson.Error(w, r, h.logger, err)
		return
	}

	httpjson.Write(w, http.StatusOK, c)
}
