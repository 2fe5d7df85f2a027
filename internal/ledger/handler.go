package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nimbus-erp/nimbus-erp/internal/platform/httpx"
	"github.com/nimbus-erp/nimbus-erp/internal/shared"
)

// BalanceResponse reports the current on-hand quantity for one SKU pool.
type BalanceResponse struct {
	SKU     int64 `json:"sku_id"`
	SiteID  int64 `json:"site_id"`
	Balance int64 `json:"balance"`
}

// EntryResponse is one ledger movement in listings.
type EntryResponse struct {
	ID        int64     `json:"id"`
	SKU       int64     `json:"sku_id"`
	Direction string    `json:"direction"`
	Qty       int64     `json:"qty"`
	SiteID    int64     `json:"site_id"`
	OrderID   string    `json:"order_id,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MovementsResponse is one page of ledger movements.
type MovementsResponse struct {
	Movements  []EntryResponse   `json:"movements"`
	Pagination shared.Pagination `json:"pagination"`
}

// AdjustRequest is the JSON body for a manual correction.
type AdjustRequest struct {
	SKU       int64  `json:"sku_id" validate:"required,gt=0"`
	Qty       int64  `json:"qty" validate:"required,gt=0"`
	Direction string `json:"direction" validate:"required,oneof=in out"`
	SiteID    int64  `json:"site_id,omitempty" validate:"gte=0"`
	Tag       string `json:"tag,omitempty" validate:"omitempty,max=100"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler exposes the stock ledger JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ledger/balance", h.getBalance)
	r.Get("/ledger/movements", h.listMovements)
	r.Post("/ledger/adjustments", h.adjust)
}

func (h *Handler) getBalance(w http.ResponseWriter, r *http.Request) {
	sku, err := strconv.ParseInt(r.URL.Query().Get("sku_id"), 10, 64)
	if err != nil || sku <= 0 {
		h.writeErrorMessage(w, http.StatusBadRequest, "sku_id is required")
		return
	}
	siteID, _ := strconv.ParseInt(r.URL.Query().Get("site_id"), 10, 64)

	balance, err := h.service.CurrentBalance(r.Context(), sku, siteID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, BalanceResponse{SKU: sku, SiteID: siteID, Balance: balance})
}

func (h *Handler) listMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{Tag: q.Get("tag")}
	filter.SKU, _ = strconv.ParseInt(q.Get("sku_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	if raw := q.Get("site_id"); raw != "" {
		siteID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeErrorMessage(w, http.StatusBadRequest, "invalid site id")
			return
		}
		filter.SiteID = &siteID
	}
	if raw := q.Get("order_id"); raw != "" {
		orderID, err := uuid.Parse(raw)
		if err != nil {
			h.writeErrorMessage(w, http.StatusBadRequest, "invalid order id")
			return
		}
		filter.OrderID = orderID
	}

	entries, pagination, err := h.service.Movements(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	movements := make([]EntryResponse, 0, len(entries))
	for _, entry := range entries {
		movements = append(movements, toEntryResponse(entry))
	}
	h.writeJSON(w, http.StatusOK, MovementsResponse{Movements: movements, Pagination: pagination})
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req AdjustRequest
	if err := httpx.Decode(r, &req); err != nil {
		h.writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.service.Adjust(r.Context(), AdjustInput{
		SKU:       req.SKU,
		Qty:       req.Qty,
		Direction: Direction(req.Direction),
		SiteID:    req.SiteID,
		Tag:       req.Tag,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toEntryResponse(entry))
}

func toEntryResponse(entry Entry) EntryResponse {
	resp := EntryResponse{
		ID:        entry.ID,
		SKU:       entry.SKU,
		Direction: string(entry.Direction),
		Qty:       entry.Qty,
		SiteID:    entry.SiteID,
		Tag:       entry.Tag,
		CreatedAt: entry.CreatedAt,
	}
	if entry.OrderID != uuid.Nil {
		resp.OrderID = entry.OrderID.String()
	}
	return resp
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var insufficient *shared.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidQuantity):
		h.writeErrorMessage(w, http.StatusBadRequest, "Quantity must be positive")
		return
	case errors.Is(err, ErrInvalidDirection):
		h.writeErrorMessage(w, http.StatusBadRequest, "Direction must be in or out")
		return
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	h.writeErrorMessage(w, status, shared.UserSafeMessage(err))
}

func (h *Handler) writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	if err := httpx.JSON(w, status, payload); err != nil {
		h.logger.Error("encode response", slog.Any("error", err))
	}
}
