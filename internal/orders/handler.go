package orders

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nimbus-erp/nimbus-erp/internal/platform/httpx"
	"github.com/nimbus-erp/nimbus-erp/internal/shared"
)

// Handler exposes the order JSON API.
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

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/groups/{group}/status", h.changeGroupStatus)
	r.Post("/orders/{id}/status", h.changeOrderStatus)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	input := CreateOrderInput{
		Priority:         req.Priority,
		SiteID:           req.SiteID,
		Note:             req.Note,
		ExpectedDelivery: req.ExpectedDelivery,
	}
	for _, line := range req.HardwareLines {
		input.HardwareLines = append(input.HardwareLines, Line{ProductID: line.ProductID, Qty: line.Qty})
	}
	for _, line := range req.WorkshopLines {
		input.WorkshopLines = append(input.WorkshopLines, Line{ProductID: line.ProductID, Qty: line.Qty})
	}
	for _, line := range req.LPOLines {
		input.LPOLines = append(input.LPOLines, Line{ProductID: line.ProductID, Qty: line.Qty, SupplierID: line.SupplierID})
	}
	for _, custom := range req.CustomLines {
		cl := CustomLine{
			Desc:       custom.Description,
			Materials:  custom.Materials,
			ImagePaths: custom.ImagePaths,
		}
		for _, cp := range custom.Connected {
			cl.Connected = append(cl.Connected, ConnectedProduct{ProductID: cp.ProductID, Qty: cp.Qty})
		}
		input.CustomLines = append(input.CustomLines, cl)
	}
	for _, a := range req.AssignedTo {
		input.AssignedTo = append(input.AssignedTo, Assignee{UserID: a.UserID, Role: a.Role})
	}

	order, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) changeGroupStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	group, err := ParseGroup(chi.URLParam(r, "group"))
	if err != nil {
		h.writeErrorMessage(w, http.StatusBadRequest, "unknown product group")
		return
	}

	var req ChangeGroupStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		h.writeErrorMessage(w, http.StatusBadRequest, "unknown status")
		return
	}

	input := ChangeGroupStatusInput{
		OrderID:    orderID,
		Group:      group,
		SupplierID: req.SupplierID,
		NewStatus:  status,
		Reason:     req.Reason,
	}
	if req.DriverName != "" || req.VehicleNumber != "" {
		input.Driver = &DriverDetail{DriverName: req.DriverName, VehicleNumber: req.VehicleNumber}
	}

	result, err := h.service.ChangeGroupStatus(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toStatusChangeResponse(result))
}

func (h *Handler) changeOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var req ChangeOrderStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	status, err := ParseOrderStatus(req.Status)
	if err != nil {
		h.writeErrorMessage(w, http.StatusBadRequest, "unknown status")
		return
	}

	input := ChangeOrderStatusInput{
		OrderID:   orderID,
		NewStatus: status,
		Reason:    req.Reason,
	}
	if req.DriverName != "" || req.VehicleNumber != "" {
		input.Driver = &DriverDetail{DriverName: req.DriverName, VehicleNumber: req.VehicleNumber}
	}

	result, err := h.service.ChangeOrderStatus(r.Context(), input)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toStatusChangeResponse(result))
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeErrorMessage(w, http.StatusBadRequest, "invalid order id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := httpx.Decode(r, dst); err != nil {
		h.writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var invalid *shared.InvalidTransitionError
	var insufficient *shared.InsufficientStockError
	switch {
	case errors.Is(err, shared.ErrOrderNotFound), errors.Is(err, shared.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &invalid), errors.Is(err, shared.ErrOrderDelivered):
		status = http.StatusConflict
	case errors.As(err, &insufficient),
		errors.Is(err, shared.ErrMissingRejectionReason),
		errors.Is(err, shared.ErrMissingDriverDetails):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, shared.ErrOrderLocked):
		status = http.StatusConflict
	case errors.Is(err, ErrSupplierRequired):
		h.writeErrorMessage(w, http.StatusBadRequest, "A supplier is required for LPO changes")
		return
	case errors.Is(err, ErrNoLines):
		h.writeErrorMessage(w, http.StatusBadRequest, "At least one order line is required")
		return
	case errors.Is(err, shared.ErrUnknownStatus):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("order request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	h.writeErrorMessage(w, status, shared.UserSafeMessage(err))
}

func (h *Handler) writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	if err := httpx.JSON(w, status, payload); err != nil {
		h.logger.Error("encode response", slog.Any("error", err))
	}
}
