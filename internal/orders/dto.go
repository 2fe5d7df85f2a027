package orders

import "time"

// ChangeGroupStatusRequest is the JSON body for a group-level status change.
type ChangeGroupStatusRequest struct {
	Status        string `json:"status" validate:"required"`
	SupplierID    int64  `json:"supplier_id,omitempty" validate:"gte=0"`
	Reason        string `json:"reason,omitempty" validate:"omitempty,max=500"`
	DriverName    string `json:"driver_name,omitempty" validate:"omitempty,max=200"`
	VehicleNumber string `json:"vehicle_number,omitempty" validate:"omitempty,max=50"`
}

// ChangeOrderStatusRequest is the JSON body for an order-level override.
type ChangeOrderStatusRequest struct {
	Status        string `json:"status" validate:"required"`
	Reason        string `json:"reason,omitempty" validate:"omitempty,max=500"`
	DriverName    string `json:"driver_name,omitempty" validate:"omitempty,max=200"`
	VehicleNumber string `json:"vehicle_number,omitempty" validate:"omitempty,max=50"`
}

// LineRequest is one (product, quantity) pair in a create request.
type LineRequest struct {
	ProductID  int64 `json:"product_id" validate:"required,gt=0"`
	Qty        int64 `json:"qty" validate:"required,gt=0"`
	SupplierID int64 `json:"supplier_id,omitempty" validate:"gte=0"`
}

// ConnectedProductRequest references a catalog product on a custom line.
type ConnectedProductRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Qty       int64 `json:"qty" validate:"required,gt=0"`
}

// CustomLineRequest is a bespoke workshop item in a create request.
type CustomLineRequest struct {
	Description string                    `json:"description" validate:"required,max=2000"`
	Materials   string                    `json:"materials,omitempty"`
	ImagePaths  []string                  `json:"image_paths,omitempty" validate:"dive,max=500"`
	Connected   []ConnectedProductRequest `json:"connected_products" validate:"required,min=1,dive"`
}

// AssigneeRequest references personnel assigned to the order.
type AssigneeRequest struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Role   string `json:"role" validate:"required,max=50"`
}

// CreateOrderRequest is the JSON body to create an order.
type CreateOrderRequest struct {
	Priority         string              `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	SiteID           int64               `json:"site_id,omitempty" validate:"gte=0"`
	Note             string              `json:"note,omitempty" validate:"omitempty,max=2000"`
	ExpectedDelivery *time.Time          `json:"expected_delivery,omitempty"`
	HardwareLines    []LineRequest       `json:"hardware_lines,omitempty" validate:"dive"`
	WorkshopLines    []LineRequest       `json:"workshop_lines,omitempty" validate:"dive"`
	CustomLines      []CustomLineRequest `json:"custom_lines,omitempty" validate:"dive"`
	LPOLines         []LineRequest       `json:"lpo_lines,omitempty" validate:"dive"`
	AssignedTo       []AssigneeRequest   `json:"assigned_to,omitempty" validate:"dive"`
}

// GroupStatusesResponse is the per-group view in responses.
type GroupStatusesResponse struct {
	Hardware    *string          `json:"hardware,omitempty"`
	Workshop    *string          `json:"workshop,omitempty"`
	LPO         map[int64]string `json:"lpo,omitempty"`
	LPOCombined *string          `json:"lpo_combined,omitempty"`
}

// StatusChangeResponse is returned by both status-change endpoints.
type StatusChangeResponse struct {
	OrderStatus   string                `json:"order_status"`
	GroupStatuses GroupStatusesResponse `json:"group_statuses"`
}

// OrderResponse is the full order view.
type OrderResponse struct {
	ID               string                  `json:"id"`
	Status           string                  `json:"status"`
	Priority         string                  `json:"priority,omitempty"`
	SiteID           int64                   `json:"site_id,omitempty"`
	Note             string                  `json:"note,omitempty"`
	ExpectedDelivery *time.Time              `json:"expected_delivery,omitempty"`
	GroupStatuses    GroupStatusesResponse   `json:"group_statuses"`
	RejectionReasons map[string]string       `json:"rejection_reasons,omitempty"`
	DriverDetails    map[string]DriverDetail `json:"driver_details,omitempty"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// ErrorResponse carries an operator-facing error message.
type ErrorResponse struct {
	Error string `json:"error"`
}

func toGroupStatusesResponse(snap GroupStatuses) GroupStatusesResponse {
	resp := GroupStatusesResponse{}
	if snap.Hardware != nil {
		s := string(*snap.Hardware)
		resp.Hardware = &s
	}
	if snap.Workshop != nil {
		s := string(*snap.Workshop)
		resp.Workshop = &s
	}
	if len(snap.LPO) > 0 {
		resp.LPO = make(map[int64]string, len(snap.LPO))
		for supplierID, status := range snap.LPO {
			resp.LPO[supplierID] = string(status)
		}
	}
	if snap.LPOCombined != nil {
		s := string(*snap.LPOCombined)
		resp.LPOCombined = &s
	}
	return resp
}

func toStatusChangeResponse(result StatusChangeResult) StatusChangeResponse {
	return StatusChangeResponse{
		OrderStatus:   string(result.OrderStatus),
		GroupStatuses: toGroupStatusesResponse(result.Groups),
	}
}

func toOrderResponse(order *Order) OrderResponse {
	return OrderResponse{
		ID:               order.ID.String(),
		Status:           string(order.Status),
		Priority:         order.Priority,
		SiteID:           order.SiteID,
		Note:             order.Note,
		ExpectedDelivery: order.ExpectedDelivery,
		GroupStatuses:    toGroupStatusesResponse(order.Snapshot()),
		RejectionReasons: order.RejectionReasons,
		DriverDetails:    order.DriverDetails,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
}
