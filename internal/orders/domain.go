package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nimbus-erp/nimbus-erp/internal/shared"
)

// Status represents the lifecycle of one product group within an order.
type Status string

const (
	StatusPending        Status = "pending"
	StatusApproved       Status = "approved"
	StatusInTransit      Status = "in_transit" // workshop/custom only
	StatusOutForDelivery Status = "outfordelivery"
	StatusRejected       Status = "rejected"
	StatusDelivered      Status = "delivered"
)

// ParseStatus validates a boundary status value. Unrecognized input is
// rejected instead of defaulting to pending.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusPending, StatusApproved, StatusInTransit, StatusOutForDelivery, StatusRejected, StatusDelivered:
		return Status(value), nil
	default:
		return "", fmt.Errorf("%w: %q", shared.ErrUnknownStatus, value)
	}
}

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusDelivered
}

// OrderStatus is the order-level status derived from the group statuses.
// It mirrors the group enum except the terminal value reads "delivery".
type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderApproved       OrderStatus = "approved"
	OrderInTransit      OrderStatus = "in_transit"
	OrderOutForDelivery OrderStatus = "outfordelivery"
	OrderRejected       OrderStatus = "rejected"
	OrderDelivery       OrderStatus = "delivery"
)

// ParseOrderStatus validates a boundary order-status value.
func ParseOrderStatus(value string) (OrderStatus, error) {
	switch OrderStatus(value) {
	case OrderPending, OrderApproved, OrderInTransit, OrderOutForDelivery, OrderRejected, OrderDelivery:
		return OrderStatus(value), nil
	default:
		return "", fmt.Errorf("%w: %q", shared.ErrUnknownStatus, value)
	}
}

// orderStatusOf maps a group status onto the order-level enum.
func orderStatusOf(s Status) OrderStatus {
	if s == StatusDelivered {
		return OrderDelivery
	}
	return OrderStatus(s)
}

// Group identifies one independently-tracked product category.
type Group string

const (
	GroupHardware Group = "hardware"
	GroupWorkshop Group = "workshop"
	GroupLPO      Group = "lpo"
	// GroupCustom tags workshop custom lines in the ledger. Custom lines
	// progress with the workshop status but deduct under their own tag.
	GroupCustom Group = "custom"
)

// ParseGroup validates a boundary group value.
func ParseGroup(value string) (Group, error) {
	switch Group(value) {
	case GroupHardware, GroupWorkshop, GroupLPO:
		return Group(value), nil
	default:
		return "", fmt.Errorf("unknown product group %q", value)
	}
}

// TransitPhase identifies which leg of transport a driver detail covers.
type TransitPhase string

const (
	PhaseInTransit      TransitPhase = "in_transit"
	PhaseOutForDelivery TransitPhase = "out_for_delivery"
)

// DriverDetail captures transport metadata required before transit
// transitions commit.
type DriverDetail struct {
	DriverName    string
	VehicleNumber string
}

// Complete reports whether both mandatory fields are present.
func (d DriverDetail) Complete() bool {
	return d.DriverName != "" && d.VehicleNumber != ""
}

// Line is a (product, quantity) pair belonging to a group.
type Line struct {
	ProductID  int64
	Qty        int64
	SupplierID int64 // LPO lines only
}

// ConnectedProduct references a catalog product used to derive a custom
// line's quantity via its measurement formula.
type ConnectedProduct struct {
	ProductID int64
	Qty       int64
}

// CustomLine is a bespoke workshop item.
type CustomLine struct {
	ID         int64
	Desc       string
	Materials  string
	ImagePaths []string
	Connected  []ConnectedProduct
}

// TotalQty sums the connected-product quantities. Stock is deducted at this
// total for each connected product.
func (l CustomLine) TotalQty() int64 {
	var total int64
	for _, cp := range l.Connected {
		total += cp.Qty
	}
	return total
}

// Order is the aggregate root. The order-level status is always a pure
// function of the group statuses, or explicitly and atomically overridden.
type Order struct {
	ID               uuid.UUID
	Status           OrderStatus
	Priority         string
	SiteID           int64
	AssignedTo       []Assignee
	Note             string
	ExpectedDelivery *time.Time

	HardwareStatus *Status
	WorkshopStatus *Status
	LPOStatuses    map[int64]Status // supplier id -> status

	HardwareLines []Line
	WorkshopLines []Line
	CustomLines   []CustomLine
	LPOLines      []Line

	RejectionReasons map[string]string       // keyed by group, "lpo:<supplier>" for LPO
	DriverDetails    map[string]DriverDetail // keyed by "<group>:<phase>"

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Assignee is a personnel reference on the order.
type Assignee struct {
	UserID int64
	Role   string
}

// HasTransportAssignment reports whether any complete driver detail exists.
// Presence of an assigned carrier implies the cargo is already moving, which
// upgrades an order-level "approved" override to "in_transit".
func (o *Order) HasTransportAssignment() bool {
	for _, detail := range o.DriverDetails {
		if detail.Complete() {
			return true
		}
	}
	return false
}

// DriverDetailFor returns the stored detail for a group and phase.
func (o *Order) DriverDetailFor(group Group, phase TransitPhase) (DriverDetail, bool) {
	detail, ok := o.DriverDetails[DriverDetailKey(group, phase)]
	return detail, ok
}

// DriverDetailKey builds the map key for driver detail storage.
func DriverDetailKey(group Group, phase TransitPhase) string {
	return fmt.Sprintf("%s:%s", group, phase)
}

// ReasonKey builds the rejection-reason key for a group, scoped per supplier
// for LPO.
func ReasonKey(group Group, supplierID int64) string {
	if group == GroupLPO {
		return fmt.Sprintf("lpo:%d", supplierID)
	}
	return string(group)
}

// DeductionTag is the ledger tag identifying the group/phase that caused a
// stock movement. It is the idempotency key preventing double-deduction.
func DeductionTag(group Group, supplierID int64) string {
	switch group {
	case GroupHardware:
		return "approved:hardware"
	case GroupLPO:
		return fmt.Sprintf("approved:lpo:%d", supplierID)
	case GroupWorkshop:
		return "outfordelivery:workshop"
	case GroupCustom:
		return "outfordelivery:custom"
	default:
		return ""
	}
}

// LPOLinesFor returns the LPO lines tracked under one supplier.
func (o *Order) LPOLinesFor(supplierID int64) []Line {
	var lines []Line
	for _, line := range o.LPOLines {
		if line.SupplierID == supplierID {
			lines = append(lines, line)
		}
	}
	return lines
}

// GroupStatuses snapshots the per-group view returned by the operation
// surface.
type GroupStatuses struct {
	Hardware    *Status
	Workshop    *Status
	LPO         map[int64]Status
	LPOCombined *Status
}

// Snapshot builds the group-status view of the order.
func (o *Order) Snapshot() GroupStatuses {
	snap := GroupStatuses{Hardware: o.HardwareStatus, Workshop: o.WorkshopStatus}
	if len(o.LPOStatuses) > 0 {
		snap.LPO = make(map[int64]Status, len(o.LPOStatuses))
		for supplierID, status := range o.LPOStatuses {
			snap.LPO[supplierID] = status
		}
		combined := CombineSupplierStatuses(o.LPOStatuses)
		snap.LPOCombined = &combined
	}
	return snap
}
