package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderDelivered guards delivered orders against further mutation.
	ErrOrderDelivered = errors.New("order is delivered and read-only")
	// ErrMissingRejectionReason occurs when rejecting without a reason.
	ErrMissingRejectionReason = errors.New("rejection reason required")
	// ErrMissingDriverDetails occurs when a transit transition lacks driver or vehicle info.
	ErrMissingDriverDetails = errors.New("driver and vehicle details required")
	// ErrLedgerInconsistency flags an unexpected ledger sequence for audit.
	ErrLedgerInconsistency = errors.New("ledger entry sequence inconsistent")
	// ErrUnknownStatus indicates an unrecognized status value at the boundary.
	ErrUnknownStatus = errors.New("unknown status value")
)

// InvalidTransitionError describes an illegal status move for one group.
type InvalidTransitionError struct {
	Group string
	From  string
	To    string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s: %s -> %s", e.Group, e.From, e.To)
}

// InsufficientStockError identifies the SKU that failed the sufficiency check.
type InsufficientStockError struct {
	SKU       int64
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for sku %d: available %d, requested %d", e.SKU, e.Available, e.Requested)
}

// UserSafeMessage maps known domain errors to operator-facing text.
func UserSafeMessage(err error) string {
	var transition *InvalidTransitionError
	var stock *InsufficientStockError
	switch {
	case errors.As(err, &transition):
		return fmt.Sprintf("Status of %s cannot move from %s to %s", transition.Group, transition.From, transition.To)
	case errors.As(err, &stock):
		return fmt.Sprintf("Insufficient stock for product %d: %d available, %d requested", stock.SKU, stock.Available, stock.Requested)
	case errors.Is(err, ErrMissingRejectionReason):
		return "A rejection reason is required"
	case errors.Is(err, ErrMissingDriverDetails):
		return "Driver name and vehicle number are required"
	case errors.Is(err, ErrUnknownStatus):
		return "Unrecognized status value"
	case errors.Is(err, ErrOrderDelivered):
		return "Delivered orders cannot be modified"
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrNotFound):
		return "Record not found"
	case errors.Is(err, ErrOrderLocked):
		return "Another change for this order is in progress, try again"
	default:
		return "An internal error occurred"
	}
}
