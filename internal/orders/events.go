package orders

import (
	"context"

	"github.com/google/uuid"
)

// StatusChangedEvent is emitted on every committed group or order status
// change. The notification subsystem consumes it asynchronously; the core
// never blocks on delivery.
type StatusChangedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	Group         string    `json:"group"`
	SupplierID    int64     `json:"supplier_id,omitempty"`
	OldStatus     string    `json:"old_status"`
	NewStatus     string    `json:"new_status"`
	RecipientRole string    `json:"recipient_role"`
}

// EventPublisher hands status-change events to the notification queue.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, evt StatusChangedEvent) error
}

// recipientRoleFor picks the personnel role interested in a transition.
func recipientRoleFor(newStatus Status) string {
	switch newStatus {
	case StatusApproved:
		return "storekeeper"
	case StatusInTransit, StatusOutForDelivery:
		return "driver"
	case StatusDelivered:
		return "sales"
	case StatusRejected:
		return "manager"
	default:
		return "sales"
	}
}
