package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// TaskTypeOrderStatusChanged fans a status change out to the role inbox.
	TaskTypeOrderStatusChanged = "order:status_changed"
)

// OrderStatusChangedPayload mirrors the order event published by the service.
type OrderStatusChangedPayload struct {
	OrderID       string `json:"order_id"`
	Group         string `json:"group"`
	SupplierID    int64  `json:"supplier_id,omitempty"`
	OldStatus     string `json:"old_status"`
	NewStatus     string `json:"new_status"`
	RecipientRole string `json:"recipient_role"`
}

// NewOrderStatusChangedTask constructs an Asynq task for a status change.
func NewOrderStatusChangedTask(payload OrderStatusChangedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeOrderStatusChanged, data, asynq.Queue(QueueDefault)), nil
}

// OrderStatusNotifyJob turns status-change events into email tasks.
type OrderStatusNotifyJob struct {
	Enqueuer MailEnqueuer
	Logger   *slog.Logger
}

// MailEnqueuer submits follow-up email tasks.
type MailEnqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// Handle processes TaskTypeOrderStatusChanged tasks.
func (j *OrderStatusNotifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload OrderStatusChangedPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	scope := payload.Group
	if payload.SupplierID > 0 {
		scope = fmt.Sprintf("%s (supplier %d)", payload.Group, payload.SupplierID)
	}
	mail := SendEmailPayload{
		To:      RoleInbox(payload.RecipientRole),
		Subject: fmt.Sprintf("Order %s: %s is now %s", payload.OrderID, scope, payload.NewStatus),
		Body: fmt.Sprintf("Order %s changed %s status from %s to %s.",
			payload.OrderID, scope, payload.OldStatus, payload.NewStatus),
	}

	if j.Enqueuer == nil {
		if j.Logger != nil {
			j.Logger.Info("order status notification",
				slog.String("order_id", payload.OrderID),
				slog.String("group", payload.Group),
				slog.String("new_status", payload.NewStatus),
				slog.String("recipient", mail.To))
		}
		return nil
	}
	if _, err := j.Enqueuer.EnqueueSendEmail(ctx, mail); err != nil {
		return fmt.Errorf("enqueue notification mail: %w", err)
	}
	return nil
}
