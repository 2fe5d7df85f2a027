package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// HandleSendEmailTask processes TaskTypeSendEmail tasks when no Mailer is
// configured. It logs the message instead of delivering it.
func HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	slog.Default().Info("email delivery skipped, no mailer configured",
		slog.String("to", payload.To),
		slog.String("subject", payload.Subject))
	return nil
}

// Mailer delivers queued emails over plain SMTP. Local development points it
// at Mailpit, which accepts unauthenticated connections.
type Mailer struct {
	Addr string
	From string
}

// HandleSendEmail processes TaskTypeSendEmail tasks against the SMTP server.
func (m *Mailer) HandleSendEmail(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	msg := []byte("From: " + m.From + "\r\n" +
		"To: " + payload.To + "\r\n" +
		"Subject: " + payload.Subject + "\r\n" +
		"\r\n" +
		payload.Body + "\r\n")
	if err := smtp.SendMail(m.Addr, nil, m.From, []string{payload.To}, msg); err != nil {
		return fmt.Errorf("send email to %s: %w", payload.To, err)
	}
	return nil
}

// RoleInbox maps a recipient role to its shared notification inbox.
func RoleInbox(role string) string {
	switch role {
	case "storekeeper", "driver", "manager", "sales":
		return role + "@nimbus.local"
	default:
		return "operations@nimbus.local"
	}
}
