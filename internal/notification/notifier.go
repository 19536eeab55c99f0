package notification

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Notification is a rendered message for a user: either a lifecycle event
// fanned out through kafka or a local advisory (the toast-equivalent).
type Notification struct {
	Type        string    `json:"type"`
	TaskID      string    `json:"task_id,omitempty"`
	RecipientID string    `json:"recipient_id,omitempty"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notifier delivers notifications.
type Notifier interface {
	SendNotification(ctx context.Context, notification Notification) error
}

type logNotifier struct {
	logger *log.Logger
}

func NewLogNotifier(logger *log.Logger) Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &logNotifier{logger: logger}
}

func (n *logNotifier) SendNotification(ctx context.Context, notification Notification) error {
	entry := fmt.Sprintf(
		"[NOTIFICATION] type=%s task=%s recipient=%s message=%q at=%s",
		notification.Type,
		notification.TaskID,
		notification.RecipientID,
		notification.Message,
		notification.CreatedAt.Format(time.RFC3339),
	)
	n.logger.Println(entry)
	return nil
}

// Advisor adapts a Notifier to the engine's advisory channel for policy
// rejections.
type Advisor struct {
	Notifier Notifier
}

func (a Advisor) Advise(message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.Notifier.SendNotification(ctx, Notification{
		Type:      "advisory",
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
}
