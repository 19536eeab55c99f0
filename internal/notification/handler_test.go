package notification

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nikydiazc/tareas-service/internal/task"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (c *captureNotifier) SendNotification(ctx context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func TestHandleEventRendersMessage(t *testing.T) {
	notifier := &captureNotifier{}
	handler := NewEventHandler(notifier)

	event := task.TaskEvent{
		TaskID:    "t-1",
		Type:      task.EventAssigned,
		Actor:     "administrador",
		Recipient: "maria",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := handler.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event failed: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.sent))
	}
	n := notifier.sent[0]
	if n.TaskID != "t-1" || n.RecipientID != "maria" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if !strings.Contains(n.Message, "asignada a maria") {
		t.Fatalf("unexpected message: %q", n.Message)
	}
}

func TestAdvisorForwardsMessage(t *testing.T) {
	notifier := &captureNotifier{}
	advisor := Advisor{Notifier: notifier}

	advisor.Advise("accion delete no permitida para la tarea t-9")

	if len(notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.sent))
	}
	if notifier.sent[0].Type != "advisory" {
		t.Fatalf("unexpected type: %q", notifier.sent[0].Type)
	}
}
