package notification

import (
	"context"
	"fmt"

	"github.com/nikydiazc/tareas-service/internal/task"
)

type eventHandler struct {
	notifier Notifier
}

func NewEventHandler(notifier Notifier) EventHandler {
	return &eventHandler{notifier: notifier}
}

func (h *eventHandler) HandleEvent(ctx context.Context, event task.TaskEvent) error {
	n := Notification{
		Type:        string(event.Type),
		TaskID:      event.TaskID,
		RecipientID: event.Recipient,
		Message:     messageFor(event),
		CreatedAt:   event.Timestamp,
	}
	return h.notifier.SendNotification(ctx, n)
}

func messageFor(event task.TaskEvent) string {
	switch event.Type {
	case task.EventCreated:
		return fmt.Sprintf("tarea %s creada por %s", event.TaskID, event.Actor)
	case task.EventAssigned:
		return fmt.Sprintf("tarea %s asignada a %s", event.TaskID, event.Recipient)
	case task.EventCompleted:
		return fmt.Sprintf("tarea %s completada", event.TaskID)
	case task.EventDeleted:
		return fmt.Sprintf("tarea %s eliminada", event.TaskID)
	case task.EventEdited:
		return fmt.Sprintf("tarea %s modificada", event.TaskID)
	}
	return fmt.Sprintf("tarea %s: %s", event.TaskID, event.Type)
}
