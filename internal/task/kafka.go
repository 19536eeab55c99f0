package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// TaskEvent is published for every lifecycle change so interested consumers
// (notifications, audits) can react without polling the collection.
type TaskEvent struct {
	TaskID    string    `json:"taskId"`
	Type      EventType `json:"type"`
	Actor     string    `json:"actor"`
	State     Status    `json:"state,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type EventType string

const (
	EventCreated   EventType = "created"
	EventEdited    EventType = "edited"
	EventAssigned  EventType = "assigned"
	EventCompleted EventType = "completed"
	EventDeleted   EventType = "deleted"
)

type EventProducer interface {
	SendTaskEvent(ctx context.Context, event TaskEvent) error
	Close() error
}

type kafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) EventProducer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &kafkaProducer{writer: writer}
}

func (p *kafkaProducer) SendTaskEvent(ctx context.Context, event TaskEvent) error {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		return err
	}
	message := kafka.Message{
		Key:   []byte(event.TaskID),
		Value: eventJSON,
		Time:  time.Now(),
	}
	return p.writer.WriteMessages(ctx, message)
}

func (p *kafkaProducer) Close() error {
	return p.writer.Close()
}
