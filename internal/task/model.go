package task

import (
	"strings"
	"time"
)

// Status is the lifecycle field of a task. Stored as display text in the
// remote documents, so comparisons are always case-insensitive.
type Status string

const (
	StatusPending   Status = "Pendiente"
	StatusAssigned  Status = "Asignada"
	StatusCompleted Status = "Completada"
	StatusRejected  Status = "Rechazada"
)

func (s Status) Equals(other Status) bool {
	return strings.EqualFold(string(s), string(other))
}

func (s Status) Valid() bool {
	for _, known := range []Status{StatusPending, StatusAssigned, StatusCompleted, StatusRejected} {
		if s.Equals(known) {
			return true
		}
	}
	return false
}

// Task is a cleaning work order. An empty ID means the task has not been
// persisted yet; every task coming back from the store carries a non-empty ID.
type Task struct {
	ID             string     `bson:"_id,omitempty" json:"id"`
	Description    string     `bson:"description" json:"description"`
	Location       string     `bson:"location" json:"location"`
	Floor          string     `bson:"floor" json:"floor"`
	State          Status     `bson:"state" json:"state"`
	PhotoBeforeURL string     `bson:"photoBeforeUrl,omitempty" json:"photoBeforeUrl,omitempty"`
	PhotoAfterURL  string     `bson:"photoAfterUrl,omitempty" json:"photoAfterUrl,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt" json:"createdAt"`
	CompletedAt    *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CreatedBy      string     `bson:"createdBy" json:"createdBy"`
	AssignedTo     string     `bson:"assignedTo,omitempty" json:"assignedTo,omitempty"`
	Comment        string     `bson:"comment,omitempty" json:"comment,omitempty"`
}
