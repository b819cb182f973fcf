package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeProjectDestroyScheduled Type = "project.destroy_scheduled"
	TypeProjectDestroyed        Type = "project.destroyed"
	TypeProjectDestroyFailed    Type = "project.destroy_failed"
	TypeRepositoryRemoved       Type = "repository.removed"
	TypeJobCompleted            Type = "job.completed"
	TypeJobFailed               Type = "job.failed"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload"`
	Timestamp string `json:"timestamp"`
	ActorID   string `json:"actor_id,omitempty"`
}

func New(typ Type, payload any, actorID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		ActorID:   actorID,
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}
