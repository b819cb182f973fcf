package model

import (
	"encoding/json"
	"time"
)

type JobType string

const (
	JobDestroyProject   JobType = "destroy_project"
	JobRemoveRepository JobType = "remove_repository"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobDead      JobStatus = "dead"
)

// Job is a durable background task row. RunAt gates the first attempt.
type Job struct {
	ID          string          `json:"job_id"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	RunAt       time.Time       `json:"run_at"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

type DestroyProjectPayload struct {
	ProjectID int64          `json:"project_id"`
	ActorID   string         `json:"actor_id"`
	Options   DestroyOptions `json:"options"`
}

type RemoveRepositoryPayload struct {
	Path string `json:"path"`
}
