package model

import "time"

const HookProjectDestroy = "project_destroy"

type SystemHook struct {
	ID      int64  `json:"id"`
	URL     string `json:"url"`
	Token   string `json:"-"`
	Enabled bool   `json:"enabled"`
}

type HookEvent struct {
	EventName  string `json:"event_name"`
	ProjectID  int64  `json:"project_id"`
	Path       string `json:"path_with_namespace"`
	Name       string `json:"name"`
	ActorID    string `json:"actor_id,omitempty"`
	OccurredAt string `json:"created_at"`
}

type AuditEntry struct {
	Action     string    `json:"action"`
	OccurredAt time.Time `json:"occurred_at"`
	Actor      Actor     `json:"actor"`
	Status     string    `json:"status"`
	Resource   string    `json:"resource,omitempty"`
	Details    any       `json:"details,omitempty"`
	Error      string    `json:"error,omitempty"`
}
