package model

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type DestroyRequest struct {
	SkipRepo bool `json:"skip_repo"`
}

type ScheduledDestroyResponse struct {
	ProjectID int64        `json:"project_id"`
	JobID     string       `json:"job_id"`
	State     ProjectState `json:"state"`
}
