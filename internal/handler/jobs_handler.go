package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"project-reaper/internal/model"
)

type jobReader interface {
	FindByID(ctx context.Context, id string) (model.Job, error)
}

type JobsHandler struct {
	jobs jobReader
}

func NewJobsHandler(jobs jobReader) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

// GetJob shows a job to admins and to the user who scheduled it.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(chi.URLParam(r, "job_id"))

	job, err := h.jobs.FindByID(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}

	actor := actorFromRequest(r)
	if !actor.IsAdmin() && !scheduledBy(job, actor.UserID) {
		// Hide the job rather than confirm it exists.
		writeError(w, model.ErrJobNotFound)
		return
	}

	writeSuccess(w, http.StatusOK, job)
}

func scheduledBy(job model.Job, userID string) bool {
	if job.Type != model.JobDestroyProject || userID == "" {
		return false
	}
	var payload model.DestroyProjectPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return false
	}
	return payload.ActorID == userID
}
