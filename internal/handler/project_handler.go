package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"project-reaper/internal/model"
	"project-reaper/pkg/apierror"
)

type projectReader interface {
	FindByID(ctx context.Context, id int64) (model.Project, error)
}

type projectDestroyer interface {
	CanDestroy(ctx context.Context, actor model.Actor, project model.Project) bool
	Execute(ctx context.Context, project *model.Project, actor model.Actor, opts model.DestroyOptions) (bool, error)
	ScheduleAsync(ctx context.Context, project *model.Project, actor model.Actor, opts model.DestroyOptions) (string, error)
}

type ProjectHandler struct {
	projects  projectReader
	destroyer projectDestroyer
}

func NewProjectHandler(projects projectReader, destroyer projectDestroyer) *ProjectHandler {
	return &ProjectHandler{projects: projects, destroyer: destroyer}
}

func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	project, ok := h.load(w, r)
	if !ok {
		return
	}
	writeSuccess(w, http.StatusOK, project)
}

// Destroy removes the project synchronously. A rolled back attempt answers
// 422 with the recorded delete_error.
func (h *ProjectHandler) Destroy(w http.ResponseWriter, r *http.Request) {
	skipRepo, err := parseBoolQuery(r, "skip_repo")
	if err != nil {
		writeError(w, err)
		return
	}

	project, ok := h.load(w, r)
	if !ok {
		return
	}
	if project.PendingDelete() {
		writeError(w, model.ErrDeletionPending)
		return
	}

	actor := actorFromRequest(r)
	if !h.destroyer.CanDestroy(r.Context(), actor, project) {
		writeError(w, model.ErrForbidden)
		return
	}

	removed, err := h.destroyer.Execute(r.Context(), &project, actor, model.DestroyOptions{SkipRepo: skipRepo})
	if err != nil {
		writeError(w, err)
		return
	}
	if !removed {
		writeError(w, apierror.New("DESTROY_FAILED", project.DeleteError, "", http.StatusUnprocessableEntity))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ScheduleDestroy marks the project pending and queues its removal.
func (h *ProjectHandler) ScheduleDestroy(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.DestroyRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, apierror.BadRequest("invalid JSON body", ""))
		return
	}

	project, ok := h.load(w, r)
	if !ok {
		return
	}

	jobID, err := h.destroyer.ScheduleAsync(r.Context(), &project, actorFromRequest(r), model.DestroyOptions{SkipRepo: payload.SkipRepo})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/jobs/"+jobID)
	writeSuccess(w, http.StatusAccepted, model.ScheduledDestroyResponse{
		ProjectID: project.ID,
		JobID:     jobID,
		State:     project.State,
	})
}

func (h *ProjectHandler) load(w http.ResponseWriter, r *http.Request) (model.Project, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, apierror.BadRequest("invalid project id", chi.URLParam(r, "id")))
		return model.Project{}, false
	}

	project, err := h.projects.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return model.Project{}, false
	}
	return project, true
}

func parseBoolQuery(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apierror.BadRequest("invalid boolean query parameter", key)
	}
	return value, nil
}
