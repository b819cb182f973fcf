package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"project-reaper/internal/event"
	"project-reaper/internal/model"
	"project-reaper/internal/repository"
	"project-reaper/internal/storage"
	"project-reaper/internal/worker"
)

const deletedFlag = "+deleted"

// RemovalPath derives the trash location of a repository path. "+" cannot
// appear in a project path, so no live project can claim it.
//
//	group/cookies -> group/cookies+119+deleted
func RemovalPath(path string, projectID int64) string {
	return path + "+" + strconv.FormatInt(projectID, 10) + deletedFlag
}

// RemovalScheduler enqueues delayed permanent removal of trashed repositories.
type RemovalScheduler struct {
	maxAttempts int
	now         func() time.Time
}

func NewRemovalScheduler(maxAttempts int) *RemovalScheduler {
	return &RemovalScheduler{
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Schedule enqueues removal of trashPath to run after delay. Passing a
// transaction as q ties the job to that transaction's commit.
func (s *RemovalScheduler) Schedule(ctx context.Context, q repository.JobEnqueuer, trashPath string, delay time.Duration) (string, error) {
	payload, err := json.Marshal(model.RemoveRepositoryPayload{Path: trashPath})
	if err != nil {
		return "", fmt.Errorf("encode removal payload: %w", err)
	}

	job := model.Job{
		ID:          uuid.NewString(),
		Type:        model.JobRemoveRepository,
		Payload:     payload,
		MaxAttempts: s.maxAttempts,
		RunAt:       s.now().Add(delay),
	}
	if err := q.EnqueueJob(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// RepositoryRemover permanently deletes trashed repositories.
type RepositoryRemover struct {
	storage storage.Backend
	bus     event.Bus
}

func NewRepositoryRemover(backend storage.Backend, bus event.Bus) *RepositoryRemover {
	return &RepositoryRemover{storage: backend, bus: bus}
}

// HandleJob is the worker handler for remove_repository jobs. Removing a
// path that is already gone succeeds.
func (r *RepositoryRemover) HandleJob(_ context.Context, job model.Job) error {
	var payload model.RemoveRepositoryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return worker.Permanent(fmt.Errorf("decode removal payload: %w", err))
	}

	path := strings.TrimSuffix(payload.Path, model.RepositorySuffix)
	if !strings.HasSuffix(path, deletedFlag) {
		return worker.Permanent(fmt.Errorf("%w: refusing to remove %q without %s marker", model.ErrInvalidInput, payload.Path, deletedFlag))
	}

	if err := r.storage.RemoveAll(payload.Path); err != nil {
		return err
	}

	slog.Info("trashed repository removed", "path", payload.Path, "job_id", job.ID)
	if r.bus != nil {
		r.bus.Publish(event.New(event.TypeRepositoryRemoved, map[string]any{"path": payload.Path}, ""))
	}
	return nil
}
