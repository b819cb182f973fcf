package service

import (
	"context"
	"log/slog"
	"time"

	"project-reaper/internal/model"
	"project-reaper/internal/repository"
	"project-reaper/internal/storage"
)

// Relocator moves repositories out of the live namespace.
type Relocator struct {
	storage   storage.Backend
	scheduler *RemovalScheduler
	delay     time.Duration
}

func NewRelocator(backend storage.Backend, scheduler *RemovalScheduler, delay time.Duration) *Relocator {
	return &Relocator{storage: backend, scheduler: scheduler, delay: delay}
}

// Relocate renames livePath.git to trashPath.git and schedules its removal
// through tx. A missing repository is a success with nothing scheduled.
// It returns false if the move fails, or if removal cannot be scheduled, in
// which case the move is undone.
func (r *Relocator) Relocate(ctx context.Context, tx repository.JobEnqueuer, livePath string, trashPath string) bool {
	src := livePath + model.RepositorySuffix
	dst := trashPath + model.RepositorySuffix
	log := slog.With("from", src, "to", dst)

	exists, err := r.storage.Exists(src)
	if err != nil {
		log.Error("repository probe failed", "error", err)
		return false
	}
	if !exists {
		return true
	}

	if err := r.storage.Move(src, dst); err != nil {
		log.Error("repository move failed", "error", err)
		return false
	}
	log.Info("repository moved")

	jobID, err := r.scheduler.Schedule(ctx, tx, dst, r.delay)
	if err != nil {
		log.Error("scheduling repository removal failed", "error", err)
		if undoErr := r.storage.Move(dst, src); undoErr != nil {
			log.Error("restoring repository failed", "error", undoErr)
		}
		return false
	}

	log.Info("repository removal scheduled", "job_id", jobID, "delay", r.delay)
	return true
}
