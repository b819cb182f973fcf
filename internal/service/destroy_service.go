package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"project-reaper/internal/event"
	"project-reaper/internal/model"
	"project-reaper/internal/repository"
	"project-reaper/internal/worker"
)

const (
	msgRegistryFailed = "Failed to remove some tags in project container registry. Please try again or contact administrator."
	msgRepoFailed     = "Failed to remove project repository. Please try again or contact administrator."
	msgWikiFailed     = "Failed to remove wiki repository. Please try again or contact administrator."
	msgProjectFailed  = "Failed to remove project. Please try again or contact administrator."
	msgActorMissing   = "The user who scheduled this deletion no longer exists."
	msgActorForbidden = "The user who scheduled this deletion is not allowed to remove this project."
)

// DestroyError is a failure the destroy workflow expects and recovers from:
// the transaction is rolled back and Message is stored on the project.
type DestroyError struct {
	Message string
	Err     error
}

func (e *DestroyError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DestroyError) Unwrap() error { return e.Err }

// TeardownCapabilities toggles optional teardown steps.
type TeardownCapabilities struct {
	Registry bool
}

type Authorizer interface {
	Can(ctx context.Context, actor model.Actor, action string, project model.Project) bool
}

type CacheInvalidator interface {
	Invalidate(ctx context.Context, project model.Project)
}

// TagRegistry holds container image tags keyed by project path.
type TagRegistry interface {
	HasTags(ctx context.Context, repository string) (bool, error)
	DeleteTags(ctx context.Context, repository string) bool
}

type Notifier interface {
	Execute(ctx context.Context, project model.Project, actor model.Actor, eventName string)
}

type Auditor interface {
	Log(ctx context.Context, action string, actor model.Actor, status string, resource string, details any, errText string)
}

type DestroyDeps struct {
	Projects     repository.ProjectStore
	Users        repository.UserStore
	Policy       Authorizer
	Cache        CacheInvalidator
	Registry     TagRegistry
	Relocator    *Relocator
	Hooks        Notifier
	Bus          event.Bus
	Audit        Auditor
	Capabilities TeardownCapabilities
	// JobMaxAttempts bounds retries of scheduled destroy jobs.
	JobMaxAttempts int
}

// DestroyService removes a project with its database rows and repositories.
type DestroyService struct {
	projects       repository.ProjectStore
	users          repository.UserStore
	policy         Authorizer
	cache          CacheInvalidator
	registry       TagRegistry
	relocator      *Relocator
	hooks          Notifier
	bus            event.Bus
	audit          Auditor
	caps           TeardownCapabilities
	jobMaxAttempts int
}

func NewDestroyService(deps DestroyDeps) *DestroyService {
	return &DestroyService{
		projects:       deps.Projects,
		users:          deps.Users,
		policy:         deps.Policy,
		cache:          deps.Cache,
		registry:       deps.Registry,
		relocator:      deps.Relocator,
		hooks:          deps.Hooks,
		bus:            deps.Bus,
		audit:          deps.Audit,
		caps:           deps.Capabilities,
		jobMaxAttempts: deps.JobMaxAttempts,
	}
}

// Execute destroys project on behalf of actor. It reports false without
// changing anything when actor may not remove the project. Any failure after
// that is rolled back: the project is marked failed with a message. Expected
// failures yield (false, nil); anything else is returned as the error.
func (s *DestroyService) Execute(ctx context.Context, project *model.Project, actor model.Actor, opts model.DestroyOptions) (bool, error) {
	if project == nil {
		return false, nil
	}
	if !s.policy.Can(ctx, actor, ActionRemoveProject, *project) {
		slog.Warn("project destroy denied", "project_id", project.ID, "user_id", actor.UserID)
		return false, nil
	}

	// Once authorized the teardown runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	if err := s.destroy(ctx, project, actor, opts); err != nil {
		var destroyErr *DestroyError
		if errors.As(err, &destroyErr) {
			s.rollback(ctx, project, actor, destroyErr.Message)
			return false, nil
		}
		s.rollback(ctx, project, actor, err.Error())
		return false, err
	}

	s.afterDestroy(ctx, *project, actor, opts)
	return true, nil
}

// destroy covers everything up to the commit. A panic here rolls back and is
// raised again.
func (s *DestroyService) destroy(ctx context.Context, project *model.Project, actor model.Actor, opts model.DestroyOptions) error {
	defer func() {
		if rec := recover(); rec != nil {
			s.rollback(ctx, project, actor, fmt.Sprint(rec))
			panic(rec)
		}
	}()

	if err := s.markPending(ctx, project); err != nil {
		return err
	}

	// Cache expiry reads branch names from disk, so it has to run before
	// the repositories are moved.
	s.cache.Invalidate(ctx, *project)

	return s.projects.InTx(ctx, func(tx repository.ProjectTx) error {
		return s.teardown(ctx, tx, *project, opts)
	})
}

// afterDestroy runs once the removal is committed. The project is gone, so a
// panicking hook is only logged.
func (s *DestroyService) afterDestroy(ctx context.Context, project model.Project, actor model.Actor, opts model.DestroyOptions) {
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("project destroy hooks panicked", "project_id", project.ID, "panic", fmt.Sprint(rec))
			}
		}()
		s.hooks.Execute(ctx, project, actor, model.HookProjectDestroy)
	}()

	s.publish(event.TypeProjectDestroyed, project, actor, "")
	s.audit.Log(ctx, AuditProjectDestroy, actor, "success", project.Path, map[string]any{
		"project_id": project.ID,
		"skip_repo":  opts.SkipRepo,
	}, "")
	slog.Info("project removed", "project_id", project.ID, "path", project.Path, "user_id", actor.UserID)
}

// CanDestroy reports whether actor may remove project.
func (s *DestroyService) CanDestroy(ctx context.Context, actor model.Actor, project model.Project) bool {
	return s.policy.Can(ctx, actor, ActionRemoveProject, project)
}

// teardown runs inside one transaction. Any error rolls it back.
func (s *DestroyService) teardown(ctx context.Context, tx repository.ProjectTx, project model.Project, opts model.DestroyOptions) error {
	if !s.removeRegistryTags(ctx, project) {
		return &DestroyError{Message: msgRegistryFailed}
	}

	if !opts.SkipRepo {
		if !s.relocator.Relocate(ctx, tx, project.DiskPath(), RemovalPath(project.DiskPath(), project.ID)) {
			return &DestroyError{Message: msgRepoFailed}
		}
		if !s.relocator.Relocate(ctx, tx, project.WikiPath(), RemovalPath(project.WikiPath(), project.ID)) {
			return &DestroyError{Message: msgWikiFailed}
		}
	}

	if _, err := tx.UnlinkForks(ctx, project.ID); err != nil {
		return err
	}
	if _, err := tx.TruncateMembers(ctx, project.ID); err != nil {
		return err
	}

	if err := tx.DeleteProject(ctx, project.ID); err != nil {
		if errors.Is(err, model.ErrProjectReferenced) || errors.Is(err, model.ErrProjectNotFound) {
			return &DestroyError{Message: msgProjectFailed, Err: err}
		}
		return err
	}

	return nil
}

func (s *DestroyService) removeRegistryTags(ctx context.Context, project model.Project) bool {
	if !s.caps.Registry || s.registry == nil {
		return true
	}

	has, err := s.registry.HasTags(ctx, project.Path)
	if err != nil {
		slog.Error("registry tag lookup failed", "project_id", project.ID, "error", err)
		return false
	}
	if !has {
		return true
	}
	return s.registry.DeleteTags(ctx, project.Path)
}

func (s *DestroyService) markPending(ctx context.Context, project *model.Project) error {
	if project.PendingDelete() {
		return nil
	}
	if !project.State.CanTransition(model.ProjectPendingDeletion) {
		return fmt.Errorf("%w: %s to %s", model.ErrInvalidTransition, project.State, model.ProjectPendingDeletion)
	}

	if err := s.projects.UpdateDeletionState(ctx, project.ID, model.ProjectPendingDeletion, ""); err != nil {
		return fmt.Errorf("mark project pending deletion: %w", err)
	}
	project.State = model.ProjectPendingDeletion
	project.DeleteError = ""
	return nil
}

// rollback returns project to a usable state annotated with message. The
// write runs outside the aborted transaction and ignores cancellation.
func (s *DestroyService) rollback(ctx context.Context, project *model.Project, actor model.Actor, message string) {
	if project == nil {
		return
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.projects.UpdateDeletionState(ctx, project.ID, model.ProjectFailed, message); err != nil {
		slog.Error("recording project deletion failure failed", "project_id", project.ID, "error", err)
	} else {
		project.State = model.ProjectFailed
		project.DeleteError = message
	}

	slog.Error("project deletion failed", "project_id", project.ID, "path", project.Path, "delete_error", message)
	s.publish(event.TypeProjectDestroyFailed, *project, actor, message)
	s.audit.Log(ctx, AuditProjectDestroyFailed, actor, "failed", project.Path, map[string]any{"project_id": project.ID}, message)
}

// ScheduleAsync marks project pending and enqueues a destroy job in one
// transaction, then returns without waiting for the teardown.
func (s *DestroyService) ScheduleAsync(ctx context.Context, project *model.Project, actor model.Actor, opts model.DestroyOptions) (string, error) {
	if project == nil {
		return "", model.ErrProjectNotFound
	}
	if !s.policy.Can(ctx, actor, ActionRemoveProject, *project) {
		return "", model.ErrForbidden
	}
	if project.PendingDelete() {
		return "", model.ErrDeletionPending
	}
	if !project.State.CanTransition(model.ProjectPendingDeletion) {
		return "", fmt.Errorf("%w: %s to %s", model.ErrInvalidTransition, project.State, model.ProjectPendingDeletion)
	}

	payload, err := json.Marshal(model.DestroyProjectPayload{
		ProjectID: project.ID,
		ActorID:   actor.UserID,
		Options:   opts,
	})
	if err != nil {
		return "", fmt.Errorf("encode destroy payload: %w", err)
	}

	job := model.Job{
		ID:          uuid.NewString(),
		Type:        model.JobDestroyProject,
		Payload:     payload,
		MaxAttempts: s.jobMaxAttempts,
	}

	err = s.projects.InTx(ctx, func(tx repository.ProjectTx) error {
		if err := tx.UpdateDeletionState(ctx, project.ID, model.ProjectPendingDeletion, ""); err != nil {
			return err
		}
		return tx.EnqueueJob(ctx, job)
	})
	if err != nil {
		return "", fmt.Errorf("schedule project destroy: %w", err)
	}

	project.State = model.ProjectPendingDeletion
	project.DeleteError = ""

	slog.Info("project destruction scheduled", "project_id", project.ID, "path", project.Path, "user_id", actor.UserID, "job_id", job.ID)
	s.publish(event.TypeProjectDestroyScheduled, *project, actor, "")
	s.audit.Log(ctx, AuditProjectDestroyAsync, actor, "success", project.Path, map[string]any{
		"project_id": project.ID,
		"job_id":     job.ID,
	}, "")

	return job.ID, nil
}

// HandleDestroyJob is the worker handler for destroy_project jobs. The
// project and actor are loaded fresh; a project that is already gone counts
// as done.
func (s *DestroyService) HandleDestroyJob(ctx context.Context, job model.Job) error {
	var payload model.DestroyProjectPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return worker.Permanent(fmt.Errorf("decode destroy payload: %w", err))
	}

	project, err := s.projects.FindByID(ctx, payload.ProjectID)
	if errors.Is(err, model.ErrProjectNotFound) {
		slog.Info("project already removed", "project_id", payload.ProjectID, "job_id", job.ID)
		return nil
	}
	if err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, payload.ActorID)
	if errors.Is(err, model.ErrUserNotFound) {
		s.rollback(ctx, &project, model.Actor{UserID: payload.ActorID}, msgActorMissing)
		return nil
	}
	if err != nil {
		return err
	}

	actor := model.ActorFromUser(user)
	if !s.policy.Can(ctx, actor, ActionRemoveProject, project) {
		s.rollback(ctx, &project, actor, msgActorForbidden)
		return nil
	}

	removed, err := s.Execute(ctx, &project, actor, payload.Options)
	if err != nil {
		return err
	}
	if !removed {
		slog.Warn("scheduled project destroy failed", "project_id", project.ID, "job_id", job.ID, "delete_error", project.DeleteError)
	}
	return nil
}

func (s *DestroyService) publish(typ event.Type, project model.Project, actor model.Actor, errText string) {
	if s.bus == nil {
		return
	}
	payload := map[string]any{
		"project_id": project.ID,
		"path":       project.Path,
		"state":      project.State,
	}
	if errText != "" {
		payload["delete_error"] = errText
	}
	s.bus.Publish(event.New(typ, payload, actor.UserID))
}
