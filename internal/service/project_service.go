package service

import (
	"context"
	"log/slog"
	"path"

	"project-reaper/internal/model"
	"project-reaper/internal/repository"
	"project-reaper/internal/util"
)

type ProjectCreator interface {
	CreateProject(ctx context.Context, fn func(w repository.ProjectWriter) error) error
}

// ProjectService registers projects so they can later be destroyed.
type ProjectService struct {
	store ProjectCreator
}

func NewProjectService(store ProjectCreator) *ProjectService {
	return &ProjectService{store: store}
}

// Create registers a project at rawPath owned by owner. A non-zero forkOf
// links the new project into that project's fork network.
func (s *ProjectService) Create(ctx context.Context, rawPath string, owner model.User, forkOf int64) (model.Project, error) {
	projectPath, err := util.NormalizeProjectPath(rawPath)
	if err != nil {
		return model.Project{}, err
	}

	var created model.Project
	err = s.store.CreateProject(ctx, func(w repository.ProjectWriter) error {
		p, err := w.Create(ctx, model.Project{
			Name:      path.Base(projectPath),
			Path:      projectPath,
			CreatorID: owner.ID,
		})
		if err != nil {
			return err
		}

		if err := w.AddMember(ctx, model.Member{ProjectID: p.ID, UserID: owner.ID, AccessLevel: model.AccessOwner}); err != nil {
			return err
		}

		if forkOf > 0 {
			if err := w.LinkFork(ctx, model.ForkLink{ForkedToID: p.ID, ForkedFromID: forkOf}); err != nil {
				return err
			}
			p.ForkedFromID = forkOf
		}

		created = p
		return nil
	})
	if err != nil {
		return model.Project{}, err
	}

	slog.Info("project created", "project_id", created.ID, "path", created.Path, "user_id", owner.ID)
	return created, nil
}
