package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"project-reaper/internal/database"
	"project-reaper/internal/model"
)

type ProjectRepository struct {
	db database.DBTX
}

func NewProjectRepository(db database.DBTX) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) FindByID(ctx context.Context, id int64) (model.Project, error) {
	var p model.Project
	var creatorID *string
	var forkedFrom *int64
	err := r.db.QueryRow(ctx,
		`SELECT p.id, p.name, p.path, p.creator_id, f.forked_from_id,
		        p.state, p.delete_error, p.created_at, p.updated_at
		 FROM projects p
		 LEFT JOIN fork_links f ON f.forked_to_id = p.id
		 WHERE p.id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Path, &creatorID, &forkedFrom,
			&p.State, &p.DeleteError, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.Project{}, model.ErrProjectNotFound
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("find project by id: %w", err)
	}

	if creatorID != nil {
		p.CreatorID = *creatorID
	}
	if forkedFrom != nil {
		p.ForkedFromID = *forkedFrom
	}
	return p, nil
}

func (r *ProjectRepository) Create(ctx context.Context, p model.Project) (model.Project, error) {
	now := time.Now().UTC()
	if p.State == "" {
		p.State = model.ProjectActive
	}

	var creatorID *string
	if p.CreatorID != "" {
		creatorID = &p.CreatorID
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO projects (name, path, creator_id, state, delete_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 RETURNING id`,
		p.Name, p.Path, creatorID, p.State, p.DeleteError, now).Scan(&p.ID)
	if database.IsUniqueViolation(err) {
		return model.Project{}, fmt.Errorf("%w: project path %q is taken", model.ErrPathConflict, p.Path)
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("create project: %w", err)
	}

	p.CreatedAt = now
	p.UpdatedAt = now
	return p, nil
}

func (r *ProjectRepository) UpdateDeletionState(ctx context.Context, id int64, state model.ProjectState, deleteError string) error {
	if !state.Valid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidTransition, state)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE projects SET state = $2, delete_error = $3, updated_at = $4 WHERE id = $1`,
		id, state, deleteError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update project deletion state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrProjectNotFound
	}
	return nil
}

func (r *ProjectRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if database.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: %v", model.ErrProjectReferenced, err)
	}
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrProjectNotFound
	}
	return nil
}
