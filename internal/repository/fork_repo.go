package repository

import (
	"context"
	"fmt"

	"project-reaper/internal/database"
	"project-reaper/internal/model"
)

type ForkRepository struct {
	db database.DBTX
}

func NewForkRepository(db database.DBTX) *ForkRepository {
	return &ForkRepository{db: db}
}

func (r *ForkRepository) Link(ctx context.Context, link model.ForkLink) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO fork_links (forked_to_id, forked_from_id) VALUES ($1, $2)`,
		link.ForkedToID, link.ForkedFromID)
	if database.IsForeignKeyViolation(err) {
		return fmt.Errorf("link fork to %d: %w", link.ForkedFromID, model.ErrProjectNotFound)
	}
	if err != nil {
		return fmt.Errorf("link fork: %w", err)
	}
	return nil
}

// DeleteByProject removes the project's own fork link and detaches any forks
// made from it.
func (r *ForkRepository) DeleteByProject(ctx context.Context, projectID int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM fork_links WHERE forked_to_id = $1 OR forked_from_id = $1`, projectID)
	if err != nil {
		return 0, fmt.Errorf("unlink fork network: %w", err)
	}
	return tag.RowsAffected(), nil
}
