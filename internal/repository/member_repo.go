package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"project-reaper/internal/database"
	"project-reaper/internal/model"
)

type MemberRepository struct {
	db database.DBTX
}

func NewMemberRepository(db database.DBTX) *MemberRepository {
	return &MemberRepository{db: db}
}

// AccessLevel returns 0 when the user is not a member.
func (r *MemberRepository) AccessLevel(ctx context.Context, projectID int64, userID string) (int, error) {
	var level int
	err := r.db.QueryRow(ctx,
		`SELECT access_level FROM project_members WHERE project_id = $1 AND user_id = $2`,
		projectID, userID).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find member access level: %w", err)
	}
	return level, nil
}

func (r *MemberRepository) Add(ctx context.Context, m model.Member) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO project_members (project_id, user_id, access_level)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (project_id, user_id) DO UPDATE SET access_level = EXCLUDED.access_level`,
		m.ProjectID, m.UserID, m.AccessLevel)
	if err != nil {
		return fmt.Errorf("add project member: %w", err)
	}
	return nil
}

func (r *MemberRepository) DeleteByProject(ctx context.Context, projectID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM project_members WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, fmt.Errorf("truncate project members: %w", err)
	}
	return tag.RowsAffected(), nil
}
