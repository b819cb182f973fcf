package repository

import (
	"context"
	"fmt"

	"project-reaper/internal/database"
	"project-reaper/internal/model"
)

type HookRepository struct {
	db database.DBTX
}

func NewHookRepository(db database.DBTX) *HookRepository {
	return &HookRepository{db: db}
}

func (r *HookRepository) ListEnabled(ctx context.Context) ([]model.SystemHook, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, url, token, enabled FROM system_hooks WHERE enabled ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list system hooks: %w", err)
	}
	defer rows.Close()

	hooks := make([]model.SystemHook, 0)
	for rows.Next() {
		var h model.SystemHook
		if err := rows.Scan(&h.ID, &h.URL, &h.Token, &h.Enabled); err != nil {
			return nil, fmt.Errorf("scan system hook: %w", err)
		}
		hooks = append(hooks, h)
	}
	return hooks, rows.Err()
}

func (r *HookRepository) Create(ctx context.Context, h model.SystemHook) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO system_hooks (url, token, enabled) VALUES ($1, $2, $3) RETURNING id`,
		h.URL, h.Token, h.Enabled).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create system hook: %w", err)
	}
	return id, nil
}
