package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"project-reaper/internal/model"
)

type memberLevels map[string]int

func (m memberLevels) AccessLevel(_ context.Context, _ int64, userID string) (int, error) {
	if userID == "broken" {
		return 0, errors.New("db down")
	}
	return m[userID], nil
}

func TestPolicyRemoveProject(t *testing.T) {
	t.Parallel()

	policy := NewPolicy(memberLevels{
		"maint": model.AccessMaintainer,
		"owner": model.AccessOwner,
	})
	project := model.Project{ID: 1, CreatorID: "creator"}
	ctx := context.Background()

	require.True(t, policy.Can(ctx, model.Actor{UserID: "root", Role: model.RoleAdmin}, ActionRemoveProject, project))
	require.True(t, policy.Can(ctx, model.Actor{UserID: "creator"}, ActionRemoveProject, project))
	require.True(t, policy.Can(ctx, model.Actor{UserID: "owner"}, ActionRemoveProject, project))
	require.False(t, policy.Can(ctx, model.Actor{UserID: "maint"}, ActionRemoveProject, project))
	require.False(t, policy.Can(ctx, model.Actor{UserID: "stranger"}, ActionRemoveProject, project))
	require.False(t, policy.Can(ctx, model.Actor{UserID: "broken"}, ActionRemoveProject, project))
	require.False(t, policy.Can(ctx, model.Actor{}, ActionRemoveProject, project))
	require.False(t, policy.Can(ctx, model.Actor{UserID: "root", Role: model.RoleAdmin}, "rename_project", project))
}
