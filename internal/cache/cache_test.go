package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"project-reaper/internal/model"
)

type fakeClient struct {
	deleted []string
	scanned []string
	matches map[string][]string
	delErr  error
	scanErr error
}

func (f *fakeClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.delErr != nil {
		return redis.NewIntResult(0, f.delErr)
	}
	f.deleted = append(f.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeClient) Scan(_ context.Context, _ uint64, match string, _ int64) *redis.ScanCmd {
	f.scanned = append(f.scanned, match)
	if f.scanErr != nil {
		return redis.NewScanCmdResult(nil, 0, f.scanErr)
	}
	return redis.NewScanCmdResult(f.matches[match], 0, nil)
}

type fakeRefs map[string][]string

func (f fakeRefs) ListRefs(repoPath string) ([]string, error) {
	return f[repoPath], nil
}

func TestInvalidateDeletesRepositoryBranchAndForkKeys(t *testing.T) {
	t.Parallel()

	client := &fakeClient{matches: map[string][]string{
		"rp:repo:group/proj:branch:main:*": {"rp:repo:group/proj:branch:main:last_commit"},
	}}
	refs := fakeRefs{"group/proj.git": {"main"}}
	inv := NewRedisInvalidator(client, refs, "rp:")

	inv.Invalidate(context.Background(), model.Project{ID: 7, Path: "group/proj", ForkedFromID: 3})

	require.Contains(t, client.deleted, "rp:repo:group/proj:branch_names")
	require.Contains(t, client.deleted, "rp:repo:group/proj.wiki:exists")
	require.Contains(t, client.deleted, "rp:repo:group/proj:branch:main:last_commit")
	require.Contains(t, client.deleted, "rp:project:7:forks_count")
	require.Contains(t, client.deleted, "rp:project:3:forks_count")
	require.Equal(t, []string{"rp:repo:group/proj:branch:main:*"}, client.scanned)
}

func TestInvalidateSwallowsRedisErrors(t *testing.T) {
	t.Parallel()

	client := &fakeClient{delErr: errors.New("connection refused")}
	inv := NewRedisInvalidator(client, fakeRefs{}, "")

	require.NotPanics(t, func() {
		inv.Invalidate(context.Background(), model.Project{ID: 1, Path: "a/b"})
	})
	require.Empty(t, client.deleted)
}

func TestNopInvalidator(t *testing.T) {
	t.Parallel()

	var inv Invalidator = NopInvalidator{}
	inv.Invalidate(context.Background(), model.Project{ID: 1})
}
