package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"project-reaper/internal/model"
)

// repoKeys are cached per repository, independent of branch.
var repoKeys = []string{
	"exists",
	"size",
	"root_ref",
	"readme",
	"branch_names",
	"tag_names",
	"branch_count",
	"tag_count",
	"commit_count",
}

const scanBatch = 200

// Client is the part of *redis.Client the invalidator uses.
type Client interface {
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
}

// RefLister reads branch names of a repository on disk.
type RefLister interface {
	ListRefs(repoPath string) ([]string, error)
}

// Invalidator drops cached state derived from a project's repositories.
type Invalidator interface {
	Invalidate(ctx context.Context, project model.Project)
}

type NopInvalidator struct{}

func (NopInvalidator) Invalidate(context.Context, model.Project) {}

// RedisInvalidator deletes repository and fork-count keys. Failures are logged
// and swallowed; a stale cache entry never blocks a destroy.
type RedisInvalidator struct {
	client Client
	refs   RefLister
	prefix string
}

func NewRedisInvalidator(client Client, refs RefLister, prefix string) *RedisInvalidator {
	return &RedisInvalidator{client: client, refs: refs, prefix: prefix}
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr string, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (c *RedisInvalidator) Invalidate(ctx context.Context, project model.Project) {
	log := slog.With("project_id", project.ID, "path", project.Path)

	for _, repoPath := range []string{project.DiskPath(), project.WikiPath()} {
		if err := c.invalidateRepository(ctx, repoPath); err != nil {
			log.Warn("repository cache invalidation failed", "repo", repoPath, "error", err)
		}
	}

	forkKeys := []string{c.ForksCountKey(project.ID)}
	if project.ForkedFromID != 0 {
		forkKeys = append(forkKeys, c.ForksCountKey(project.ForkedFromID))
	}
	if err := c.client.Del(ctx, forkKeys...).Err(); err != nil {
		log.Warn("fork count cache invalidation failed", "error", err)
	}
}

func (c *RedisInvalidator) invalidateRepository(ctx context.Context, repoPath string) error {
	keys := make([]string, 0, len(repoKeys))
	for _, name := range repoKeys {
		keys = append(keys, c.RepoKey(repoPath, name))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete repository keys: %w", err)
	}

	branches, err := c.refs.ListRefs(repoPath + model.RepositorySuffix)
	if err != nil {
		return fmt.Errorf("list branches: %w", err)
	}

	for _, branch := range branches {
		if err := c.deleteMatching(ctx, c.BranchPattern(repoPath, branch)); err != nil {
			return fmt.Errorf("delete keys of branch %q: %w", branch, err)
		}
	}
	return nil
}

func (c *RedisInvalidator) deleteMatching(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (c *RedisInvalidator) RepoKey(repoPath string, name string) string {
	return c.prefix + "repo:" + repoPath + ":" + name
}

func (c *RedisInvalidator) BranchPattern(repoPath string, branch string) string {
	return c.prefix + "repo:" + repoPath + ":branch:" + branch + ":*"
}

func (c *RedisInvalidator) ForksCountKey(projectID int64) string {
	return fmt.Sprintf("%sproject:%d:forks_count", c.prefix, projectID)
}
