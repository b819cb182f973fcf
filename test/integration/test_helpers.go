//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"project-reaper/internal/app"
	"project-reaper/internal/config"
	"project-reaper/internal/handler"
	"project-reaper/internal/middleware"
	"project-reaper/internal/model"
	"project-reaper/internal/router"
)

type testEnv struct {
	core   *app.Core
	server *httptest.Server
	root   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	root := t.TempDir()
	cfg := &config.Config{
		ServerPort:          "8080",
		RequestTimeout:      30 * time.Second,
		DatabaseURL:         url,
		DBMaxConns:          4,
		DBMinConns:          1,
		RepositoryRoot:      root,
		JWTSecret:           "test-secret",
		JWTAccessTTL:        15 * time.Minute,
		CORSOrigins:         []string{"*"},
		RateLimitRPM:        1000,
		AuthRateLimitRPM:    1000,
		DestroyRateLimitRPM: 1000,
		CacheKeyPrefix:      "cache",
		WorkerConcurrency:   1,
		WorkerPollInterval:  50 * time.Millisecond,
		JobMaxAttempts:      3,
		JobRetryDelay:       time.Second,
		JobStaleAfter:       time.Minute,
		HookTimeout:         time.Second,
	}

	ctx := context.Background()
	core, err := app.NewCore(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(core.Close)

	_, err = core.DB.Pool.Exec(ctx,
		`TRUNCATE audit_entries, system_hooks, jobs, fork_links, project_members, projects, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	server := httptest.NewServer(router.New(cfg, middleware.NewAuthMiddleware(core.Auth), router.Handlers{
		Auth:    handler.NewAuthHandler(core.Auth),
		Project: handler.NewProjectHandler(core.Projects, core.Destroy),
		Jobs:    handler.NewJobsHandler(core.Jobs),
		Health:  handler.NewHealthHandler(core.DB),
	}))
	t.Cleanup(server.Close)

	return &testEnv{core: core, server: server, root: root}
}

// createUser adds a user and returns it with an access token.
func (e *testEnv) createUser(t *testing.T, username string, role string) (model.AuthUser, string) {
	t.Helper()

	user, err := e.core.Auth.CreateUser(context.Background(), username, "password-"+username, role)
	require.NoError(t, err)

	body, err := json.Marshal(model.LoginRequest{Username: username, Password: "password-" + username})
	require.NoError(t, err)

	resp, err := http.Post(e.server.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed struct {
		Data model.TokenResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.NotEmpty(t, parsed.Data.AccessToken)

	return user, parsed.Data.AccessToken
}

// createProject inserts a project owned by creatorID and lays out a bare
// repository with one branch, plus a wiki, under the repository root.
func (e *testEnv) createProject(t *testing.T, path string, creatorID string) model.Project {
	t.Helper()

	project, err := e.core.Creator.Create(context.Background(), path, model.User{ID: creatorID}, 0)
	require.NoError(t, err)

	for _, repo := range []string{project.DiskPath(), project.WikiPath()} {
		heads := filepath.Join(e.root, filepath.FromSlash(repo)+model.RepositorySuffix, "refs", "heads")
		require.NoError(t, os.MkdirAll(heads, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(heads, "main"), []byte("0123456789abcdef0123456789abcdef01234567\n"), 0o644))
	}

	return project
}

func (e *testEnv) repoExists(t *testing.T, relPath string) bool {
	t.Helper()

	ok, err := e.core.Storage.Exists(relPath)
	require.NoError(t, err)
	return ok
}

func (e *testEnv) do(t *testing.T, method string, path string, body []byte, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, e.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
