//go:build integration

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"project-reaper/internal/database"
	"project-reaper/internal/model"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.New(ctx, url, 4, 1)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.EnsureSchema(ctx))
	_, err = db.Pool.Exec(ctx,
		`TRUNCATE audit_entries, system_hooks, jobs, fork_links, project_members, projects, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return db
}

func seedProject(t *testing.T, db *database.DB, path string) model.Project {
	t.Helper()

	users := NewUserRepository(db.Pool)
	owner := model.User{ID: uuid.NewString(), Username: "owner-" + path, PasswordHash: "x", Role: model.RoleMember}
	require.NoError(t, users.Create(context.Background(), owner))

	p, err := NewProjectRepository(db.Pool).Create(context.Background(), model.Project{
		Name: path, Path: "group/" + path, CreatorID: owner.ID,
	})
	require.NoError(t, err)
	require.NoError(t, NewMemberRepository(db.Pool).Add(context.Background(), model.Member{
		ProjectID: p.ID, UserID: owner.ID, AccessLevel: model.AccessOwner,
	}))
	return p
}

func TestStoreTeardownCommits(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := NewStore(db.Pool)

	parent := seedProject(t, db, "parent")
	fork := seedProject(t, db, "fork")
	require.NoError(t, NewForkRepository(db.Pool).Link(ctx, model.ForkLink{ForkedToID: fork.ID, ForkedFromID: parent.ID}))

	loaded, err := store.FindByID(ctx, fork.ID)
	require.NoError(t, err)
	require.Equal(t, parent.ID, loaded.ForkedFromID)

	err = store.InTx(ctx, func(tx ProjectTx) error {
		if _, err := tx.UnlinkForks(ctx, fork.ID); err != nil {
			return err
		}
		if _, err := tx.TruncateMembers(ctx, fork.ID); err != nil {
			return err
		}
		return tx.DeleteProject(ctx, fork.ID)
	})
	require.NoError(t, err)

	_, err = store.FindByID(ctx, fork.ID)
	require.ErrorIs(t, err, model.ErrProjectNotFound)
}

func TestStoreRollbackDiscardsEnqueuedJob(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := NewStore(db.Pool)
	jobs := NewJobRepository(db.Pool)

	p := seedProject(t, db, "rollback")
	jobID := uuid.NewString()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(tx ProjectTx) error {
		require.NoError(t, tx.EnqueueJob(ctx, model.Job{ID: jobID, Type: model.JobRemoveRepository}))
		require.NoError(t, tx.UpdateDeletionState(ctx, p.ID, model.ProjectPendingDeletion, ""))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = jobs.FindByID(ctx, jobID)
	require.ErrorIs(t, err, model.ErrJobNotFound)

	reloaded, err := store.FindByID(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, model.ProjectActive, reloaded.State)
}

func TestDeleteWithMembersIsReferenced(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p := seedProject(t, db, "referenced")
	err := NewProjectRepository(db.Pool).Delete(ctx, p.ID)
	require.ErrorIs(t, err, model.ErrProjectReferenced)
}

func TestJobClaimLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	jobs := NewJobRepository(db.Pool)

	payload, err := json.Marshal(model.RemoveRepositoryPayload{Path: "group/p+1+deleted"})
	require.NoError(t, err)

	now := time.Now().UTC()
	later := model.Job{ID: uuid.NewString(), Type: model.JobRemoveRepository, Payload: payload, MaxAttempts: 2, RunAt: now.Add(time.Hour)}
	due := model.Job{ID: uuid.NewString(), Type: model.JobRemoveRepository, Payload: payload, MaxAttempts: 2, RunAt: now.Add(-time.Second)}
	require.NoError(t, jobs.EnqueueJob(ctx, later))
	require.NoError(t, jobs.EnqueueJob(ctx, due))

	claimed, err := jobs.ClaimNext(ctx, now, time.Minute, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	require.Equal(t, due.ID, claimed.ID)
	require.Equal(t, model.JobRunning, claimed.Status)
	require.Equal(t, 1, claimed.Attempts)

	none, err := jobs.ClaimNext(ctx, now, time.Minute, time.Hour)
	require.NoError(t, err)
	require.Nil(t, none)

	require.NoError(t, jobs.MarkFailed(ctx, due.ID, "disk busy", false))
	retried, err := jobs.ClaimNext(ctx, time.Now().UTC().Add(2*time.Minute), time.Minute, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, retried)
	require.Equal(t, due.ID, retried.ID)
	require.Equal(t, 2, retried.Attempts)

	require.NoError(t, jobs.MarkCompleted(ctx, due.ID))
	done, err := jobs.FindByID(ctx, due.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobCompleted, done.Status)
	require.NotNil(t, done.FinishedAt)
}

func TestStaleRunningJobIsReclaimedThenBuried(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	jobs := NewJobRepository(db.Pool)

	now := time.Now().UTC()
	job := model.Job{ID: uuid.NewString(), Type: model.JobRemoveRepository, Payload: []byte(`{}`), MaxAttempts: 2, RunAt: now}
	require.NoError(t, jobs.EnqueueJob(ctx, job))

	claimed, err := jobs.ClaimNext(ctx, now, time.Minute, 20*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	// A fresh heartbeat keeps the job with its worker.
	require.NoError(t, jobs.Heartbeat(ctx, job.ID, now.Add(30*time.Minute)))
	none, err := jobs.ClaimNext(ctx, now.Add(45*time.Minute), time.Minute, 20*time.Minute)
	require.NoError(t, err)
	require.Nil(t, none)

	reclaimed, err := jobs.ClaimNext(ctx, now.Add(2*time.Hour), time.Minute, 20*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	require.Equal(t, 2, reclaimed.Attempts)

	// Out of attempts: never claimed again, only buried.
	none, err = jobs.ClaimNext(ctx, now.Add(4*time.Hour), time.Minute, 20*time.Minute)
	require.NoError(t, err)
	require.Nil(t, none)

	buried, err := jobs.BuryStale(ctx, now.Add(4*time.Hour), 20*time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), buried)

	dead, err := jobs.FindByID(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, model.JobDead, dead.Status)
	require.NotNil(t, dead.FinishedAt)
}
