package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"project-reaper/internal/database"
	"project-reaper/internal/model"
)

// JobEnqueuer inserts a job row. Both the pool-bound JobRepository and a
// transaction handle satisfy it; a job enqueued through a transaction is
// only visible to workers once that transaction commits.
type JobEnqueuer interface {
	EnqueueJob(ctx context.Context, job model.Job) error
}

// ProjectTx is the set of writes allowed inside a project transaction.
type ProjectTx interface {
	JobEnqueuer
	UpdateDeletionState(ctx context.Context, id int64, state model.ProjectState, deleteError string) error
	UnlinkForks(ctx context.Context, projectID int64) (int64, error)
	TruncateMembers(ctx context.Context, projectID int64) (int64, error)
	DeleteProject(ctx context.Context, projectID int64) error
}

// ProjectStore reads projects and runs transactional work on them.
type ProjectStore interface {
	FindByID(ctx context.Context, id int64) (model.Project, error)
	UpdateDeletionState(ctx context.Context, id int64, state model.ProjectState, deleteError string) error
	InTx(ctx context.Context, fn func(tx ProjectTx) error) error
}

// ProjectWriter creates projects together with their owner and fork links.
type ProjectWriter interface {
	Create(ctx context.Context, p model.Project) (model.Project, error)
	AddMember(ctx context.Context, m model.Member) error
	LinkFork(ctx context.Context, link model.ForkLink) error
}

type MemberReader interface {
	AccessLevel(ctx context.Context, projectID int64, userID string) (int, error)
}

type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByUsername(ctx context.Context, username string) (model.User, error)
	Create(ctx context.Context, u model.User) error
}

// JobStore is the durable queue used by the worker pool.
type JobStore interface {
	JobEnqueuer
	FindByID(ctx context.Context, id string) (model.Job, error)
	ClaimNext(ctx context.Context, now time.Time, retryDelay time.Duration, staleAfter time.Duration) (*model.Job, error)
	Heartbeat(ctx context.Context, id string, at time.Time) error
	BuryStale(ctx context.Context, now time.Time, staleAfter time.Duration) (int64, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errText string, dead bool) error
}

type HookLister interface {
	ListEnabled(ctx context.Context) ([]model.SystemHook, error)
}

type AuditWriter interface {
	Log(ctx context.Context, entry model.AuditEntry) error
}

// Store is the Postgres-backed ProjectStore.
type Store struct {
	pool     *pgxpool.Pool
	projects *ProjectRepository
}

var _ ProjectStore = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, projects: NewProjectRepository(pool)}
}

func (s *Store) FindByID(ctx context.Context, id int64) (model.Project, error) {
	return s.projects.FindByID(ctx, id)
}

func (s *Store) UpdateDeletionState(ctx context.Context, id int64, state model.ProjectState, deleteError string) error {
	return s.projects.UpdateDeletionState(ctx, id, state, deleteError)
}

// CreateProject inserts p, its owner membership and an optional fork link
// in one transaction.
func (s *Store) CreateProject(ctx context.Context, fn func(w ProjectWriter) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(newTxStore(tx))
	})
}

// InTx runs fn in one transaction; any error returned by fn rolls it back.
func (s *Store) InTx(ctx context.Context, fn func(tx ProjectTx) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(newTxStore(tx))
	})
}

type txStore struct {
	projects *ProjectRepository
	members  *MemberRepository
	forks    *ForkRepository
	jobs     *JobRepository
}

func newTxStore(tx database.DBTX) *txStore {
	return &txStore{
		projects: NewProjectRepository(tx),
		members:  NewMemberRepository(tx),
		forks:    NewForkRepository(tx),
		jobs:     NewJobRepository(tx),
	}
}

func (t *txStore) Create(ctx context.Context, p model.Project) (model.Project, error) {
	return t.projects.Create(ctx, p)
}

func (t *txStore) AddMember(ctx context.Context, m model.Member) error {
	return t.members.Add(ctx, m)
}

func (t *txStore) LinkFork(ctx context.Context, link model.ForkLink) error {
	return t.forks.Link(ctx, link)
}

func (t *txStore) EnqueueJob(ctx context.Context, job model.Job) error {
	return t.jobs.EnqueueJob(ctx, job)
}

func (t *txStore) UpdateDeletionState(ctx context.Context, id int64, state model.ProjectState, deleteError string) error {
	return t.projects.UpdateDeletionState(ctx, id, state, deleteError)
}

func (t *txStore) UnlinkForks(ctx context.Context, projectID int64) (int64, error) {
	return t.forks.DeleteByProject(ctx, projectID)
}

func (t *txStore) TruncateMembers(ctx context.Context, projectID int64) (int64, error) {
	return t.members.DeleteByProject(ctx, projectID)
}

func (t *txStore) DeleteProject(ctx context.Context, projectID int64) error {
	if err := t.projects.Delete(ctx, projectID); err != nil {
		return fmt.Errorf("delete project %d: %w", projectID, err)
	}
	return nil
}
