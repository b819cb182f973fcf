package service

import (
	"context"
	"sync"

	"project-reaper/internal/model"
	"project-reaper/internal/repository"
	"project-reaper/internal/storage"
)

// memStore is an in-memory ProjectStore. InTx snapshots every table and
// restores the snapshot when fn fails or panics. Like a real commit, it also
// fails when ctx is done by the time fn returns.
type memStore struct {
	mu       sync.Mutex
	projects map[int64]model.Project
	members  map[int64][]model.Member
	forks    map[int64]int64
	jobs     []model.Job
	updates  int

	deleteErr   error
	truncateErr error
	enqueueErr  error
}

func newMemStore(projects ...model.Project) *memStore {
	s := &memStore{
		projects: map[int64]model.Project{},
		members:  map[int64][]model.Member{},
		forks:    map[int64]int64{},
	}
	for _, p := range projects {
		if p.State == "" {
			p.State = model.ProjectActive
		}
		s.projects[p.ID] = p
	}
	return s
}

func (s *memStore) addMember(projectID int64, userID string, level int) {
	s.members[projectID] = append(s.members[projectID], model.Member{ProjectID: projectID, UserID: userID, AccessLevel: level})
}

func (s *memStore) project(id int64) (model.Project, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	return p, ok
}

func (s *memStore) jobsOf(jobType model.JobType) []model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Job
	for _, j := range s.jobs {
		if j.Type == jobType {
			out = append(out, j)
		}
	}
	return out
}

func (s *memStore) FindByID(_ context.Context, id int64) (model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return model.Project{}, model.ErrProjectNotFound
	}
	return p, nil
}

func (s *memStore) UpdateDeletionState(_ context.Context, id int64, state model.ProjectState, deleteError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(id, state, deleteError)
}

func (s *memStore) updateLocked(id int64, state model.ProjectState, deleteError string) error {
	p, ok := s.projects[id]
	if !ok {
		return model.ErrProjectNotFound
	}
	p.State = state
	p.DeleteError = deleteError
	s.projects[id] = p
	s.updates++
	return nil
}

func (s *memStore) InTx(ctx context.Context, fn func(tx repository.ProjectTx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	defer func() {
		if rec := recover(); rec != nil {
			s.restore(snapshot)
			panic(rec)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()

	if err := fn(&memTx{s: s}); err != nil {
		return err
	}
	return ctx.Err()
}

type memSnapshot struct {
	projects map[int64]model.Project
	members  map[int64][]model.Member
	forks    map[int64]int64
	jobs     []model.Job
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		projects: map[int64]model.Project{},
		members:  map[int64][]model.Member{},
		forks:    map[int64]int64{},
		jobs:     append([]model.Job(nil), s.jobs...),
	}
	for k, v := range s.projects {
		snap.projects[k] = v
	}
	for k, v := range s.members {
		snap.members[k] = append([]model.Member(nil), v...)
	}
	for k, v := range s.forks {
		snap.forks[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.projects = snap.projects
	s.members = snap.members
	s.forks = snap.forks
	s.jobs = snap.jobs
}

type memTx struct {
	s *memStore
}

func (t *memTx) EnqueueJob(_ context.Context, job model.Job) error {
	if t.s.enqueueErr != nil {
		return t.s.enqueueErr
	}
	t.s.jobs = append(t.s.jobs, job)
	return nil
}

func (t *memTx) UpdateDeletionState(_ context.Context, id int64, state model.ProjectState, deleteError string) error {
	return t.s.updateLocked(id, state, deleteError)
}

func (t *memTx) UnlinkForks(_ context.Context, projectID int64) (int64, error) {
	var n int64
	for to, from := range t.s.forks {
		if to == projectID || from == projectID {
			delete(t.s.forks, to)
			n++
		}
	}
	return n, nil
}

func (t *memTx) TruncateMembers(_ context.Context, projectID int64) (int64, error) {
	if t.s.truncateErr != nil {
		return 0, t.s.truncateErr
	}
	n := int64(len(t.s.members[projectID]))
	delete(t.s.members, projectID)
	return n, nil
}

func (t *memTx) DeleteProject(_ context.Context, projectID int64) error {
	if t.s.deleteErr != nil {
		return t.s.deleteErr
	}
	if _, ok := t.s.projects[projectID]; !ok {
		return model.ErrProjectNotFound
	}
	if len(t.s.members[projectID]) > 0 {
		return model.ErrProjectReferenced
	}
	delete(t.s.projects, projectID)
	return nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[string]model.User
}

func newMemUsers(users ...model.User) *memUsers {
	m := &memUsers{users: map[string]model.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) FindByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (m *memUsers) Create(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return model.ErrInvalidInput
		}
	}
	m.users[u.ID] = u
	return nil
}

type staticPolicy bool

func (p staticPolicy) Can(context.Context, model.Actor, string, model.Project) bool {
	return bool(p)
}

type cacheFunc func(ctx context.Context, project model.Project)

func (f cacheFunc) Invalidate(ctx context.Context, project model.Project) {
	f(ctx, project)
}

type fakeTags struct {
	has       bool
	hasErr    error
	deleteOK  bool
	deleted   []string
	panicking bool
}

func (f *fakeTags) HasTags(context.Context, string) (bool, error) {
	if f.panicking {
		panic("registry exploded")
	}
	return f.has, f.hasErr
}

func (f *fakeTags) DeleteTags(_ context.Context, repository string) bool {
	f.deleted = append(f.deleted, repository)
	return f.deleteOK
}

type recordingNotifier struct {
	mu        sync.Mutex
	events    []string
	panicking bool
}

func (n *recordingNotifier) Execute(_ context.Context, project model.Project, _ model.Actor, eventName string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventName+":"+project.Path)
	if n.panicking {
		panic("hook exploded")
	}
}

// cancelOnMove cancels the caller's context as soon as a move has happened.
type cancelOnMove struct {
	storage.Backend
	cancel context.CancelFunc
}

func (b *cancelOnMove) Move(src string, dst string) error {
	err := b.Backend.Move(src, dst)
	b.cancel()
	return err
}

type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAuditor) Log(_ context.Context, action string, _ model.Actor, _ string, _ string, _ any, _ string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}
