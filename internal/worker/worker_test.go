package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"project-reaper/internal/event"
	"project-reaper/internal/model"
)

type fakeJobStore struct {
	mu         sync.Mutex
	queue      []model.Job
	results    map[string]model.JobStatus
	errors     map[string]string
	heartbeats map[string]int
	stale      int64
	buryCalls  []time.Duration
}

func newFakeJobStore(jobs ...model.Job) *fakeJobStore {
	return &fakeJobStore{
		queue:      jobs,
		results:    map[string]model.JobStatus{},
		errors:     map[string]string{},
		heartbeats: map[string]int{},
	}
}

func (f *fakeJobStore) EnqueueJob(_ context.Context, job model.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, job)
	return nil
}

func (f *fakeJobStore) FindByID(_ context.Context, id string) (model.Job, error) {
	return model.Job{ID: id}, nil
}

func (f *fakeJobStore) ClaimNext(_ context.Context, _ time.Time, _ time.Duration, _ time.Duration) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	job := f.queue[0]
	f.queue = f.queue[1:]
	job.Attempts++
	job.Status = model.JobRunning
	return &job, nil
}

func (f *fakeJobStore) Heartbeat(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats[id]++
	return nil
}

func (f *fakeJobStore) BuryStale(_ context.Context, _ time.Time, staleAfter time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buryCalls = append(f.buryCalls, staleAfter)
	n := f.stale
	f.stale = 0
	return n, nil
}

func (f *fakeJobStore) beats(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heartbeats[id]
}

func (f *fakeJobStore) MarkCompleted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = model.JobCompleted
	return nil
}

func (f *fakeJobStore) MarkFailed(_ context.Context, id string, errText string, dead bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = model.JobFailed
	if dead {
		f.results[id] = model.JobDead
	}
	f.errors[id] = errText
	return nil
}

func (f *fakeJobStore) status(id string) model.JobStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[id]
}

func TestDrainDispatchesByType(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore(
		model.Job{ID: "ok", Type: model.JobRemoveRepository, MaxAttempts: 3},
		model.Job{ID: "retry", Type: model.JobRemoveRepository, MaxAttempts: 3},
		model.Job{ID: "perm", Type: model.JobRemoveRepository, MaxAttempts: 3},
		model.Job{ID: "panic", Type: model.JobDestroyProject, MaxAttempts: 3},
		model.Job{ID: "unknown", Type: "mystery", MaxAttempts: 3},
	)

	registry := NewRegistry()
	registry.Register(model.JobRemoveRepository, func(_ context.Context, job model.Job) error {
		switch job.ID {
		case "retry":
			return errors.New("disk busy")
		case "perm":
			return Permanent(errors.New("bad payload"))
		}
		return nil
	})
	registry.Register(model.JobDestroyProject, func(context.Context, model.Job) error {
		panic("boom")
	})

	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	pool := NewPool(store, registry, bus, Config{Concurrency: 1})
	ran, err := pool.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, ran)

	require.Equal(t, model.JobCompleted, store.status("ok"))
	require.Equal(t, model.JobFailed, store.status("retry"))
	require.Equal(t, model.JobDead, store.status("perm"))
	require.Equal(t, model.JobFailed, store.status("panic"))
	require.Contains(t, store.errors["panic"], "boom")
	require.Equal(t, model.JobDead, store.status("unknown"))
	require.Len(t, events, 5)
}

func TestLastAttemptGoesDead(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore(model.Job{ID: "j", Type: model.JobRemoveRepository, Attempts: 1, MaxAttempts: 2})
	registry := NewRegistry()
	registry.Register(model.JobRemoveRepository, func(context.Context, model.Job) error {
		return errors.New("still failing")
	})

	ran, err := NewPool(store, registry, nil, Config{}).RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, model.JobDead, store.status("j"))
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore(model.Job{ID: "a", Type: model.JobRemoveRepository, MaxAttempts: 1})
	done := make(chan struct{})
	registry := NewRegistry()
	registry.Register(model.JobRemoveRepository, func(context.Context, model.Job) error {
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(store, registry, nil, Config{Concurrency: 2, PollInterval: 10 * time.Millisecond})

	errCh := make(chan error, 1)
	go func() { errCh <- pool.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was not executed")
	}
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}
	require.Eventually(t, func() bool { return store.status("a") == model.JobCompleted }, time.Second, 5*time.Millisecond)
}

func TestLongJobKeepsHeartbeating(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore(model.Job{ID: "slow", Type: model.JobRemoveRepository, MaxAttempts: 3})
	registry := NewRegistry()
	registry.Register(model.JobRemoveRepository, func(_ context.Context, job model.Job) error {
		deadline := time.After(2 * time.Second)
		for store.beats(job.ID) < 3 {
			select {
			case <-deadline:
				return errors.New("no heartbeat while running")
			case <-time.After(time.Millisecond):
			}
		}
		return nil
	})

	pool := NewPool(store, registry, nil, Config{StaleAfter: 30 * time.Millisecond, Heartbeat: 5 * time.Millisecond})
	ran, err := pool.RunOnce(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, model.JobCompleted, store.status("slow"))

	// Heartbeats stop with the job.
	after := store.beats("slow")
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, after, store.beats("slow"))
}

func TestRunOnceBuriesAbandonedJobs(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore()
	store.stale = 2

	pool := NewPool(store, NewRegistry(), nil, Config{StaleAfter: time.Hour})
	ran, err := pool.RunOnce(context.Background())
	require.NoError(t, err)
	require.False(t, ran)
	require.Equal(t, []time.Duration{time.Hour}, store.buryCalls)
}

func TestHeartbeatDefaultsBelowStaleAfter(t *testing.T) {
	t.Parallel()

	pool := NewPool(newFakeJobStore(), NewRegistry(), nil, Config{StaleAfter: 9 * time.Minute, Heartbeat: time.Hour})
	require.Equal(t, 3*time.Minute, pool.cfg.Heartbeat)

	pool = NewPool(newFakeJobStore(), NewRegistry(), nil, Config{})
	require.Equal(t, 30*time.Minute, pool.cfg.StaleAfter)
	require.Equal(t, 10*time.Minute, pool.cfg.Heartbeat)
}

func TestPermanent(t *testing.T) {
	t.Parallel()

	base := errors.New("x")
	require.Nil(t, Permanent(nil))
	require.True(t, IsPermanent(Permanent(base)))
	require.ErrorIs(t, Permanent(base), base)
	require.False(t, IsPermanent(base))
}
