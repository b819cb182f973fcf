// Package worker runs durable jobs claimed from the jobs table.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"project-reaper/internal/event"
	"project-reaper/internal/model"
	"project-reaper/internal/repository"
)

// Handler executes one job. Returning an error records a failed attempt.
type Handler func(ctx context.Context, job model.Job) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying; the job goes straight to dead.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

type Registry struct {
	handlers map[model.JobType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[model.JobType]Handler{}}
}

func (r *Registry) Register(jobType model.JobType, h Handler) {
	r.handlers[jobType] = h
}

func (r *Registry) lookup(jobType model.JobType) (Handler, bool) {
	h, ok := r.handlers[jobType]
	return h, ok
}

// Config tunes the pool. A running job whose heartbeat is older than
// StaleAfter is assumed abandoned; Heartbeat must stay well below it.
type Config struct {
	Concurrency  int
	PollInterval time.Duration
	RetryDelay   time.Duration
	StaleAfter   time.Duration
	Heartbeat    time.Duration
}

type Pool struct {
	jobs     repository.JobStore
	registry *Registry
	bus      event.Bus
	cfg      Config
	log      *slog.Logger
	now      func() time.Time
}

func NewPool(jobs repository.JobStore, registry *Registry, bus event.Bus, cfg Config) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}
	if cfg.Heartbeat <= 0 || cfg.Heartbeat >= cfg.StaleAfter {
		cfg.Heartbeat = cfg.StaleAfter / 3
	}
	return &Pool{
		jobs:     jobs,
		registry: registry,
		bus:      bus,
		cfg:      cfg,
		log:      slog.With("component", "worker"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run polls for jobs with cfg.Concurrency loops until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.log.Info("worker pool started", "concurrency", p.cfg.Concurrency, "poll_interval", p.cfg.PollInterval)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Concurrency; i++ {
		g.Go(func() error {
			return p.loop(ctx)
		})
	}

	err := g.Wait()
	p.log.Info("worker pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		ran, err := p.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			p.log.Error("claim job failed", "error", err)
		}

		// Keep draining while there is work.
		if ran {
			timer.Reset(0)
		} else {
			timer.Reset(p.cfg.PollInterval)
		}
	}
}

// RunOnce claims and executes at most one due job. It reports whether a job ran.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	buried, err := p.jobs.BuryStale(ctx, p.now(), p.cfg.StaleAfter)
	if err != nil {
		return false, err
	}
	if buried > 0 {
		p.log.Warn("abandoned jobs marked dead", "count", buried)
	}

	job, err := p.jobs.ClaimNext(ctx, p.now(), p.cfg.RetryDelay, p.cfg.StaleAfter)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	p.process(ctx, *job)
	return true, nil
}

// Drain runs due jobs until none is left and returns how many ran.
func (p *Pool) Drain(ctx context.Context) (int, error) {
	count := 0
	for {
		ran, err := p.RunOnce(ctx)
		if err != nil {
			return count, err
		}
		if !ran {
			return count, nil
		}
		count++
	}
}

func (p *Pool) process(ctx context.Context, job model.Job) {
	log := p.log.With("job_id", job.ID, "type", job.Type, "attempt", job.Attempts)
	started := time.Now()

	// Bookkeeping must land even if the pool is shutting down.
	markCtx := context.WithoutCancel(ctx)

	stop := p.keepAlive(markCtx, job.ID, log)
	runErr := p.execute(ctx, job)
	stop()

	if runErr == nil {
		if err := p.jobs.MarkCompleted(markCtx, job.ID); err != nil {
			log.Error("mark job completed failed", "error", err)
		}
		log.Info("job completed", "duration_ms", time.Since(started).Milliseconds())
		p.publish(event.TypeJobCompleted, job, "")
		return
	}

	dead := IsPermanent(runErr) || job.Attempts >= job.MaxAttempts
	if err := p.jobs.MarkFailed(markCtx, job.ID, runErr.Error(), dead); err != nil {
		log.Error("mark job failed failed", "error", err)
	}
	log.Warn("job failed", "error", runErr, "dead", dead)
	p.publish(event.TypeJobFailed, job, runErr.Error())
}

// keepAlive refreshes the job's heartbeat until the returned func is called,
// so a long job is not reclaimed by another worker.
func (p *Pool) keepAlive(ctx context.Context, jobID string, log *slog.Logger) func() {
	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(p.cfg.Heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := p.jobs.Heartbeat(ctx, jobID, p.now()); err != nil {
					log.Warn("job heartbeat failed", "error", err)
				}
			}
		}
	}()

	return func() {
		close(done)
		<-stopped
	}
}

func (p *Pool) execute(ctx context.Context, job model.Job) (err error) {
	handler, ok := p.registry.lookup(job.Type)
	if !ok {
		return Permanent(fmt.Errorf("no handler for job type %q", job.Type))
	}

	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("job panicked", "job_id", job.ID, "panic", rec, "stack", string(debug.Stack()))
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()

	return handler(ctx, job)
}

func (p *Pool) publish(typ event.Type, job model.Job, errText string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(event.New(typ, map[string]any{
		"job_id":   job.ID,
		"job_type": job.Type,
		"attempts": job.Attempts,
		"error":    errText,
	}, ""))
}
