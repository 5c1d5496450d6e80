// Package refresh runs report reconciliation jobs on a bounded worker pool
// so chat handling never blocks on document creation.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weeklyops/reportbot/internal/report"
)

var ErrQueueFull = errors.New("refresh queue is full")

// Job asks for the report artifact of one anchor week to be reconciled.
type Job struct {
	ID        string
	Anchor    time.Time
	CreatedAt time.Time
}

// Creator resolves or creates the report artifact for an anchor week.
type Creator interface {
	GetOrCreate(ctx context.Context, anchor time.Time) *report.Artifact
}

type Engine struct {
	creator    Creator
	logger     *slog.Logger
	workers    int
	jobTimeout time.Duration

	jobs      chan Job
	startOnce sync.Once
}

func NewEngine(creator Creator, workers int, jobTimeout time.Duration, logger *slog.Logger) *Engine {
	if workers <= 0 {
		workers = 2
	}
	if jobTimeout <= 0 {
		jobTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		creator:    creator,
		logger:     logger.With("component", "refresh"),
		workers:    workers,
		jobTimeout: jobTimeout,
		jobs:       make(chan Job, workers*50),
	}
}

// Enqueue schedules a reconciliation for the anchor week. It never blocks;
// a full queue is reported to the caller.
func (e *Engine) Enqueue(anchor time.Time) (string, error) {
	job := Job{
		ID:        uuid.NewString(),
		Anchor:    anchor,
		CreatedAt: time.Now().UTC(),
	}
	select {
	case e.jobs <- job:
		e.logger.Debug("refresh job enqueued", "job_id", job.ID, "week", report.WeekDate(anchor))
		return job.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Start runs the worker pool until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.startOnce.Do(func() {
		var wg sync.WaitGroup
		for i := 0; i < e.workers; i++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				e.runWorker(ctx, worker)
			}(i)
		}
		wg.Wait()
	})
	return nil
}

func (e *Engine) runWorker(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-e.jobs:
			e.processJob(ctx, worker, job)
		}
	}
}

func (e *Engine) processJob(ctx context.Context, worker int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("refresh job panicked", "job_id", job.ID, "panic", r)
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, e.jobTimeout)
	defer cancel()

	week := report.WeekDate(job.Anchor)
	artifact := e.creator.GetOrCreate(jobCtx, job.Anchor)
	if artifact == nil {
		e.logger.Warn("refresh job produced no artifact", "job_id", job.ID, "week", week, "worker", worker)
		return
	}
	e.logger.Info("refresh job done", "job_id", job.ID, "week", week, "worker", worker)
}
