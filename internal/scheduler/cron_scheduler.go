// internal/scheduler/cron_scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TaskFunc is a periodic background task such as the pending sweep.
type TaskFunc func(ctx context.Context) error

// CronScheduler triggers named tasks on cron specs. A task whose previous
// run is still going is skipped rather than stacked.
type CronScheduler struct {
	cron   *cron.Cron
	tasks  map[string]cron.EntryID
	mu     sync.Mutex
	runCtx context.Context
	logger *slog.Logger
	tracer trace.Tracer
}

// NewCronScheduler accepts six-field specs with seconds as well as
// descriptors like "@every 30s".
func NewCronScheduler(logger *slog.Logger) *CronScheduler {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return &CronScheduler{
		cron:   c,
		tasks:  make(map[string]cron.EntryID),
		runCtx: context.Background(),
		logger: logger.With("component", "cron-scheduler"),
		tracer: otel.Tracer("flash-sale-scheduler"),
	}
}

// Start runs the scheduler until ctx is cancelled, then waits for running
// tasks to return.
func (s *CronScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	s.logger.Info("cron scheduler started")
	s.cron.Start()
	<-ctx.Done()
	s.logger.Info("cron scheduler stopping...")
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("cron scheduler stopped")
	return ctx.Err()
}

// AddTask registers fn under name, replacing an existing task of that name.
func (s *CronScheduler) AddTask(name, spec string, fn TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.tasks[name]; ok {
		s.cron.Remove(entryID)
	}

	wrapper := &taskWrapper{
		name:   name,
		fn:     fn,
		ctx:    s.currentContext,
		logger: s.logger.With("task", name),
		tracer: s.tracer,
	}
	entryID, err := s.cron.AddJob(spec, wrapper)
	if err != nil {
		s.logger.Error("failed to add task to cron", "task", name, "error", err)
		return fmt.Errorf("invalid schedule %q for task %s: %w", spec, name, err)
	}

	s.tasks[name] = entryID
	s.logger.Info("added task to scheduler", "task", name, "schedule", spec)
	return nil
}

// RemoveTask removes a task from the scheduler.
func (s *CronScheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.tasks[name]; ok {
		s.cron.Remove(entryID)
		delete(s.tasks, name)
		s.logger.Info("removed task from scheduler", "task", name)
	}
}

func (s *CronScheduler) currentContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runCtx
}

type taskWrapper struct {
	name   string
	fn     TaskFunc
	ctx    func() context.Context
	logger *slog.Logger
	tracer trace.Tracer
}

// Run is called by the cron library.
func (w *taskWrapper) Run() {
	ctx, span := w.tracer.Start(w.ctx(), "scheduler.RunTask",
		trace.WithAttributes(attribute.String("task.name", w.name)))
	defer span.End()

	if err := w.fn(ctx); err != nil {
		w.logger.Error("scheduled task failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "task failed")
	}
}
