package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs retention batches on a cron schedule. Overlapping ticks are
// skipped while a batch is still running.
type Scheduler struct {
	runner  *Runner
	options func() Options
	cron    *cron.Cron
	entry   cron.EntryID
	spec    string
	ctx     context.Context
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
}

// NewScheduler creates a scheduler. options is called on every tick so
// configuration reloads take effect on the next batch; Now is always set to
// the tick time.
func NewScheduler(runner *Runner, options func() Options) *Scheduler {
	logger := slog.Default().With("component", "retention.scheduler")
	return &Scheduler{
		runner:  runner,
		options: options,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger,
	}
}

// Start schedules batches with a standard five-field cron expression, e.g.
// "0 3 * * *" for daily at 3 AM. An empty schedule leaves the scheduler
// stopped. The scheduler stops when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if schedule == "" {
		s.logger.Info("retention schedule not configured, skipping scheduler")
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	s.ctx = ctx
	if err := s.schedule(schedule); err != nil {
		return err
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("retention scheduler started", "schedule", schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Reschedule swaps the cron expression of a running scheduler.
func (s *Scheduler) Reschedule(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return fmt.Errorf("scheduler is not running")
	}
	if schedule == s.spec {
		return nil
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}

	old := s.entry
	if err := s.schedule(schedule); err != nil {
		return err
	}
	s.cron.Remove(old)
	s.logger.Info("retention schedule updated", "schedule", schedule)
	return nil
}

func (s *Scheduler) schedule(spec string) error {
	id, err := s.cron.AddFunc(spec, func() { s.runBatch(s.ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule retention: %w", err)
	}
	s.entry = id
	s.spec = spec
	return nil
}

func (s *Scheduler) runBatch(ctx context.Context) {
	opts := s.options()
	opts.Now = time.Now()

	s.logger.Info("starting scheduled retention run", "dry_run", opts.DryRun)
	run, err := s.runner.Run(ctx, opts)
	if err != nil {
		s.logger.Error("scheduled retention run failed", "error", err)
		return
	}
	if len(run.Errors) > 0 {
		s.logger.Warn("scheduled retention run finished with errors",
			"run_id", run.RunID, "errors", len(run.Errors))
		return
	}
	s.logger.Info("scheduled retention run completed",
		"run_id", run.RunID,
		"deleted", run.DeletedCounts.SigningFiles,
	)
}

// Stop stops the scheduler and waits for a running batch to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		done := s.cron.Stop()
		<-done.Done()
		s.running = false
		s.logger.Info("retention scheduler stopped")
	}
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled batch time.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	next := s.cron.Entry(s.entry).Next
	if next.IsZero() {
		return nil
	}
	return &next
}
