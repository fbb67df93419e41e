package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/fpt/pkg/observability"
)

var (
	// ErrAlreadyStarted is returned when Start is called twice
	ErrAlreadyStarted = errors.New("scheduler already started")
	// ErrRunLocked is returned when another run holds the lock
	ErrRunLocked = errors.New("another run is in progress")
)

// RunFunc executes one pipeline run for date
type RunFunc func(ctx context.Context, date time.Time) error

// Runner triggers RunFunc on the configured cron schedule
type Runner struct {
	log     logrus.FieldLogger
	cfg     Config
	run     RunFunc
	lock    RunLock
	tracker Tracker
	now     func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// Option customises a Runner
type Option func(*Runner)

// WithLock replaces the in-process lock
func WithLock(lock RunLock) Option {
	return func(r *Runner) { r.lock = lock }
}

// WithTracker records the time of each successful run
func WithTracker(tracker Tracker) Option {
	return func(r *Runner) { r.tracker = tracker }
}

// WithClock overrides the time source used to pick the run date
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a runner for run
func NewRunner(log logrus.FieldLogger, cfg Config, run RunFunc, opts ...Option) *Runner {
	r := &Runner{
		log:  log.WithField("service", "scheduler"),
		cfg:  cfg,
		run:  run,
		lock: &LocalLock{},
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// RunOnce runs the pipeline for today, retrying up to cfg.Retries times
func (r *Runner) RunOnce(ctx context.Context) error {
	acquired, err := r.lock.Acquire(ctx)
	if err != nil {
		observability.RecordScheduledAttempt("error")
		return err
	}

	if !acquired {
		observability.RecordScheduledAttempt("skipped")
		r.log.Info("Skipping scheduled run, another run holds the lock")

		return ErrRunLocked
	}

	defer func() {
		if err := r.lock.Release(context.WithoutCancel(ctx)); err != nil {
			r.log.WithError(err).Warn("Failed to release run lock")
		}
	}()

	date := r.now().UTC()
	attempts := r.cfg.Retries + 1

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		log := r.log.WithFields(logrus.Fields{
			"attempt":  attempt,
			"attempts": attempts,
			"date":     date.Format(time.DateOnly),
		})

		lastErr = r.run(ctx, date)
		if lastErr == nil {
			observability.RecordScheduledAttempt("success")
			log.Info("Scheduled run succeeded")
			r.markSuccess(ctx)

			return nil
		}

		observability.RecordScheduledAttempt("failed")
		log.WithError(lastErr).Error("Scheduled run failed")

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("scheduled run canceled: %w", ctx.Err())
		case <-time.After(r.cfg.RetryDelay):
		}
	}

	return fmt.Errorf("scheduled run failed after %d attempts: %w", attempts, lastErr)
}

func (r *Runner) markSuccess(ctx context.Context) {
	if r.tracker == nil {
		return
	}

	if err := r.tracker.SetLastSuccess(ctx, r.now()); err != nil {
		r.log.WithError(err).Warn("Failed to record last successful run")
	}
}

// Start registers the cron entry and returns. Runs use ctx until Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return ErrAlreadyStarted
	}

	sched, err := parseSchedule(r.cfg.Cron)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)

	c := cron.New()
	c.Schedule(sched, cron.FuncJob(func() {
		if err := r.RunOnce(runCtx); err != nil && !errors.Is(err, ErrRunLocked) {
			observability.RecordError("scheduler", "run")
		}
	}))
	c.Start()

	r.cron = c
	r.cancel = cancel

	r.log.WithFields(logrus.Fields{
		"cron":    r.cfg.Cron,
		"retries": r.cfg.Retries,
	}).Info("Scheduler started")

	if r.tracker != nil {
		if last, err := r.tracker.LastSuccess(ctx); err == nil && !last.IsZero() {
			r.log.WithField("last_success", last.Format(time.RFC3339)).Info("Resuming after previous successful run")
		}
	}

	return nil
}

// Stop cancels in-flight runs and waits for them to return
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron == nil {
		return nil
	}

	r.cancel()
	<-r.cron.Stop().Done()

	r.cron = nil
	r.cancel = nil

	r.log.Info("Scheduler stopped")

	return nil
}
