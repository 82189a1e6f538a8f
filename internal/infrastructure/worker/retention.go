package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sasha-s/go-deadlock"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
)

// Purger deletes records older than the cutoff and reports how many went
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweepObserver is told the outcome of every purge
type SweepObserver interface {
	ObserveSweep(target string, deleted int64, err error)
}

type nopSweepObserver struct{}

func (nopSweepObserver) ObserveSweep(string, int64, error) {}

// RetentionConfig holds the retention window and the sweep schedule
type RetentionConfig struct {
	Window     time.Duration
	Interval   time.Duration
	RetryDelay time.Duration
	MaxRetries uint64
}

// DefaultRetentionConfig returns default configuration
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Window:     30 * 24 * time.Hour,
		Interval:   time.Hour,
		RetryDelay: 5 * time.Minute,
		MaxRetries: 3,
	}
}

type purgeTarget struct {
	name   string
	purger Purger
}

// RetentionSweeper periodically deletes audit records and notifications that fell out
// of the retention window. A failed purge is retried after RetryDelay.
type RetentionSweeper struct {
	config   RetentionConfig
	targets  []purgeTarget
	observer SweepObserver
	logger   *zap.Logger
	now      func() time.Time

	mu        deadlock.Mutex
	scheduler *cron.Cron
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	lastSweep time.Time
}

// NewRetentionSweeper creates a sweeper; AddTarget registers what it purges
func NewRetentionSweeper(config RetentionConfig, observer SweepObserver, logger *zap.Logger) *RetentionSweeper {
	defaults := DefaultRetentionConfig()
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaults.RetryDelay
	}
	if observer == nil {
		observer = nopSweepObserver{}
	}

	return &RetentionSweeper{
		config:   config,
		observer: observer,
		logger:   logger,
		now:      time.Now,
	}
}

// AddTarget registers a named purger, e.g. "audit" or "notifications"
func (s *RetentionSweeper) AddTarget(name string, purger Purger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targets = append(s.targets, purgeTarget{name: name, purger: purger})
}

// Name returns the worker name for identification
func (s *RetentionSweeper) Name() string {
	return "RetentionSweeper"
}

// Start schedules the sweep every Interval
func (s *RetentionSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("retention sweeper already running")
	}

	cronLog := NewCronLogger(s.logger)
	scheduler := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(
			cron.SkipIfStillRunning(cronLog),
			cron.Recover(cronLog),
		),
	)

	s.ctx, s.cancel = context.WithCancel(ctx)
	every := fmt.Sprintf("@every %s", s.config.Interval)
	if _, err := scheduler.AddFunc(every, s.runScheduled); err != nil {
		s.cancel()
		return fmt.Errorf("schedule retention sweep %q: %w", every, err)
	}

	scheduler.Start()
	s.scheduler = scheduler
	s.isRunning = true

	s.logger.Info("RetentionSweeper started",
		zap.Duration("window", s.config.Window),
		zap.Duration("interval", s.config.Interval),
		zap.Duration("retry_delay", s.config.RetryDelay))
	return nil
}

// Stop unschedules the sweep and waits for a running one to return
func (s *RetentionSweeper) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	scheduler, cancel := s.scheduler, s.cancel
	s.mu.Unlock()

	// A sweep waiting out its retry delay gives up on cancel
	cancel()
	<-scheduler.Stop().Done()

	s.logger.Info("RetentionSweeper stopped")
	return nil
}

// LastSweep returns when the last sweep finished
func (s *RetentionSweeper) LastSweep() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep
}

func (s *RetentionSweeper) runScheduled() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if err := s.Sweep(ctx); err != nil {
		s.logger.Error("Retention sweep failed", zap.Error(err))
	}
}

// Sweep purges every target once. Each target is retried on its own so one failing
// store does not keep the others from being cleaned.
func (s *RetentionSweeper) Sweep(ctx context.Context) error {
	s.mu.Lock()
	targets := append([]purgeTarget(nil), s.targets...)
	s.mu.Unlock()

	cutoff := s.now().Add(-s.config.Window)
	var errs []error

	for _, target := range targets {
		deleted, err := s.purge(ctx, target, cutoff)
		s.observer.ObserveSweep(target.name, deleted, err)
		if err != nil {
			errs = append(errs, fmt.Errorf("purge %s: %w", target.name, err))
			continue
		}
		s.logger.Info("Retention sweep completed",
			zap.String("target", target.name),
			zap.Time("cutoff", cutoff),
			zap.Int64("deleted", deleted))
	}

	s.mu.Lock()
	s.lastSweep = s.now()
	s.mu.Unlock()

	return errors.Join(errs...)
}

func (s *RetentionSweeper) purge(ctx context.Context, target purgeTarget, cutoff time.Time) (int64, error) {
	backoff := retry.WithMaxRetries(s.config.MaxRetries, retry.NewConstant(s.config.RetryDelay))

	var deleted int64
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		n, err := target.purger.Purge(ctx, cutoff)
		if err != nil {
			s.logger.Error("Retention purge attempt failed",
				zap.String("target", target.name),
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", s.config.RetryDelay),
				zap.Error(err))
			return retry.RetryableError(err)
		}
		deleted = n
		return nil
	})
	return deleted, err
}
