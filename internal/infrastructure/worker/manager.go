package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Worker defines the interface for background workers
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
	Name() string
}

// WorkerManager manages lifecycle of multiple workers
type WorkerManager struct {
	workers []Worker
	logger  *zap.Logger

	mu        deadlock.RWMutex
	isRunning bool
	cancel    context.CancelFunc
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager(logger *zap.Logger) *WorkerManager {
	return &WorkerManager{
		workers: make([]Worker, 0),
		logger:  logger,
	}
}

// Register adds a worker to be managed
func (m *WorkerManager) Register(worker Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.workers = append(m.workers, worker)
	m.logger.Info("Worker registered",
		zap.String("worker_name", worker.Name()),
		zap.Int("total_workers", len(m.workers)))
}

// StartAll starts all registered workers concurrently.
// Workers that started keep running when another one fails; the failures are returned.
func (m *WorkerManager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return fmt.Errorf("workers already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.isRunning = true
	workers := append([]Worker(nil), m.workers...)
	m.mu.Unlock()

	m.logger.Info("Starting all workers", zap.Int("count", len(workers)))

	errs := make([]error, len(workers))
	var g errgroup.Group
	for i, w := range workers {
		g.Go(func() error {
			if err := w.Start(runCtx); err != nil {
				m.logger.Error("Failed to start worker",
					zap.String("worker_name", w.Name()),
					zap.Error(err))
				errs[i] = fmt.Errorf("start %s: %w", w.Name(), err)
				return nil
			}
			m.logger.Info("Worker started", zap.String("worker_name", w.Name()))
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// StopAll gracefully stops all workers and waits for each of them
func (m *WorkerManager) StopAll() error {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		m.logger.Warn("Workers not running, nothing to stop")
		return nil
	}

	m.isRunning = false
	cancel := m.cancel
	workers := append([]Worker(nil), m.workers...)
	m.mu.Unlock()

	m.logger.Info("Stopping all workers", zap.Int("count", len(workers)))

	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error {
			if err := w.Stop(); err != nil {
				m.logger.Error("Failed to stop worker",
					zap.String("worker_name", w.Name()),
					zap.Error(err))
				return fmt.Errorf("stop %s: %w", w.Name(), err)
			}
			m.logger.Info("Worker stopped", zap.String("worker_name", w.Name()))
			return nil
		})
	}
	err := g.Wait()

	// Cancel after Stop so in-flight work finishes first
	if cancel != nil {
		cancel()
	}

	if err != nil {
		return err
	}

	m.logger.Info("All workers stopped successfully")
	return nil
}

// GetWorkerCount returns the number of registered workers
func (m *WorkerManager) GetWorkerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// WorkerNames returns the registered worker names in registration order
func (m *WorkerManager) WorkerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.workers))
	for _, w := range m.workers {
		names = append(names, w.Name())
	}
	return names
}

// IsRunning returns whether workers are running
func (m *WorkerManager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}
