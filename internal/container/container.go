package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/editorial-workflow/internal/application/port"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/metrics"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/queue"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/worker"
	httpAdapter "github.com/garyjia/editorial-workflow/internal/interfaces/http"
)

// publisherDrainTimeout bounds how long Close waits for queued events to reach the broker
const publisherDrainTimeout = 10 * time.Second

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	database *DatabaseBundle

	// Infrastructure - Messaging
	metrics   *metrics.Metrics
	transport *queue.Transport
	publisher *queue.Publisher

	// Application
	services *ServiceBundle

	// Workers
	workers *worker.WorkerManager

	// Interfaces
	server *httpAdapter.Server

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Metrics
// 3. Queue transport and publisher
// 4. Application services
// 5. Workers (consumers, retention sweeper)
// 6. HTTP adapter (built, not listening)
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return c.abortStart(fmt.Errorf("failed to initialize database: %w", err))
	}
	c.logger.Info("Database initialized", zap.String("driver", c.config.Database.Driver))

	// Step 2: Initialize metrics
	c.metrics = metrics.New()
	c.logger.Info("Metrics initialized")

	// Step 3: Initialize transport and publisher
	if err := c.initQueue(); err != nil {
		return c.abortStart(fmt.Errorf("failed to initialize queue: %w", err))
	}
	c.logger.Info("Event queue initialized", zap.String("transport", c.config.Queue.Transport))

	// Step 4: Initialize application services
	if err := c.initServices(); err != nil {
		return c.abortStart(fmt.Errorf("failed to initialize services: %w", err))
	}
	c.logger.Info("Application services initialized")

	// Step 5: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		return c.abortStart(fmt.Errorf("failed to initialize workers: %w", err))
	}
	c.logger.Info("Workers initialized and started", zap.Strings("workers", c.workers.WorkerNames()))

	// Step 6: Initialize HTTP adapter
	if err := c.initHTTPServer(); err != nil {
		return c.abortStart(fmt.Errorf("failed to initialize HTTP server: %w", err))
	}
	c.logger.Info("HTTP server initialized", zap.String("address", c.server.Address()))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// abortStart releases whatever Start already built
func (c *Container) abortStart(err error) error {
	c.logger.Error("Container start failed", zap.Error(err))
	if closeErr := c.teardown(); closeErr != nil {
		c.logger.Error("Cleanup after failed start", zap.Error(closeErr))
	}
	return err
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	if err := c.teardown(); err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() error {
	var errs []error

	// Step 1: Stop HTTP server (reverse of step 6)
	if c.server != nil {
		if err := c.server.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
	}

	// Step 2: Drain the publisher so accepted events reach the broker before
	// the consumers stop (reverse of step 3, publisher half)
	if c.publisher != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), publisherDrainTimeout)
		if err := c.publisher.Close(drainCtx); err != nil {
			c.logger.Error("Failed to drain event publisher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
		cancel()
	}

	// Step 3: Stop workers (reverse of step 5)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 4: Services don't need explicit cleanup (reverse of step 4)

	// Step 5: Close broker connections (reverse of step 3, transport half)
	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		} else {
			c.logger.Info("Transport closed")
		}
	}

	// Step 6: Close database (reverse of step 1)
	if c.database != nil && c.database.Close != nil {
		if err := c.database.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		return fmt.Errorf("container closed with %d errors: %v", len(errs), errs)
	}
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	// Check database
	if c.database != nil {
		if err := c.database.Ping(ctx); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check workers
	if c.workers != nil {
		status.Components["workers"] = ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()),
		}
		if !c.workers.IsRunning() {
			status.Overall = false
		}
	} else {
		status.Components["workers"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check publisher
	if c.publisher != nil {
		status.Components["publisher"] = ComponentHealth{
			Healthy: true,
			Message: fmt.Sprintf("queued events: %d", c.publisher.Len()),
		}
	} else {
		status.Components["publisher"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	return status
}

// initDatabase initializes the storage driver and all repositories.
func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.database = bundle
	return nil
}

// initQueue connects the transport and starts the publisher pump.
func (c *Container) initQueue() error {
	transport, err := ProvideTransport(&c.config.Queue, c.logger)
	if err != nil {
		return err
	}
	c.transport = transport

	publisher, err := ProvidePublisher(&c.config.Queue, transport, c.metrics, c.logger)
	if err != nil {
		return err
	}
	c.publisher = publisher
	return nil
}

// initServices initializes all application services.
func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Database:    c.database,
		Publisher:   c.publisher,
		Roles:       &c.config.Roles,
		StateColors: c.config.StateColors,
		Metrics:     c.metrics,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

// initWorkers creates and starts the consumers and the retention sweeper.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Services:  c.services,
		Transport: c.transport,
		QueueCfg:  &c.config.Queue,
		Retention: &c.config.Retention,
		Metrics:   c.metrics,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	// Start all workers
	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// initHTTPServer builds the HTTP adapter over the services.
func (c *Container) initHTTPServer() error {
	server, err := ProvideHTTPServer(&HTTPDeps{
		Config:   &c.config.Server,
		Services: c.services,
		Workers:  c.workers,
		Database: c.database,
		Metrics:  c.metrics,
		Roles:    &c.config.Roles,
		Logger:   c.logger,
	})
	if err != nil {
		return err
	}
	c.server = server
	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	if c.database == nil {
		return nil
	}
	return c.database.TxManager
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Publisher returns the event publisher.
func (c *Container) Publisher() *queue.Publisher {
	return c.publisher
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Metrics returns the prometheus collectors.
func (c *Container) Metrics() *metrics.Metrics {
	return c.metrics
}

// HTTPServer returns the HTTP adapter.
func (c *Container) HTTPServer() *httpAdapter.Server {
	return c.server
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the service.Logger interface.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
