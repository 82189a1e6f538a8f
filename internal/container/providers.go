package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/editorial-workflow/internal/application/port"
	"github.com/garyjia/editorial-workflow/internal/application/service"
	"github.com/garyjia/editorial-workflow/internal/domain/entity"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/metrics"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/persistence/memory"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/queue"
	"github.com/garyjia/editorial-workflow/internal/infrastructure/worker"
	httpAdapter "github.com/garyjia/editorial-workflow/internal/interfaces/http"
	"github.com/garyjia/editorial-workflow/pkg/database"
)

// Storage drivers
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Consumer names, also used as kafka consumer group suffixes
const (
	AuditConsumerName        = "audit"
	NotificationConsumerName = "notification"
)

// DatabaseBundle holds the storage driver and the repositories built on it.
type DatabaseBundle struct {
	TxManager    port.TransactionManager
	Repositories service.Repositories

	// Ping checks the storage is reachable
	Ping func(ctx context.Context) error

	// Close releases the storage; nil for the memory driver
	Close func() error
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Definitions   *service.DefinitionService
	Instances     *service.InstanceService
	Audit         *service.AuditService
	Notifications *service.NotificationService
}

// ProvideDatabase opens the configured storage driver.
// The SQLite driver runs any pending embedded migrations before returning.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Driver {
	case DriverMemory:
		store, err := memory.NewStore(logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory store: %w", err)
		}
		return &DatabaseBundle{
			TxManager: store,
			Repositories: service.Repositories{
				Definitions:   store.Definitions(),
				Instances:     store.Instances(),
				Bindings:      store.Bindings(),
				Audit:         store.Audit(),
				Notifications: store.Notifications(),
			},
			Ping: func(context.Context) error { return nil },
		}, nil

	case DriverSQLite:
		db, err := database.New(database.Config{
			Path:            cfg.Path,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}

		if err := database.NewMigrator(db, logger).Migrate(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		return &DatabaseBundle{
			TxManager: sqlite.NewTransactor(db.DB, logger),
			Repositories: service.Repositories{
				Definitions:   repository.NewDefinitionRepository(db.DB, logger),
				Instances:     repository.NewInstanceRepository(db.DB, logger),
				Bindings:      repository.NewBindingRepository(db.DB, logger),
				Audit:         repository.NewAuditRepository(db.DB, logger),
				Notifications: repository.NewNotificationRepository(db.DB, logger),
			},
			Ping:  db.PingContext,
			Close: db.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// ProvideTransport connects to the configured message broker.
func ProvideTransport(cfg *QueueConfig, logger *zap.Logger) (*queue.Transport, error) {
	if cfg == nil {
		return nil, fmt.Errorf("queue config is required")
	}

	return queue.NewTransport(queue.TransportConfig{
		Kind:                cfg.Transport,
		KafkaBrokers:        cfg.KafkaBrokers,
		ConsumerGroupPrefix: cfg.ConsumerGroupPrefix,
		MaxMessageBytes:     cfg.MaxMessageBytes,
	}, logger)
}

// ProvidePublisher creates the bounded event publisher in front of the transport.
func ProvidePublisher(cfg *QueueConfig, transport *queue.Transport, m *metrics.Metrics, logger *zap.Logger) (*queue.Publisher, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}

	var observer queue.PublishObserver
	if m != nil {
		observer = m
	}

	return queue.NewPublisher(transport.Publisher(), queue.PublisherConfig{
		Topic:          cfg.Topic,
		Capacity:       cfg.Capacity,
		EnqueueTimeout: cfg.EnqueueTimeout,
		RetryCount:     cfg.RetryCount,
		RetryBackoff:   cfg.RetryBackoff,
	}, observer, logger), nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Database    *DatabaseBundle
	Publisher   port.EventPublisher
	Content     port.ContentPublisher
	Roles       *RolesConfig
	StateColors map[string]string
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Database == nil {
		return nil, fmt.Errorf("database is required")
	}
	if deps.Publisher == nil {
		return nil, fmt.Errorf("event publisher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	content := deps.Content
	if content == nil {
		content = NewLoggingContentPublisher(deps.Logger)
	}

	var observer service.TransitionObserver
	if deps.Metrics != nil {
		observer = deps.Metrics
	}

	var adminRoles entity.RoleSet
	if deps.Roles != nil {
		adminRoles = entity.NewRoleSet(deps.Roles.Administrators...)
	}

	repos := deps.Database.Repositories
	svcLogger := &zapLoggerAdapter{logger: deps.Logger}

	return &ServiceBundle{
		Definitions: service.NewDefinitionService(
			repos.Definitions, repos.Instances, deps.Database.TxManager, deps.StateColors, svcLogger),
		Instances: service.NewInstanceService(
			repos, deps.Database.TxManager, deps.Publisher, content, adminRoles, observer, svcLogger),
		Audit:         service.NewAuditService(repos.Audit, svcLogger),
		Notifications: service.NewNotificationService(repos.Notifications, svcLogger),
	}, nil
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Services  *ServiceBundle
	Transport *queue.Transport
	QueueCfg  *QueueConfig
	Retention *RetentionConfig
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// ProvideWorkers registers the audit and notification consumers and,
// when enabled, the retention sweeper. Workers are not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil || deps.Services == nil || deps.Transport == nil {
		return nil, fmt.Errorf("services and transport are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	// A nil *Metrics must not reach the workers as a non-nil interface
	var consumeObserver queue.ConsumerObserver
	var sweepObserver worker.SweepObserver
	if deps.Metrics != nil {
		consumeObserver = deps.Metrics
		sweepObserver = deps.Metrics
	}

	consumerCfg := queue.ConsumerConfig{
		Topic:           deps.QueueCfg.Topic,
		RetryCount:      deps.QueueCfg.RetryCount,
		RetryBackoff:    deps.QueueCfg.RetryBackoff,
		MessageTimeout:  deps.QueueCfg.MessageTimeout,
		MaxMessageBytes: deps.QueueCfg.MaxMessageBytes,
	}
	handlers := []struct {
		name    string
		handler queue.HandlerFunc
	}{
		{AuditConsumerName, deps.Services.Audit.HandleEvent},
		{NotificationConsumerName, deps.Services.Notifications.HandleEvent},
	}
	for _, h := range handlers {
		sub, err := deps.Transport.Subscriber(h.name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s subscriber: %w", h.name, err)
		}
		manager.Register(queue.NewConsumer(h.name, sub, consumerCfg, h.handler, consumeObserver, deps.Logger))
	}

	if deps.Retention != nil && deps.Retention.Enabled {
		sweeper := worker.NewRetentionSweeper(worker.RetentionConfig{
			Window:     deps.Retention.Window,
			Interval:   deps.Retention.Interval,
			RetryDelay: deps.Retention.RetryDelay,
			MaxRetries: deps.Retention.MaxRetries,
		}, sweepObserver, deps.Logger)
		sweeper.AddTarget("audit_records", deps.Services.Audit)
		sweeper.AddTarget("notifications", deps.Services.Notifications)
		manager.Register(sweeper)
	}

	return manager, nil
}

// HTTPDeps holds dependencies for the HTTP adapter.
type HTTPDeps struct {
	Config   *ServerConfig
	Services *ServiceBundle
	Workers  *worker.WorkerManager
	Database *DatabaseBundle
	Metrics  *metrics.Metrics
	Roles    *RolesConfig
	Logger   *zap.Logger
}

// ProvideHTTPServer creates the HTTP adapter. The server is not started.
func ProvideHTTPServer(deps *HTTPDeps) (*httpAdapter.Server, error) {
	if deps == nil || deps.Services == nil {
		return nil, fmt.Errorf("services are required")
	}

	serverCfg := httpAdapter.DefaultServerConfig()
	if deps.Config != nil {
		serverCfg = httpAdapter.ServerConfig{
			Host:         deps.Config.Host,
			Port:         deps.Config.Port,
			ReadTimeout:  deps.Config.ReadTimeout,
			WriteTimeout: deps.Config.WriteTimeout,
		}
	}

	httpDeps := httpAdapter.Dependencies{
		Definitions:   deps.Services.Definitions,
		Instances:     deps.Services.Instances,
		Audit:         deps.Services.Audit,
		Notifications: deps.Services.Notifications,
	}
	if deps.Workers != nil {
		httpDeps.Workers = deps.Workers
	}
	if deps.Database != nil {
		httpDeps.Ping = deps.Database.Ping
	}
	if deps.Metrics != nil && (deps.Config == nil || deps.Config.EnableMetrics) {
		httpDeps.Metrics = deps.Metrics.Handler()
	}
	if deps.Roles != nil {
		httpDeps.RoleMapping = deps.Roles.Mapping
	}

	return httpAdapter.NewServer(serverCfg, httpDeps, &zapLoggerAdapter{logger: deps.Logger}), nil
}

// loggingContentPublisher records publication in the log.
// The content store itself lives outside this service.
type loggingContentPublisher struct {
	logger *zap.Logger
}

// NewLoggingContentPublisher returns a ContentPublisher that only logs
func NewLoggingContentPublisher(logger *zap.Logger) port.ContentPublisher {
	return &loggingContentPublisher{logger: logger}
}

func (p *loggingContentPublisher) MarkPublished(ctx context.Context, contentID, contentType string, actor entity.Actor) error {
	p.logger.Info("Content published",
		zap.String("content_id", contentID),
		zap.String("content_type", contentType),
		zap.String("user_id", actor.UserID))
	return nil
}
