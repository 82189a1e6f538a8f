// Package container provides dependency injection and lifecycle management
// for the editorial workflow engine.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Event queue and consumer configuration
	Queue QueueConfig

	// Retention sweep configuration
	Retention RetentionConfig

	// Role expansion and administrative roles
	Roles RolesConfig

	// StateColors maps a state slug to the color given to new states without one
	StateColors map[string]string

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is "sqlite" or "memory"
	Driver string

	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// QueueConfig holds event transport settings.
type QueueConfig struct {
	// Transport is "gochannel" or "kafka"
	Transport string

	// Topic carries every state-change event
	Topic string

	// Capacity bounds the number of events waiting for the broker
	Capacity int

	// EnqueueTimeout is how long Publish waits for room in a full queue
	EnqueueTimeout time.Duration

	// MaxMessageBytes is the largest payload a consumer accepts
	MaxMessageBytes int

	// MessageTimeout bounds one handler call
	MessageTimeout time.Duration

	// Kafka settings
	KafkaBrokers        []string
	ConsumerGroupPrefix string

	// Retry policy of the consumers and the publisher's broker forwarding
	RetryCount   uint64
	RetryBackoff time.Duration
}

// RetentionConfig holds purge settings for audit records and notifications.
type RetentionConfig struct {
	Enabled    bool
	Window     time.Duration
	Interval   time.Duration
	RetryDelay time.Duration
	MaxRetries uint64
}

// RolesConfig holds role settings.
type RolesConfig struct {
	// Mapping grants the mapped roles to every holder of the key role
	Mapping map[string][]string

	// Administrators may cancel, hold and resume instances
	Administrators []string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration

	// EnableMetrics serves /metrics
	EnableMetrics bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "data/workflow.db",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Queue: QueueConfig{
			Transport:           "gochannel",
			Topic:               "workflow.state_changed",
			Capacity:            1000,
			EnqueueTimeout:      5 * time.Second,
			MaxMessageBytes:     1 << 20,
			MessageTimeout:      30 * time.Second,
			ConsumerGroupPrefix: "editorial-workflow.",
			RetryCount:          3,
			RetryBackoff:        200 * time.Millisecond,
		},
		Retention: RetentionConfig{
			Enabled:    true,
			Window:     30 * 24 * time.Hour,
			Interval:   time.Hour,
			RetryDelay: 5 * time.Minute,
			MaxRetries: 3,
		},
		Roles: RolesConfig{
			Mapping:        map[string][]string{},
			Administrators: []string{"Admin"},
		},
		StateColors: map[string]string{},
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			EnableMetrics: true,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	// Validate database configuration
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	// Validate queue configuration
	if c.Queue.Topic == "" {
		return fmt.Errorf("queue.topic is required")
	}
	if c.Queue.Transport == "kafka" && len(c.Queue.KafkaBrokers) == 0 {
		return fmt.Errorf("queue.kafka_brokers is required")
	}

	// Validate retention configuration
	if c.Retention.Enabled && (c.Retention.Window <= 0 || c.Retention.Interval <= 0) {
		return fmt.Errorf("retention.window and retention.interval must be positive")
	}

	return nil
}
