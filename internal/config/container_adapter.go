package config

import (
	"github.com/garyjia/editorial-workflow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Queue: container.QueueConfig{
			Transport:           c.Queue.Transport,
			Topic:               c.Queue.Topic,
			Capacity:            c.Queue.Capacity,
			EnqueueTimeout:      c.Queue.EnqueueTimeout,
			MaxMessageBytes:     c.Queue.MaxMessageBytes,
			MessageTimeout:      c.Queue.MessageTimeout,
			KafkaBrokers:        c.Queue.KafkaBrokers,
			ConsumerGroupPrefix: c.Queue.ConsumerGroupPrefix,
			RetryCount:          c.Consumer.RetryCount,
			RetryBackoff:        c.Consumer.RetryBackoff,
		},
		Retention: container.RetentionConfig{
			Enabled:    c.Retention.Enabled,
			Window:     c.Retention.Window,
			Interval:   c.Retention.Interval,
			RetryDelay: c.Retention.RetryDelay,
			MaxRetries: c.Retention.MaxRetries,
		},
		Roles: container.RolesConfig{
			Mapping:        c.RoleMapping(),
			Administrators: c.Roles.Administrators,
		},
		StateColors: c.UI.StateColors,
		Server: container.ServerConfig{
			Host:          c.Server.Host,
			Port:          c.Server.Port,
			ReadTimeout:   c.Server.ReadTimeout,
			WriteTimeout:  c.Server.WriteTimeout,
			EnableMetrics: c.Server.EnableMetrics,
		},
	}
}
