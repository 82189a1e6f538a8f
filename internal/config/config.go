package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigPath is read when WORKFLOW_CONFIG is not set
const DefaultConfigPath = "configs/config.yaml"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Consumer  ConsumerConfig  `mapstructure:"consumer"`
	Retention RetentionConfig `mapstructure:"retention"`
	Roles     RolesConfig     `mapstructure:"roles"`
	UI        UIConfig        `mapstructure:"ui"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or memory
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// QueueConfig holds event queue configuration
type QueueConfig struct {
	Transport           string        `mapstructure:"transport"` // gochannel or kafka
	Topic               string        `mapstructure:"topic"`
	Capacity            int           `mapstructure:"capacity"`
	EnqueueTimeout      time.Duration `mapstructure:"enqueue_timeout"`
	MaxMessageBytes     int           `mapstructure:"max_message_bytes"`
	MessageTimeout      time.Duration `mapstructure:"message_timeout"`
	KafkaBrokers        []string      `mapstructure:"kafka_brokers"`
	ConsumerGroupPrefix string        `mapstructure:"consumer_group_prefix"`
}

// ConsumerConfig holds the retry policy of the audit and notification consumers
type ConsumerConfig struct {
	RetryCount   uint64        `mapstructure:"retry_count"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// RetentionConfig holds the purge schedule for audit records and notifications
type RetentionConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Window     time.Duration `mapstructure:"window"`
	Interval   time.Duration `mapstructure:"interval"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	MaxRetries uint64        `mapstructure:"max_retries"`
}

// RoleGrant gives every holder of Role the roles in Grants
type RoleGrant struct {
	Role   string   `mapstructure:"role"`
	Grants []string `mapstructure:"grants"`
}

// RolesConfig holds role expansion and the roles allowed to cancel, hold and resume.
// Grants are a list rather than a map because viper lowercases map keys.
type RolesConfig struct {
	Mapping        []RoleGrant `mapstructure:"mapping"`
	Administrators []string    `mapstructure:"administrators"`
}

// UIConfig holds presentation defaults
type UIConfig struct {
	StateColors map[string]string `mapstructure:"state_colors"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// PathFromEnv returns WORKFLOW_CONFIG or the default config path
func PathFromEnv() string {
	if path := os.Getenv("WORKFLOW_CONFIG"); path != "" {
		return path
	}
	return DefaultConfigPath
}

// Load loads configuration from file and environment variables.
// A missing file is not an error; defaults and environment apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WORKFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.enable_metrics", true)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/workflow.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Queue defaults
	v.SetDefault("queue.transport", "gochannel")
	v.SetDefault("queue.topic", "workflow.state_changed")
	v.SetDefault("queue.capacity", 1000)
	v.SetDefault("queue.enqueue_timeout", 5*time.Second)
	v.SetDefault("queue.max_message_bytes", 1<<20)
	v.SetDefault("queue.message_timeout", 30*time.Second)
	v.SetDefault("queue.kafka_brokers", []string{})
	v.SetDefault("queue.consumer_group_prefix", "editorial-workflow.")

	// Consumer defaults
	v.SetDefault("consumer.retry_count", 3)
	v.SetDefault("consumer.retry_backoff", 200*time.Millisecond)

	// Retention defaults
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.window", 30*24*time.Hour)
	v.SetDefault("retention.interval", time.Hour)
	v.SetDefault("retention.retry_delay", 5*time.Minute)
	v.SetDefault("retention.max_retries", 3)

	// Roles defaults
	v.SetDefault("roles.administrators", []string{"Admin"})

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds the unprefixed variables used by deployments
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.port":          {"WORKFLOW_SERVER_PORT", "PORT"},
		"database.path":        {"WORKFLOW_DATABASE_PATH", "DATABASE_PATH"},
		"queue.kafka_brokers":  {"WORKFLOW_QUEUE_KAFKA_BROKERS", "KAFKA_BROKERS"},
		"logger.level":         {"WORKFLOW_LOGGER_LEVEL", "LOG_LEVEL"},
		"retention.enabled":    {"WORKFLOW_RETENTION_ENABLED"},
		"roles.administrators": {"WORKFLOW_ROLES_ADMINISTRATORS"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be sqlite or memory, got %q", c.Database.Driver)
	}

	switch c.Queue.Transport {
	case "gochannel":
	case "kafka":
		if len(c.Queue.KafkaBrokers) == 0 {
			return fmt.Errorf("queue.kafka_brokers is required for the kafka transport")
		}
	default:
		return fmt.Errorf("queue.transport must be gochannel or kafka, got %q", c.Queue.Transport)
	}
	if c.Queue.Topic == "" {
		return fmt.Errorf("queue.topic is required")
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("queue.capacity must be positive")
	}

	if c.Retention.Enabled {
		if c.Retention.Window <= 0 {
			return fmt.Errorf("retention.window must be positive")
		}
		if c.Retention.Interval <= 0 {
			return fmt.Errorf("retention.interval must be positive")
		}
	}

	for _, grant := range c.Roles.Mapping {
		if grant.Role == "" {
			return fmt.Errorf("roles.mapping entries require a role")
		}
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("logger.format must be json or console")
	}

	return nil
}

// RoleMapping returns the role grants keyed by role
func (c *Config) RoleMapping() map[string][]string {
	mapping := make(map[string][]string, len(c.Roles.Mapping))
	for _, grant := range c.Roles.Mapping {
		mapping[grant.Role] = append(mapping[grant.Role], grant.Grants...)
	}
	return mapping
}
