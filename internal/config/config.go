package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// A Config represents all configuration of service
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Kafka          KafkaConfig          `yaml:"kafka"`
	Retry          RetryConfig          `yaml:"retry"`
	Shutdown       ShutdownConfig       `yaml:"shutdown"`
	DeadLetter     DeadLetterConfig     `yaml:"dead_letter"`
	Suppression    SuppressionConfig    `yaml:"suppression"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
}

// A ServerConfig contains configurations for the ops HTTP server
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// A DatabaseConfig contains settings for Postgres
type DatabaseConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	User               string
	Password           string
	Database           string
	SSLMode            string          `yaml:"ssl_mode"`
	MaxOpenConnections int             `yaml:"max_open_connections"`
	MinOpenConnections int             `yaml:"min_open_connections"`
	MinIdleConnections int             `yaml:"min_idle_connections"`
	HealthCheckPeriod  time.Duration   `yaml:"health_check_period"`
	Retry              ConnRetryConfig `yaml:"retry"`
}

// A ConnRetryConfig represents retry configurations for connecting to a dependency
type ConnRetryConfig struct {
	MaxAttempts int `yaml:"max_attempts"`
}

// A KafkaConfig contains settings shared by every consumer
type KafkaConfig struct {
	Brokers                      string          `yaml:"brokers"`
	GroupID                      string          `yaml:"group_id"`
	Channels                     []ChannelConfig `yaml:"channels"`
	MaxMessagesPerBatch          int             `yaml:"max_messages_per_batch"`
	PollTimeoutMs                int             `yaml:"poll_timeout_ms"`
	IdleBackoffMs                int             `yaml:"idle_backoff_ms"`
	MaxConcurrentProcessingTasks int             `yaml:"max_concurrent_processing_tasks"`
	PublishAttempts              uint            `yaml:"publish_attempts"`
}

// A ChannelConfig binds a notification channel to its primary and retry topics
type ChannelConfig struct {
	Name       string `yaml:"name"`
	Topic      string `yaml:"topic"`
	RetryTopic string `yaml:"retry_topic"`
}

// A RetryConfig contains the escalation settings for retry topics
type RetryConfig struct {
	StatusRetryThresholdSeconds int `yaml:"status_retry_threshold_seconds"`
	MinRetryIntervalMs          int `yaml:"min_retry_interval_ms"`
}

// A ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	DrainTimeoutSeconds int `yaml:"drain_timeout_seconds"`
}

// A DeadLetterConfig selects where dead-letter records are kept: "postgres" or "memory"
type DeadLetterConfig struct {
	Store string `yaml:"store"`
}

// A SuppressionConfig represents settings for duplicate report suppression
type SuppressionConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// A CircuitBreakerConfig represents circuit breaker configurations
type CircuitBreakerConfig struct {
	MaxFailers       int           `yaml:"max_failers"`
	Timeout          time.Duration `yaml:"timeout"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls"`
}

// A TelemetryConfig represents OpenTelemetry export settings
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Endpoint       string `yaml:"endpoint"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	TracesEnabled  bool   `yaml:"traces_enabled"`
}

// LoadConfig loads data into Config structure from a file
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse builds a Config from YAML, then applies environment secrets and defaults
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	config.loadEnv()
	config.applyDefaults()
	return &config, nil
}

// loadEnv loads data into Config structure from the environmental variables
func (c *Config) loadEnv() {
	_ = godotenv.Load("deployments/.env")

	// Database env variables
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		c.Database.Database = v
	}
	// Kafka env variables
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = v
	}
}

// applyDefaults fills options that were left empty
func (c *Config) applyDefaults() {
	if c.Kafka.MaxMessagesPerBatch == 0 {
		c.Kafka.MaxMessagesPerBatch = 50
	}
	if c.Kafka.PollTimeoutMs == 0 {
		c.Kafka.PollTimeoutMs = 100
	}
	if c.Kafka.IdleBackoffMs == 0 {
		c.Kafka.IdleBackoffMs = 50
	}
	if c.Kafka.MaxConcurrentProcessingTasks == 0 {
		c.Kafka.MaxConcurrentProcessingTasks = 50
	}
	if c.Kafka.PublishAttempts == 0 {
		c.Kafka.PublishAttempts = 3
	}
	for i := range c.Kafka.Channels {
		if c.Kafka.Channels[i].RetryTopic == "" && c.Kafka.Channels[i].Topic != "" {
			c.Kafka.Channels[i].RetryTopic = c.Kafka.Channels[i].Topic + ".retry"
		}
	}
	if c.Shutdown.DrainTimeoutSeconds == 0 {
		c.Shutdown.DrainTimeoutSeconds = 30
	}
	if c.DeadLetter.Store == "" {
		c.DeadLetter.Store = "postgres"
	}
	if c.Suppression.Capacity == 0 {
		c.Suppression.Capacity = 10000
	}
	if c.Suppression.TTL == 0 {
		c.Suppression.TTL = 10 * time.Minute
	}
	if c.CircuitBreaker.MaxFailers == 0 {
		c.CircuitBreaker.MaxFailers = 5
	}
	if c.CircuitBreaker.Timeout == 0 {
		c.CircuitBreaker.Timeout = 30 * time.Second
	}
	if c.CircuitBreaker.HalfOpenMaxCalls == 0 {
		c.CircuitBreaker.HalfOpenMaxCalls = 3
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "status-consumer"
	}
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// PollTimeout returns the wall-clock budget of one poll
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Kafka.PollTimeoutMs) * time.Millisecond
}

// IdleBackoff returns the pause after an empty poll
func (c *Config) IdleBackoff() time.Duration {
	return time.Duration(c.Kafka.IdleBackoffMs) * time.Millisecond
}

// StatusRetryThreshold returns the age after which a failing report is dead-lettered
func (c *Config) StatusRetryThreshold() time.Duration {
	return time.Duration(c.Retry.StatusRetryThresholdSeconds) * time.Second
}

// MinRetryInterval returns the minimum spacing between two attempts of one envelope
func (c *Config) MinRetryInterval() time.Duration {
	return time.Duration(c.Retry.MinRetryIntervalMs) * time.Millisecond
}

// DrainTimeout returns how long shutdown waits for each in-flight task
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Shutdown.DrainTimeoutSeconds) * time.Second
}

// Validate checks if the most important fields are properly filled
func (c *Config) Validate() error {
	if c.DeadLetter.Store != "postgres" && c.DeadLetter.Store != "memory" {
		return fmt.Errorf("unknown dead letter store: %q", c.DeadLetter.Store)
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Host == "" {
		return errors.New("database host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Kafka.Brokers == "" {
		return errors.New("kafka brokers are required")
	}
	if c.Kafka.GroupID == "" {
		return errors.New("kafka group id is required, offsets are committed manually")
	}
	if len(c.Kafka.Channels) == 0 {
		return errors.New("at least one channel has to be configured")
	}
	seen := make(map[string]struct{}, len(c.Kafka.Channels))
	for _, ch := range c.Kafka.Channels {
		if ch.Name == "" || ch.Topic == "" {
			return fmt.Errorf("channel %q needs a name and a topic", ch.Name)
		}
		if ch.Topic == ch.RetryTopic {
			return fmt.Errorf("channel %q: retry topic must differ from the primary topic", ch.Name)
		}
		if _, ok := seen[ch.Name]; ok {
			return fmt.Errorf("channel %q is configured twice", ch.Name)
		}
		seen[ch.Name] = struct{}{}
	}
	if c.Kafka.MaxMessagesPerBatch < 0 || c.Kafka.MaxConcurrentProcessingTasks < 0 {
		return errors.New("batch size and concurrency must be positive")
	}
	if c.Retry.StatusRetryThresholdSeconds <= 0 {
		return errors.New("status retry threshold must be positive")
	}
	if c.MinRetryInterval() >= c.DrainTimeout() {
		return fmt.Errorf(
			"min retry interval %s must be shorter than the drain timeout %s", c.MinRetryInterval(), c.DrainTimeout(),
		)
	}
	if c.Suppression.Capacity <= 0 {
		return errors.New("suppression cache capacity must be positive")
	}

	return nil
}
