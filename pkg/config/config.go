// Package config loads taskhub settings from defaults, an optional config
// file and the environment.
package config

import "time"

// Backend drivers.
const (
	DriverRedis = "redis"
	DriverAWS   = "aws"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Backend   BackendConfig   `mapstructure:"backend" validate:"required"`
	Resources ResourcesConfig `mapstructure:"resources" validate:"required"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap" validate:"required"`
	Fanout    FanoutConfig    `mapstructure:"fanout"`
}

// ServerConfig contains the HTTP listener settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	APIKey   string `mapstructure:"api_key"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error fatal"`
	// MaxBodyBytes bounds JSON and multipart request bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"gt=0"`
}

// BackendConfig selects and addresses the storage and messaging backend.
type BackendConfig struct {
	Driver          string `mapstructure:"driver" validate:"required,oneof=redis aws"`
	RedisAddr       string `mapstructure:"redis_addr" validate:"required_if=Driver redis"`
	Endpoint        string `mapstructure:"endpoint" validate:"required,url"`
	Region          string `mapstructure:"region" validate:"required"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// ResourcesConfig names the infrastructure the service depends on.
type ResourcesConfig struct {
	Table              string `mapstructure:"table" validate:"required"`
	KeyField           string `mapstructure:"key_field" validate:"required"`
	Bucket             string `mapstructure:"bucket" validate:"required"`
	Topic              string `mapstructure:"topic" validate:"required"`
	Queue              string `mapstructure:"queue" validate:"required"`
	AccountID          string `mapstructure:"account_id" validate:"required,numeric"`
	ImagePrefix        string `mapstructure:"image_prefix"`
	ImageExtension     string `mapstructure:"image_extension"`
	DefaultContentType string `mapstructure:"default_content_type" validate:"required"`
}

// BootstrapConfig tunes the startup infrastructure check.
type BootstrapConfig struct {
	TableReadyTimeout time.Duration `mapstructure:"table_ready_timeout" validate:"gt=0"`
	// ReensureSchedule is a cron spec; empty disables periodic re-bootstrap.
	ReensureSchedule string `mapstructure:"reensure_schedule"`
}

// FanoutConfig controls event delivery on task creation.
type FanoutConfig struct {
	// DirectQueueSend keeps the direct queue send next to the topic publish.
	// Queue consumers then see each event twice when the subscription is live.
	DirectQueueSend bool `mapstructure:"direct_queue_send"`
}
