package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every nested key, e.g. TASKHUB_SERVER_PORT.
const EnvPrefix = "TASKHUB"

// legacyEnv maps config keys to the unprefixed variable names the service
// has always honoured. The prefixed form wins when both are set.
var legacyEnv = map[string]string{
	"server.port":               "PORT",
	"server.api_key":            "API_KEY",
	"backend.redis_addr":        "REDIS_ADDR",
	"backend.endpoint":          "LOCALSTACK_ENDPOINT",
	"backend.region":            "AWS_REGION",
	"backend.access_key_id":     "AWS_ACCESS_KEY_ID",
	"backend.secret_access_key": "AWS_SECRET_ACCESS_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.max_body_bytes", 10<<20)

	v.SetDefault("backend.driver", DriverRedis)
	v.SetDefault("backend.redis_addr", "127.0.0.1:6379")
	v.SetDefault("backend.endpoint", "http://localhost:4566")
	v.SetDefault("backend.region", "us-east-1")
	v.SetDefault("backend.access_key_id", "test")
	v.SetDefault("backend.secret_access_key", "test")

	v.SetDefault("resources.table", "Tasks")
	v.SetDefault("resources.key_field", "taskId")
	v.SetDefault("resources.bucket", "shopping-images")
	v.SetDefault("resources.topic", "task-events")
	v.SetDefault("resources.queue", "task-queue")
	v.SetDefault("resources.account_id", "000000000000")
	v.SetDefault("resources.image_prefix", "images/")
	v.SetDefault("resources.image_extension", ".jpg")
	v.SetDefault("resources.default_content_type", "image/jpeg")

	v.SetDefault("bootstrap.table_ready_timeout", 30*time.Second)
	v.SetDefault("bootstrap.reensure_schedule", "")

	v.SetDefault("fanout.direct_queue_send", true)
}

// Load reads configuration from defaults, an optional taskhub.{yaml,json,toml}
// file (or the file named by TASKHUB_CONFIG) and environment variables, then
// validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("taskhub")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct-level constraints on a loaded configuration.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
