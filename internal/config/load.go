package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load configuration from environment variables and optionally a
// config file. Environment variables (prefix TASKPULSE_, nested keys
// joined with underscores, e.g. TASKPULSE_DATABASE_URL) take
// precedence over values from config files.
// Returns a populated Config struct or an error if loading or
// validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file in the working directory
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("TASKPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers defaults for every key so AutomaticEnv can
// bind overrides even when no config file is present.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.url", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.require_token", false)

	v.SetDefault("events.sidecar_url", "")
	v.SetDefault("events.pubsub", "pubsub")

	v.SetDefault("webhook.url", "http://localhost:3000/api/notifications")
	v.SetDefault("webhook.timeout_seconds", 10)
	v.SetDefault("webhook.max_retries", 3)
	v.SetDefault("webhook.backoff_base_seconds", 1)

	v.SetDefault("hub.max_connections_per_owner", 3)
	v.SetDefault("hub.rate_limit_window_seconds", 60)
	v.SetDefault("hub.max_connections_per_window", 10)
	v.SetDefault("hub.idle_timeout_seconds", 300)
}

// validate runs struct validation and converts the first failure into
// an actionable message naming the offending field.
func validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return fmt.Errorf("invalid configuration: field %s failed rule %q",
			first.Namespace(), first.Tag())
	}

	return fmt.Errorf("invalid configuration: %w", err)
}
