package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Events   EventsConfig   `mapstructure:"events"   validate:"required"`
	Webhook  WebhookConfig  `mapstructure:"webhook"  validate:"required"`
	Hub      HubConfig      `mapstructure:"hub"      validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains credential verification settings for the
// real-time channel. RequireToken selects the strict admission policy:
// when true, connections without a credential are refused; when false,
// they are admitted unauthenticated.
type AuthConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"    validate:"required,min=32"`
	RequireToken bool   `mapstructure:"require_token"`
}

// EventsConfig configures outbound event publishing. An empty
// SidecarURL selects the in-memory bus (single-process mode).
type EventsConfig struct {
	SidecarURL string `mapstructure:"sidecar_url" validate:"omitempty,url"`
	PubSub     string `mapstructure:"pubsub"      validate:"required"`
}

// WebhookConfig configures reminder delivery. BackoffBaseSeconds is
// the unit multiplied by 2, 4, 8 between retry attempts.
type WebhookConfig struct {
	URL                string `mapstructure:"url"                  validate:"required,url"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"      validate:"required,gt=0"`
	MaxRetries         int    `mapstructure:"max_retries"          validate:"gte=0,lte=10"`
	BackoffBaseSeconds int    `mapstructure:"backoff_base_seconds" validate:"required,gt=0"`
}

// HubConfig configures websocket admission control and connection
// lifecycle.
type HubConfig struct {
	MaxConnectionsPerOwner  int `mapstructure:"max_connections_per_owner"  validate:"required,gt=0"`
	RateLimitWindowSeconds  int `mapstructure:"rate_limit_window_seconds"  validate:"required,gt=0"`
	MaxConnectionsPerWindow int `mapstructure:"max_connections_per_window" validate:"required,gt=0"`
	IdleTimeoutSeconds      int `mapstructure:"idle_timeout_seconds"       validate:"required,gt=0"`
}
