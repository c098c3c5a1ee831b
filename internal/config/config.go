// Package config loads and validates application configuration.
package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq" validate:"required"`
	Webhook  WebhookConfig  `mapstructure:"webhook" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database related settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// RabbitMQConfig contains the message broker settings.
type RabbitMQConfig struct {
	URL string `mapstructure:"url" validate:"required"`
	// ReconnectDelaySeconds is how long to wait before reconnecting
	// after an unexpected connection close.
	ReconnectDelaySeconds int `mapstructure:"reconnect_delay_seconds" validate:"gte=1"`
	// MaxRetries is the delivery attempt ceiling before a message is
	// routed to the dead-letter queue.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=1"`
}

// WebhookConfig contains the settings for outbound calls to the
// automation gateway (N8N) that issues boletos and NFSe documents.
type WebhookConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// APISecret is sent as the Bearer token on boleto issuance and as
	// the apikey header on NFSe issuance.
	APISecret string `mapstructure:"api_secret" validate:"required"`
	// APIKey is the key for the generic webhook endpoints.
	APIKey string `mapstructure:"api_key"`
	// BoletoCancelURL is the full URL of the boleto cancellation webhook.
	BoletoCancelURL string `mapstructure:"boleto_cancel_url"`
}

// TaskConfig contains task pipeline settings.
type TaskConfig struct {
	// DefaultDelayHours is the cooling-off period applied when a
	// generation request carries no explicit schedule. It leaves a
	// cancellation window before the irreversible external call.
	DefaultDelayHours int `mapstructure:"default_delay_hours" validate:"gte=0"`
	// SweeperSpec is the cron expression for the due-task sweeper.
	SweeperSpec string `mapstructure:"sweeper_spec" validate:"required"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret                   string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes        int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	RefreshTokenLifetimeMinutes int    `mapstructure:"refresh_token_lifetime_minutes" validate:"required,gt=0"`
}

// RedisConfig contains the task status cache settings. An empty address
// disables the cache; every read then goes straight to the store.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds" validate:"gte=0"`
}
