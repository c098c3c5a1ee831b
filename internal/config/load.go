package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variables consumed by
// this service. The variable names are part of the deployment contract
// shared with the automation gateway and the broker, so they are bound
// explicitly instead of derived from a prefix.
var envBindings = map[string]string{
	"server.port":                         "PORT",
	"server.log_level":                    "LOG_LEVEL",
	"database.url":                        "DATABASE_URL",
	"rabbitmq.url":                        "RABBITMQ_URL",
	"webhook.base_url":                    "N8N_URL",
	"webhook.api_secret":                  "N8N_API_SECRET",
	"webhook.api_key":                     "N8N_WEBHOOK_API_KEY",
	"webhook.boleto_cancel_url":           "N8N_BOLETO_WEBHOOK_URL",
	"auth.jwt_secret":                     "JWT_SECRET",
	"auth.token_lifetime_minutes":         "JWT_TOKEN_LIFETIME_MINUTES",
	"auth.refresh_token_lifetime_minutes": "JWT_REFRESH_TOKEN_LIFETIME_MINUTES",
	"redis.addr":                          "REDIS_ADDR",
	"redis.password":                      "REDIS_PASSWORD",
	"task.default_delay_hours":            "TASK_DEFAULT_DELAY_HOURS",
	"task.sweeper_spec":                   "TASK_SWEEPER_SPEC",
}

// Load configuration from environment variables and optionally a config
// file. Environment variables take precedence over values from config
// files. Returns a populated Config struct or an error if
// loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("rabbitmq.reconnect_delay_seconds", 5)
	v.SetDefault("rabbitmq.max_retries", 3)
	v.SetDefault("task.default_delay_hours", 2)
	v.SetDefault("task.sweeper_spec", "@every 1m")
	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("auth.refresh_token_lifetime_minutes", 10080)
	v.SetDefault("redis.ttl_seconds", 30)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s to %s: %w", key, env, err)
		}
	}

	// Optional config file for local development; env always wins.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}
