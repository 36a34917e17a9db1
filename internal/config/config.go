/**
 * @description
 * Configuration management for the member-portal service. Uses viper to load
 * settings from environment variables, with explicit BindEnv calls so every
 * key is visible to Unmarshal even when only set in the process environment.
 */
package config

import (
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	// Remote auth provider (GoTrue-compatible REST API).
	AuthBaseURL string `mapstructure:"AUTH_BASE_URL"`
	AuthAPIKey  string `mapstructure:"AUTH_API_KEY"`

	// Backend edge functions host.
	FunctionsBaseURL string `mapstructure:"FUNCTIONS_BASE_URL"`
	FunctionsAPIKey  string `mapstructure:"FUNCTIONS_API_KEY"`

	// Payment provider.
	StripeAPIBaseURL    string `mapstructure:"STRIPE_API_BASE_URL"`
	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`

	// Cron schedule for the activation reconciliation job.
	ReconciliationSchedule string `mapstructure:"RECONCILIATION_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8090")
	viper.SetDefault("STRIPE_API_BASE_URL", "https://api.stripe.com")
	viper.SetDefault("RECONCILIATION_SCHEDULE", "@every 5m")
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("AUTH_BASE_URL")
	_ = viper.BindEnv("AUTH_API_KEY")
	_ = viper.BindEnv("FUNCTIONS_BASE_URL")
	_ = viper.BindEnv("FUNCTIONS_API_KEY")
	_ = viper.BindEnv("STRIPE_API_BASE_URL")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("STRIPE_WEBHOOK_SECRET")
	_ = viper.BindEnv("RECONCILIATION_SCHEDULE")

	err = viper.Unmarshal(&config)
	return
}
