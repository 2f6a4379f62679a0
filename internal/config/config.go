/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the sponsorship-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                  string `mapstructure:"SERVER_PORT"`
	DatabaseURL                 string `mapstructure:"DATABASE_URL"`
	RedisURL                    string `mapstructure:"REDIS_URL"`
	RedisSettlementPrefix       string `mapstructure:"REDIS_SETTLEMENT_PREFIX"`
	RabbitMQURL                 string `mapstructure:"RABBITMQ_URL"`
	RelayAPIBaseURL             string `mapstructure:"RELAY_API_BASE_URL"`
	RelayAPIKey                 string `mapstructure:"RELAY_API_KEY"`
	RelayTimeoutSeconds         int    `mapstructure:"RELAY_TIMEOUT_SECONDS"`
	InternalAPIKey              string `mapstructure:"INTERNAL_API_KEY"`
	AdminJWTSecret              string `mapstructure:"ADMIN_JWT_SECRET"`
	LedgerBucketTimezone        string `mapstructure:"LEDGER_BUCKET_TIMEZONE"`
	SettlementIdempotencyTTLMin int    `mapstructure:"SETTLEMENT_IDEMPOTENCY_TTL_MINUTES"`
	CORSAllowedOrigins          string `mapstructure:"CORS_ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("REDIS_SETTLEMENT_PREFIX", "sponsorship:settled")
	viper.SetDefault("RELAY_TIMEOUT_SECONDS", 30)
	// Ledger bucket boundaries default to UTC; configurable until confirmed
	// against the chain relay's accounting day.
	viper.SetDefault("LEDGER_BUCKET_TIMEZONE", "UTC")
	viper.SetDefault("SETTLEMENT_IDEMPOTENCY_TTL_MINUTES", 1440)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "SPONSORSHIP_REDIS_URL")
	_ = viper.BindEnv("REDIS_SETTLEMENT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("RELAY_API_BASE_URL")
	_ = viper.BindEnv("RELAY_API_KEY")
	_ = viper.BindEnv("RELAY_TIMEOUT_SECONDS")
	_ = viper.BindEnv("INTERNAL_API_KEY", "INTERNAL_API_KEY", "SPONSORSHIP_SERVICE_INTERNAL_API_KEY")
	_ = viper.BindEnv("ADMIN_JWT_SECRET")
	_ = viper.BindEnv("LEDGER_BUCKET_TIMEZONE")
	_ = viper.BindEnv("SETTLEMENT_IDEMPOTENCY_TTL_MINUTES")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.InternalAPIKey) == "" {
		config.InternalAPIKey = strings.TrimSpace(os.Getenv("SPONSORSHIP_SERVICE_INTERNAL_API_KEY"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisSettlementPrefix = strings.TrimSpace(config.RedisSettlementPrefix)
	if config.RedisSettlementPrefix == "" {
		config.RedisSettlementPrefix = "sponsorship:settled"
	}
	config.LedgerBucketTimezone = strings.TrimSpace(config.LedgerBucketTimezone)
	if config.LedgerBucketTimezone == "" {
		config.LedgerBucketTimezone = "UTC"
	}

	if config.RelayTimeoutSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive relay timeout configured; using default\" seconds=%d", config.RelayTimeoutSeconds)
		config.RelayTimeoutSeconds = 30
	}
	if config.SettlementIdempotencyTTLMin <= 0 {
		config.SettlementIdempotencyTTLMin = 1440
	}

	return
}
