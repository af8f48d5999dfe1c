package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	Environment string
	Database    DatabaseConfig
	Gateway     GatewayConfig
	Settlement  SettlementConfig
	Kafka       KafkaConfig
	Redis       RedisConfig
	LogLevel    string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	DBName       string
	SSLMode      string
	MaxOpenConns int
}

// GatewayConfig holds the payment gateway credentials. APIBaseURL and the key
// pair are optional; without them checkout issues local gateway order ids.
type GatewayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	APIBaseURL    string
	Currency      string
}

// Enabled reports whether the gateway REST API can be called
func (g GatewayConfig) Enabled() bool {
	return g.APIBaseURL != "" && g.KeyID != "" && g.KeySecret != ""
}

type SettlementConfig struct {
	PlatformCommissionRate decimal.Decimal
	PaymentProcessingRate  decimal.Decimal
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	DedupeTTL time.Duration
}

func Load() (*Config, error) {
	viper.SetConfigType("env")
	viper.SetConfigName(".env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("LOG_LEVEL", "info")

	// Read from environment variables
	viper.AutomaticEnv()

	// Try to read .env file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	maxOpenConns, err := strconv.Atoi(getEnvOrViper("DB_MAX_OPEN_CONNS", "20"))
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS must be an integer: %w", err)
	}
	commission, err := decimal.NewFromString(getEnvOrViper("PLATFORM_COMMISSION_RATE", "0.10"))
	if err != nil {
		return nil, fmt.Errorf("PLATFORM_COMMISSION_RATE must be a decimal: %w", err)
	}
	processing, err := decimal.NewFromString(getEnvOrViper("PAYMENT_PROCESSING_RATE", "0.03"))
	if err != nil {
		return nil, fmt.Errorf("PAYMENT_PROCESSING_RATE must be a decimal: %w", err)
	}
	redisDB, err := strconv.Atoi(getEnvOrViper("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB must be an integer: %w", err)
	}
	dedupeTTL, err := time.ParseDuration(getEnvOrViper("WEBHOOK_DEDUPE_TTL", "72h"))
	if err != nil {
		return nil, fmt.Errorf("WEBHOOK_DEDUPE_TTL must be a duration: %w", err)
	}

	cfg := &Config{
		Port:        getEnvOrViper("PORT", "8080"),
		Environment: getEnvOrViper("ENVIRONMENT", "development"),
		Database: DatabaseConfig{
			Host:         getEnvOrViper("DB_HOST", "localhost"),
			Port:         getEnvOrViper("DB_PORT", "5432"),
			User:         getEnvOrViper("DB_USER", "postgres"),
			Password:     getEnvOrViper("DB_PASSWORD", "postgres"),
			DBName:       getEnvOrViper("DB_NAME", "settlement"),
			SSLMode:      getEnvOrViper("DB_SSLMODE", "disable"),
			MaxOpenConns: maxOpenConns,
		},
		Gateway: GatewayConfig{
			KeyID:         getEnvOrViper("GATEWAY_KEY_ID", ""),
			KeySecret:     getEnvOrViper("GATEWAY_KEY_SECRET", ""),
			WebhookSecret: getEnvOrViper("GATEWAY_WEBHOOK_SECRET", ""),
			APIBaseURL:    getEnvOrViper("GATEWAY_API_BASE_URL", ""),
			Currency:      getEnvOrViper("GATEWAY_CURRENCY", "INR"),
		},
		Settlement: SettlementConfig{
			PlatformCommissionRate: commission,
			PaymentProcessingRate:  processing,
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnvOrViper("KAFKA_BROKERS", "")),
			Topic:   getEnvOrViper("KAFKA_TOPIC", "settlement-events"),
		},
		Redis: RedisConfig{
			Addr:      getEnvOrViper("REDIS_ADDR", ""),
			Password:  getEnvOrViper("REDIS_PASSWORD", ""),
			DB:        redisDB,
			DedupeTTL: dedupeTTL,
		},
		LogLevel: getEnvOrViper("LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required secrets and settlement rate bounds
func (c *Config) Validate() error {
	if c.Gateway.KeySecret == "" {
		return fmt.Errorf("GATEWAY_KEY_SECRET is required")
	}
	if c.Gateway.WebhookSecret == "" {
		return fmt.Errorf("GATEWAY_WEBHOOK_SECRET is required")
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive")
	}

	one := decimal.NewFromInt(1)
	for name, rate := range map[string]decimal.Decimal{
		"PLATFORM_COMMISSION_RATE": c.Settlement.PlatformCommissionRate,
		"PAYMENT_PROCESSING_RATE":  c.Settlement.PaymentProcessingRate,
	} {
		if rate.IsNegative() || rate.GreaterThan(one) {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if c.Settlement.PlatformCommissionRate.Add(c.Settlement.PaymentProcessingRate).GreaterThan(one) {
		return fmt.Errorf("settlement rates must not sum above 1")
	}
	return nil
}

func getEnvOrViper(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
