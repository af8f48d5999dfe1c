package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("GATEWAY_KEY_SECRET", "key-secret")
	t.Setenv("GATEWAY_WEBHOOK_SECRET", "hook-secret")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("PLATFORM_COMMISSION_RATE", "0.12")
	t.Setenv("WEBHOOK_DEDUPE_TTL", "1h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, decimal.RequireFromString("0.12").Equal(cfg.Settlement.PlatformCommissionRate))
	assert.True(t, decimal.RequireFromString("0.03").Equal(cfg.Settlement.PaymentProcessingRate))
	assert.Equal(t, "1h0m0s", cfg.Redis.DedupeTTL.String())
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.False(t, cfg.Gateway.Enabled())
}

func TestLoad_RequiresWebhookSecret(t *testing.T) {
	t.Setenv("GATEWAY_KEY_SECRET", "key-secret")
	t.Setenv("GATEWAY_WEBHOOK_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate_Rates(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{MaxOpenConns: 5},
			Gateway:  GatewayConfig{KeySecret: "k", WebhookSecret: "w"},
			Settlement: SettlementConfig{
				PlatformCommissionRate: decimal.RequireFromString("0.10"),
				PaymentProcessingRate:  decimal.RequireFromString("0.03"),
			},
		}
	}

	assert.NoError(t, valid().Validate())

	negative := valid()
	negative.Settlement.PaymentProcessingRate = decimal.RequireFromString("-0.01")
	assert.Error(t, negative.Validate())

	tooHigh := valid()
	tooHigh.Settlement.PlatformCommissionRate = decimal.RequireFromString("0.98")
	assert.Error(t, tooHigh.Validate())
}
