package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setMockEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("GATEWAY_MODE", "mock")
	t.Setenv("WEBHOOK_HMAC_KEY", "hmac-key")
}

func TestLoadDefaults(t *testing.T) {
	setMockEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.HTTPPort)
	require.Equal(t, "usd", cfg.Currency)
	require.Equal(t, "authenticated", cfg.JWTAudience)
	require.Equal(t, "0.02", cfg.Fees.PlatformRate.String())
	require.Equal(t, "0.029", cfg.Fees.ProcessorRate.String())
	require.Equal(t, "0.3", cfg.Fees.ProcessorFixed.String())
	require.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	require.Equal(t, 45*time.Second, cfg.LockTTL)
	require.Equal(t, LockBackendMemory, cfg.LockBackend)
	require.Equal(t, 50, cfg.ReconcileBatchSize)
	require.True(t, cfg.AutoMigrate)
}

func TestLoadPrefixedAliases(t *testing.T) {
	setMockEnv(t)
	t.Setenv("MCC_PLATFORM_FEE_RATE", "0.075")
	t.Setenv("MCC_CURRENCY", "CAD")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.075", cfg.Fees.PlatformRate.String())
	require.Equal(t, "cad", cfg.Currency)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "short_secret", env: map[string]string{"JWT_SECRET": "short"}},
		{name: "fee_rate_over_one", env: map[string]string{"PLATFORM_FEE_RATE": "1.5"}},
		{name: "fee_rate_not_number", env: map[string]string{"PLATFORM_FEE_RATE": "two percent"}},
		{name: "stripe_without_keys", env: map[string]string{"GATEWAY_MODE": "stripe"}},
		{name: "unknown_gateway", env: map[string]string{"GATEWAY_MODE": "paypal"}},
		{name: "redis_lock_without_redis", env: map[string]string{"LOCK_BACKEND": "redis"}},
		{name: "bad_duration", env: map[string]string{"GATEWAY_TIMEOUT": "soon"}},
		{name: "mock_without_hmac", env: map[string]string{"WEBHOOK_HMAC_KEY": ""}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setMockEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadStripeMode(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("GATEWAY_MODE", "stripe")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, GatewayModeStripe, cfg.GatewayMode)
}
