package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.Mock.Enabled)
	assert.Equal(t, 0.85, cfg.Mock.SuccessRate)
	assert.Equal(t, 45*time.Second, cfg.PaymentQueryTimeout)
	assert.Equal(t, "@every 1m", cfg.ReconcileSchedule)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("MOCK_SUCCESS_RATE", "1")
	t.Setenv("MOCK_MIN_DELAY", "1s")
	t.Setenv("MOCK_MAX_DELAY", "2s")
	t.Setenv("MOCK_AUTO_PROCESS", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1.0, cfg.Mock.SuccessRate)
	assert.Equal(t, time.Second, cfg.Mock.MinDelay)
	assert.False(t, cfg.Mock.AutoProcess)
}

func TestLoad_InvalidSuccessRate(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("MOCK_SUCCESS_RATE", "1.5")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MockDelayOrder(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("MOCK_MIN_DELAY", "10s")
	t.Setenv("MOCK_MAX_DELAY", "1s")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RealGatewayNeedsCredentials(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("MOCK_PAYMENTS_ENABLED", "false")

	_, err := Load()
	assert.ErrorContains(t, err, "mpesa credentials")
}

func TestLoad_UnknownStore(t *testing.T) {
	t.Setenv("STORE", "mongo")

	_, err := Load()
	assert.Error(t, err)
}
