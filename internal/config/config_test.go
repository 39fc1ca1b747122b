package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.DryRun)
	assert.Equal(t, "Primary", cfg.PickupLocation)
	assert.Equal(t, 0.5, cfg.DefaultItemWeightKG)
	assert.Equal(t, StorageMemory, cfg.StorageBackend)
	assert.Equal(t, 30*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 3, cfg.GatewayMaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.WaitPollInterval)
	assert.False(t, cfg.WhatsAppEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SHIPROCKET_DRY_RUN", "false")
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/deliveries")
	t.Setenv("WAIT_TIMEOUT", "5s")
	t.Setenv("RESERVATION_LEASE", "2m")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("TWILIO_WHATSAPP_FROM", "+14155238886")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.DryRun)
	assert.Equal(t, StoragePostgres, cfg.StorageBackend)
	assert.Equal(t, 5*time.Second, cfg.WaitTimeout)
	assert.Equal(t, 2*time.Minute, cfg.ReservationLease)
	assert.True(t, cfg.WhatsAppEnabled())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "UnknownBackend", env: map[string]string{"STORAGE_BACKEND": "redis"}},
		{name: "PostgresWithoutURL", env: map[string]string{"STORAGE_BACKEND": "postgres"}},
		{name: "ZeroAttempts", env: map[string]string{"GATEWAY_MAX_ATTEMPTS": "0"}},
		{name: "BadDuration", env: map[string]string{"GATEWAY_TIMEOUT": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestConfig_Attributes(t *testing.T) {
	cfg := &Config{ServiceName: "spinhouse-delivery", Version: "1.2.0", DryRun: true, StorageBackend: StorageDynamoDB}

	attrs := map[string]string{}
	for _, kv := range cfg.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "spinhouse-delivery", attrs["service.name"])
	assert.Equal(t, "1.2.0", attrs["service.version"])
	assert.Equal(t, "true", attrs["shiprocket.dry_run"])
	assert.Equal(t, "dynamodb", attrs["delivery.storage_backend"])
}
