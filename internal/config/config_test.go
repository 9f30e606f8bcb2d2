package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_MAX_OPEN_CONNS", "20")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("CONTRACT_ADDRESS", "0x00000000000000000000000000000000000000aa")
	t.Setenv("CONFIRM_TIMEOUT_SEC", "30")

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", cfg.Chain.ContractAddress)
	assert.Equal(t, 30*time.Second, cfg.Registration.ConfirmTimeout)
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"MAX_FILE_SIZE", "LIST_PARALLELISM", "CHAIN_CONFIRMATIONS", "REDIS_ADDR", "BLOB_BACKEND", "CHAIN_POLL_INTERVAL_MS"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, int64(10485760), cfg.Registration.MaxFileSize)
	assert.Equal(t, 8, cfg.Registration.ListParallelism)
	assert.Equal(t, 1, cfg.Chain.Confirmations)
	assert.Equal(t, 2*time.Second, cfg.Chain.PollInterval)
	assert.Equal(t, "minio", cfg.BlobBackend)
	assert.False(t, cfg.Redis.Enabled())
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	os.Setenv(key, "value")
	defer os.Unsetenv(key)

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	os.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	os.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	os.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	os.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	os.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))

	os.Unsetenv(key)
	assert.Equal(t, 10, getEnvInt(key, 10))
}

func TestGetEnvDuration(t *testing.T) {
	key := "TEST_DURATION_VAR"

	t.Setenv(key, "5")
	assert.Equal(t, 5*time.Second, getEnvDuration(key, 1, time.Second))

	t.Setenv(key, "-3")
	assert.Equal(t, time.Second, getEnvDuration(key, 1, time.Second))

	t.Setenv(key, "")
	assert.Equal(t, 250*time.Millisecond, getEnvDuration(key, 250, time.Millisecond))
}

func TestLocation(t *testing.T) {
	assert.Equal(t, time.UTC, LogConfig{Timezone: "Not/AZone"}.Location())
	assert.Equal(t, "UTC", LogConfig{Timezone: "UTC"}.Location().String())
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, getEnvList("CORS_ALLOWED_ORIGINS"))

	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	assert.Nil(t, getEnvList("CORS_ALLOWED_ORIGINS"))
}
