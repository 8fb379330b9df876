package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadAppConfig_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "CORS_ORIGINS", "STORE_TIMEOUT", "SEED_DEMO", "LOG_FILE"} {
		t.Setenv(key, "")
	}

	cfg := LoadAppConfig()
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "sqlite:///./local.db", cfg.DatabaseURL)
	assert.Equal(t, DefaultCORSOrigins, cfg.CORSOrigins)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.False(t, cfg.SeedDemo)
	assert.Equal(t, []string{"stdout"}, cfg.LogOutputs())
}

func TestLoadAppConfig_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://u:p@db/catalog")
	t.Setenv("CORS_ORIGINS", " https://a.example.com, ,https://b.example.com ")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("SEED_DEMO", "true")
	t.Setenv("LOG_FILE", "logs/app.log")
	t.Setenv("UPLOAD_MAX_BYTES", "1024")

	cfg := LoadAppConfig()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres://u:p@db/catalog", cfg.DatabaseURL)
	assert.Equal(t, append(append([]string{}, DefaultCORSOrigins...), "https://a.example.com", "https://b.example.com"), cfg.CORSOrigins)
	assert.Equal(t, 750*time.Millisecond, cfg.StoreTimeout)
	assert.True(t, cfg.SeedDemo)
	assert.Equal(t, int64(1024), cfg.UploadMaxBytes)
	assert.Equal(t, []string{"stdout", "logs/app.log"}, cfg.LogOutputs())
}

func TestLoadAppConfig_BadValuesFallBack(t *testing.T) {
	t.Setenv("STORE_TIMEOUT", "soon")
	t.Setenv("SEED_DEMO", "maybe")
	t.Setenv("UPLOAD_MAX_PAGES", "many")

	cfg := LoadAppConfig()
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.False(t, cfg.SeedDemo)
	assert.Equal(t, 2000, cfg.UploadMaxPages)
}

func TestLoadRedisConfig(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("QUEUE_ENABLED", "1")

	cfg := LoadRedisConfig()
	assert.Equal(t, "redis:6380", cfg.Addr)
	assert.Equal(t, 2, cfg.DB)
	assert.True(t, cfg.QueueEnabled)
	assert.False(t, cfg.CacheEnabled)
}
