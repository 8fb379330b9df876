package config

import (
	"sync"
	"time"
)

var (
	appOnce   sync.Once
	appConfig *AppConfig
)

// DefaultCORSOrigins are the front-end origins always allowed.
var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"https://ipo-quickread.vercel.app",
	"https://*.vercel.app",
}

type AppConfig struct {
	Port           string
	DatabaseURL    string
	CORSOrigins    []string
	StoreTimeout   time.Duration
	SeedDemo       bool
	LogLevel       string
	LogEncoding    string
	LogFile        string
	StorageType    string
	UploadMaxBytes int64
	UploadMaxPages int
	CacheTTL       time.Duration
}

// GetAppConfig returns the process-wide configuration, loaded once.
func GetAppConfig() *AppConfig {
	appOnce.Do(func() {
		loadDotEnv()
		appConfig = LoadAppConfig()
	})
	return appConfig
}

// LoadAppConfig reads the environment without caching.
func LoadAppConfig() *AppConfig {
	return &AppConfig{
		Port:           getString("PORT", "8000"),
		DatabaseURL:    getString("DATABASE_URL", "sqlite:///./local.db"),
		CORSOrigins:    append(append([]string{}, DefaultCORSOrigins...), getList("CORS_ORIGINS")...),
		StoreTimeout:   getDuration("STORE_TIMEOUT", 5*time.Second),
		SeedDemo:       getBool("SEED_DEMO", false),
		LogLevel:       getString("LOG_LEVEL", "info"),
		LogEncoding:    getString("LOG_ENCODING", "json"),
		LogFile:        getString("LOG_FILE", ""),
		StorageType:    getString("STORAGE_TYPE", ""),
		UploadMaxBytes: getInt64("UPLOAD_MAX_BYTES", 50*1024*1024),
		UploadMaxPages: getInt("UPLOAD_MAX_PAGES", 2000),
		CacheTTL:       getDuration("CACHE_TTL", 24*time.Hour),
	}
}

// LogOutputs is stdout plus the optional rotated log file.
func (c *AppConfig) LogOutputs() []string {
	out := []string{"stdout"}
	if c.LogFile != "" {
		out = append(out, c.LogFile)
	}
	return out
}
