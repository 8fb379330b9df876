package config

import "sync"

var (
	redisOnce   sync.Once
	redisConfig *RedisConfig
)

// RedisConfig covers the asynq hand-off queue and the quick-read cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// QueueEnabled turns on the asynq hand-off; off means the pipeline polls for new filings.
	QueueEnabled bool
	CacheEnabled bool
	// Concurrency of cmd/worker.
	Concurrency int
}

func GetRedisConfig() *RedisConfig {
	redisOnce.Do(func() {
		loadDotEnv()
		redisConfig = LoadRedisConfig()
	})
	return redisConfig
}

func LoadRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         getString("REDIS_ADDR", "localhost:6379"),
		Password:     getString("REDIS_PASSWORD", ""),
		DB:           getInt("REDIS_DB", 0),
		QueueEnabled: getBool("QUEUE_ENABLED", false),
		CacheEnabled: getBool("CACHE_ENABLED", false),
		Concurrency:  getInt("WORKER_CONCURRENCY", 10),
	}
}
