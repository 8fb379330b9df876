package config

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// loadDotEnv loads the project-root .env once; real environment variables win.
func loadDotEnv() {
	dotenvOnce.Do(func() {
		// 获取当前文件的目录
		_, filename, _, _ := runtime.Caller(0)
		rootDir := filepath.Dir(filepath.Dir(filename))
		envPath := filepath.Join(rootDir, ".env")

		if err := godotenv.Load(envPath); err != nil {
			if err := godotenv.Load(); err != nil {
				log.Printf("Warning: .env file not found at %s, falling back to environment variables", envPath)
			}
		}
	})
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func getInt(key string, def int) int {
	v, err := strconv.Atoi(getString(key, ""))
	if err != nil {
		return def
	}
	return v
}

func getInt64(key string, def int64) int64 {
	v, err := strconv.ParseInt(getString(key, ""), 10, 64)
	if err != nil {
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	v, err := strconv.ParseBool(getString(key, ""))
	if err != nil {
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(getString(key, ""))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(getString(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
