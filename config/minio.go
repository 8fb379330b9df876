package config

import (
	"sync"
)

var (
	minioOnce   sync.Once
	minioConfig *MinioConfig
)

type MinioConfig struct {
	AccessKey  string
	SecretKey  string
	Endpoint   string
	UseSSL     bool
	Region     string
	BucketName string
}

func GetMinioConfig() *MinioConfig {
	minioOnce.Do(func() {
		loadDotEnv()
		minioConfig = &MinioConfig{
			AccessKey:  getString("MINIO_ACCESS_KEY", ""),
			SecretKey:  getString("MINIO_SECRET_KEY", ""),
			Endpoint:   getString("MINIO_ENDPOINT", "localhost:9000"),
			UseSSL:     getBool("MINIO_USE_SSL", false),
			Region:     getString("MINIO_REGION", ""),
			BucketName: getString("MINIO_BUCKET_NAME", "filings"),
		}
	})
	return minioConfig
}
