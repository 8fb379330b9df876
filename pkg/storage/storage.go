package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/feichai0017/ipo-quickread/pkg/logger"
	"github.com/feichai0017/ipo-quickread/pkg/storage/memory"
	"github.com/feichai0017/ipo-quickread/pkg/storage/minio"
	"github.com/feichai0017/ipo-quickread/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
	StorageTypeS3     StorageType = "s3"
	StorageTypeMinio  StorageType = "minio"
	StorageTypeMemory StorageType = "memory"
)

// ErrDisabled is returned by NewStorage when no storage type is configured.
var ErrDisabled = errors.New("storage disabled")

// Storage 接口定义
type Storage interface {
	// Store 存储文件
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	// Get 获取文件
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// NewStorage 创建存储实例的工厂方法
func NewStorage(ctx context.Context, storageType StorageType, log logger.Logger) (Storage, error) {
	switch storageType {
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, log)
	case StorageTypeMemory:
		return memory.New(), nil
	case "":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// UploadKey places an uploaded prospectus under uploads/<upload id>/.
func UploadKey(uploadID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "prospectus.pdf"
	}
	return "uploads/" + uploadID + "/" + name
}

// NewUploadID returns a time-ordered id for an uploaded file.
func NewUploadID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate upload id: %w", err)
	}
	return id.String(), nil
}
