package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/3Eeeecho/go-securedisk/internal/config"
)

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("存储对象不存在")

// StorageService 定义了密文 blob 的存取接口, 对象名由调用方决定
type StorageService interface {
	// 上传对象
	PutObject(ctx context.Context, objectName string, reader io.Reader, objectSize int64, contentType string) (PutObjectResult, error)
	// 下载对象，调用方负责关闭 Reader
	GetObject(ctx context.Context, objectName string) (GetObjectResult, error)
	// 删除对象，对象不存在时不报错
	RemoveObject(ctx context.Context, objectName string) error
	// 确保存储桶(或目录)存在
	EnsureBucket(ctx context.Context) error
}

type PutObjectResult struct {
	Bucket string
	Key    string
	Size   int64
	ETag   string
}

type GetObjectResult struct {
	Reader   io.ReadCloser // 文件内容读取器，需要在使用后关闭
	Size     int64
	MimeType string
}

// ReadAll 读取整个对象
func ReadAll(ctx context.Context, s StorageService, objectName string) ([]byte, error) {
	res, err := s.GetObject(ctx, objectName)
	if err != nil {
		return nil, err
	}
	defer res.Reader.Close()
	data, err := io.ReadAll(res.Reader)
	if err != nil {
		return nil, fmt.Errorf("读取存储对象失败: %w", err)
	}
	return data, nil
}

func NewStorageService(cfg *config.Config) (StorageService, error) {
	switch cfg.Storage.Type {
	case "minio":
		return NewMinIOStorageService(&cfg.MinIO)
	case "aliyun_oss":
		return NewAliyunOSSStorageService(&cfg.AliyunOSS)
	case "local":
		return NewLocalStorageService(cfg.Storage.LocalBasePath)
	default:
		return nil, errors.New("invalid storageType")
	}
}
