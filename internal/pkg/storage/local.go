package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorageService 把对象保存在本地目录下, 适用于单节点部署和测试
type LocalStorageService struct {
	basePath string
}

func NewLocalStorageService(basePath string) (*LocalStorageService, error) {
	if basePath == "" {
		return nil, errors.New("本地存储路径不能为空")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("解析本地存储路径失败: %w", err)
	}
	return &LocalStorageService{basePath: abs}, nil
}

func (s *LocalStorageService) path(objectName string) (string, error) {
	p := filepath.Join(s.basePath, filepath.FromSlash(objectName))
	if !strings.HasPrefix(p, s.basePath+string(os.PathSeparator)) {
		return "", fmt.Errorf("非法对象名: %q", objectName)
	}
	return p, nil
}

func (s *LocalStorageService) PutObject(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) (PutObjectResult, error) {
	p, err := s.path(objectName)
	if err != nil {
		return PutObjectResult{}, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return PutObjectResult{}, fmt.Errorf("创建目录失败: %w", err)
	}

	// 先写临时文件再重命名, 读者不会看到写了一半的对象
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return PutObjectResult{}, fmt.Errorf("创建临时文件失败: %w", err)
	}
	n, err := io.Copy(tmp, reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return PutObjectResult{}, fmt.Errorf("写入本地文件失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return PutObjectResult{}, fmt.Errorf("重命名本地文件失败: %w", err)
	}
	return PutObjectResult{Bucket: s.basePath, Key: objectName, Size: n}, nil
}

func (s *LocalStorageService) GetObject(_ context.Context, objectName string) (GetObjectResult, error) {
	p, err := s.path(objectName)
	if err != nil {
		return GetObjectResult{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return GetObjectResult{}, ErrObjectNotFound
		}
		return GetObjectResult{}, fmt.Errorf("打开本地文件失败: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return GetObjectResult{}, fmt.Errorf("获取本地文件信息失败: %w", err)
	}
	return GetObjectResult{Reader: f, Size: info.Size(), MimeType: "application/octet-stream"}, nil
}

func (s *LocalStorageService) RemoveObject(_ context.Context, objectName string) error {
	p, err := s.path(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("删除本地文件失败: %w", err)
	}
	return nil
}

func (s *LocalStorageService) EnsureBucket(_ context.Context) error {
	return os.MkdirAll(s.basePath, 0o750)
}
