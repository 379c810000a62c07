package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/cryptox"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"go.uber.org/zap"
)

// Sealed 加密后的文件, 可直接写入存储和元数据
type Sealed struct {
	Ciphertext   []byte
	EncryptedKey []byte
	Checksum     string
}

// Vault 负责文件加解密与密钥托管, 原始密钥不离开这里, 除非调用方显式索取
type Vault struct {
	custody *cryptox.KeyCustody
	storage storage.StorageService
}

func New(custody *cryptox.KeyCustody, s storage.StorageService) *Vault {
	return &Vault{custody: custody, storage: s}
}

// Seal 先对明文计算摘要, 再用新生成的文件密钥加密
func (v *Vault) Seal(plaintext []byte) (*Sealed, error) {
	checksum := cryptox.Checksum(plaintext)

	key, err := v.custody.GenerateKey()
	if err != nil {
		return nil, err
	}
	ciphertext, err := cryptox.Encrypt(plaintext, key)
	if err != nil {
		return nil, fmt.Errorf("加密文件失败: %w", err)
	}
	wrapped, err := v.custody.Wrap(key)
	if err != nil {
		return nil, fmt.Errorf("包裹文件密钥失败: %w", err)
	}
	return &Sealed{Ciphertext: ciphertext, EncryptedKey: wrapped, Checksum: checksum}, nil
}

// Store 写入密文对象
func (v *Vault) Store(ctx context.Context, objectName string, sealed *Sealed) error {
	_, err := v.storage.PutObject(ctx, objectName, bytes.NewReader(sealed.Ciphertext), int64(len(sealed.Ciphertext)), "application/octet-stream")
	if err != nil {
		return fmt.Errorf("%w: %v", xerr.ErrStorageError, err)
	}
	return nil
}

// Discard 尽力删除写入后未能登记的对象
func (v *Vault) Discard(ctx context.Context, objectName string) {
	if err := v.storage.RemoveObject(ctx, objectName); err != nil {
		logger.Error("failed to remove orphan blob", zap.String("oss_key", objectName), zap.Error(err))
	}
}

// Open 读取并解密文件, 返回明文和原始密钥
// 密文被篡改, 密钥无法还原或明文摘要不符时返回 xerr.ErrIntegrity
func (v *Vault) Open(ctx context.Context, file *models.File) ([]byte, []byte, error) {
	if !file.IsEncrypted() {
		return nil, nil, xerr.ErrIntegrity
	}
	key, err := v.custody.Unwrap(file.EncryptedKey)
	if err != nil {
		logger.Error("file key unwrap failed", zap.String("file_id", file.ID), zap.Error(err))
		return nil, nil, err
	}

	sealed, err := storage.ReadAll(ctx, v.storage, file.OssKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			logger.Error("blob missing for file", zap.String("file_id", file.ID), zap.String("oss_key", file.OssKey))
		}
		return nil, nil, fmt.Errorf("%w: %v", xerr.ErrStorageError, err)
	}

	plaintext, err := cryptox.Decrypt(sealed, key)
	if err != nil {
		logger.Error("file decryption failed", zap.String("file_id", file.ID), zap.Error(err))
		return nil, nil, err
	}
	if !cryptox.VerifyChecksum(plaintext, file.Checksum) {
		logger.Error("plaintext checksum mismatch", zap.String("file_id", file.ID))
		return nil, nil, xerr.ErrIntegrity
	}
	return plaintext, key, nil
}

// ExportKey 只还原密钥, 不读取密文
func (v *Vault) ExportKey(file *models.File) ([]byte, error) {
	if !file.IsEncrypted() {
		return nil, xerr.ErrIntegrity
	}
	return v.custody.Unwrap(file.EncryptedKey)
}
