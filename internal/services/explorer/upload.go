package explorer

import (
	"context"
	"errors"
	"fmt"

	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Upload 加密并保存文件
// 配额预检在写对象之前, 事务内再锁定用户复查, 事务失败时删除已写入的对象
func (s *fileService) Upload(ctx context.Context, actor *identity.Identity, in UploadInput) (*models.File, error) {
	if actor.IsGuest() {
		return nil, xerr.ErrPermissionDenied
	}
	name, err := cleanFileName(in.FileName)
	if err != nil {
		return nil, err
	}
	size := uint64(len(in.Content))
	if s.cfg.MaxUploadBytes > 0 && size > s.cfg.MaxUploadBytes {
		logger.Warn("upload too large", zap.String("owner", actor.ID), zap.Uint64("size", size))
		return nil, xerr.ErrFileTooLarge
	}

	if err := s.quota.PrecheckStorage(ctx, actor.ID, size); err != nil {
		return nil, err
	}

	sealed, err := s.vault.Seal(in.Content)
	if err != nil {
		logger.Error("seal file failed", zap.String("owner", actor.ID), zap.Error(err))
		return nil, fmt.Errorf("file service: %w", xerr.ErrInternalServer)
	}

	fileID := uuid.NewString()
	file := &models.File{
		ID:           fileID,
		UserID:       actor.ID,
		FileName:     name,
		Size:         size,
		MimeType:     detectMimeType(in.MimeType, name, in.Content),
		Checksum:     sealed.Checksum,
		EncryptedKey: sealed.EncryptedKey,
		OssKey:       objectName(actor.ID, fileID),
		CreatedAt:    s.now().UTC(),
	}

	if err := s.vault.Store(ctx, file.OssKey, sealed); err != nil {
		logger.Error("store blob failed", zap.String("file_id", fileID), zap.Error(err))
		return nil, err
	}

	err = s.tm.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.quota.ReserveStorage(ctx, tx, actor.ID, size); err != nil {
			return err
		}
		return s.files.WithTx(tx).Create(ctx, file)
	})
	if err != nil {
		s.vault.Discard(context.WithoutCancel(ctx), file.OssKey)
		var qe *xerr.QuotaError
		if errors.As(err, &qe) {
			return nil, err
		}
		logger.Error("register file failed", zap.String("file_id", fileID), zap.Error(err))
		return nil, fmt.Errorf("file service: %w", xerr.ErrDatabaseError)
	}

	logger.Info("Upload success", zap.String("file_id", fileID), zap.String("owner", actor.ID), zap.Uint64("size", size))
	return file, nil
}
