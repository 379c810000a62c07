package explorer

import (
	"context"
	"fmt"

	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/repositories"
	"go.uber.org/zap"
)

// FileDomainService 文件访问规则
type FileDomainService interface {
	// CheckOwned 文件存在且属于 actor
	CheckOwned(ctx context.Context, actor *identity.Identity, fileID string) (*models.File, error)
	// CheckReadable 所有者可以任意读取, 其他人需要定向分享且权限足够
	// 返回的 DirectShare 在所有者访问时为 nil
	CheckReadable(ctx context.Context, actor *identity.Identity, fileID string, want models.Permission) (*models.File, *models.DirectShare, error)
}

type fileDomainService struct {
	files   repositories.FileRepository
	directs repositories.DirectShareRepository
}

func NewFileDomainService(files repositories.FileRepository, directs repositories.DirectShareRepository) FileDomainService {
	return &fileDomainService{files: files, directs: directs}
}

func (d *fileDomainService) find(ctx context.Context, fileID string) (*models.File, error) {
	file, err := d.files.FindByID(ctx, fileID)
	if err != nil {
		logger.Error("find file failed", zap.String("file_id", fileID), zap.Error(err))
		return nil, fmt.Errorf("file service: %w", xerr.ErrDatabaseError)
	}
	if file == nil {
		return nil, xerr.ErrFileNotFound
	}
	return file, nil
}

func (d *fileDomainService) CheckOwned(ctx context.Context, actor *identity.Identity, fileID string) (*models.File, error) {
	file, err := d.find(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.UserID != actor.ID {
		logger.Warn("file ownership mismatch", zap.String("file_id", fileID), zap.String("actor", actor.ID))
		return nil, xerr.ErrPermissionDenied
	}
	return file, nil
}

func (d *fileDomainService) CheckReadable(ctx context.Context, actor *identity.Identity, fileID string, want models.Permission) (*models.File, *models.DirectShare, error) {
	file, err := d.find(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if file.UserID == actor.ID {
		return file, nil, nil
	}

	grant, err := d.directs.Find(ctx, fileID, actor.ID)
	if err != nil {
		logger.Error("find direct share failed", zap.String("file_id", fileID), zap.Error(err))
		return nil, nil, fmt.Errorf("file service: %w", xerr.ErrDatabaseError)
	}
	if grant == nil || !grant.Permission.Allows(want) {
		return nil, nil, xerr.ErrPermissionDenied
	}
	return file, grant, nil
}
