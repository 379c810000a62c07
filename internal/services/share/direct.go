package share

import (
	"context"
	"fmt"
	"strings"

	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/repositories"
	"github.com/3Eeeecho/go-securedisk/internal/services/explorer"
	"go.uber.org/zap"
)

// DirectShareService 向已登记用户定向分享
type DirectShareService interface {
	// Grant 重复授权时更新权限
	Grant(ctx context.Context, actor *identity.Identity, fileID, recipientEmail string, perm models.Permission) (*models.DirectShare, error)
	Revoke(ctx context.Context, actor *identity.Identity, fileID, recipientID string) error
	ListForRecipient(ctx context.Context, actor *identity.Identity) ([]models.DirectShare, error)
	ListForFile(ctx context.Context, actor *identity.Identity, fileID string) ([]models.DirectShare, error)
}

type directShareService struct {
	directs   repositories.DirectShareRepository
	domain    explorer.FileDomainService
	directory identity.Directory
}

func NewDirectShareService(directs repositories.DirectShareRepository, domain explorer.FileDomainService, directory identity.Directory) DirectShareService {
	return &directShareService{directs: directs, domain: domain, directory: directory}
}

func (s *directShareService) Grant(ctx context.Context, actor *identity.Identity, fileID, recipientEmail string, perm models.Permission) (*models.DirectShare, error) {
	if actor.IsGuest() {
		return nil, xerr.ErrPermissionDenied
	}
	if !perm.Valid() {
		return nil, fmt.Errorf("%w: 权限只能是 view 或 download", xerr.ErrInvalidParams)
	}
	file, err := s.domain.CheckOwned(ctx, actor, fileID)
	if err != nil {
		return nil, err
	}

	recipient, err := s.directory.LookupByEmail(ctx, strings.TrimSpace(recipientEmail))
	if err != nil {
		return nil, err
	}
	if recipient.ID == actor.ID {
		return nil, fmt.Errorf("%w: 不能分享给自己", xerr.ErrInvalidParams)
	}

	share := &models.DirectShare{
		FileID:         file.ID,
		RecipientID:    recipient.ID,
		RecipientEmail: recipient.Email,
		RecipientName:  recipient.DisplayName,
		Permission:     perm,
	}
	if err := s.directs.Upsert(ctx, share); err != nil {
		logger.Error("grant direct share failed", zap.String("file_id", file.ID), zap.Error(err))
		return nil, fmt.Errorf("share service: %w", xerr.ErrDatabaseError)
	}
	saved, err := s.directs.Find(ctx, file.ID, recipient.ID)
	if err != nil || saved == nil {
		logger.Error("reload direct share failed", zap.String("file_id", file.ID), zap.Error(err))
		return nil, fmt.Errorf("share service: %w", xerr.ErrDatabaseError)
	}

	logger.Info("Grant success", zap.String("file_id", file.ID), zap.String("recipient", recipient.ID), zap.String("permission", string(perm)))
	return saved, nil
}

func (s *directShareService) Revoke(ctx context.Context, actor *identity.Identity, fileID, recipientID string) error {
	file, err := s.domain.CheckOwned(ctx, actor, fileID)
	if err != nil {
		return err
	}
	deleted, err := s.directs.Delete(ctx, file.ID, recipientID)
	if err != nil {
		logger.Error("revoke direct share failed", zap.String("file_id", file.ID), zap.Error(err))
		return fmt.Errorf("share service: %w", xerr.ErrDatabaseError)
	}
	if !deleted {
		return xerr.ErrGrantNotFound
	}
	return nil
}

func (s *directShareService) ListForRecipient(ctx context.Context, actor *identity.Identity) ([]models.DirectShare, error) {
	shares, err := s.directs.ListForRecipient(ctx, actor.ID)
	if err != nil {
		logger.Error("list received shares failed", zap.String("recipient", actor.ID), zap.Error(err))
		return nil, fmt.Errorf("share service: %w", xerr.ErrDatabaseError)
	}
	return shares, nil
}

func (s *directShareService) ListForFile(ctx context.Context, actor *identity.Identity, fileID string) ([]models.DirectShare, error) {
	file, err := s.domain.CheckOwned(ctx, actor, fileID)
	if err != nil {
		return nil, err
	}
	shares, err := s.directs.ListForFile(ctx, file.ID)
	if err != nil {
		logger.Error("list file shares failed", zap.String("file_id", file.ID), zap.Error(err))
		return nil, fmt.Errorf("share service: %w", xerr.ErrDatabaseError)
	}
	return shares, nil
}
