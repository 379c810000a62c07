package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/config"
	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/repositories"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Usage 用户当前配额使用情况
type Usage struct {
	UsedBytes   uint64  `json:"used_bytes"`
	LimitBytes  uint64  `json:"limit_bytes"`
	Percentage  float64 `json:"percentage"`
	ActiveLinks int64   `json:"active_links"`
	MaxLinks    int64   `json:"max_links"`
	FileCount   int64   `json:"file_count"`
}

// Service 配额检查
// 带 tx 参数的方法必须在调用方的事务中执行, 会锁住用户行直到事务结束
type Service interface {
	// PrecheckStorage 不加锁的预检, 用于在写 blob 之前尽早拒绝
	PrecheckStorage(ctx context.Context, ownerID string, incoming uint64) error
	// ReserveStorage 锁定用户, 检查并计入新增字节
	ReserveStorage(ctx context.Context, tx *gorm.DB, ownerID string, incoming uint64) error
	// ReleaseStorage 删除文件时归还空间
	ReleaseStorage(ctx context.Context, tx *gorm.DB, ownerID string, n uint64) error
	// CheckLinkQuota 锁定用户后统计未过期链接
	CheckLinkQuota(ctx context.Context, tx *gorm.DB, ownerID string, now time.Time) error
	Usage(ctx context.Context, ownerID string, now time.Time) (*Usage, error)
	// Reconcile 按文件实际大小重算 used_space, 返回修正前后的值
	Reconcile(ctx context.Context, ownerID string) (before, after uint64, err error)
	ReconcileAll(ctx context.Context) (int, error)
}

type quotaService struct {
	users repositories.UserRepository
	files repositories.FileRepository
	links repositories.ShareLinkRepository
	tm    repositories.TransactionManager
	cfg   *config.QuotaConfig
}

var _ Service = (*quotaService)(nil)

func NewService(
	users repositories.UserRepository,
	files repositories.FileRepository,
	links repositories.ShareLinkRepository,
	tm repositories.TransactionManager,
	cfg *config.QuotaConfig,
) Service {
	return &quotaService{users: users, files: files, links: links, tm: tm, cfg: cfg}
}

func (s *quotaService) checkStorage(user *models.User, incoming uint64) error {
	limit := user.StorageLimit(s.cfg.StorageLimitBytes)
	if user.UsedSpace+incoming > limit || user.UsedSpace+incoming < user.UsedSpace {
		return &xerr.QuotaError{Kind: xerr.QuotaStorage, Limit: limit, Used: user.UsedSpace, Requested: incoming}
	}
	return nil
}

func (s *quotaService) PrecheckStorage(ctx context.Context, ownerID string, incoming uint64) error {
	user, err := s.users.FindByID(ctx, ownerID)
	if err != nil {
		return err
	}
	if user == nil {
		return xerr.ErrUserNotFound
	}
	return s.checkStorage(user, incoming)
}

func (s *quotaService) ReserveStorage(ctx context.Context, tx *gorm.DB, ownerID string, incoming uint64) error {
	users := s.users.WithTx(tx)
	user, err := users.LockByID(ctx, ownerID)
	if err != nil {
		return err
	}
	if user == nil {
		return xerr.ErrUserNotFound
	}
	if err := s.checkStorage(user, incoming); err != nil {
		logger.Info("storage quota exceeded",
			zap.String("user_id", ownerID),
			zap.Uint64("used", user.UsedSpace),
			zap.Uint64("incoming", incoming))
		return err
	}
	if err := users.IncrUsedSpace(ctx, ownerID, incoming); err != nil {
		return fmt.Errorf("更新已用空间失败: %w", err)
	}
	return nil
}

func (s *quotaService) ReleaseStorage(ctx context.Context, tx *gorm.DB, ownerID string, n uint64) error {
	users := s.users.WithTx(tx)
	if _, err := users.LockByID(ctx, ownerID); err != nil {
		return err
	}
	if err := users.DecrUsedSpace(ctx, ownerID, n); err != nil {
		return fmt.Errorf("归还已用空间失败: %w", err)
	}
	return nil
}

func (s *quotaService) CheckLinkQuota(ctx context.Context, tx *gorm.DB, ownerID string, now time.Time) error {
	user, err := s.users.WithTx(tx).LockByID(ctx, ownerID)
	if err != nil {
		return err
	}
	if user == nil {
		return xerr.ErrUserNotFound
	}
	active, err := s.links.WithTx(tx).CountActiveByOwner(ctx, ownerID, now)
	if err != nil {
		return err
	}
	if active >= s.cfg.MaxShareLinks {
		logger.Info("share link quota exceeded", zap.String("user_id", ownerID), zap.Int64("active", active))
		return &xerr.QuotaError{Kind: xerr.QuotaLinks, Limit: uint64(s.cfg.MaxShareLinks), Used: uint64(active), Requested: 1}
	}
	return nil
}

func (s *quotaService) Usage(ctx context.Context, ownerID string, now time.Time) (*Usage, error) {
	user, err := s.users.FindByID(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, xerr.ErrUserNotFound
	}
	active, err := s.links.CountActiveByOwner(ctx, ownerID, now)
	if err != nil {
		return nil, err
	}
	count, err := s.files.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	limit := user.StorageLimit(s.cfg.StorageLimitBytes)
	u := &Usage{
		UsedBytes:   user.UsedSpace,
		LimitBytes:  limit,
		ActiveLinks: active,
		MaxLinks:    s.cfg.MaxShareLinks,
		FileCount:   count,
	}
	if limit > 0 {
		u.Percentage = float64(user.UsedSpace) / float64(limit) * 100
	}
	return u, nil
}

func (s *quotaService) Reconcile(ctx context.Context, ownerID string) (uint64, uint64, error) {
	var before, after uint64
	err := s.tm.WithTransaction(ctx, func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		user, err := users.LockByID(ctx, ownerID)
		if err != nil {
			return err
		}
		if user == nil {
			return xerr.ErrUserNotFound
		}
		before = user.UsedSpace
		after, err = s.files.WithTx(tx).SumSizeByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		if before == after {
			return nil
		}
		return users.SetUsedSpace(ctx, ownerID, after)
	})
	if err != nil {
		return 0, 0, err
	}
	if before != after {
		logger.Warn("used space drift corrected",
			zap.String("user_id", ownerID),
			zap.Uint64("before", before),
			zap.Uint64("after", after))
	}
	return before, after, nil
}

// ReconcileAll 逐个用户修正, 单个失败不影响其他用户
func (s *quotaService) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return 0, err
	}
	fixed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return fixed, err
		}
		before, after, err := s.Reconcile(ctx, id)
		if err != nil {
			logger.Error("reconcile failed", zap.String("user_id", id), zap.Error(err))
			continue
		}
		if before != after {
			fixed++
		}
	}
	return fixed, nil
}
