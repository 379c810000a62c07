package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/models"
	"gorm.io/gorm"
)

type ShareLinkRepository interface {
	WithTx(tx *gorm.DB) ShareLinkRepository
	Create(ctx context.Context, link *models.ShareLink) error
	FindByToken(ctx context.Context, token string) (*models.ShareLink, error)
	FindByID(ctx context.Context, id uint64) (*models.ShareLink, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.ShareLink, error)
	CountActiveByOwner(ctx context.Context, ownerID string, now time.Time) (int64, error)
	CountByFile(ctx context.Context, fileID string, now time.Time) (total int64, active int64, err error)
	// ConsumeAccess 原子地占用一次访问, 链接已过期或次数已满时返回 false
	ConsumeAccess(ctx context.Context, id uint64, now time.Time) (bool, error)
	// Touch 只刷新 last_accessed, 不消耗次数
	Touch(ctx context.Context, id uint64, now time.Time) error
	Expire(ctx context.Context, id uint64, now time.Time) error
	UpdatePassword(ctx context.Context, id uint64, protected bool, hash string) error
	DeleteByFile(ctx context.Context, fileID string) ([]string, error)
}

type shareLinkRepository struct {
	db *gorm.DB
}

// NewShareLinkRepository 创建新的 shareLinkRepository 实例
func NewShareLinkRepository(db *gorm.DB) ShareLinkRepository {
	return &shareLinkRepository{db: db}
}

func (r *shareLinkRepository) WithTx(tx *gorm.DB) ShareLinkRepository {
	return &shareLinkRepository{db: tx}
}

func (r *shareLinkRepository) Create(ctx context.Context, link *models.ShareLink) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		return fmt.Errorf("创建分享链接失败: %w", err)
	}
	return nil
}

// 根据token查找记录, 顺带预加载文件
func (r *shareLinkRepository) FindByToken(ctx context.Context, token string) (*models.ShareLink, error) {
	var link models.ShareLink
	err := r.db.WithContext(ctx).Preload("File").Where("token = ?", token).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询分享链接失败: %w", err)
	}
	return &link, nil
}

func (r *shareLinkRepository) FindByID(ctx context.Context, id uint64) (*models.ShareLink, error) {
	var link models.ShareLink
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询分享链接失败: %w", err)
	}
	return &link, nil
}

func (r *shareLinkRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.ShareLink, error) {
	var links []models.ShareLink
	err := r.db.WithContext(ctx).Preload("File").Where("user_id = ?", ownerID).Order("created_at desc").Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("查询分享列表失败: %w", err)
	}
	return links, nil
}

func (r *shareLinkRepository) CountActiveByOwner(ctx context.Context, ownerID string, now time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ShareLink{}).
		Where("user_id = ? AND expires_at > ?", ownerID, now).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("统计分享链接失败: %w", err)
	}
	return n, nil
}

func (r *shareLinkRepository) CountByFile(ctx context.Context, fileID string, now time.Time) (int64, int64, error) {
	var total, active int64
	q := r.db.WithContext(ctx).Model(&models.ShareLink{}).Where("file_id = ?", fileID)
	if err := q.Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("统计分享链接失败: %w", err)
	}
	err := r.db.WithContext(ctx).Model(&models.ShareLink{}).
		Where("file_id = ? AND expires_at > ? AND (max_access_count IS NULL OR access_count < max_access_count)", fileID, now).
		Count(&active).Error
	if err != nil {
		return 0, 0, fmt.Errorf("统计有效分享链接失败: %w", err)
	}
	return total, active, nil
}

func (r *shareLinkRepository) ConsumeAccess(ctx context.Context, id uint64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.ShareLink{}).
		Where("id = ? AND expires_at > ? AND (max_access_count IS NULL OR access_count < max_access_count)", id, now).
		UpdateColumns(map[string]any{
			"access_count":  gorm.Expr("access_count + 1"),
			"last_accessed": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("更新访问次数失败: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *shareLinkRepository) Touch(ctx context.Context, id uint64, now time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ShareLink{}).Where("id = ?", id).
		UpdateColumn("last_accessed", now).Error
}

func (r *shareLinkRepository) Expire(ctx context.Context, id uint64, now time.Time) error {
	// 已经过期的链接保持原有过期时间
	return r.db.WithContext(ctx).Model(&models.ShareLink{}).Where("id = ? AND expires_at > ?", id, now).
		UpdateColumn("expires_at", now).Error
}

func (r *shareLinkRepository) UpdatePassword(ctx context.Context, id uint64, protected bool, hash string) error {
	return r.db.WithContext(ctx).Model(&models.ShareLink{}).Where("id = ?", id).
		UpdateColumns(map[string]any{"is_password_protected": protected, "password_hash": hash}).Error
}

// DeleteByFile 删除文件的全部链接, 返回被删除链接的 token 以便清理缓存
func (r *shareLinkRepository) DeleteByFile(ctx context.Context, fileID string) ([]string, error) {
	var tokens []string
	if err := r.db.WithContext(ctx).Model(&models.ShareLink{}).Where("file_id = ?", fileID).Pluck("token", &tokens).Error; err != nil {
		return nil, fmt.Errorf("查询文件分享链接失败: %w", err)
	}
	if err := r.db.WithContext(ctx).Where("file_id = ?", fileID).Delete(&models.ShareLink{}).Error; err != nil {
		return nil, fmt.Errorf("删除文件分享链接失败: %w", err)
	}
	return tokens, nil
}
