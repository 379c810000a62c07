package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/models"
	"gorm.io/gorm"
)

// AccessCounts 按访问类型汇总
type AccessCounts struct {
	Views     int64
	Downloads int64
}

type AccessEventRepository interface {
	WithTx(tx *gorm.DB) AccessEventRepository
	Create(ctx context.Context, event *models.AccessEvent) error
	// TombstoneByFile 文件删除后保留访问记录, 仅打标记
	TombstoneByFile(ctx context.Context, fileID string) error
	CountsByFile(ctx context.Context, fileID string) (AccessCounts, error)
	CountsByOwner(ctx context.Context, ownerID string) (AccessCounts, error)
	// UniqueVisitors 登录用户按 actor 去重, 匿名访问按 IP 去重
	UniqueVisitors(ctx context.Context, fileID string) (int64, error)
	LastAccessed(ctx context.Context, fileID string) (*time.Time, error)
	ListSince(ctx context.Context, fileID string, since time.Time) ([]models.AccessEvent, error)
	CountByLink(ctx context.Context, linkID uint64, accessType models.AccessType) (int64, error)
}

type accessEventRepository struct {
	db *gorm.DB
}

func NewAccessEventRepository(db *gorm.DB) AccessEventRepository {
	return &accessEventRepository{db: db}
}

func (r *accessEventRepository) WithTx(tx *gorm.DB) AccessEventRepository {
	return &accessEventRepository{db: tx}
}

func (r *accessEventRepository) Create(ctx context.Context, event *models.AccessEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("写入访问记录失败: %w", err)
	}
	return nil
}

func (r *accessEventRepository) TombstoneByFile(ctx context.Context, fileID string) error {
	return r.db.WithContext(ctx).Model(&models.AccessEvent{}).Where("file_id = ?", fileID).
		UpdateColumn("file_deleted", true).Error
}

type typeCount struct {
	AccessType models.AccessType
	N          int64
}

func collectCounts(rows []typeCount) AccessCounts {
	var c AccessCounts
	for _, row := range rows {
		switch row.AccessType {
		case models.AccessView:
			c.Views = row.N
		case models.AccessDownload:
			c.Downloads = row.N
		}
	}
	return c
}

func (r *accessEventRepository) CountsByFile(ctx context.Context, fileID string) (AccessCounts, error) {
	var rows []typeCount
	err := r.db.WithContext(ctx).Model(&models.AccessEvent{}).
		Select("access_type, COUNT(*) AS n").
		Where("file_id = ? AND file_deleted = ?", fileID, false).
		Group("access_type").Scan(&rows).Error
	if err != nil {
		return AccessCounts{}, fmt.Errorf("统计文件访问失败: %w", err)
	}
	return collectCounts(rows), nil
}

func (r *accessEventRepository) CountsByOwner(ctx context.Context, ownerID string) (AccessCounts, error) {
	var rows []typeCount
	owned := r.db.Model(&models.File{}).Select("id").Where("user_id = ?", ownerID)
	err := r.db.WithContext(ctx).Model(&models.AccessEvent{}).
		Select("access_type, COUNT(*) AS n").
		Where("file_id IN (?) AND file_deleted = ?", owned, false).
		Group("access_type").Scan(&rows).Error
	if err != nil {
		return AccessCounts{}, fmt.Errorf("统计用户访问失败: %w", err)
	}
	return collectCounts(rows), nil
}

func (r *accessEventRepository) UniqueVisitors(ctx context.Context, fileID string) (int64, error) {
	var actors, anonymous int64
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.AccessEvent{}).Where("file_id = ? AND file_deleted = ?", fileID, false)
	}
	if err := base().Where("actor_id IS NOT NULL").Distinct("actor_id").Count(&actors).Error; err != nil {
		return 0, fmt.Errorf("统计访客失败: %w", err)
	}
	if err := base().Where("actor_id IS NULL").Distinct("ip_address").Count(&anonymous).Error; err != nil {
		return 0, fmt.Errorf("统计匿名访客失败: %w", err)
	}
	return actors + anonymous, nil
}

func (r *accessEventRepository) LastAccessed(ctx context.Context, fileID string) (*time.Time, error) {
	var events []models.AccessEvent
	err := r.db.WithContext(ctx).Where("file_id = ? AND file_deleted = ?", fileID, false).
		Order("accessed_at desc").Limit(1).Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("查询最近访问失败: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	t := events[0].AccessedAt
	return &t, nil
}

func (r *accessEventRepository) ListSince(ctx context.Context, fileID string, since time.Time) ([]models.AccessEvent, error) {
	var events []models.AccessEvent
	err := r.db.WithContext(ctx).Where("file_id = ? AND file_deleted = ? AND accessed_at >= ?", fileID, false, since).
		Order("accessed_at desc").Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("查询访问历史失败: %w", err)
	}
	return events, nil
}

func (r *accessEventRepository) CountByLink(ctx context.Context, linkID uint64, accessType models.AccessType) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.AccessEvent{}).
		Where("share_link_id = ? AND access_type = ?", linkID, accessType).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("统计链接访问失败: %w", err)
	}
	return n, nil
}
