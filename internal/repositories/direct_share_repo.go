package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DirectShareRepository interface {
	WithTx(tx *gorm.DB) DirectShareRepository
	// Upsert 依赖 (file_id, recipient_id) 唯一索引, 重复授权只更新权限
	Upsert(ctx context.Context, share *models.DirectShare) error
	Find(ctx context.Context, fileID, recipientID string) (*models.DirectShare, error)
	Delete(ctx context.Context, fileID, recipientID string) (bool, error)
	ListForRecipient(ctx context.Context, recipientID string) ([]models.DirectShare, error)
	ListForFile(ctx context.Context, fileID string) ([]models.DirectShare, error)
	CountByFile(ctx context.Context, fileID string) (int64, error)
	IncrementAccess(ctx context.Context, id uint64, now time.Time) error
	DeleteByFile(ctx context.Context, fileID string) error
}

type directShareRepository struct {
	db *gorm.DB
}

func NewDirectShareRepository(db *gorm.DB) DirectShareRepository {
	return &directShareRepository{db: db}
}

func (r *directShareRepository) WithTx(tx *gorm.DB) DirectShareRepository {
	return &directShareRepository{db: tx}
}

func (r *directShareRepository) Upsert(ctx context.Context, share *models.DirectShare) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_id"}, {Name: "recipient_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"permission", "recipient_email", "recipient_name", "updated_at"}),
	}).Create(share).Error
	if err != nil {
		return fmt.Errorf("保存直接分享失败: %w", err)
	}
	return nil
}

func (r *directShareRepository) Find(ctx context.Context, fileID, recipientID string) (*models.DirectShare, error) {
	var share models.DirectShare
	err := r.db.WithContext(ctx).Where("file_id = ? AND recipient_id = ?", fileID, recipientID).First(&share).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询直接分享失败: %w", err)
	}
	return &share, nil
}

func (r *directShareRepository) Delete(ctx context.Context, fileID, recipientID string) (bool, error) {
	res := r.db.WithContext(ctx).Where("file_id = ? AND recipient_id = ?", fileID, recipientID).Delete(&models.DirectShare{})
	if res.Error != nil {
		return false, fmt.Errorf("删除直接分享失败: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *directShareRepository) ListForRecipient(ctx context.Context, recipientID string) ([]models.DirectShare, error) {
	var shares []models.DirectShare
	err := r.db.WithContext(ctx).Preload("File").Where("recipient_id = ?", recipientID).Order("created_at desc").Find(&shares).Error
	if err != nil {
		return nil, fmt.Errorf("查询收到的分享失败: %w", err)
	}
	return shares, nil
}

func (r *directShareRepository) ListForFile(ctx context.Context, fileID string) ([]models.DirectShare, error) {
	var shares []models.DirectShare
	err := r.db.WithContext(ctx).Where("file_id = ?", fileID).Order("created_at desc").Find(&shares).Error
	if err != nil {
		return nil, fmt.Errorf("查询文件分享对象失败: %w", err)
	}
	return shares, nil
}

func (r *directShareRepository) CountByFile(ctx context.Context, fileID string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.DirectShare{}).Where("file_id = ?", fileID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("统计直接分享失败: %w", err)
	}
	return n, nil
}

func (r *directShareRepository) IncrementAccess(ctx context.Context, id uint64, now time.Time) error {
	return r.db.WithContext(ctx).Model(&models.DirectShare{}).Where("id = ?", id).
		UpdateColumns(map[string]any{
			"access_count":  gorm.Expr("access_count + 1"),
			"last_accessed": now,
		}).Error
}

func (r *directShareRepository) DeleteByFile(ctx context.Context, fileID string) error {
	return r.db.WithContext(ctx).Where("file_id = ?", fileID).Delete(&models.DirectShare{}).Error
}
