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

type UserRepository interface {
	WithTx(tx *gorm.DB) UserRepository
	// Upsert 登记身份提供方的用户, 已存在时只刷新展示信息
	Upsert(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	// LockByID 在当前事务内对用户行加写锁, 同一用户的配额检查因此串行
	LockByID(ctx context.Context, id string) (*models.User, error)
	IncrUsedSpace(ctx context.Context, id string, n uint64) error
	DecrUsedSpace(ctx context.Context, id string, n uint64) error
	SetUsedSpace(ctx context.Context, id string, used uint64) error
	ListIDs(ctx context.Context) ([]string, error)
}

type userRepository struct {
	db *gorm.DB
}

var _ UserRepository = (*userRepository)(nil)

// NewUserRepository 创建一个新的 UserRepository 实例
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) WithTx(tx *gorm.DB) UserRepository {
	return &userRepository{db: tx}
}

func (r *userRepository) Upsert(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{"username": user.Username, "email": user.Email, "display_name": user.DisplayName, "updated_at": time.Now().UTC()}),
	}).Create(user).Error
	if err != nil {
		return fmt.Errorf("登记用户失败: %w", err)
	}
	return nil
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.first(ctx, r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, nil
	}
	return r.first(ctx, r.db.WithContext(ctx).Where("email = ?", email))
}

func (r *userRepository) LockByID(ctx context.Context, id string) (*models.User, error) {
	// sqlite 方言会忽略 FOR UPDATE, 依赖其数据库级写锁
	return r.first(ctx, r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

func (r *userRepository) first(_ context.Context, q *gorm.DB) (*models.User, error) {
	var user models.User
	if err := q.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &user, nil
}

func (r *userRepository) IncrUsedSpace(ctx context.Context, id string, n uint64) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("used_space", gorm.Expr("used_space + ?", n)).Error
}

func (r *userRepository) DecrUsedSpace(ctx context.Context, id string, n uint64) error {
	// 避免无符号列出现负数
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("used_space", gorm.Expr("CASE WHEN used_space >= ? THEN used_space - ? ELSE 0 END", n, n)).Error
}

func (r *userRepository) SetUsedSpace(ctx context.Context, id string, used uint64) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("used_space", used).Error
}

func (r *userRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.WithContext(ctx).Model(&models.User{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("查询用户列表失败: %w", err)
	}
	return ids, nil
}
