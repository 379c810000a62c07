package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/repositories"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Directory 按邮箱解析直接分享的接收人
type Directory interface {
	LookupByEmail(ctx context.Context, email string) (*models.User, error)
}

// Registry 把认证过的身份登记到 users 表, 配额和分享都以此为准
type Registry struct {
	users repositories.UserRepository
	seen  *expirable.LRU[string, Identity]
}

func NewRegistry(users repositories.UserRepository) *Registry {
	return &Registry{
		users: users,
		seen:  expirable.NewLRU[string, Identity](4096, nil, 10*time.Minute),
	}
}

// Register 资料未变化时不重复写库
func (r *Registry) Register(ctx context.Context, id *Identity) error {
	if prev, ok := r.seen.Get(id.ID); ok && prev.Username == id.Username && prev.Email == id.Email && prev.DisplayName == id.DisplayName {
		return nil
	}
	user := &models.User{
		ID:          id.ID,
		Username:    id.Username,
		Email:       strings.ToLower(id.Email),
		DisplayName: id.DisplayName,
	}
	if err := r.users.Upsert(ctx, user); err != nil {
		return fmt.Errorf("登记用户 %s 失败: %w", id.ID, err)
	}
	r.seen.Add(id.ID, *id)
	return nil
}

func (r *Registry) LookupByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, xerr.ErrInvalidParams
	}
	user, err := r.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, xerr.ErrUserNotFound
	}
	return user, nil
}
