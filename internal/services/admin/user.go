package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/repositories"
	"github.com/3Eeeecho/go-securedisk/internal/services/quota"
	"go.uber.org/zap"
)

// Profile 当前身份加上配额使用情况
type Profile struct {
	*identity.Identity
	Quota *quota.Usage `json:"quota"`
}

// ReconcileResult 单个用户的已用空间校正结果
type ReconcileResult struct {
	UserID string `json:"user_id"`
	Before uint64 `json:"before"`
	After  uint64 `json:"after"`
}

type UserService interface {
	GetUserProfile(ctx context.Context, actor *identity.Identity) (*Profile, error)
	// ReconcileQuota 管理员按文件实际大小重算配额, userID 为空时处理全部用户
	ReconcileQuota(ctx context.Context, actor *identity.Identity, userID string) ([]ReconcileResult, error)
}

type userService struct {
	userRepo repositories.UserRepository
	quota    quota.Service
	now      func() time.Time
}

var _ UserService = (*userService)(nil)

func NewUserService(userRepo repositories.UserRepository, q quota.Service, now func() time.Time) UserService {
	if now == nil {
		now = time.Now
	}
	return &userService{userRepo: userRepo, quota: q, now: now}
}

func (s *userService) GetUserProfile(ctx context.Context, actor *identity.Identity) (*Profile, error) {
	usage, err := s.quota.Usage(ctx, actor.ID, s.now().UTC())
	if err != nil {
		logger.Error("GetUserProfile: Error retrieving quota usage", zap.String("userID", actor.ID), zap.Error(err))
		return nil, err
	}
	return &Profile{Identity: actor, Quota: usage}, nil
}

func (s *userService) ReconcileQuota(ctx context.Context, actor *identity.Identity, userID string) ([]ReconcileResult, error) {
	if !actor.IsAdmin() {
		return nil, xerr.ErrPermissionDenied
	}

	ids := []string{userID}
	if userID == "" {
		var err error
		if ids, err = s.userRepo.ListIDs(ctx); err != nil {
			return nil, fmt.Errorf("admin service: %w", xerr.ErrDatabaseError)
		}
	} else {
		user, err := s.userRepo.FindByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("admin service: %w", xerr.ErrDatabaseError)
		}
		if user == nil {
			return nil, xerr.ErrUserNotFound
		}
	}

	results := make([]ReconcileResult, 0, len(ids))
	for _, id := range ids {
		before, after, err := s.quota.Reconcile(ctx, id)
		if err != nil {
			logger.Error("ReconcileQuota failed", zap.String("userID", id), zap.Error(err))
			return nil, err
		}
		results = append(results, ReconcileResult{UserID: id, Before: before, After: after})
	}
	logger.Info("ReconcileQuota finished", zap.String("admin", actor.ID), zap.Int("users", len(results)))
	return results, nil
}
