package share

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/config"
	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/cache"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/utils"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/repositories"
	"github.com/3Eeeecho/go-securedisk/internal/services/explorer"
	"github.com/3Eeeecho/go-securedisk/internal/services/ledger"
	"github.com/3Eeeecho/go-securedisk/internal/services/quota"
	"github.com/3Eeeecho/go-securedisk/internal/services/vault"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// 单个链接最长有效期
	maxExpiryHours = 24 * 365
	// bcrypt 只接受 72 字节以内的输入
	maxPasswordBytes = 72
)

// CreateLinkInput 创建分享链接的参数, ExpiryHours 为 0 时使用默认值
type CreateLinkInput struct {
	FileID         string
	ExpiryHours    int
	Password       string
	MaxAccessCount *int64
}

// SharedFile 通过链接看到的文件信息, 不包含内容、密钥和明文摘要
type SharedFile struct {
	Token               string           `json:"token"`
	FileName            string           `json:"file_name"`
	Size                uint64           `json:"size"`
	MimeType            string           `json:"mime_type"`
	ExpiresAt           time.Time        `json:"expires_at"`
	AccessCount         int64            `json:"access_count"`
	MaxAccessCount      *int64           `json:"max_access_count"`
	RemainingAccesses   *int64           `json:"remaining_accesses"`
	IsPasswordProtected bool             `json:"is_password_protected"`
	State               models.LinkState `json:"state"`
}

// AccessGrant 密码校验通过后签发的访问令牌
type AccessGrant struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SharedDownload 链接下载结果, Key 为 base64 编码的文件密钥
type SharedDownload struct {
	File *models.File
	Data []byte
	Key  string
}

// ShareService 分享链接
type ShareService interface {
	CreateLink(ctx context.Context, actor *identity.Identity, in CreateLinkInput) (*models.ShareLink, error)
	// GetSharedFile 查看链接信息, 不消耗访问次数
	GetSharedFile(ctx context.Context, token string, actor *identity.Identity, client ledger.Client) (*SharedFile, error)
	// VerifyPassword 校验链接密码, 成功后签发短期访问令牌
	VerifyPassword(ctx context.Context, token, password string) (*AccessGrant, error)
	// DownloadSharedFile 消耗一次访问并返回明文和密钥
	DownloadSharedFile(ctx context.Context, token, accessToken string, actor *identity.Identity, client ledger.Client) (*SharedDownload, error)
	ListLinks(ctx context.Context, actor *identity.Identity) ([]models.ShareLink, error)
	// RevokeLink 立即让链接过期, 历史计数保留
	RevokeLink(ctx context.Context, actor *identity.Identity, linkID uint64) error
	// SetLinkPassword password 为空时取消密码
	SetLinkPassword(ctx context.Context, actor *identity.Identity, linkID uint64, password string) error
}

// Deps 分享服务依赖
type Deps struct {
	Links    repositories.ShareLinkRepository
	Domain   explorer.FileDomainService
	TM       repositories.TransactionManager
	Quota    quota.Service
	Vault    *vault.Vault
	Recorder ledger.Recorder
	Cache    cache.Cache
	Security *config.SecurityConfig
	Share    *config.ShareConfig
	Now      func() time.Time
}

type shareService struct {
	links    repositories.ShareLinkRepository
	domain   explorer.FileDomainService
	tm       repositories.TransactionManager
	quota    quota.Service
	vault    *vault.Vault
	recorder ledger.Recorder
	cache    cache.Cache
	security *config.SecurityConfig
	share    *config.ShareConfig
	now      func() time.Time
}

var _ ShareService = (*shareService)(nil)

// NewShareService 创建一个新的 ShareService 实例
func NewShareService(d Deps) ShareService {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &shareService{
		links:    d.Links,
		domain:   d.Domain,
		tm:       d.TM,
		quota:    d.Quota,
		vault:    d.Vault,
		recorder: d.Recorder,
		cache:    d.Cache,
		security: d.Security,
		share:    d.Share,
		now:      now,
	}
}

func (s *shareService) CreateLink(ctx context.Context, actor *identity.Identity, in CreateLinkInput) (*models.ShareLink, error) {
	if actor.IsGuest() {
		return nil, xerr.ErrPermissionDenied
	}

	hours := in.ExpiryHours
	if hours == 0 {
		hours = s.share.DefaultExpiryHours
	}
	if hours <= 0 || hours > maxExpiryHours {
		return nil, fmt.Errorf("%w: 有效期必须在 1 到 %d 小时之间", xerr.ErrInvalidParams, maxExpiryHours)
	}
	if in.MaxAccessCount != nil && *in.MaxAccessCount < 1 {
		return nil, fmt.Errorf("%w: 最大访问次数必须为正数", xerr.ErrInvalidParams)
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}

	file, err := s.domain.CheckOwned(ctx, actor, in.FileID)
	if err != nil {
		return nil, err
	}

	token, err := utils.NewLinkToken()
	if err != nil {
		logger.Error("generate link token failed", zap.Error(err))
		return nil, fmt.Errorf("share service: %w", xerr.ErrInternalServer)
	}

	now := s.now().UTC()
	link := &models.ShareLink{
		FileID:              file.ID,
		UserID:              actor.ID,
		Token:               token,
		ExpiresAt:           now.Add(time.Duration(hours) * time.Hour),
		CreatedAt:           now,
		MaxAccessCount:      in.MaxAccessCount,
		IsPasswordProtected: in.Password != "",
	}
	if in.Password != "" {
		if link.PasswordHash, err = utils.HashPassword(in.Password); err != nil {
			logger.Error("hash link password failed", zap.Error(err))
			return nil, fmt.Errorf("share service: %w", xerr.ErrInternalServer)
		}
	}

	err = s.tm.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.quota.CheckLinkQuota(ctx, tx, actor.ID, now); err != nil {
			return err
		}
		return s.links.WithTx(tx).Create(ctx, link)
	})
	if err != nil {
		if errors.Is(err, xerr.ErrQuotaExceeded) {
			return nil, err
		}
		logger.Error("create share link failed", zap.String("file_id", file.ID), zap.Error(err))
		return nil, fmt.Errorf("share service: %w", xerr.ErrDatabaseError)
	}

	link.File = file
	logger.Info("CreateLink success", zap.String("file_id", file.ID), zap.String("owner", actor.ID), logger.ShareToken(token))
	return link, nil
}

// findLink 查询链接并检查状态, 过期优先于次数耗尽
func (s *shareService) findLink(ctx context.Context, token string, now time.Time) (*models.ShareLink, error) {
	if token == "" {
		return nil, xerr.ErrShareNotFound
	}
	link, err := s.links.FindByToken(ctx, token)
	if err != nil {
		logger.Error("find share link failed", logger.ShareToken(token), zap.Error(err))
		return nil, fmt.Errorf("share service: %w", xerr.ErrDatabaseError)
	}
	if link == nil || link.File == nil {
		return nil, xerr.ErrShareNotFound
	}
	if err := stateError(link.State(now)); err != nil {
		return nil, err
	}
	return link, nil
}

func checkPassword(password string) error {
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: 密码不能超过 %d 字节", xerr.ErrInvalidParams, maxPasswordBytes)
	}
	return nil
}

func stateError(state models.LinkState) error {
	switch state {
	case models.LinkExpired:
		return xerr.ErrShareExpired
	case models.LinkExhausted:
		return xerr.ErrShareExhausted
	}
	return nil
}

func actorID(actor *identity.Identity) *string {
	if actor == nil {
		return nil
	}
	id := actor.ID
	return &id
}

func (s *shareService) GetSharedFile(ctx context.Context, token string, actor *identity.Identity, client ledger.Client) (*SharedFile, error) {
	now := s.now().UTC()
	link, err := s.findLink(ctx, token, now)
	if err != nil {
		return nil, err
	}

	if err := s.links.Touch(ctx, link.ID, now); err != nil {
		logger.Warn("touch share link failed", logger.ShareToken(token), zap.Error(err))
	}
	linkID := link.ID
	s.recorder.Record(ledger.Event{FileID: link.FileID, ActorID: actorID(actor), LinkID: &linkID, Type: models.AccessView, Client: client}, now)

	view := &SharedFile{
		Token:               link.Token,
		FileName:            link.File.FileName,
		Size:                link.File.Size,
		MimeType:            link.File.MimeType,
		ExpiresAt:           link.ExpiresAt,
		AccessCount:         link.AccessCount,
		MaxAccessCount:      link.MaxAccessCount,
		IsPasswordProtected: link.IsPasswordProtected,
		State:               link.VisitorState(now),
	}
	if link.MaxAccessCount != nil {
		remaining := *link.MaxAccessCount - link.AccessCount
		view.RemainingAccesses = &remaining
	}
	return view, nil
}

func (s *shareService) VerifyPassword(ctx context.Context, token, password string) (*AccessGrant, error) {
	now := s.now().UTC()
	link, err := s.findLink(ctx, token, now)
	if err != nil {
		return nil, err
	}
	if !link.IsPasswordProtected {
		return nil, fmt.Errorf("%w: 该链接不需要密码", xerr.ErrInvalidParams)
	}
	if !utils.CheckPasswordHash(password, link.PasswordHash) {
		logger.Info("share password rejected", logger.ShareToken(token))
		return nil, xerr.ErrUnauthorized
	}

	ttl := s.security.AccessTokenTTL
	accessToken, err := utils.GenerateShareAccessToken(s.security.AccessTokenSecret, link.Token, now, ttl)
	if err != nil {
		logger.Error("sign share access token failed", zap.Error(err))
		return nil, fmt.Errorf("share service: %w", xerr.ErrInternalServer)
	}
	// 每个链接只保留最近一次签发的令牌
	if err := s.cache.Set(ctx, cache.GenerateShareAccessKey(link.Token), accessToken, ttl); err != nil {
		logger.Error("cache share access token failed", logger.ShareToken(token), zap.Error(err))
		return nil, fmt.Errorf("share service: %w", xerr.ErrInternalServer)
	}

	logger.Info("share password verified", logger.ShareToken(token))
	return &AccessGrant{AccessToken: accessToken, ExpiresAt: now.Add(ttl)}, nil
}

// checkAccessToken 令牌必须与缓存中的一致且签名有效
func (s *shareService) checkAccessToken(ctx context.Context, link *models.ShareLink, accessToken string, now time.Time) error {
	if accessToken == "" {
		return xerr.ErrUnauthorized
	}
	var cached string
	if err := s.cache.Get(ctx, cache.GenerateShareAccessKey(link.Token), &cached); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logger.Error("read share access token failed", logger.ShareToken(link.Token), zap.Error(err))
		}
		return xerr.ErrUnauthorized
	}
	if !utils.ConstantTimeEqual(cached, accessToken) {
		return xerr.ErrUnauthorized
	}
	if _, err := utils.ParseShareAccessToken(s.security.AccessTokenSecret, accessToken, link.Token, now); err != nil {
		return xerr.ErrUnauthorized
	}
	return nil
}

func (s *shareService) DownloadSharedFile(ctx context.Context, token, accessToken string, actor *identity.Identity, client ledger.Client) (*SharedDownload, error) {
	now := s.now().UTC()
	link, err := s.findLink(ctx, token, now)
	if err != nil {
		return nil, err
	}
	if link.IsPasswordProtected {
		if err := s.checkAccessToken(ctx, link, accessToken, now); err != nil {
			logger.Info("share download without valid access token", logger.ShareToken(token))
			return nil, err
		}
	}

	// 先解密, 失败时不消耗次数
	data, key, err := s.vault.Open(ctx, link.File)
	if err != nil {
		return nil, err
	}

	linkID := link.ID
	var event *models.AccessEvent
	err = s.tm.WithTransaction(ctx, func(tx *gorm.DB) error {
		links := s.links.WithTx(tx)
		ok, err := links.ConsumeAccess(ctx, link.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			current, err := links.FindByID(ctx, link.ID)
			if err != nil {
				return err
			}
			if current == nil {
				return xerr.ErrShareNotFound
			}
			if err := stateError(current.State(now)); err != nil {
				return err
			}
			return xerr.ErrShareExhausted
		}
		event, err = s.recorder.RecordTx(ctx, tx, ledger.Event{
			FileID:  link.FileID,
			ActorID: actorID(actor),
			LinkID:  &linkID,
			Type:    models.AccessDownload,
			Client:  client,
		}, now)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, xerr.ErrShareExpired), errors.Is(err, xerr.ErrShareExhausted), errors.Is(err, xerr.ErrShareNotFound):
			logger.Info("share download rejected", logger.ShareToken(token), zap.Error(err))
			return nil, err
		}
		logger.Error("consume share access failed", logger.ShareToken(token), zap.Error(err))
		return nil, fmt.Errorf("share service: %w", xerr.ErrDatabaseError)
	}
	s.recorder.AfterCommit(event)

	logger.Info("share download success", logger.ShareToken(token), zap.String("file_id", link.FileID))
	return &SharedDownload{File: link.File, Data: data, Key: base64.StdEncoding.EncodeToString(key)}, nil
}

func (s *shareService) ListLinks(ctx context.Context, actor *identity.Identity) ([]models.ShareLink, error) {
	links, err := s.links.ListByOwner(ctx, actor.ID)
	if err != nil {
		logger.Error("ListLinks failed", zap.String("owner", actor.ID), zap.Error(err))
		return nil, fmt.Errorf("share service: %w", xerr.ErrDatabaseError)
	}
	return links, nil
}

func (s *shareService) ownedLink(ctx context.Context, actor *identity.Identity, linkID uint64) (*models.ShareLink, error) {
	link, err := s.links.FindByID(ctx, linkID)
	if err != nil {
		logger.Error("find share link failed", zap.Uint64("link_id", linkID), zap.Error(err))
		return nil, fmt.Errorf("share service: %w", xerr.ErrDatabaseError)
	}
	if link == nil {
		return nil, xerr.ErrShareNotFound
	}
	if link.UserID != actor.ID {
		return nil, xerr.ErrPermissionDenied
	}
	return link, nil
}

func (s *shareService) dropAccessToken(ctx context.Context, token string) {
	if err := s.cache.Del(ctx, cache.GenerateShareAccessKey(token)); err != nil {
		logger.Warn("drop share access token failed", logger.ShareToken(token), zap.Error(err))
	}
}

func (s *shareService) RevokeLink(ctx context.Context, actor *identity.Identity, linkID uint64) error {
	link, err := s.ownedLink(ctx, actor, linkID)
	if err != nil {
		return err
	}
	if err := s.links.Expire(ctx, link.ID, s.now().UTC()); err != nil {
		logger.Error("revoke share link failed", zap.Uint64("link_id", linkID), zap.Error(err))
		return fmt.Errorf("share service: %w", xerr.ErrDatabaseError)
	}
	s.dropAccessToken(ctx, link.Token)
	logger.Info("RevokeLink success", zap.Uint64("link_id", linkID), logger.ShareToken(link.Token))
	return nil
}

func (s *shareService) SetLinkPassword(ctx context.Context, actor *identity.Identity, linkID uint64, password string) error {
	if err := checkPassword(password); err != nil {
		return err
	}
	link, err := s.ownedLink(ctx, actor, linkID)
	if err != nil {
		return err
	}
	hash := ""
	if password != "" {
		if hash, err = utils.HashPassword(password); err != nil {
			logger.Error("hash link password failed", zap.Error(err))
			return fmt.Errorf("share service: %w", xerr.ErrInternalServer)
		}
	}
	if err := s.links.UpdatePassword(ctx, link.ID, password != "", hash); err != nil {
		logger.Error("update link password failed", zap.Uint64("link_id", linkID), zap.Error(err))
		return fmt.Errorf("share service: %w", xerr.ErrDatabaseError)
	}
	// 旧密码换来的令牌随之失效
	s.dropAccessToken(ctx, link.Token)
	return nil
}
