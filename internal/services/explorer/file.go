package explorer

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/config"
	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/cache"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/mq/worker"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/xerr"
	"github.com/3Eeeecho/go-securedisk/internal/repositories"
	"github.com/3Eeeecho/go-securedisk/internal/services/ledger"
	"github.com/3Eeeecho/go-securedisk/internal/services/quota"
	"github.com/3Eeeecho/go-securedisk/internal/services/vault"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UploadInput 上传请求, Content 为完整明文
type UploadInput struct {
	FileName string
	MimeType string
	Content  []byte
}

// ListFilesQuery 文件列表查询参数, 无法识别的取值按默认处理
type ListFilesQuery struct {
	Search    string // 匹配文件名或 MIME 类型
	DateRange string // 7days, 30days, 90days, all
	FileType  string // document, image, other, all
	SortBy    string // name, size, uploaded_at, type
	Order     string // asc, desc
}

// FileContent 解密后的文件内容
type FileContent struct {
	File *models.File
	Data []byte
}

type FileService interface {
	// 文件上传
	Upload(ctx context.Context, actor *identity.Identity, in UploadInput) (*models.File, error)

	// 文件查询
	ListFiles(ctx context.Context, actor *identity.Identity, q ListFilesQuery) ([]models.File, error)
	// RecentFiles 最近 7 天上传的文件, 只使用 q 中的排序参数
	RecentFiles(ctx context.Context, actor *identity.Identity, q ListFilesQuery) ([]models.File, error)
	GetFile(ctx context.Context, actor *identity.Identity, fileID string) (*models.File, error)

	// 文件读取, download 为 false 时按预览处理
	GetFileContent(ctx context.Context, actor *identity.Identity, fileID string, download bool, client ledger.Client) (*FileContent, error)
	// ExportKey 所有者导出 base64 编码的文件密钥
	ExportKey(ctx context.Context, actor *identity.Identity, fileID string) (string, error)

	// 文件删除, 级联删除分享并归还配额
	DeleteFile(ctx context.Context, actor *identity.Identity, fileID string) error
}

// Deps 文件服务依赖
type Deps struct {
	Files    repositories.FileRepository
	Links    repositories.ShareLinkRepository
	Directs  repositories.DirectShareRepository
	Events   repositories.AccessEventRepository
	Domain   FileDomainService
	TM       repositories.TransactionManager
	Quota    quota.Service
	Vault    *vault.Vault
	Recorder ledger.Recorder
	Cache    cache.Cache
	Remover  worker.BlobRemover
	Cfg      *config.QuotaConfig
	Now      func() time.Time
}

type fileService struct {
	files    repositories.FileRepository
	links    repositories.ShareLinkRepository
	directs  repositories.DirectShareRepository
	events   repositories.AccessEventRepository
	domain   FileDomainService
	tm       repositories.TransactionManager
	quota    quota.Service
	vault    *vault.Vault
	recorder ledger.Recorder
	cache    cache.Cache
	remover  worker.BlobRemover
	cfg      *config.QuotaConfig
	now      func() time.Time
}

var _ FileService = (*fileService)(nil)

// NewFileService 创建一个新的文件服务实例
func NewFileService(d Deps) FileService {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &fileService{
		files:    d.Files,
		links:    d.Links,
		directs:  d.Directs,
		events:   d.Events,
		domain:   d.Domain,
		tm:       d.TM,
		quota:    d.Quota,
		vault:    d.Vault,
		recorder: d.Recorder,
		cache:    d.Cache,
		remover:  d.Remover,
		cfg:      d.Cfg,
		now:      now,
	}
}

func (s *fileService) ListFiles(ctx context.Context, actor *identity.Identity, q ListFilesQuery) ([]models.File, error) {
	query := repositories.FileListQuery{
		Search: q.Search,
		Type:   q.FileType,
		SortBy: q.SortBy,
		Asc:    q.Order == "asc",
	}
	if days, ok := dateRangeDays[q.DateRange]; ok {
		since := s.now().UTC().AddDate(0, 0, -days)
		query.Since = &since
	}
	return s.listFiles(ctx, actor, query)
}

func (s *fileService) RecentFiles(ctx context.Context, actor *identity.Identity, q ListFilesQuery) ([]models.File, error) {
	since := s.now().UTC().AddDate(0, 0, -recentDays)
	return s.listFiles(ctx, actor, repositories.FileListQuery{
		Since:  &since,
		SortBy: q.SortBy,
		Asc:    q.Order == "asc",
	})
}

func (s *fileService) listFiles(ctx context.Context, actor *identity.Identity, query repositories.FileListQuery) ([]models.File, error) {
	files, err := s.files.ListByOwner(ctx, actor.ID, query)
	if err != nil {
		logger.Error("ListFiles failed", zap.String("owner", actor.ID), zap.Error(err))
		return nil, fmt.Errorf("file service: %w", xerr.ErrDatabaseError)
	}
	return files, nil
}

func (s *fileService) GetFile(ctx context.Context, actor *identity.Identity, fileID string) (*models.File, error) {
	file, _, err := s.domain.CheckReadable(ctx, actor, fileID, models.PermissionView)
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (s *fileService) GetFileContent(ctx context.Context, actor *identity.Identity, fileID string, download bool, client ledger.Client) (*FileContent, error) {
	want, accessType := models.PermissionView, models.AccessView
	if download {
		want, accessType = models.PermissionDownload, models.AccessDownload
	}

	file, grant, err := s.domain.CheckReadable(ctx, actor, fileID, want)
	if err != nil {
		return nil, err
	}

	data, _, err := s.vault.Open(ctx, file)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	actorID := actor.ID
	s.recorder.Record(ledger.Event{FileID: file.ID, ActorID: &actorID, Type: accessType, Client: client}, now)
	if grant != nil {
		if err := s.directs.IncrementAccess(ctx, grant.ID, now); err != nil {
			logger.Warn("increment direct share access failed", zap.Uint64("share_id", grant.ID), zap.Error(err))
		}
	}

	logger.Info("GetFileContent success", zap.String("file_id", file.ID), zap.String("actor", actor.ID), zap.String("type", string(accessType)))
	return &FileContent{File: file, Data: data}, nil
}

func (s *fileService) ExportKey(ctx context.Context, actor *identity.Identity, fileID string) (string, error) {
	file, err := s.domain.CheckOwned(ctx, actor, fileID)
	if err != nil {
		return "", err
	}
	key, err := s.vault.ExportKey(file)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func (s *fileService) DeleteFile(ctx context.Context, actor *identity.Identity, fileID string) error {
	file, err := s.domain.CheckOwned(ctx, actor, fileID)
	if err != nil {
		return err
	}

	var tokens []string
	err = s.tm.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		if tokens, err = s.links.WithTx(tx).DeleteByFile(ctx, file.ID); err != nil {
			return err
		}
		if err := s.directs.WithTx(tx).DeleteByFile(ctx, file.ID); err != nil {
			return err
		}
		// 访问记录保留用于审计, 只标记文件已删除
		if err := s.events.WithTx(tx).TombstoneByFile(ctx, file.ID); err != nil {
			return err
		}
		if err := s.files.WithTx(tx).Delete(ctx, file.ID); err != nil {
			return err
		}
		return s.quota.ReleaseStorage(ctx, tx, file.UserID, file.Size)
	})
	if err != nil {
		logger.Error("DeleteFile transaction failed", zap.String("file_id", file.ID), zap.Error(err))
		return fmt.Errorf("file service: %w", xerr.ErrDatabaseError)
	}

	if len(tokens) > 0 {
		keys := make([]string, 0, len(tokens))
		for _, t := range tokens {
			keys = append(keys, cache.GenerateShareAccessKey(t))
		}
		if err := s.cache.Del(ctx, keys...); err != nil {
			logger.Warn("drop share access tokens failed", zap.String("file_id", file.ID), zap.Error(err))
		}
	}

	// 元数据已提交, 对象删除失败只会留下无法访问的密文
	if err := s.remover.RemoveBlob(ctx, worker.BlobDeleteTask{FileID: file.ID, OssKey: file.OssKey}); err != nil {
		logger.Error("remove blob failed", zap.String("file_id", file.ID), zap.String("oss_key", file.OssKey), zap.Error(err))
	}

	logger.Info("DeleteFile success", zap.String("file_id", file.ID), zap.String("owner", actor.ID), zap.Int("links", len(tokens)))
	return nil
}
