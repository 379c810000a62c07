// Package app 把基础设施和各层服务装配成可运行的应用
package app

import (
	"fmt"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/config"
	"github.com/3Eeeecho/go-securedisk/internal/handlers"
	"github.com/3Eeeecho/go-securedisk/internal/identity"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/cache"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/cryptox"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/mq"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/mq/worker"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-securedisk/internal/repositories"
	"github.com/3Eeeecho/go-securedisk/internal/router"
	"github.com/3Eeeecho/go-securedisk/internal/services/admin"
	"github.com/3Eeeecho/go-securedisk/internal/services/explorer"
	"github.com/3Eeeecho/go-securedisk/internal/services/ledger"
	"github.com/3Eeeecho/go-securedisk/internal/services/quota"
	"github.com/3Eeeecho/go-securedisk/internal/services/share"
	"github.com/3Eeeecho/go-securedisk/internal/services/vault"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// 异步访问记录的队列长度
const ledgerBuffer = 4096

// Infra 已经建立好的外部连接, ES 和 MQ 可以为 nil
type Infra struct {
	DB      *gorm.DB
	Cache   cache.Cache
	Storage storage.StorageService
	ES      *elasticsearch.Client
	MQ      *mq.RabbitMQClient
	Now     func() time.Time
}

type App struct {
	Engine   *gin.Engine
	Registry *identity.Registry
	Oracle   identity.Oracle
	Recorder ledger.Recorder
	Quota    quota.Service
	Files    explorer.FileService
	Shares   share.ShareService
	Grants   share.DirectShareService
	Stats    ledger.StatsService
	Users    admin.UserService
}

func New(cfg *config.Config, infra Infra) (*App, error) {
	now := infra.Now
	if now == nil {
		now = time.Now
	}

	//  初始化 Repositories
	userRepo := repositories.NewUserRepository(infra.DB)
	fileRepo := repositories.NewFileRepository(infra.DB)
	linkRepo := repositories.NewShareLinkRepository(infra.DB)
	directRepo := repositories.NewDirectShareRepository(infra.DB)
	eventRepo := repositories.NewAccessEventRepository(infra.DB)
	tm := repositories.NewTransactionManager(infra.DB)

	custody, err := cryptox.NewKeyCustody(cfg.Security.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("初始化密钥托管失败: %w", err)
	}
	oracle, err := identity.NewJWTOracle(&cfg.Identity, infra.Cache)
	if err != nil {
		return nil, fmt.Errorf("初始化身份校验失败: %w", err)
	}

	var sink ledger.Sink
	if infra.ES != nil {
		sink = ledger.NewESSink(infra.ES, cfg.Elasticsearch.Index)
	}

	//  初始化 Services
	registry := identity.NewRegistry(userRepo)
	recorder := ledger.NewRecorder(eventRepo, sink, ledgerBuffer)
	quotaSvc := quota.NewService(userRepo, fileRepo, linkRepo, tm, &cfg.Quota)
	v := vault.New(custody, infra.Storage)
	domain := explorer.NewFileDomainService(fileRepo, directRepo)

	fileSvc := explorer.NewFileService(explorer.Deps{
		Files:    fileRepo,
		Links:    linkRepo,
		Directs:  directRepo,
		Events:   eventRepo,
		Domain:   domain,
		TM:       tm,
		Quota:    quotaSvc,
		Vault:    v,
		Recorder: recorder,
		Cache:    infra.Cache,
		Remover:  worker.NewBlobRemover(infra.MQ, infra.Storage),
		Cfg:      &cfg.Quota,
		Now:      now,
	})
	shareSvc := share.NewShareService(share.Deps{
		Links:    linkRepo,
		Domain:   domain,
		TM:       tm,
		Quota:    quotaSvc,
		Vault:    v,
		Recorder: recorder,
		Cache:    infra.Cache,
		Security: &cfg.Security,
		Share:    &cfg.Share,
		Now:      now,
	})
	grantSvc := share.NewDirectShareService(directRepo, domain, registry)
	statsSvc := ledger.NewStatsService(fileRepo, linkRepo, directRepo, eventRepo, quotaSvc, now)
	userSvc := admin.NewUserService(userRepo, quotaSvc, now)

	//  初始化 Handlers
	engine := router.InitRouter(router.Handlers{
		File:  handlers.NewFileHandler(fileSvc, &cfg.Quota),
		Share: handlers.NewShareHandler(shareSvc, &cfg.Server),
		Grant: handlers.NewGrantHandler(grantSvc),
		Stats: handlers.NewStatsHandler(statsSvc),
		User:  handlers.NewUserHandler(userSvc),
	}, oracle, registry, &cfg.Server)

	return &App{
		Engine:   engine,
		Registry: registry,
		Oracle:   oracle,
		Recorder: recorder,
		Quota:    quotaSvc,
		Files:    fileSvc,
		Shares:   shareSvc,
		Grants:   grantSvc,
		Stats:    statsSvc,
		Users:    userSvc,
	}, nil
}

// Close 等待排队中的访问记录写完
func (a *App) Close() {
	a.Recorder.Close()
}
