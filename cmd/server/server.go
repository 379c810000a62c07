package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/app"
	"github.com/3Eeeecho/go-securedisk/internal/config"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/cache"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/mq"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/mq/worker"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/storage"
	"github.com/3Eeeecho/go-securedisk/internal/scheduler"
	"github.com/3Eeeecho/go-securedisk/internal/setup"
	"github.com/go-redis/redis/v8"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Server struct {
	app            *app.App
	httpServer     *http.Server
	db             *gorm.DB
	redisClient    *redis.Client
	rabbitMQClient *mq.RabbitMQClient
	storage        storage.StorageService
	scheduler      *scheduler.CronScheduler
	reconcileSpec  string
}

// Infra 打开全部外部连接, migrate / reconcile 子命令也会用到
func Infra(ctx context.Context, cfg *config.Config) (app.Infra, *redis.Client, error) {
	db, err := setup.InitDB(&cfg.Database)
	if err != nil {
		return app.Infra{}, nil, err
	}

	var redisClient *redis.Client
	if cfg.Cache.Type == "redis" {
		if redisClient, err = setup.InitRedis(ctx, &cfg.Redis); err != nil {
			return app.Infra{}, nil, err
		}
	}
	c, err := cache.New(&cfg.Cache, redisClient)
	if err != nil {
		return app.Infra{}, nil, err
	}

	ss, err := setup.InitStorage(ctx, cfg)
	if err != nil {
		return app.Infra{}, nil, err
	}

	es, err := setup.InitElasticsearchClient(&cfg.Elasticsearch)
	if err != nil {
		// 镜像不可用不影响主流程
		logger.Warn("Elasticsearch unavailable, access events stay in database only", zap.Error(err))
	}

	rabbitMQClient, err := setup.InitRabbitMQ(&cfg.RabbitMQ)
	if err != nil {
		return app.Infra{}, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	return app.Infra{DB: db, Cache: c, Storage: ss, ES: es, MQ: rabbitMQClient}, redisClient, nil
}

// NewServer 负责构建所有依赖
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	infra, redisClient, err := Infra(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := setup.AutoMigrate(infra.DB); err != nil {
		return nil, err
	}

	a, err := app.New(cfg, infra)
	if err != nil {
		return nil, err
	}

	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           gzhttp.GzipHandler(a.Engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		app:            a,
		httpServer:     httpServer,
		db:             infra.DB,
		redisClient:    redisClient,
		rabbitMQClient: infra.MQ,
		storage:        infra.Storage,
		scheduler:      scheduler.NewCronScheduler(),
		reconcileSpec:  cfg.Scheduler.ReconcileSpec,
	}, nil
}

// Run 启动服务器和 Worker，并处理优雅关机
func (s *Server) Run(ctx context.Context, stopChan chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 关闭顺序与启动相反, 先停 HTTP, 再刷新访问记录, 最后释放连接
	defer setup.CloseDB(s.db)
	defer setup.CloseRedis(s.redisClient)
	defer func() {
		if s.rabbitMQClient != nil {
			s.rabbitMQClient.Close()
		}
	}()
	defer s.app.Close()

	// 启动所有后台 Worker
	if s.rabbitMQClient != nil {
		if err := worker.StartAllWorkers(ctx, s.rabbitMQClient, s.storage); err != nil {
			return err
		}
	}
	if s.reconcileSpec != "" {
		if err := s.scheduler.AddJob(scheduler.NewReconcileJob(s.app.Quota), s.reconcileSpec); err != nil {
			return err
		}
		s.scheduler.Start(ctx)
		defer s.scheduler.Stop()
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Server is running", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// 等待停止信号
	select {
	case <-stopChan:
	case err := <-errChan:
		return fmt.Errorf("server failed to start: %w", err)
	}
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited gracefully")
	return nil
}
