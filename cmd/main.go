package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/3Eeeecho/go-securedisk/cmd/server"
	"github.com/3Eeeecho/go-securedisk/internal/config"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/repositories"
	"github.com/3Eeeecho/go-securedisk/internal/services/quota"
	"github.com/3Eeeecho/go-securedisk/internal/setup"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// bootstrap 加载配置并初始化日志系统
func bootstrap() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("加载配置出错: %w", err)
	}
	if err := os.MkdirAll("logs", 0755); err != nil {
		return nil, fmt.Errorf("初始化日志系统失败: %w", err)
	}
	logger.InitLogger(cfg.Log.OutputPath, cfg.Log.ErrorPath, cfg.Log.Level)
	return cfg, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "securedisk",
		Short: "encrypted file storage and sharing server",
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() // 确保在应用退出时刷新所有缓冲的日志条目

			logger.Info("启动加密网盘程序...")
			srv, err := server.NewServer(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("无法启动应用程序: %w", err)
			}

			// 创建一个通道用于接收停止信号
			stopChan := make(chan os.Signal, 1)
			signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)
			if err := srv.Run(cmd.Context(), stopChan); err != nil {
				return err
			}
			logger.Info("加密网盘程序已退出。")
			return nil
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := setup.InitDB(&cfg.Database)
			if err != nil {
				return err
			}
			defer setup.CloseDB(db)
			return setup.AutoMigrate(db)
		},
	}

	var userID string
	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "recompute used space from stored files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := setup.InitDB(&cfg.Database)
			if err != nil {
				return err
			}
			defer setup.CloseDB(db)

			q := quota.NewService(
				repositories.NewUserRepository(db),
				repositories.NewFileRepository(db),
				repositories.NewShareLinkRepository(db),
				repositories.NewTransactionManager(db),
				&cfg.Quota,
			)
			if userID != "" {
				before, after, err := q.Reconcile(cmd.Context(), userID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d -> %d\n", userID, before, after)
				return nil
			}
			fixed, err := q.ReconcileAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "corrected %d users\n", fixed)
			return nil
		},
	}
	reconcileCmd.Flags().StringVar(&userID, "user", "", "only reconcile this user id")

	rootCmd.AddCommand(serveCmd, migrateCmd, reconcileCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Fatal("startup error", zap.Error(err))
	}
}
