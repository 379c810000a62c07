package worker

import (
	"context"

	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/mq"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/storage"
)

// StartAllWorkers 启动应用中所有定义的后台 Worker
func StartAllWorkers(ctx context.Context, mqClient *mq.RabbitMQClient, storageService storage.StorageService) error {
	if err := NewDeleteWorker(mqClient, storageService).Start(ctx); err != nil {
		return err
	}
	logger.Info("所有后台工作进程已启动。")
	return nil
}

// NewBlobRemover 有消息队列时异步删除, 否则同步删除
func NewBlobRemover(mqClient *mq.RabbitMQClient, storageService storage.StorageService) BlobRemover {
	if mqClient != nil {
		return NewQueueRemover(mqClient)
	}
	return NewInlineRemover(storageService)
}
