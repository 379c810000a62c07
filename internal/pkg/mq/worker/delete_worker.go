package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/mq"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/storage"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const BlobDeleteQueueName = "blob_delete_queue"

// 每个 worker 同时处理的删除任务数
const deletePrefetch = 8

// BlobDeleteTask 文件记录删除提交后投递, 只携带对象名
type BlobDeleteTask struct {
	FileID string `json:"file_id"`
	OssKey string `json:"oss_key"`
}

// BlobRemover 在元数据提交后清理密文对象
type BlobRemover interface {
	RemoveBlob(ctx context.Context, task BlobDeleteTask) error
}

// InlineRemover 未配置消息队列时直接删除
type InlineRemover struct {
	storage storage.StorageService
}

func NewInlineRemover(s storage.StorageService) *InlineRemover {
	return &InlineRemover{storage: s}
}

func (r *InlineRemover) RemoveBlob(ctx context.Context, task BlobDeleteTask) error {
	return r.storage.RemoveObject(ctx, task.OssKey)
}

// QueueRemover 把删除任务交给 DeleteWorker 异步处理
type QueueRemover struct {
	publisher mq.Publisher
}

func NewQueueRemover(p mq.Publisher) *QueueRemover {
	return &QueueRemover{publisher: p}
}

func (r *QueueRemover) RemoveBlob(ctx context.Context, task BlobDeleteTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("序列化删除任务失败: %w", err)
	}
	if err := r.publisher.Publish(ctx, BlobDeleteQueueName, mq.Message{ID: task.FileID, Body: body}); err != nil {
		return fmt.Errorf("投递删除任务失败: %w", err)
	}
	return nil
}

type DeleteWorker struct {
	mqClient       *mq.RabbitMQClient
	storageService storage.StorageService
}

func NewDeleteWorker(mqClient *mq.RabbitMQClient, storageService storage.StorageService) *DeleteWorker {
	return &DeleteWorker{mqClient: mqClient, storageService: storageService}
}

func (w *DeleteWorker) Start(ctx context.Context) error {
	if err := w.mqClient.Consume(ctx, BlobDeleteQueueName, deletePrefetch, w.handle); err != nil {
		return fmt.Errorf("failed to start consuming from queue: %w", err)
	}
	logger.Info("Blob delete worker started")
	return nil
}

// errMalformedTask 无法解析的消息直接丢弃, 不重新入队
var errMalformedTask = errors.New("malformed delete task")

func (w *DeleteWorker) handle(msg amqp.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := w.process(ctx, msg.Body)
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case errors.Is(err, errMalformedTask):
		_ = msg.Nack(false, false)
	default:
		_ = msg.Nack(false, true)
	}
}

func (w *DeleteWorker) process(ctx context.Context, body []byte) error {
	var task BlobDeleteTask
	if err := json.Unmarshal(body, &task); err != nil || task.OssKey == "" {
		logger.Error("Failed to unmarshal delete task", zap.ByteString("body", body), zap.Error(err))
		return errMalformedTask
	}

	if err := w.storageService.RemoveObject(ctx, task.OssKey); err != nil {
		logger.Error("Failed to delete blob from storage", zap.String("oss_key", task.OssKey), zap.Error(err))
		return err
	}
	logger.Info("Blob deleted", zap.String("file_id", task.FileID), zap.String("oss_key", task.OssKey))
	return nil
}
