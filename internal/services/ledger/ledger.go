package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/models"
	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/repositories"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Client 发起访问的客户端信息
type Client struct {
	IP        string
	UserAgent string
}

// Event 一次访问, ActorID 为空表示匿名, LinkID 为空表示非链接访问
type Event struct {
	FileID  string
	ActorID *string
	LinkID  *uint64
	Type    models.AccessType
	Client  Client
}

// Sink 访问记录的外部镜像, 例如 Elasticsearch
type Sink interface {
	Index(ctx context.Context, event *models.AccessEvent) error
}

// Recorder 追加访问记录
type Recorder interface {
	// RecordTx 在调用方事务中同步写入, 与计数更新一起提交或回滚
	RecordTx(ctx context.Context, tx *gorm.DB, ev Event, at time.Time) (*models.AccessEvent, error)
	// Record 异步写入, 不阻塞请求, 失败只记日志
	Record(ev Event, at time.Time)
	// AfterCommit 事务提交后把已写入的记录推送到镜像
	AfterCommit(event *models.AccessEvent)
	// Flush 等待已排队的记录写完
	Flush()
	Close()
}

type recorder struct {
	events repositories.AccessEventRepository
	sink   Sink
	queue  chan *models.AccessEvent
	wg     sync.WaitGroup // 排队中的记录
	done   chan struct{}

	// 入队持读锁, Flush/Close 持写锁, 保证 wg.Add 不会与 wg.Wait 并发
	mu     sync.RWMutex
	closed bool
}

// NewRecorder sink 可以为 nil
func NewRecorder(events repositories.AccessEventRepository, sink Sink, buffer int) Recorder {
	if buffer <= 0 {
		buffer = 1024
	}
	r := &recorder{
		events: events,
		sink:   sink,
		queue:  make(chan *models.AccessEvent, buffer),
		done:   make(chan struct{}),
	}
	go r.loop()
	return r
}

func toModel(ev Event, at time.Time) *models.AccessEvent {
	return &models.AccessEvent{
		FileID:      ev.FileID,
		ActorID:     ev.ActorID,
		ShareLinkID: ev.LinkID,
		AccessedAt:  at.UTC(),
		AccessType:  ev.Type,
		IPAddress:   truncate(ev.Client.IP, 45),
		UserAgent:   truncate(ev.Client.UserAgent, 512),
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func (r *recorder) RecordTx(ctx context.Context, tx *gorm.DB, ev Event, at time.Time) (*models.AccessEvent, error) {
	event := toModel(ev, at)
	if err := r.events.WithTx(tx).Create(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (r *recorder) Record(ev Event, at time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	event := toModel(ev, at)
	r.wg.Add(1)
	select {
	case r.queue <- event:
	default:
		r.wg.Done()
		logger.Warn("access ledger queue full, event dropped",
			zap.String("file_id", ev.FileID),
			zap.String("access_type", string(ev.Type)))
	}
}

func (r *recorder) AfterCommit(event *models.AccessEvent) {
	if r.sink == nil || event == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.mirror(event)
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.mirror(event)
	}()
}

func (r *recorder) loop() {
	for {
		select {
		case event := <-r.queue:
			r.write(event)
		case <-r.done:
			for {
				select {
				case event := <-r.queue:
					r.write(event)
				default:
					return
				}
			}
		}
	}
}

func (r *recorder) write(event *models.AccessEvent) {
	defer r.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.events.Create(ctx, event); err != nil {
		logger.Error("failed to write access event", zap.String("file_id", event.FileID), zap.Error(err))
		return
	}
	r.mirror(event)
}

func (r *recorder) mirror(event *models.AccessEvent) {
	if r.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.sink.Index(ctx, event); err != nil {
		logger.Warn("failed to mirror access event", zap.Uint64("event_id", event.ID), zap.Error(err))
	}
}

func (r *recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wg.Wait()
}

// Close 拒绝新的记录, 等已排队的写完后停止后台协程
func (r *recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.wg.Wait()
	close(r.done)
}
