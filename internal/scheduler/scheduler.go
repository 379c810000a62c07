package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// CronScheduler 同一个任务上一次未结束时跳过本次触发
type CronScheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	ctx     context.Context
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC)),
		entries: make(map[string]cron.EntryID),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	fields := []zap.Field{zap.String("job", job.Name()), zap.String("spec", spec)}
	entryID, err := c.cron.AddFunc(spec, c.wrap(job, fields))
	if err != nil {
		logger.Error("schedule job failed", append(fields, zap.Error(err))...)
		return err
	}
	c.entries[job.Name()] = entryID
	logger.Info("job scheduled", fields...)
	return nil
}

func (c *CronScheduler) Start(ctx context.Context) {
	c.ctx = ctx
	c.cron.Start()
}

// Stop 等待正在执行的任务结束
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
}

func (c *CronScheduler) wrap(job Job, fields []zap.Field) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			logger.Info("job skipped: still running", fields...)
			return
		}
		defer running.Store(false)

		ctx := c.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		start := time.Now()
		logger.Info("job started", fields...)
		err := job.Run(ctx)
		elapsed := zap.Duration("duration", time.Since(start))
		if err != nil {
			logger.Error("job finished", append(fields, elapsed, zap.Error(err))...)
			return
		}
		logger.Info("job finished", append(fields, elapsed)...)
	}
}
