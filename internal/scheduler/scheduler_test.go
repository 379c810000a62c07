package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type blockingJob struct {
	runs    atomic.Int32
	release chan struct{}
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	<-j.release
	return errors.New("done")
}

func TestAddJobRejectsBadSpec(t *testing.T) {
	logger.SetLogger(zap.NewNop())
	s := NewCronScheduler()
	assert.Error(t, s.AddJob(&blockingJob{}, "not a cron spec"))
	assert.NoError(t, s.AddJob(&blockingJob{}, "@hourly"))
	assert.Len(t, s.entries, 1)
}

func TestWrapSkipsOverlappingRuns(t *testing.T) {
	logger.SetLogger(zap.NewNop())
	s := NewCronScheduler()
	s.ctx = context.Background()
	job := &blockingJob{release: make(chan struct{})}
	run := s.wrap(job, nil)

	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()
	require.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	// 第一次还没结束, 第二次直接返回
	run()
	assert.Equal(t, int32(1), job.runs.Load())

	close(job.release)
	<-done
	run()
	assert.Equal(t, int32(2), job.runs.Load())
}
