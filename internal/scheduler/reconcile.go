package scheduler

import (
	"context"

	"github.com/3Eeeecho/go-securedisk/internal/pkg/logger"
	"github.com/3Eeeecho/go-securedisk/internal/services/quota"
	"go.uber.org/zap"
)

// ReconcileJob 按文件实际大小校正每个用户的已用空间
type ReconcileJob struct {
	quota quota.Service
}

func NewReconcileJob(q quota.Service) *ReconcileJob {
	return &ReconcileJob{quota: q}
}

func (j *ReconcileJob) Name() string { return "quota_reconcile" }

func (j *ReconcileJob) Run(ctx context.Context) error {
	fixed, err := j.quota.ReconcileAll(ctx)
	if err != nil {
		return err
	}
	logger.Info("quota reconciled", zap.Int("corrected_users", fixed))
	return nil
}
