package service

import (
	"context"
	"errors"
	"time"

	"pseudo_practice_backend/internal/util"
	"pseudo_practice_backend/pkg/logger"
	"pseudo_practice_backend/pkg/monitoring"
	"pseudo_practice_backend/pkg/storage"

	"go.uber.org/zap"
)

// ProgressReconciler 后台对账：文档已有评测结果而记录仍为未解决时补写 solved
type ProgressReconciler struct {
	records   ProgressRecordStore
	documents ProgressDocumentStore
	batchSize int
}

func NewProgressReconciler(records ProgressRecordStore, documents ProgressDocumentStore, batchSize int) *ProgressReconciler {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ProgressReconciler{records: records, documents: documents, batchSize: batchSize}
}

// RunOnce 扫描一遍未解决的记录，返回本轮修复的数量
func (r *ProgressReconciler) RunOnce(ctx context.Context) (int, error) {
	repaired := 0
	cursor := ""
	for {
		batch, err := r.records.ListUnsolved(ctx, cursor, r.batchSize)
		if err != nil {
			return repaired, err
		}

		for _, record := range batch {
			cursor = record.AttemptID

			doc, err := r.documents.Get(ctx, record.AttemptID)
			switch {
			case errors.Is(err, util.ErrNotFound):
				continue
			case errors.Is(err, storage.ErrNoCallerCredential):
				// 调用方身份模式下服务端无法读取文档，只能依赖读取时对账
				logger.Log.Info("reconciler skipped: documents require caller credentials")
				return repaired, nil
			case err != nil:
				logger.Log.Warn("reconciler failed to read document", zap.String("attemptId", record.AttemptID), zap.Error(err))
				continue
			}
			if doc.Evaluation == nil {
				continue
			}

			transitioned, err := r.records.MarkSolved(ctx, record.AttemptID)
			if err != nil {
				return repaired, err
			}
			if transitioned {
				repaired++
				monitoring.SolvedTransitions.WithLabelValues("reconciler").Inc()
				logger.Log.Info("reconciled solved flag from document", zap.String("attemptId", record.AttemptID))
			}
		}

		if len(batch) < r.batchSize {
			return repaired, nil
		}
	}
}

// Run 按固定间隔执行 RunOnce，直到 ctx 结束
func (r *ProgressReconciler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.RunOnce(ctx)
			if err != nil {
				logger.Log.Error("progress reconciliation failed", zap.Int("repaired", n), zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Log.Info("progress reconciliation finished", zap.Int("repaired", n))
			}
		}
	}
}
