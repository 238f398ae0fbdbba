// Package cleanup は長期間更新されていないデバイスデータの自動削除ジョブを提供する。
// 保持期間（デフォルト90日）を超過したclient_storageのエントリを
// 定期バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pruner は更新時刻の古いエントリを削除するストレージ。
// storage.PostgresStorage と storage.SQLiteStorage が満たす。
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過したデバイスデータの自動削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	store         Pruner
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int // 保持日数（デフォルト: 90）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(store Pruner, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		store:         store,
		logger:        logger,
		now:           time.Now,
		RetentionDays: 90,
	}
}

// Run はRetentionDays日より前に更新されたエントリを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	before := start.AddDate(0, 0, -j.RetentionDays)

	deletedCount, err := j.store.Prune(ctx, before)
	if err != nil {
		j.logger.Error("ストレージクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("ストレージクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("ストレージクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start はctxがキャンセルされるまでintervalごとにRunを実行する。
// 起動直後に1回実行する。個々の失敗はログに残して次回に持ち越す。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_ = j.Run(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
