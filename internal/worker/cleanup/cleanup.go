// Package cleanup は職務経歴書分析結果の自動削除ジョブを提供する。
// 保持期間（デフォルト90日）を超過した分析結果スロットを定期的に削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/mockprep/internal/repository"
)

// SlotPurger は更新日時が閾値より古いスロットを削除する。
// store.SQLiteSlots / store.PostgresSlots / store.MemorySlots が満たす。
type SlotPurger interface {
	PurgeOlderThan(ctx context.Context, prefix string, before time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した分析結果の自動削除ジョブ。
// 冪等な削除処理のため、何度実行しても結果は変わらない。
type CleanupJob struct {
	slots         SlotPurger
	logger        *slog.Logger
	RetentionDays int // 分析結果の保持日数（デフォルト: 90）

	now func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は90日。
func NewCleanupJob(slots SlotPurger, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		slots:         slots,
		logger:        logger,
		RetentionDays: 90,
		now:           time.Now,
	}
}

// Run は保持期間を超過した分析結果を削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	before := j.now().UTC().AddDate(0, 0, -j.RetentionDays)

	deletedCount, err := j.slots.PurgeOlderThan(ctx, repository.ResumeSlotPrefix, before)
	if err != nil {
		j.logger.Error("分析結果クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("分析結果クリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("分析結果クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は指定間隔でRunを繰り返す。起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("retention_days", j.RetentionDays),
	)

	_ = j.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
