// Package purge はtombstone（ソフトデリート済み予約）の物理削除ジョブを提供する。
// 同期処理は予約を物理削除しないため、保持期間を超過したtombstoneを
// 日次バッチで削除しないとテーブルが際限なく成長する。
package purge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PurgeJob は保持期間を超過したtombstoneの物理削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
// アクティブな予約（deleted_at IS NULL）には一切触れない。
type PurgeJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int // tombstoneの保持日数（デフォルト: 365）
}

// NewPurgeJob は新しいPurgeJobを生成する。
// デフォルトの保持日数は365日。
func NewPurgeJob(db Executor, logger *slog.Logger) *PurgeJob {
	return &PurgeJob{
		db:            db,
		logger:        logger,
		RetentionDays: 365,
	}
}

// Run はdeleted_atがRetentionDays日前より古いtombstoneをDELETEする。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *PurgeJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d days", j.RetentionDays)

	query := `DELETE FROM bookings WHERE deleted_at IS NOT NULL AND deleted_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("tombstoneパージジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("tombstoneパージの実行に失敗: %w", err)
	}

	purgedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("tombstoneパージジョブが完了しました",
		slog.Int64("purged_count", purgedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は24時間間隔のティッカーでパージジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *PurgeJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("パージスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("retention_days", j.RetentionDays),
	)

	// 起動直後に1回実行
	if err := j.Run(ctx); err != nil {
		j.logger.Error("パージジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("パージスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("パージジョブの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
