package trigger

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Scheduler はワーカープロセス内でバッチ同期を定期的に起動する。
// リクエスト契機と同じRunner（同じゲート）を共有するため、
// トラフィックの多い時間帯はリクエスト契機が同期を済ませ、
// 深夜などの無トラフィック時間帯はこのSchedulerが同期を保証する。
type Scheduler struct {
	runner *Runner
	logger *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(runner *Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		logger: logger,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("tick", tick),
	)

	// 起動直後に1回実行
	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce はゲートを通してバッチ同期を1回試行する。
// 実行権を獲得できなかった場合は何もしない。
func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.runner.Run(ctx); err != nil && !errors.Is(err, ErrDeclined) {
		s.logger.Error("定期同期の実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
