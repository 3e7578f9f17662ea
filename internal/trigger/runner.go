// Package trigger はバッチ同期の起動契機（リクエスト・定期実行・手動）を提供する。
package trigger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/staysync/internal/model"
)

// ErrDeclined は実行権を獲得できなかった場合に返るエラー。
// 他のプロセスが実行中か、前回実行からの間隔が不足している。
var ErrDeclined = errors.New("バッチ同期の実行権を獲得できませんでした")

// Gate はバッチ同期実行権の調停インターフェース。
// TryAcquireがtrueを返した場合、呼び出し元は必ずReleaseを呼ぶこと。
type Gate interface {
	TryAcquire(ctx context.Context, interval time.Duration) bool
	Release(ctx context.Context)
}

// BatchRunner はバッチ同期実行のインターフェース。
type BatchRunner interface {
	RunBatch(ctx context.Context) (*model.BatchResult, error)
}

// BatchRecorder はバッチ同期メトリクス収集のインターフェース。
type BatchRecorder interface {
	RecordBatchRun(result *model.BatchResult)
}

// Runner はゲートを通してバッチ同期を起動する。
// HTTPリクエスト契機・定期実行契機・手動契機のすべてが同じRunnerを
// 共有するため、どの契機から起動しても多重実行は起こらない。
type Runner struct {
	gate        Gate
	coordinator BatchRunner
	collector   BatchRecorder
	interval    time.Duration
	timeout     time.Duration
	logger      *slog.Logger
}

// NewRunner はRunnerの新しいインスタンスを生成する。
// intervalは最小実行間隔、timeoutはバッチ1回あたりの実行時間上限。
func NewRunner(
	gate Gate,
	coordinator BatchRunner,
	collector BatchRecorder,
	interval time.Duration,
	timeout time.Duration,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		gate:        gate,
		coordinator: coordinator,
		collector:   collector,
		interval:    interval,
		timeout:     timeout,
		logger:      logger,
	}
}

// Run は実行権を獲得できた場合にバッチ同期を実行する。
// 獲得できなかった場合はErrDeclinedを返す。
// 同期の成否にかかわらず実行権は解放され、最終実行時刻が記録される。
func (r *Runner) Run(ctx context.Context) (*model.BatchResult, error) {
	if !r.gate.TryAcquire(ctx, r.interval) {
		return nil, ErrDeclined
	}
	defer r.gate.Release(ctx)

	result, err := r.coordinator.RunBatch(ctx)
	if err != nil {
		r.logger.Error("バッチ同期の実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	r.collector.RecordBatchRun(result)
	return result, nil
}

// RunAsync はバッチ同期をバックグラウンドのgoroutineで起動する。
// リクエスト処理をブロックしないため、結果は呼び出し元へ返らない。
// リクエストのコンテキストには紐付けず、専用のタイムアウトで実行する。
func (r *Runner) RunAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if _, err := r.Run(ctx); err != nil && !errors.Is(err, ErrDeclined) {
			r.logger.Error("バックグラウンド同期に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}()
}
