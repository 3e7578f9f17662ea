package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/staysync/internal/model"
	"github.com/hitoshi/staysync/internal/repository"
)

// SourceSyncer は単一Sourceの同期実行のインターフェース。
type SourceSyncer interface {
	SyncSource(ctx context.Context, source *model.SourceWithUnit) model.SyncStats
}

// Coordinator は同期対象Sourceの列挙とバッチ実行を行う。
// semaphoreパターンで最大並列数を制御し、Sourceごとの結果を
// BatchResultに集計する。個別Sourceの失敗はSyncStatsの値として
// 集計に含まれ、バッチ全体を失敗させない。errorが返るのは
// 対象列挙そのものが失敗した場合だけである。
type Coordinator struct {
	sourceRepo     repository.SourceRepository
	syncer         SourceSyncer
	logger         *slog.Logger
	maxConcurrency int
}

// NewCoordinator はCoordinatorの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値5を使用する。
func NewCoordinator(
	sourceRepo repository.SourceRepository,
	syncer SourceSyncer,
	logger *slog.Logger,
	maxConcurrency int,
) *Coordinator {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Coordinator{
		sourceRepo:     sourceRepo,
		syncer:         syncer,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// RunBatch は同期期限が到来したSourceを列挙し、並列で同期を実行する。
// 対象の列挙に失敗した場合は*model.EnumerationErrorを返す。
func (c *Coordinator) RunBatch(ctx context.Context) (*model.BatchResult, error) {
	start := time.Now()

	sources, err := c.sourceRepo.ListDueForSync(ctx)
	if err != nil {
		return nil, &model.EnumerationError{Err: err}
	}

	result := &model.BatchResult{}

	if len(sources) == 0 {
		c.logger.Info("同期対象のソースはありません")
		result.Duration = time.Since(start)
		return result, nil
	}

	c.logger.Info("バッチ同期を開始します",
		slog.Int("source_count", len(sources)),
		slog.Int("max_concurrency", c.maxConcurrency),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, c.maxConcurrency)
	statsCh := make(chan model.SyncStats, len(sources))
	var wg sync.WaitGroup

	for _, source := range sources {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(s *model.SourceWithUnit) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			statsCh <- c.syncer.SyncSource(ctx, s)
		}(source)
	}

	wg.Wait()
	close(statsCh)

	for stats := range statsCh {
		result.Add(stats)
	}
	result.Duration = time.Since(start)

	c.logger.Info("バッチ同期が完了しました",
		slog.Int("sources_total", result.SourcesTotal),
		slog.Int("sources_failed", result.SourcesFailed),
		slog.Int("new", result.New),
		slog.Int("updated", result.Updated),
		slog.Int("deleted", result.Deleted),
		slog.Float64("duration_ms", float64(result.Duration.Milliseconds())),
	)

	return result, nil
}
