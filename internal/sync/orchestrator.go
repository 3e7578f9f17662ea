package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/staysync/internal/ical"
	"github.com/hitoshi/staysync/internal/model"
	"github.com/hitoshi/staysync/internal/repository"
)

// FeedFetcher はフィード取得のインターフェース。
type FeedFetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]byte, error)
}

// FeedParser はフィードパースのインターフェース。
type FeedParser interface {
	Parse(sourceID string, body []byte) (*ical.ParseResult, error)
}

// MetricsRecorder は同期メトリクス収集のインターフェース。
type MetricsRecorder interface {
	RecordSyncSuccess(sourceID string)
	RecordSyncFailure(sourceID string, reason string)
	RecordSyncDuration(duration time.Duration)
	RecordBookingChanges(created, updated, deleted, vanished int)
}

// Orchestrator は単一Sourceの同期（フェッチ → パース → 照合 → 適用）を
// 実行し、結果をSourceの同期状態として記録する。
//
// Sourceの同期状態フィールドの更新はOrchestratorだけが行う。
// フェッチ・パース・照合のどこで失敗しても同期状態は必ず記録され、
// 失敗はSyncStatsの値（Success=false）として返る。エラーを外へ
// 伝播させることはない。1つのSourceの失敗が他のSourceの同期を
// 妨げてはならないためである。
type Orchestrator struct {
	fetcher     FeedFetcher
	parser      FeedParser
	reconciler  *Reconciler
	sourceRepo  repository.SourceRepository
	bookingRepo repository.BookingRepository
	collector   MetricsRecorder
	logger      *slog.Logger
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(
	fetcher FeedFetcher,
	parser FeedParser,
	reconciler *Reconciler,
	sourceRepo repository.SourceRepository,
	bookingRepo repository.BookingRepository,
	collector MetricsRecorder,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		fetcher:     fetcher,
		parser:      parser,
		reconciler:  reconciler,
		sourceRepo:  sourceRepo,
		bookingRepo: bookingRepo,
		collector:   collector,
		logger:      logger,
	}
}

// SyncSource は1つのSourceを同期し、結果統計を返す。
// 戻り値のSuccessフィールドが成否を表す。errorは返さない。
func (o *Orchestrator) SyncSource(ctx context.Context, source *model.SourceWithUnit) model.SyncStats {
	start := time.Now()
	stats := model.SyncStats{
		SourceID:   source.ID,
		SourceName: source.Name,
	}

	body, err := o.fetcher.Fetch(ctx, source.FeedURL)
	if err != nil {
		return o.recordFailure(ctx, source, stats, start, "fetch", err)
	}

	result, err := o.parser.Parse(source.ID, body)
	if err != nil {
		return o.recordFailure(ctx, source, stats, start, "parse", err)
	}
	stats.ParseSkipped = result.Skipped

	existing, err := o.bookingRepo.ListActiveBySource(ctx, source.ID)
	if err != nil {
		return o.recordFailure(ctx, source, stats, start, "load", err)
	}

	now := time.Now()
	changes := o.reconciler.Plan(source, existing, result.Events, now)

	if err := o.bookingRepo.ApplyReconciliation(ctx, changes); err != nil {
		return o.recordFailure(ctx, source, stats, start,
			"reconcile", &model.ReconcileError{SourceID: source.ID, Err: err})
	}

	stats.New = len(changes.Creates)
	stats.Updated = len(changes.Updates)
	stats.Deleted = len(changes.SoftDeleteIDs)
	stats.Vanished = len(changes.MissIDs)
	stats.Total = len(existing) + stats.New - stats.Deleted
	stats.Success = true

	o.recordSuccess(ctx, source, stats, now)

	duration := time.Since(start)
	o.collector.RecordSyncSuccess(source.ID)
	o.collector.RecordSyncDuration(duration)
	o.collector.RecordBookingChanges(stats.New, stats.Updated, stats.Deleted, stats.Vanished)

	o.logger.Info("ソースの同期が完了しました",
		slog.String("source_id", source.ID),
		slog.String("unit", source.UnitName),
		slog.Int("total", stats.Total),
		slog.Int("new", stats.New),
		slog.Int("updated", stats.Updated),
		slog.Int("deleted", stats.Deleted),
		slog.Int("vanished", stats.Vanished),
		slog.Int("parse_skipped", stats.ParseSkipped),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return stats
}

// recordSuccess は成功した同期の状態をSourceに記録する。
func (o *Orchestrator) recordSuccess(ctx context.Context, source *model.SourceWithUnit, stats model.SyncStats, now time.Time) {
	updated := source.Source
	updated.LastSyncedAt = &now
	updated.LastSyncStatus = model.SyncStatusSuccess
	updated.LastSyncError = ""
	updated.ConsecutiveErrors = 0
	updated.LastSyncStats = &stats

	if err := o.sourceRepo.UpdateSyncState(ctx, &updated); err != nil {
		o.logger.Error("ソース同期状態の更新に失敗しました",
			slog.String("source_id", source.ID),
			slog.String("error", err.Error()),
		)
	}
}

// recordFailure は失敗した同期の状態をSourceに記録し、失敗統計を返す。
// 状態記録自体の失敗はログに残すのみで、戻り値には影響しない。
func (o *Orchestrator) recordFailure(
	ctx context.Context,
	source *model.SourceWithUnit,
	stats model.SyncStats,
	start time.Time,
	stage string,
	cause error,
) model.SyncStats {
	failed := stats.Failed(cause)

	now := time.Now()
	updated := source.Source
	updated.LastSyncedAt = &now
	updated.LastSyncStatus = model.SyncStatusError
	updated.LastSyncError = cause.Error()
	updated.ConsecutiveErrors = source.ConsecutiveErrors + 1
	updated.LastSyncStats = &failed

	if err := o.sourceRepo.UpdateSyncState(ctx, &updated); err != nil {
		o.logger.Error("ソース同期状態の更新に失敗しました",
			slog.String("source_id", source.ID),
			slog.String("error", err.Error()),
		)
	}

	o.collector.RecordSyncFailure(source.ID, stage)
	o.collector.RecordSyncDuration(time.Since(start))

	o.logger.Error("ソースの同期に失敗しました",
		slog.String("source_id", source.ID),
		slog.String("unit", source.UnitName),
		slog.String("stage", stage),
		slog.String("error", cause.Error()),
		slog.Int("consecutive_errors", updated.ConsecutiveErrors),
	)

	return failed
}
