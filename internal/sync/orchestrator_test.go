package sync

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/staysync/internal/ical"
	"github.com/hitoshi/staysync/internal/model"
	"github.com/hitoshi/staysync/internal/repository"
)

// --- モック定義 ---

// mockSourceRepo はSourceRepositoryのテスト用モック。
type mockSourceRepo struct {
	findByIDFunc        func(ctx context.Context, id string) (*model.Source, error)
	listByUnitFunc      func(ctx context.Context, unitID string) ([]*model.Source, error)
	listWithUnitFunc    func(ctx context.Context) ([]*model.SourceWithUnit, error)
	listDueForSyncFunc  func(ctx context.Context) ([]*model.SourceWithUnit, error)
	createFunc          func(ctx context.Context, source *model.Source) error
	updateFunc          func(ctx context.Context, source *model.Source) error
	deleteFunc          func(ctx context.Context, id string) error
	updateSyncStateFunc func(ctx context.Context, source *model.Source) error
}

func (m *mockSourceRepo) FindByID(ctx context.Context, id string) (*model.Source, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockSourceRepo) ListByUnit(ctx context.Context, unitID string) ([]*model.Source, error) {
	if m.listByUnitFunc != nil {
		return m.listByUnitFunc(ctx, unitID)
	}
	return nil, nil
}

func (m *mockSourceRepo) ListWithUnit(ctx context.Context) ([]*model.SourceWithUnit, error) {
	if m.listWithUnitFunc != nil {
		return m.listWithUnitFunc(ctx)
	}
	return nil, nil
}

func (m *mockSourceRepo) ListDueForSync(ctx context.Context) ([]*model.SourceWithUnit, error) {
	if m.listDueForSyncFunc != nil {
		return m.listDueForSyncFunc(ctx)
	}
	return nil, nil
}

func (m *mockSourceRepo) Create(ctx context.Context, source *model.Source) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, source)
	}
	return nil
}

func (m *mockSourceRepo) Update(ctx context.Context, source *model.Source) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, source)
	}
	return nil
}

func (m *mockSourceRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func (m *mockSourceRepo) UpdateSyncState(ctx context.Context, source *model.Source) error {
	if m.updateSyncStateFunc != nil {
		return m.updateSyncStateFunc(ctx, source)
	}
	return nil
}

// mockBookingRepo はBookingRepositoryのテスト用モック。
type mockBookingRepo struct {
	listActiveBySourceFunc  func(ctx context.Context, sourceID string) ([]*model.Booking, error)
	listByUnitFunc          func(ctx context.Context, unitID string, includeDeleted bool) ([]*model.Booking, error)
	countBySourceFunc       func(ctx context.Context, sourceID string) (int, int, error)
	applyReconciliationFunc func(ctx context.Context, changes repository.ReconcileChanges) error
}

func (m *mockBookingRepo) ListActiveBySource(ctx context.Context, sourceID string) ([]*model.Booking, error) {
	if m.listActiveBySourceFunc != nil {
		return m.listActiveBySourceFunc(ctx, sourceID)
	}
	return nil, nil
}

func (m *mockBookingRepo) ListByUnit(ctx context.Context, unitID string, includeDeleted bool) ([]*model.Booking, error) {
	if m.listByUnitFunc != nil {
		return m.listByUnitFunc(ctx, unitID, includeDeleted)
	}
	return nil, nil
}

func (m *mockBookingRepo) CountBySource(ctx context.Context, sourceID string) (int, int, error) {
	if m.countBySourceFunc != nil {
		return m.countBySourceFunc(ctx, sourceID)
	}
	return 0, 0, nil
}

func (m *mockBookingRepo) ApplyReconciliation(ctx context.Context, changes repository.ReconcileChanges) error {
	if m.applyReconciliationFunc != nil {
		return m.applyReconciliationFunc(ctx, changes)
	}
	return nil
}

// mockFeedFetcher はFeedFetcherのテスト用モック。
type mockFeedFetcher struct {
	fetchFunc func(ctx context.Context, feedURL string) ([]byte, error)
}

func (m *mockFeedFetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, feedURL)
	}
	return nil, nil
}

// mockFeedParser はFeedParserのテスト用モック。
type mockFeedParser struct {
	parseFunc func(sourceID string, body []byte) (*ical.ParseResult, error)
}

func (m *mockFeedParser) Parse(sourceID string, body []byte) (*ical.ParseResult, error) {
	if m.parseFunc != nil {
		return m.parseFunc(sourceID, body)
	}
	return &ical.ParseResult{}, nil
}

// mockCollector はMetricsRecorderのテスト用モック。
type mockCollector struct {
	successCount int
	failureCount int
	lastReason   string
}

func (m *mockCollector) RecordSyncSuccess(sourceID string) { m.successCount++ }
func (m *mockCollector) RecordSyncFailure(sourceID string, reason string) {
	m.failureCount++
	m.lastReason = reason
}
func (m *mockCollector) RecordSyncDuration(duration time.Duration)               {}
func (m *mockCollector) RecordBookingChanges(created, updated, deleted, vanished int) {}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestOrchestrator(
	fetcher FeedFetcher,
	parser FeedParser,
	sourceRepo *mockSourceRepo,
	bookingRepo *mockBookingRepo,
	collector *mockCollector,
) *Orchestrator {
	var buf bytes.Buffer
	return NewOrchestrator(
		fetcher, parser, NewReconciler(1),
		sourceRepo, bookingRepo, collector,
		newTestLogger(&buf),
	)
}

// --- Orchestratorのテスト ---

func TestSyncSource_Success_RecordsStats(t *testing.T) {
	fetcher := &mockFeedFetcher{
		fetchFunc: func(ctx context.Context, feedURL string) ([]byte, error) {
			return []byte("feed body"), nil
		},
	}
	parser := &mockFeedParser{
		parseFunc: func(sourceID string, body []byte) (*ical.ParseResult, error) {
			return &ical.ParseResult{
				Events: []model.ParsedEvent{
					{UID: "uid-1", CheckIn: day(2025, 6, 1), CheckOut: day(2025, 6, 5), Summary: "Reserved"},
				},
				Skipped: 2,
			}, nil
		},
	}

	var recordedState *model.Source
	sourceRepo := &mockSourceRepo{
		updateSyncStateFunc: func(ctx context.Context, source *model.Source) error {
			recordedState = source
			return nil
		},
	}
	collector := &mockCollector{}

	o := newTestOrchestrator(fetcher, parser, sourceRepo, &mockBookingRepo{}, collector)
	stats := o.SyncSource(context.Background(), testSource())

	if !stats.Success {
		t.Fatalf("Success = false, error = %q", stats.Error)
	}
	if stats.New != 1 || stats.Total != 1 {
		t.Errorf("New/Total = %d/%d, want 1/1", stats.New, stats.Total)
	}
	if stats.ParseSkipped != 2 {
		t.Errorf("ParseSkipped = %d, want 2", stats.ParseSkipped)
	}

	if recordedState == nil {
		t.Fatal("同期状態が記録されていない")
	}
	if recordedState.LastSyncStatus != model.SyncStatusSuccess {
		t.Errorf("LastSyncStatus = %q, want success", recordedState.LastSyncStatus)
	}
	if recordedState.LastSyncedAt == nil {
		t.Error("LastSyncedAtが記録されていない")
	}
	if recordedState.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", recordedState.ConsecutiveErrors)
	}
	if recordedState.LastSyncStats == nil || recordedState.LastSyncStats.New != 1 {
		t.Error("LastSyncStatsが記録されていない")
	}
	if collector.successCount != 1 {
		t.Errorf("successCount = %d, want 1", collector.successCount)
	}
}

func TestSyncSource_FetchFailure_ReturnsFailedStats(t *testing.T) {
	fetcher := &mockFeedFetcher{
		fetchFunc: func(ctx context.Context, feedURL string) ([]byte, error) {
			return nil, &model.FetchError{URL: feedURL, StatusCode: 404}
		},
	}

	var recordedState *model.Source
	sourceRepo := &mockSourceRepo{
		updateSyncStateFunc: func(ctx context.Context, source *model.Source) error {
			recordedState = source
			return nil
		},
	}
	collector := &mockCollector{}

	source := testSource()
	source.ConsecutiveErrors = 2

	o := newTestOrchestrator(fetcher, &mockFeedParser{}, sourceRepo, &mockBookingRepo{}, collector)
	stats := o.SyncSource(context.Background(), source)

	if stats.Success {
		t.Fatal("フェッチ失敗なのにSuccess = true")
	}
	if stats.Error == "" {
		t.Error("エラーメッセージが空")
	}

	if recordedState == nil {
		t.Fatal("同期状態が記録されていない")
	}
	if recordedState.LastSyncStatus != model.SyncStatusError {
		t.Errorf("LastSyncStatus = %q, want error", recordedState.LastSyncStatus)
	}
	if recordedState.ConsecutiveErrors != 3 {
		t.Errorf("ConsecutiveErrors = %d, want 3", recordedState.ConsecutiveErrors)
	}
	if collector.failureCount != 1 || collector.lastReason != "fetch" {
		t.Errorf("failureCount/lastReason = %d/%q, want 1/fetch", collector.failureCount, collector.lastReason)
	}
}

func TestSyncSource_ParseFailure_ReturnsFailedStats(t *testing.T) {
	fetcher := &mockFeedFetcher{
		fetchFunc: func(ctx context.Context, feedURL string) ([]byte, error) {
			return []byte("not a calendar"), nil
		},
	}
	parser := &mockFeedParser{
		parseFunc: func(sourceID string, body []byte) (*ical.ParseResult, error) {
			return nil, &model.ParseError{Err: errors.New("malformed")}
		},
	}
	collector := &mockCollector{}

	o := newTestOrchestrator(fetcher, parser, &mockSourceRepo{}, &mockBookingRepo{}, collector)
	stats := o.SyncSource(context.Background(), testSource())

	if stats.Success {
		t.Fatal("パース失敗なのにSuccess = true")
	}
	if collector.lastReason != "parse" {
		t.Errorf("lastReason = %q, want parse", collector.lastReason)
	}
}

func TestSyncSource_ReconcileFailure_ReturnsFailedStats(t *testing.T) {
	fetcher := &mockFeedFetcher{
		fetchFunc: func(ctx context.Context, feedURL string) ([]byte, error) {
			return []byte("feed body"), nil
		},
	}
	bookingRepo := &mockBookingRepo{
		applyReconciliationFunc: func(ctx context.Context, changes repository.ReconcileChanges) error {
			return errors.New("deadlock detected")
		},
	}
	collector := &mockCollector{}

	o := newTestOrchestrator(fetcher, &mockFeedParser{}, &mockSourceRepo{}, bookingRepo, collector)
	stats := o.SyncSource(context.Background(), testSource())

	if stats.Success {
		t.Fatal("照合適用失敗なのにSuccess = true")
	}
	if collector.lastReason != "reconcile" {
		t.Errorf("lastReason = %q, want reconcile", collector.lastReason)
	}
}

func TestSyncSource_StateRecordingFailure_DoesNotChangeResult(t *testing.T) {
	fetcher := &mockFeedFetcher{
		fetchFunc: func(ctx context.Context, feedURL string) ([]byte, error) {
			return []byte("feed body"), nil
		},
	}
	sourceRepo := &mockSourceRepo{
		updateSyncStateFunc: func(ctx context.Context, source *model.Source) error {
			return errors.New("connection refused")
		},
	}

	o := newTestOrchestrator(fetcher, &mockFeedParser{}, sourceRepo, &mockBookingRepo{}, &mockCollector{})
	stats := o.SyncSource(context.Background(), testSource())

	// 状態記録の失敗は同期自体の成否を変えない
	if !stats.Success {
		t.Errorf("Success = false, error = %q", stats.Error)
	}
}

func TestSyncSource_TotalReflectsActiveAfterSync(t *testing.T) {
	fetcher := &mockFeedFetcher{
		fetchFunc: func(ctx context.Context, feedURL string) ([]byte, error) {
			return []byte("feed body"), nil
		},
	}
	// 既存2件のうち1件が残留、1件が消失。新規1件。
	parser := &mockFeedParser{
		parseFunc: func(sourceID string, body []byte) (*ical.ParseResult, error) {
			return &ical.ParseResult{
				Events: []model.ParsedEvent{
					{UID: "uid-1", CheckIn: day(2025, 6, 1), CheckOut: day(2025, 6, 5), Summary: "Reserved"},
					{UID: "uid-3", CheckIn: day(2025, 8, 1), CheckOut: day(2025, 8, 5), Summary: "Reserved"},
				},
			}, nil
		},
	}
	bookingRepo := &mockBookingRepo{
		listActiveBySourceFunc: func(ctx context.Context, sourceID string) ([]*model.Booking, error) {
			return []*model.Booking{
				activeBooking("b-1", "uid-1", day(2025, 6, 1), day(2025, 6, 5), "Reserved", 0),
				activeBooking("b-2", "uid-2", day(2025, 7, 1), day(2025, 7, 5), "Reserved", 0),
			}, nil
		},
	}

	o := newTestOrchestrator(fetcher, parser, &mockSourceRepo{}, bookingRepo, &mockCollector{})
	stats := o.SyncSource(context.Background(), testSource())

	if !stats.Success {
		t.Fatalf("Success = false, error = %q", stats.Error)
	}
	if stats.New != 1 || stats.Deleted != 1 {
		t.Errorf("New/Deleted = %d/%d, want 1/1", stats.New, stats.Deleted)
	}
	// 2件 + 新規1件 - 削除1件 = 2件
	if stats.Total != 2 {
		t.Errorf("Total = %d, want 2", stats.Total)
	}
}
