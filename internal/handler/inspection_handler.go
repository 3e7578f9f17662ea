package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/staysync/internal/model"
)

// SourceInspector は診断ハンドラーが必要とするソース列挙のインターフェース。
type SourceInspector interface {
	ListWithUnit(ctx context.Context) ([]*model.SourceWithUnit, error)
}

// BookingCounter はソースごとの予約件数集計のインターフェース。
type BookingCounter interface {
	CountBySource(ctx context.Context, sourceID string) (active int, deleted int, err error)
}

// InspectionHandler は同期健全性の診断用HTTPハンドラー。
// 全ソースの直近の同期状態と予約件数を1画面で確認できるようにする。
// フィード側の不調（継続的なフェッチ失敗や予約の大量消失）を
// オペレーターが発見するための入口となる。
type InspectionHandler struct {
	sources  SourceInspector
	bookings BookingCounter
}

// NewInspectionHandler はInspectionHandlerを生成する。
func NewInspectionHandler(sources SourceInspector, bookings BookingCounter) *InspectionHandler {
	return &InspectionHandler{
		sources:  sources,
		bookings: bookings,
	}
}

// inspectionEntry は1ソース分の診断情報。
type inspectionEntry struct {
	SourceID            string           `json:"source_id"`
	SourceName          string           `json:"source_name"`
	UnitName            string           `json:"unit_name"`
	UnitSlug            string           `json:"unit_slug"`
	FeedURL             string           `json:"feed_url"`
	Enabled             bool             `json:"enabled"`
	SyncIntervalMinutes int              `json:"sync_interval_minutes"`
	LastSyncedAt        *time.Time       `json:"last_synced_at,omitempty"`
	LastSyncStatus      string           `json:"last_sync_status"`
	LastSyncError       string           `json:"last_sync_error,omitempty"`
	ConsecutiveErrors   int              `json:"consecutive_errors"`
	LastSyncStats       *model.SyncStats `json:"last_sync_stats,omitempty"`
	ActiveBookings      int              `json:"active_bookings"`
	DeletedBookings     int              `json:"deleted_bookings"`
}

// Inspect は全ソースの同期状態と予約件数を返す。
// GET /api/inspection
func (h *InspectionHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	sources, err := h.sources.ListWithUnit(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	entries := make([]inspectionEntry, 0, len(sources))
	for _, source := range sources {
		active, deleted, err := h.bookings.CountBySource(r.Context(), source.ID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		entries = append(entries, inspectionEntry{
			SourceID:            source.ID,
			SourceName:          source.Name,
			UnitName:            source.UnitName,
			UnitSlug:            source.UnitSlug,
			FeedURL:             source.FeedURL,
			Enabled:             source.Enabled,
			SyncIntervalMinutes: source.SyncIntervalMinutes,
			LastSyncedAt:        source.LastSyncedAt,
			LastSyncStatus:      string(source.LastSyncStatus),
			LastSyncError:       source.LastSyncError,
			ConsecutiveErrors:   source.ConsecutiveErrors,
			LastSyncStats:       source.LastSyncStats,
			ActiveBookings:      active,
			DeletedBookings:     deleted,
		})
	}

	writeJSON(w, http.StatusOK, entries)
}
