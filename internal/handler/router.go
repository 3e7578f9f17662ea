package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/staysync/internal/metrics"
	"github.com/hitoshi/staysync/internal/middleware"
	"github.com/hitoshi/staysync/internal/trigger"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter

	// TriggerRunner が nil でない場合、対象リクエストに同期起動ミドルウェアを適用する。
	TriggerRunner *trigger.Runner

	// Prometheusスクレイプ用
	Gatherer prometheus.Gatherer

	// ヘルスチェック用DB
	DB Pinger

	// 永続化
	Units        UnitStore
	Sources      SourceStore
	SourceList   SourceInspector
	Bookings     UnitBookingLister
	BookingCount BookingCounter

	// フィードURL検証
	URLValidator FeedURLValidator

	// 手動同期
	SyncRunner SyncStarter
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Trigger → RateLimit(General)
//
// triggerミドルウェアはレート制限の手前に置く。同期の起動可否は
// ゲートが調停するため、レート制限で拒否されたリクエストが
// 同期契機になっても問題はない。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	if deps.TriggerRunner != nil {
		r.Use(trigger.NewMiddleware(deps.TriggerRunner))
	}

	unitHandler := NewUnitHandler(deps.Units, deps.Bookings)
	sourceHandler := NewSourceHandler(deps.Sources, deps.Units, deps.URLValidator)
	syncHandler := NewSyncHandler(deps.SyncRunner)
	inspectionHandler := NewInspectionHandler(deps.SourceList, deps.BookingCount)
	availabilityHandler := NewAvailabilityHandler(deps.Units, deps.Bookings)
	healthHandler := NewHealthHandler(deps.DB)

	// --- 監視用ルート（レート制限の対象外） ---

	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// --- 宿泊客向けルート ---

	r.Get("/calendar/{slug}", availabilityHandler.GetAvailability)

	// --- 操作APIルート ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ユニット管理
		r.Route("/api/units", func(r chi.Router) {
			r.Get("/", unitHandler.ListUnits)
			r.Post("/", unitHandler.CreateUnit)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", unitHandler.GetUnit)
				r.Get("/bookings", unitHandler.ListBookings)
				r.Get("/sources", sourceHandler.ListSources)
			})
		})

		// ソース管理
		r.Route("/api/sources", func(r chi.Router) {
			r.Post("/", sourceHandler.CreateSource)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sourceHandler.GetSource)
				r.Patch("/", sourceHandler.UpdateSource)
				r.Delete("/", sourceHandler.DeleteSource)
			})
		})

		// 診断
		r.Get("/api/inspection", inspectionHandler.Inspect)

		// 手動同期（専用レート制限を追加）
		r.With(deps.RateLimiter.SyncMiddleware()).Post("/api/sync", syncHandler.RunSync)
	})

	return r
}
