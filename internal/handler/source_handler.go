package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/staysync/internal/model"
)

// 同期間隔の許容範囲（分）。
const (
	minSyncIntervalMinutes     = 15
	maxSyncIntervalMinutes     = 1440
	defaultSyncIntervalMinutes = 60
)

// SourceStore はソースハンドラーが必要とする永続化インターフェース。
type SourceStore interface {
	FindByID(ctx context.Context, id string) (*model.Source, error)
	ListByUnit(ctx context.Context, unitID string) ([]*model.Source, error)
	Create(ctx context.Context, source *model.Source) error
	Update(ctx context.Context, source *model.Source) error
	Delete(ctx context.Context, id string) error
}

// UnitFinder はユニット存在確認のインターフェース。
type UnitFinder interface {
	FindByID(ctx context.Context, id string) (*model.Unit, error)
}

// FeedURLValidator はフィードURLの事前検証のインターフェース。
type FeedURLValidator interface {
	ValidateFeedURL(rawURL string) error
}

// SourceHandler はカレンダーソース管理のHTTPハンドラー。
// フィードURLは登録時と更新時にSSRF検証される。フェッチ実行時にも
// 再検証されるため、登録後にDNSが書き換えられても接続は防がれる。
type SourceHandler struct {
	sources   SourceStore
	units     UnitFinder
	validator FeedURLValidator
}

// NewSourceHandler はSourceHandlerを生成する。
func NewSourceHandler(sources SourceStore, units UnitFinder, validator FeedURLValidator) *SourceHandler {
	return &SourceHandler{
		sources:   sources,
		units:     units,
		validator: validator,
	}
}

// createSourceRequest はソース作成リクエストのボディ。
type createSourceRequest struct {
	UnitID              string `json:"unit_id"`
	Name                string `json:"name"`
	FeedURL             string `json:"feed_url"`
	SyncIntervalMinutes int    `json:"sync_interval_minutes"`
}

// updateSourceRequest はソース更新リクエストのボディ。
// nilのフィールドは変更しない。
type updateSourceRequest struct {
	Name                *string `json:"name"`
	FeedURL             *string `json:"feed_url"`
	Enabled             *bool   `json:"enabled"`
	SyncIntervalMinutes *int    `json:"sync_interval_minutes"`
}

// sourceResponse はソース情報のAPIレスポンス。
type sourceResponse struct {
	ID                  string           `json:"id"`
	UnitID              string           `json:"unit_id"`
	Name                string           `json:"name"`
	FeedURL             string           `json:"feed_url"`
	Enabled             bool             `json:"enabled"`
	SyncIntervalMinutes int              `json:"sync_interval_minutes"`
	LastSyncedAt        *time.Time       `json:"last_synced_at,omitempty"`
	LastSyncStatus      string           `json:"last_sync_status"`
	LastSyncError       string           `json:"last_sync_error,omitempty"`
	ConsecutiveErrors   int              `json:"consecutive_errors"`
	LastSyncStats       *model.SyncStats `json:"last_sync_stats,omitempty"`
}

// CreateSource はソースを登録する。
// POST /api/sources
func (h *SourceHandler) CreateSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyResponse(w)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("ソース名が空です"))
		return
	}

	unit, err := h.units.FindByID(r.Context(), req.UnitID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if unit == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUnitNotFoundError(req.UnitID))
		return
	}

	if apiErr := h.validateFeedURL(req.FeedURL); apiErr != nil {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	interval := req.SyncIntervalMinutes
	if interval == 0 {
		interval = defaultSyncIntervalMinutes
	}
	if interval < minSyncIntervalMinutes || interval > maxSyncIntervalMinutes {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidSyncIntervalError(interval))
		return
	}

	// INSERTは構造体のタイムスタンプをそのまま書き込むため、ここで刻印する
	now := time.Now()
	source := &model.Source{
		ID:                  uuid.NewString(),
		UnitID:              req.UnitID,
		Name:                req.Name,
		FeedURL:             req.FeedURL,
		Enabled:             true,
		SyncIntervalMinutes: interval,
		LastSyncStatus:      model.SyncStatusNever,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := h.sources.Create(r.Context(), source); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSourceResponse(source))
}

// ListSources はユニット配下のソース一覧を返す。
// GET /api/units/:id/sources
func (h *SourceHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "id")

	unit, err := h.units.FindByID(r.Context(), unitID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if unit == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUnitNotFoundError(unitID))
		return
	}

	sources, err := h.sources.ListByUnit(r.Context(), unitID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]sourceResponse, 0, len(sources))
	for _, source := range sources {
		resp = append(resp, toSourceResponse(source))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSource はソース詳細を返す。
// GET /api/sources/:id
func (h *SourceHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "id")

	source, err := h.sources.FindByID(r.Context(), sourceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if source == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewSourceNotFoundError(sourceID))
		return
	}

	writeJSON(w, http.StatusOK, toSourceResponse(source))
}

// UpdateSource はソースの設定を更新する。
// PATCH /api/sources/:id
func (h *SourceHandler) UpdateSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "id")

	source, err := h.sources.FindByID(r.Context(), sourceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if source == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewSourceNotFoundError(sourceID))
		return
	}

	var req updateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyResponse(w)
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("ソース名が空です"))
			return
		}
		source.Name = name
	}
	if req.FeedURL != nil {
		if apiErr := h.validateFeedURL(*req.FeedURL); apiErr != nil {
			writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
			return
		}
		source.FeedURL = *req.FeedURL
	}
	if req.Enabled != nil {
		source.Enabled = *req.Enabled
	}
	if req.SyncIntervalMinutes != nil {
		interval := *req.SyncIntervalMinutes
		if interval < minSyncIntervalMinutes || interval > maxSyncIntervalMinutes {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidSyncIntervalError(interval))
			return
		}
		source.SyncIntervalMinutes = interval
	}

	source.UpdatedAt = time.Now()
	if err := h.sources.Update(r.Context(), source); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSourceResponse(source))
}

// DeleteSource はソースを削除する。
// DELETE /api/sources/:id
func (h *SourceHandler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "id")

	source, err := h.sources.FindByID(r.Context(), sourceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if source == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewSourceNotFoundError(sourceID))
		return
	}

	if err := h.sources.Delete(r.Context(), sourceID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// validateFeedURL はフィードURLを検証し、問題があればAPIErrorを返す。
func (h *SourceHandler) validateFeedURL(rawURL string) *model.APIError {
	if strings.TrimSpace(rawURL) == "" {
		return model.NewInvalidURLError("URLが空です")
	}
	if err := h.validator.ValidateFeedURL(rawURL); err != nil {
		if strings.Contains(err.Error(), "blocked") {
			return model.NewSSRFBlockedError()
		}
		return model.NewInvalidURLError(err.Error())
	}
	return nil
}

// toSourceResponse はmodel.SourceからAPIレスポンスに変換する。
func toSourceResponse(source *model.Source) sourceResponse {
	return sourceResponse{
		ID:                  source.ID,
		UnitID:              source.UnitID,
		Name:                source.Name,
		FeedURL:             source.FeedURL,
		Enabled:             source.Enabled,
		SyncIntervalMinutes: source.SyncIntervalMinutes,
		LastSyncedAt:        source.LastSyncedAt,
		LastSyncStatus:      string(source.LastSyncStatus),
		LastSyncError:       source.LastSyncError,
		ConsecutiveErrors:   source.ConsecutiveErrors,
		LastSyncStats:       source.LastSyncStats,
	}
}
