package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/hitoshi/staysync/internal/model"
	"github.com/hitoshi/staysync/internal/trigger"
)

// SyncStarter は手動バッチ同期の起動インターフェース。
type SyncStarter interface {
	Run(ctx context.Context) (*model.BatchResult, error)
}

// SyncHandler は手動同期のHTTPハンドラー。
// 定期実行・リクエスト契機と同じゲートを通るため、実行中のバッチに
// 割り込むことはできない。
type SyncHandler struct {
	runner SyncStarter
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(runner SyncStarter) *SyncHandler {
	return &SyncHandler{runner: runner}
}

// batchResultResponse はバッチ同期結果のAPIレスポンス。
type batchResultResponse struct {
	SourcesTotal  int     `json:"sources_total"`
	SourcesFailed int     `json:"sources_failed"`
	Total         int     `json:"total"`
	New           int     `json:"new"`
	Updated       int     `json:"updated"`
	Deleted       int     `json:"deleted"`
	Vanished      int     `json:"vanished"`
	DurationMs    float64 `json:"duration_ms"`
}

// RunSync はバッチ同期を同期的に実行し、結果を返す。
// 実行権を獲得できない場合は409を返す。
// POST /api/sync
func (h *SyncHandler) RunSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.Run(r.Context())
	if err != nil {
		if errors.Is(err, trigger.ErrDeclined) {
			writeAPIErrorResponse(w, http.StatusConflict, model.NewSyncInProgressError())
			return
		}
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, batchResultResponse{
		SourcesTotal:  result.SourcesTotal,
		SourcesFailed: result.SourcesFailed,
		Total:         result.Total,
		New:           result.New,
		Updated:       result.Updated,
		Deleted:       result.Deleted,
		Vanished:      result.Vanished,
		DurationMs:    float64(result.Duration.Milliseconds()),
	})
}
