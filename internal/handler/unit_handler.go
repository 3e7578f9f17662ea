package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/staysync/internal/model"
)

// UnitStore はユニットハンドラーが必要とする永続化インターフェース。
type UnitStore interface {
	FindByID(ctx context.Context, id string) (*model.Unit, error)
	FindBySlug(ctx context.Context, slug string) (*model.Unit, error)
	List(ctx context.Context) ([]*model.Unit, error)
	Create(ctx context.Context, unit *model.Unit) error
}

// UnitBookingLister はユニット配下の予約一覧取得のインターフェース。
type UnitBookingLister interface {
	ListByUnit(ctx context.Context, unitID string, includeDeleted bool) ([]*model.Booking, error)
}

// UnitHandler はユニット管理のHTTPハンドラー。
type UnitHandler struct {
	units    UnitStore
	bookings UnitBookingLister
}

// NewUnitHandler はUnitHandlerを生成する。
func NewUnitHandler(units UnitStore, bookings UnitBookingLister) *UnitHandler {
	return &UnitHandler{
		units:    units,
		bookings: bookings,
	}
}

// slugPattern はスラッグとして許可される形式。
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// createUnitRequest はユニット作成リクエストのボディ。
type createUnitRequest struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Notes string `json:"notes"`
}

// unitResponse はユニット情報のAPIレスポンス。
type unitResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// bookingResponse は予約情報のAPIレスポンス。
type bookingResponse struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"source_id"`
	ExternalUID string     `json:"external_uid"`
	CheckIn     string     `json:"check_in"`
	CheckOut    string     `json:"check_out"`
	Summary     string     `json:"summary,omitempty"`
	Description string     `json:"description,omitempty"`
	MissCount   int        `json:"miss_count"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// ListUnits はユニット一覧を返す。
// GET /api/units
func (h *UnitHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.units.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]unitResponse, 0, len(units))
	for _, unit := range units {
		resp = append(resp, toUnitResponse(unit))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateUnit はユニットを作成する。
// POST /api/units
func (h *UnitHandler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var req createUnitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyResponse(w)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Slug = strings.TrimSpace(req.Slug)
	if req.Name == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("ユニット名が空です"))
		return
	}
	if !slugPattern.MatchString(req.Slug) {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("スラッグは英小文字・数字・ハイフンのみ使用できます"))
		return
	}

	existing, err := h.units.FindBySlug(r.Context(), req.Slug)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if existing != nil {
		writeAPIErrorResponse(w, http.StatusConflict, model.NewDuplicateSlugError(req.Slug))
		return
	}

	// INSERTは構造体のタイムスタンプをそのまま書き込むため、ここで刻印する
	now := time.Now()
	unit := &model.Unit{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Slug:      req.Slug,
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.units.Create(r.Context(), unit); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUnitResponse(unit))
}

// GetUnit はユニット詳細を返す。
// GET /api/units/:id
func (h *UnitHandler) GetUnit(w http.ResponseWriter, r *http.Request) {
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

	writeJSON(w, http.StatusOK, toUnitResponse(unit))
}

// ListBookings はユニットの予約一覧を返す。
// include_deleted=1を指定するとtombstoneも含まれる。
// GET /api/units/:id/bookings
func (h *UnitHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
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

	includeDeleted := r.URL.Query().Get("include_deleted") == "1"
	bookings, err := h.bookings.ListByUnit(r.Context(), unitID, includeDeleted)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]bookingResponse, 0, len(bookings))
	for _, booking := range bookings {
		resp = append(resp, toBookingResponse(booking))
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- ヘルパー関数 ---

// toUnitResponse はmodel.UnitからAPIレスポンスに変換する。
func toUnitResponse(unit *model.Unit) unitResponse {
	return unitResponse{
		ID:        unit.ID,
		Name:      unit.Name,
		Slug:      unit.Slug,
		Notes:     unit.Notes,
		CreatedAt: unit.CreatedAt,
	}
}

// toBookingResponse はmodel.BookingからAPIレスポンスに変換する。
// チェックイン/チェックアウトは暦日のみを持つため日付形式で返す。
func toBookingResponse(booking *model.Booking) bookingResponse {
	return bookingResponse{
		ID:          booking.ID,
		SourceID:    booking.SourceID,
		ExternalUID: booking.ExternalUID,
		CheckIn:     booking.CheckIn.Format("2006-01-02"),
		CheckOut:    booking.CheckOut.Format("2006-01-02"),
		Summary:     booking.Summary,
		Description: booking.Description,
		MissCount:   booking.MissCount,
		LastSeenAt:  booking.LastSeenAt,
		DeletedAt:   booking.DeletedAt,
	}
}
