package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/staysync/internal/model"
)

// UnitSlugFinder はスラッグによるユニット検索のインターフェース。
type UnitSlugFinder interface {
	FindBySlug(ctx context.Context, slug string) (*model.Unit, error)
}

// AvailabilityHandler は宿泊客向けの空室カレンダーHTTPハンドラー。
// このエンドポイントへのアクセスがtriggerミドルウェアの同期契機となる。
// 予約の占有日程のみを返し、サマリーなどフィード由来の内容は公開しない。
type AvailabilityHandler struct {
	units    UnitSlugFinder
	bookings UnitBookingLister
}

// NewAvailabilityHandler はAvailabilityHandlerを生成する。
func NewAvailabilityHandler(units UnitSlugFinder, bookings UnitBookingLister) *AvailabilityHandler {
	return &AvailabilityHandler{
		units:    units,
		bookings: bookings,
	}
}

// occupiedRange は占有日程。CheckOut日は退室日であり占有に含まれない。
type occupiedRange struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

// availabilityResponse は空室カレンダーのAPIレスポンス。
type availabilityResponse struct {
	UnitName string          `json:"unit_name"`
	UnitSlug string          `json:"unit_slug"`
	Occupied []occupiedRange `json:"occupied"`
}

// GetAvailability はユニットの占有日程一覧を返す。
// GET /calendar/:slug
func (h *AvailabilityHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	unit, err := h.units.FindBySlug(r.Context(), slug)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if unit == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUnitNotFoundError(slug))
		return
	}

	bookings, err := h.bookings.ListByUnit(r.Context(), unit.ID, false)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	occupied := make([]occupiedRange, 0, len(bookings))
	for _, booking := range bookings {
		occupied = append(occupied, occupiedRange{
			CheckIn:  booking.CheckIn.Format("2006-01-02"),
			CheckOut: booking.CheckOut.Format("2006-01-02"),
		})
	}

	writeJSON(w, http.StatusOK, availabilityResponse{
		UnitName: unit.Name,
		UnitSlug: unit.Slug,
		Occupied: occupied,
	})
}
