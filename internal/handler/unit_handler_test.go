package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/staysync/internal/model"
)

// --- モック定義 ---

// mockUnitStore はUnitStoreのテスト用モック。
type mockUnitStore struct {
	findByIDFunc   func(ctx context.Context, id string) (*model.Unit, error)
	findBySlugFunc func(ctx context.Context, slug string) (*model.Unit, error)
	listFunc       func(ctx context.Context) ([]*model.Unit, error)
	createFunc     func(ctx context.Context, unit *model.Unit) error
}

func (m *mockUnitStore) FindByID(ctx context.Context, id string) (*model.Unit, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockUnitStore) FindBySlug(ctx context.Context, slug string) (*model.Unit, error) {
	if m.findBySlugFunc != nil {
		return m.findBySlugFunc(ctx, slug)
	}
	return nil, nil
}

func (m *mockUnitStore) List(ctx context.Context) ([]*model.Unit, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

func (m *mockUnitStore) Create(ctx context.Context, unit *model.Unit) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, unit)
	}
	return nil
}

// mockBookingLister はUnitBookingListerのテスト用モック。
type mockBookingLister struct {
	listByUnitFunc func(ctx context.Context, unitID string, includeDeleted bool) ([]*model.Booking, error)
}

func (m *mockBookingLister) ListByUnit(ctx context.Context, unitID string, includeDeleted bool) ([]*model.Booking, error) {
	if m.listByUnitFunc != nil {
		return m.listByUnitFunc(ctx, unitID, includeDeleted)
	}
	return nil, nil
}

func testUnit() *model.Unit {
	return &model.Unit{
		ID:        "unit-1",
		Name:      "海辺のコテージ",
		Slug:      "seaside-cottage",
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// newUnitRouter はユニット関連ルートを構成したテスト用ルーターを返す。
func newUnitRouter(h *UnitHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/units", h.ListUnits)
	r.Post("/api/units", h.CreateUnit)
	r.Get("/api/units/{id}", h.GetUnit)
	r.Get("/api/units/{id}/bookings", h.ListBookings)
	return r
}

// --- ユニットハンドラーのテスト ---

func TestListUnits_ReturnsUnits(t *testing.T) {
	units := &mockUnitStore{
		listFunc: func(ctx context.Context) ([]*model.Unit, error) {
			return []*model.Unit{testUnit()}, nil
		},
	}
	router := newUnitRouter(NewUnitHandler(units, &mockBookingLister{}))

	req := httptest.NewRequest(http.MethodGet, "/api/units", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp []unitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if len(resp) != 1 || resp[0].Slug != "seaside-cottage" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCreateUnit_Success(t *testing.T) {
	var created *model.Unit
	units := &mockUnitStore{
		createFunc: func(ctx context.Context, unit *model.Unit) error {
			created = unit
			return nil
		},
	}
	router := newUnitRouter(NewUnitHandler(units, &mockBookingLister{}))

	body := `{"name":"山小屋","slug":"mountain-hut","notes":"2階建て"}`
	req := httptest.NewRequest(http.MethodPost, "/api/units", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if created == nil {
		t.Fatal("ユニットが作成されていない")
	}
	if created.ID == "" {
		t.Error("IDが生成されていない")
	}
	if created.Slug != "mountain-hut" {
		t.Errorf("Slug = %q", created.Slug)
	}
	// INSERTは構造体の値をそのまま書き込むため、ゼロ値タイムスタンプは
	// 0001-01-01として永続化されてしまう
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Errorf("タイムスタンプが刻印されていない: created_at=%v updated_at=%v",
			created.CreatedAt, created.UpdatedAt)
	}
}

func TestCreateUnit_DuplicateSlug_Returns409(t *testing.T) {
	units := &mockUnitStore{
		findBySlugFunc: func(ctx context.Context, slug string) (*model.Unit, error) {
			return testUnit(), nil
		},
	}
	router := newUnitRouter(NewUnitHandler(units, &mockBookingLister{}))

	body := `{"name":"別のコテージ","slug":"seaside-cottage"}`
	req := httptest.NewRequest(http.MethodPost, "/api/units", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	var resp apiErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if resp.Code != model.ErrCodeDuplicateSlug {
		t.Errorf("Code = %q, want %q", resp.Code, model.ErrCodeDuplicateSlug)
	}
}

func TestCreateUnit_InvalidSlug_Returns400(t *testing.T) {
	router := newUnitRouter(NewUnitHandler(&mockUnitStore{}, &mockBookingLister{}))

	for _, slug := range []string{"", "UPPER", "with space", "日本語", "-leading", "trailing-"} {
		body, _ := json.Marshal(map[string]string{"name": "テスト", "slug": slug})
		req := httptest.NewRequest(http.MethodPost, "/api/units", strings.NewReader(string(body)))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("slug %q: status = %d, want 400", slug, rec.Code)
		}
	}
}

func TestCreateUnit_EmptyName_Returns400(t *testing.T) {
	router := newUnitRouter(NewUnitHandler(&mockUnitStore{}, &mockBookingLister{}))

	body := `{"name":"  ","slug":"valid-slug"}`
	req := httptest.NewRequest(http.MethodPost, "/api/units", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetUnit_NotFound_Returns404(t *testing.T) {
	router := newUnitRouter(NewUnitHandler(&mockUnitStore{}, &mockBookingLister{}))

	req := httptest.NewRequest(http.MethodGet, "/api/units/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListBookings_FormatsDates(t *testing.T) {
	units := &mockUnitStore{
		findByIDFunc: func(ctx context.Context, id string) (*model.Unit, error) {
			return testUnit(), nil
		},
	}
	bookings := &mockBookingLister{
		listByUnitFunc: func(ctx context.Context, unitID string, includeDeleted bool) ([]*model.Booking, error) {
			return []*model.Booking{
				{
					ID:          "b-1",
					SourceID:    "src-1",
					ExternalUID: "uid-1",
					CheckIn:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
					CheckOut:    time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
					Summary:     "Reserved",
				},
			}, nil
		},
	}
	router := newUnitRouter(NewUnitHandler(units, bookings))

	req := httptest.NewRequest(http.MethodGet, "/api/units/unit-1/bookings", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp []bookingResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("len(resp) = %d, want 1", len(resp))
	}
	if resp[0].CheckIn != "2025-06-01" || resp[0].CheckOut != "2025-06-05" {
		t.Errorf("CheckIn/CheckOut = %s/%s", resp[0].CheckIn, resp[0].CheckOut)
	}
}

func TestListBookings_IncludeDeletedQuery(t *testing.T) {
	units := &mockUnitStore{
		findByIDFunc: func(ctx context.Context, id string) (*model.Unit, error) {
			return testUnit(), nil
		},
	}

	var gotIncludeDeleted bool
	bookings := &mockBookingLister{
		listByUnitFunc: func(ctx context.Context, unitID string, includeDeleted bool) ([]*model.Booking, error) {
			gotIncludeDeleted = includeDeleted
			return nil, nil
		},
	}
	router := newUnitRouter(NewUnitHandler(units, bookings))

	req := httptest.NewRequest(http.MethodGet, "/api/units/unit-1/bookings?include_deleted=1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if !gotIncludeDeleted {
		t.Error("include_deleted=1がリポジトリへ伝播していない")
	}
}
