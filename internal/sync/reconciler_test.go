package sync

import (
	"testing"
	"time"

	"github.com/hitoshi/staysync/internal/model"
)

func testSource() *model.SourceWithUnit {
	return &model.SourceWithUnit{
		Source: model.Source{
			ID:     "src-1",
			UnitID: "unit-1",
			Name:   "Airbnb",
		},
		UnitName: "海辺のコテージ",
		UnitSlug: "seaside-cottage",
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func activeBooking(id, uid string, checkIn, checkOut time.Time, summary string, missCount int) *model.Booking {
	return &model.Booking{
		ID:          id,
		UnitID:      "unit-1",
		SourceID:    "src-1",
		ExternalUID: uid,
		CheckIn:     checkIn,
		CheckOut:    checkOut,
		Summary:     summary,
		MissCount:   missCount,
	}
}

func TestPlan_NewEvent_CreatesBooking(t *testing.T) {
	r := NewReconciler(1)
	now := time.Now()

	events := []model.ParsedEvent{
		{UID: "uid-1", CheckIn: day(2025, 6, 1), CheckOut: day(2025, 6, 5), Summary: "Reserved"},
	}

	changes := r.Plan(testSource(), nil, events, now)

	if len(changes.Creates) != 1 {
		t.Fatalf("Creates = %d, want 1", len(changes.Creates))
	}
	created := changes.Creates[0]
	if created.ID == "" {
		t.Error("新規予約のIDが生成されていない")
	}
	if created.UnitID != "unit-1" || created.SourceID != "src-1" {
		t.Errorf("UnitID/SourceID = %s/%s", created.UnitID, created.SourceID)
	}
	if created.ExternalUID != "uid-1" {
		t.Errorf("ExternalUID = %q, want uid-1", created.ExternalUID)
	}
	if len(changes.Updates)+len(changes.SeenIDs)+len(changes.MissIDs)+len(changes.SoftDeleteIDs) != 0 {
		t.Error("新規作成以外の変更が計画された")
	}
}

func TestPlan_UnchangedEvent_MarkedSeen(t *testing.T) {
	r := NewReconciler(1)
	now := time.Now()

	existing := []*model.Booking{
		activeBooking("b-1", "uid-1", day(2025, 6, 1), day(2025, 6, 5), "Reserved", 0),
	}
	events := []model.ParsedEvent{
		{UID: "uid-1", CheckIn: day(2025, 6, 1), CheckOut: day(2025, 6, 5), Summary: "Reserved"},
	}

	changes := r.Plan(testSource(), existing, events, now)

	if len(changes.SeenIDs) != 1 || changes.SeenIDs[0] != "b-1" {
		t.Fatalf("SeenIDs = %v, want [b-1]", changes.SeenIDs)
	}
	if len(changes.Creates)+len(changes.Updates)+len(changes.MissIDs)+len(changes.SoftDeleteIDs) != 0 {
		t.Error("再確認以外の変更が計画された")
	}
}

func TestPlan_ChangedDates_PlansUpdate(t *testing.T) {
	r := NewReconciler(1)
	now := time.Now()

	existing := []*model.Booking{
		activeBooking("b-1", "uid-1", day(2025, 6, 1), day(2025, 6, 5), "Reserved", 0),
	}
	events := []model.ParsedEvent{
		{UID: "uid-1", CheckIn: day(2025, 6, 1), CheckOut: day(2025, 6, 7), Summary: "Reserved"},
	}

	changes := r.Plan(testSource(), existing, events, now)

	if len(changes.Updates) != 1 {
		t.Fatalf("Updates = %d, want 1", len(changes.Updates))
	}
	updated := changes.Updates[0]
	if updated.ID != "b-1" {
		t.Errorf("更新対象ID = %q, want b-1", updated.ID)
	}
	if !updated.CheckOut.Equal(day(2025, 6, 7)) {
		t.Errorf("CheckOut = %v, want %v", updated.CheckOut, day(2025, 6, 7))
	}
}

func TestPlan_ChangedSummary_PlansUpdate(t *testing.T) {
	r := NewReconciler(1)
	now := time.Now()

	existing := []*model.Booking{
		activeBooking("b-1", "uid-1", day(2025, 6, 1), day(2025, 6, 5), "Reserved", 0),
	}
	events := []model.ParsedEvent{
		{UID: "uid-1", CheckIn: day(2025, 6, 1), CheckOut: day(2025, 6, 5), Summary: "Blocked"},
	}

	changes := r.Plan(testSource(), existing, events, now)

	if len(changes.Updates) != 1 {
		t.Fatalf("Updates = %d, want 1", len(changes.Updates))
	}
	if changes.Updates[0].Summary != "Blocked" {
		t.Errorf("Summary = %q, want Blocked", changes.Updates[0].Summary)
	}
}

func TestPlan_MissingEvent_ThresholdOne_SoftDeletesImmediately(t *testing.T) {
	r := NewReconciler(1)
	now := time.Now()

	existing := []*model.Booking{
		activeBooking("b-1", "uid-1", day(2025, 6, 1), day(2025, 6, 5), "Reserved", 0),
	}

	changes := r.Plan(testSource(), existing, nil, now)

	if len(changes.SoftDeleteIDs) != 1 || changes.SoftDeleteIDs[0] != "b-1" {
		t.Fatalf("SoftDeleteIDs = %v, want [b-1]", changes.SoftDeleteIDs)
	}
	if len(changes.MissIDs) != 0 {
		t.Errorf("MissIDs = %v, want empty", changes.MissIDs)
	}
}

func TestPlan_MissingEvent_BelowThreshold_RecordsMiss(t *testing.T) {
	r := NewReconciler(3)
	now := time.Now()

	existing := []*model.Booking{
		activeBooking("b-1", "uid-1", day(2025, 6, 1), day(2025, 6, 5), "Reserved", 0),
		activeBooking("b-2", "uid-2", day(2025, 7, 1), day(2025, 7, 5), "Reserved", 2),
	}

	changes := r.Plan(testSource(), existing, nil, now)

	// b-1は miss_count 0→1 で閾値3未満、b-2は 2→3 で閾値到達
	if len(changes.MissIDs) != 1 || changes.MissIDs[0] != "b-1" {
		t.Errorf("MissIDs = %v, want [b-1]", changes.MissIDs)
	}
	if len(changes.SoftDeleteIDs) != 1 || changes.SoftDeleteIDs[0] != "b-2" {
		t.Errorf("SoftDeleteIDs = %v, want [b-2]", changes.SoftDeleteIDs)
	}
}

func TestPlan_ReappearedEvent_ResetsViaSeen(t *testing.T) {
	r := NewReconciler(3)
	now := time.Now()

	// 2回連続ミスした予約がフィードに再出現したケース
	existing := []*model.Booking{
		activeBooking("b-1", "uid-1", day(2025, 6, 1), day(2025, 6, 5), "Reserved", 2),
	}
	events := []model.ParsedEvent{
		{UID: "uid-1", CheckIn: day(2025, 6, 1), CheckOut: day(2025, 6, 5), Summary: "Reserved"},
	}

	changes := r.Plan(testSource(), existing, events, now)

	if len(changes.SeenIDs) != 1 {
		t.Fatalf("SeenIDs = %v, want [b-1]", changes.SeenIDs)
	}
	if len(changes.SoftDeleteIDs) != 0 {
		t.Errorf("再出現した予約が削除対象になった: %v", changes.SoftDeleteIDs)
	}
}

func TestPlan_EmptyFeed_SoftDeletesAllAtThreshold(t *testing.T) {
	r := NewReconciler(1)
	now := time.Now()

	existing := []*model.Booking{
		activeBooking("b-1", "uid-1", day(2025, 6, 1), day(2025, 6, 5), "Reserved", 0),
		activeBooking("b-2", "uid-2", day(2025, 7, 1), day(2025, 7, 5), "Reserved", 0),
	}

	changes := r.Plan(testSource(), existing, nil, now)

	if len(changes.SoftDeleteIDs) != 2 {
		t.Fatalf("SoftDeleteIDs = %v, want 2 entries", changes.SoftDeleteIDs)
	}
}

func TestNewReconciler_ClampsThresholdToOne(t *testing.T) {
	r := NewReconciler(0)
	if r.vanishThreshold != 1 {
		t.Errorf("vanishThreshold = %d, want 1", r.vanishThreshold)
	}
}

func TestPlan_SetsSourceIDAndNow(t *testing.T) {
	r := NewReconciler(1)
	now := day(2025, 6, 1)

	changes := r.Plan(testSource(), nil, nil, now)

	if changes.SourceID != "src-1" {
		t.Errorf("SourceID = %q, want src-1", changes.SourceID)
	}
	if !changes.Now.Equal(now) {
		t.Errorf("Now = %v, want %v", changes.Now, now)
	}
}
