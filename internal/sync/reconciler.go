// Package sync は予約同期パイプライン（照合・単一ソース同期・バッチ調整）を提供する。
package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/staysync/internal/model"
	"github.com/hitoshi/staysync/internal/repository"
)

// Reconciler はパース済みイベントと既存予約の照合計画を作成する。
// 計画の作成は純粋な差分計算であり、永続化はBookingRepositoryの
// ApplyReconciliationが単一トランザクションで行う。
//
// 照合はSource単位で閉じる。あるSourceの照合が他のSourceの予約に
// 影響することはない。
type Reconciler struct {
	vanishThreshold int
}

// NewReconciler はReconcilerの新しいインスタンスを生成する。
// vanishThresholdはフィードから消失した予約をソフトデリートするまでの
// 連続ミス回数。1以下の場合は1（初回のミスで即削除）を使用する。
func NewReconciler(vanishThreshold int) *Reconciler {
	if vanishThreshold < 1 {
		vanishThreshold = 1
	}
	return &Reconciler{vanishThreshold: vanishThreshold}
}

// Plan は既存のアクティブ予約とパース済みイベントを突き合わせ、
// 適用すべき変更の集合を返す。
//
//   - フィードに現れたUIDが既存に無い → 新規作成
//   - 既存と一致するが日付・サマリー・説明が変わった → 上書き更新
//   - 既存と完全一致 → 再確認（miss_countリセットのみ）
//   - 既存にあるがフィードに現れない → ミス加算、閾値到達でソフトデリート
//
// tombstone（ソフトデリート済み予約）はexistingに含まれない前提であり、
// 同一UIDが再出現した場合は新規予約として作成される。
func (r *Reconciler) Plan(
	source *model.SourceWithUnit,
	existing []*model.Booking,
	events []model.ParsedEvent,
	now time.Time,
) repository.ReconcileChanges {
	changes := repository.ReconcileChanges{
		SourceID: source.ID,
		Now:      now,
	}

	existingByUID := make(map[string]*model.Booking, len(existing))
	for _, booking := range existing {
		existingByUID[booking.ExternalUID] = booking
	}

	seen := make(map[string]bool, len(events))
	for _, event := range events {
		seen[event.UID] = true

		booking, exists := existingByUID[event.UID]
		if !exists {
			changes.Creates = append(changes.Creates, &model.Booking{
				ID:          uuid.NewString(),
				UnitID:      source.UnitID,
				SourceID:    source.ID,
				ExternalUID: event.UID,
				CheckIn:     event.CheckIn,
				CheckOut:    event.CheckOut,
				Summary:     event.Summary,
				Description: event.Description,
			})
			continue
		}

		if bookingChanged(booking, event) {
			updated := *booking
			updated.CheckIn = event.CheckIn
			updated.CheckOut = event.CheckOut
			updated.Summary = event.Summary
			updated.Description = event.Description
			changes.Updates = append(changes.Updates, &updated)
			continue
		}

		changes.SeenIDs = append(changes.SeenIDs, booking.ID)
	}

	for _, booking := range existing {
		if seen[booking.ExternalUID] {
			continue
		}
		if booking.MissCount+1 >= r.vanishThreshold {
			changes.SoftDeleteIDs = append(changes.SoftDeleteIDs, booking.ID)
			continue
		}
		changes.MissIDs = append(changes.MissIDs, booking.ID)
	}

	return changes
}

// bookingChanged は予約内容がイベントと異なるかどうかを返す。
func bookingChanged(booking *model.Booking, event model.ParsedEvent) bool {
	return !booking.CheckIn.Equal(event.CheckIn) ||
		!booking.CheckOut.Equal(event.CheckOut) ||
		booking.Summary != event.Summary ||
		booking.Description != event.Description
}
