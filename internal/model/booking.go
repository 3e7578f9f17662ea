// Package model はドメインモデルを定義する。
package model

import "time"

// Booking は予約レコードを表す。
// 同一Source内でExternalUIDが一意（tombstone除く）という不変条件を持ち、
// DBの部分ユニークインデックスでも保証される。
// 物理削除は同期処理では行わず、DeletedAtによるソフトデリートのみ行う。
type Booking struct {
	ID          string
	UnitID      string
	SourceID    string
	ExternalUID string
	CheckIn     time.Time // 日付のみ有効（時刻は常に00:00 UTC）
	CheckOut    time.Time // 日付のみ有効（時刻は常に00:00 UTC）
	Summary     string
	Description string
	MissCount   int
	LastSeenAt  time.Time
	DeletedAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsDeleted はソフトデリート済みかどうかを返す。
func (b *Booking) IsDeleted() bool {
	return b.DeletedAt != nil
}

// ParsedEvent はフィードのパース結果として得られる予約イベント。
// 同期実行ごとに生成される一時データで、永続化されない。
// CheckIn/CheckOutは暦日に正規化済み（時刻情報は破棄される）。
type ParsedEvent struct {
	UID         string
	CheckIn     time.Time
	CheckOut    time.Time
	Summary     string
	Description string
}
