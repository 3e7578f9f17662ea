// Package model はドメインモデルを定義する。
package model

import "time"

// Source はUnitに紐づく外部カレンダーフィード（iCal URL）を表す。
// 同期状態フィールド（LastSyncedAt以下）はOrchestratorのみが更新する。
type Source struct {
	ID                  string
	UnitID              string
	Name                string
	FeedURL             string
	Enabled             bool
	SyncIntervalMinutes int
	LastSyncedAt        *time.Time
	LastSyncStatus      SyncStatus
	LastSyncError       string
	ConsecutiveErrors   int
	LastSyncStats       *SyncStats
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SyncStatus はSourceの直近の同期結果を表す。
type SyncStatus string

const (
	// SyncStatusNever は一度も同期されていない状態。
	SyncStatusNever SyncStatus = "never"
	// SyncStatusSuccess は直近の同期が成功した状態。
	SyncStatusSuccess SyncStatus = "success"
	// SyncStatusError は直近の同期が失敗した状態。
	SyncStatusError SyncStatus = "error"
)

// SourceWithUnit はSourceと所属Unitの名称を結合したモデル。
// 同期対象の列挙および診断APIで使用される。
type SourceWithUnit struct {
	Source
	UnitName string
	UnitSlug string
}
