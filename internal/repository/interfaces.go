// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/staysync/internal/model"
)

// UnitRepository はユニット（貸出単位）データの永続化インターフェース。
type UnitRepository interface {
	// FindByID は指定IDのユニットを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Unit, error)

	// FindBySlug はスラッグでユニットを検索する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Unit, error)

	// List は全ユニットを作成日時昇順で返す。
	List(ctx context.Context) ([]*model.Unit, error)

	// Create はユニットを作成する。
	Create(ctx context.Context, unit *model.Unit) error
}

// SourceRepository はカレンダーソースデータの永続化インターフェース。
type SourceRepository interface {
	// FindByID は指定IDのソースを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Source, error)

	// ListByUnit は指定ユニットのソース一覧を返す。
	ListByUnit(ctx context.Context, unitID string) ([]*model.Source, error)

	// ListWithUnit は全ソースをユニット情報付きで返す。診断APIで使用される。
	ListWithUnit(ctx context.Context) ([]*model.SourceWithUnit, error)

	// ListDueForSync は同期対象のソースを返す。
	// enabled = true かつ（未同期、または last_synced_at + sync_interval が経過済み）
	// のソースがユニット情報付きで対象となる。
	ListDueForSync(ctx context.Context) ([]*model.SourceWithUnit, error)

	// Create はソースを作成する。
	Create(ctx context.Context, source *model.Source) error

	// Update はソースの設定フィールド（名称・URL・有効フラグ・間隔）を更新する。
	// 同期状態フィールドは更新しない。
	Update(ctx context.Context, source *model.Source) error

	// Delete は指定IDのソースを削除する。
	Delete(ctx context.Context, id string) error

	// UpdateSyncState はソースの同期状態を更新する。
	// last_synced_at、last_sync_status、last_sync_error、consecutive_errors、
	// last_sync_stats を更新する。呼び出し元はOrchestratorに限られる。
	UpdateSyncState(ctx context.Context, source *model.Source) error
}

// ReconcileChanges は1つのSourceの照合で確定した変更の集合。
// ApplyReconciliationが単一トランザクションで適用する。
type ReconcileChanges struct {
	SourceID string
	// Creates は新規作成する予約。
	Creates []*model.Booking
	// Updates は日付・サマリーを上書き更新する予約。
	Updates []*model.Booking
	// SeenIDs は変更なしで再確認された予約のID。miss_countがリセットされる。
	SeenIDs []string
	// MissIDs は今回フィードに現れなかった予約のID。miss_countが加算される。
	MissIDs []string
	// SoftDeleteIDs はミス閾値に到達しソフトデリートする予約のID。
	SoftDeleteIDs []string
	// Now は全変更に適用するタイムスタンプ。
	Now time.Time
}

// BookingRepository は予約データの永続化インターフェース。
type BookingRepository interface {
	// ListActiveBySource は指定ソースのアクティブ（非tombstone）予約を返す。
	ListActiveBySource(ctx context.Context, sourceID string) ([]*model.Booking, error)

	// ListByUnit は指定ユニットの予約をチェックイン日昇順で返す。
	// includeDeletedがtrueの場合はtombstoneも含む。
	ListByUnit(ctx context.Context, unitID string, includeDeleted bool) ([]*model.Booking, error)

	// CountBySource は指定ソースのアクティブ数とtombstone数を返す。
	CountBySource(ctx context.Context, sourceID string) (active int, deleted int, err error)

	// ApplyReconciliation は照合結果を単一トランザクションで適用する。
	// 途中で失敗した場合は全変更がロールバックされる。
	ApplyReconciliation(ctx context.Context, changes ReconcileChanges) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
