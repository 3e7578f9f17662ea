package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/staysync/internal/model"
)

// PostgresBookingRepoはBookingRepositoryインターフェースを満たすことを検証
func TestPostgresBookingRepo_ImplementsInterface(t *testing.T) {
	var _ BookingRepository = (*PostgresBookingRepo)(nil)
}

// NewPostgresBookingRepoが正しく初期化されることを検証
func TestNewPostgresBookingRepo_Initializes(t *testing.T) {
	repo := NewPostgresBookingRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// Bookingモデルのフィールドが正しく構築されることを検証
func TestBookingModel_Fields(t *testing.T) {
	booking := &model.Booking{
		ID:          "bk-1",
		UnitID:      "unit-1",
		SourceID:    "src-1",
		ExternalUID: "uid-123@airbnb.example",
		CheckIn:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CheckOut:    time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
		Summary:     "Reserved",
	}

	if booking.ExternalUID != "uid-123@airbnb.example" {
		t.Errorf("ExternalUID = %q", booking.ExternalUID)
	}
	if !booking.CheckOut.After(booking.CheckIn) {
		t.Error("CheckOutはCheckInより後であるべき")
	}
	if booking.DeletedAt != nil {
		t.Error("新規予約のDeletedAtはnilであるべき")
	}
}

// failingTxBeginner は常にトランザクション開始に失敗するTxBeginner実装。
type failingTxBeginner struct {
	err error
}

func (f *failingTxBeginner) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return nil, f.err
}

// トランザクションを開始できない場合、照合結果の適用前にエラーで中断されることを検証
func TestApplyReconciliation_BeginTxFailure_ReturnsError(t *testing.T) {
	beginErr := errors.New("connection refused")
	repo := &PostgresBookingRepo{
		beginner: &failingTxBeginner{err: beginErr},
	}

	err := repo.ApplyReconciliation(context.Background(), ReconcileChanges{
		SourceID: "src-1",
		SeenIDs:  []string{"bk-1"},
		Now:      time.Now(),
	})
	if err == nil {
		t.Fatal("トランザクション開始失敗でエラーが返らなかった")
	}
	if !errors.Is(err, beginErr) {
		t.Errorf("原因エラーがラップされていない: %v", err)
	}
}

// ReconcileChangesがゼロ値で空の変更集合になることを検証
func TestReconcileChanges_ZeroValue(t *testing.T) {
	var changes ReconcileChanges

	total := len(changes.Creates) + len(changes.Updates) +
		len(changes.SeenIDs) + len(changes.MissIDs) + len(changes.SoftDeleteIDs)
	if total != 0 {
		t.Errorf("ゼロ値の変更集合に%d件の変更が含まれる", total)
	}
}
