package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/staysync/internal/model"
)

// PostgresBookingRepo はPostgreSQLを使用した予約リポジトリ。
type PostgresBookingRepo struct {
	db *sql.DB
	// ApplyReconciliationのトランザクション開始に使用する。
	// 通常はdbと同一だが、テストでは差し替え可能。
	beginner TxBeginner
}

// NewPostgresBookingRepo はPostgresBookingRepoを生成する。
func NewPostgresBookingRepo(db *sql.DB) *PostgresBookingRepo {
	return &PostgresBookingRepo{db: db, beginner: db}
}

// bookingColumns はbookingsテーブルのSELECT列。Scanの順序と一致させること。
const bookingColumns = `id, unit_id, source_id, external_uid, check_in, check_out,
	summary, description, miss_count, last_seen_at, deleted_at, created_at, updated_at`

// scanBooking は1行分の予約を読み取る。
func scanBooking(scan func(dest ...any) error) (*model.Booking, error) {
	booking := &model.Booking{}
	var deletedAt sql.NullTime

	err := scan(
		&booking.ID, &booking.UnitID, &booking.SourceID, &booking.ExternalUID,
		&booking.CheckIn, &booking.CheckOut,
		&booking.Summary, &booking.Description,
		&booking.MissCount, &booking.LastSeenAt, &deletedAt,
		&booking.CreatedAt, &booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if deletedAt.Valid {
		t := deletedAt.Time
		booking.DeletedAt = &t
	}
	return booking, nil
}

// ListActiveBySource は指定ソースのアクティブ（非tombstone）予約を返す。
func (r *PostgresBookingRepo) ListActiveBySource(ctx context.Context, sourceID string) ([]*model.Booking, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookingColumns+`
		 FROM bookings
		 WHERE source_id = $1 AND deleted_at IS NULL
		 ORDER BY check_in ASC`,
		sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("アクティブ予約の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("アクティブ予約の読み取りに失敗しました: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アクティブ予約の走査に失敗しました: %w", err)
	}
	return bookings, nil
}

// ListByUnit は指定ユニットの予約をチェックイン日昇順で返す。
func (r *PostgresBookingRepo) ListByUnit(ctx context.Context, unitID string, includeDeleted bool) ([]*model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE unit_id = $1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY check_in ASC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, unitID)
	if err != nil {
		return nil, fmt.Errorf("予約一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		booking, err := scanBooking(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("予約一覧の読み取りに失敗しました: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("予約一覧の走査に失敗しました: %w", err)
	}
	return bookings, nil
}

// CountBySource は指定ソースのアクティブ数とtombstone数を返す。
func (r *PostgresBookingRepo) CountBySource(ctx context.Context, sourceID string) (int, int, error) {
	var active, deleted int
	err := r.db.QueryRowContext(ctx,
		`SELECT
		    count(*) FILTER (WHERE deleted_at IS NULL),
		    count(*) FILTER (WHERE deleted_at IS NOT NULL)
		 FROM bookings WHERE source_id = $1`,
		sourceID,
	).Scan(&active, &deleted)
	if err != nil {
		return 0, 0, fmt.Errorf("予約件数の集計に失敗しました: %w", err)
	}
	return active, deleted, nil
}

// ApplyReconciliation は照合結果を単一トランザクションで適用する。
// 新規作成・上書き更新・再確認・ミス加算・ソフトデリートのいずれかが失敗した場合、
// このソースの変更は全てロールバックされる。
func (r *PostgresBookingRepo) ApplyReconciliation(ctx context.Context, changes ReconcileChanges) error {
	tx, err := r.beginner.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, booking := range changes.Creates {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO bookings (id, unit_id, source_id, external_uid, check_in, check_out,
			                       summary, description, miss_count, last_seen_at,
			                       created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11)`,
			booking.ID, booking.UnitID, booking.SourceID, booking.ExternalUID,
			booking.CheckIn, booking.CheckOut,
			booking.Summary, booking.Description,
			changes.Now, changes.Now, changes.Now,
		)
		if err != nil {
			return fmt.Errorf("予約の作成に失敗しました (uid=%s): %w", booking.ExternalUID, err)
		}
	}

	for _, booking := range changes.Updates {
		_, err := tx.ExecContext(ctx,
			`UPDATE bookings SET
			    check_in = $2, check_out = $3, summary = $4, description = $5,
			    miss_count = 0, last_seen_at = $6, updated_at = $6
			 WHERE id = $1`,
			booking.ID, booking.CheckIn, booking.CheckOut,
			booking.Summary, booking.Description, changes.Now,
		)
		if err != nil {
			return fmt.Errorf("予約の更新に失敗しました (id=%s): %w", booking.ID, err)
		}
	}

	if len(changes.SeenIDs) > 0 {
		_, err := tx.ExecContext(ctx,
			`UPDATE bookings SET miss_count = 0, last_seen_at = $2, updated_at = $2
			 WHERE id = ANY($1)`,
			pq.Array(changes.SeenIDs), changes.Now,
		)
		if err != nil {
			return fmt.Errorf("予約の再確認記録に失敗しました: %w", err)
		}
	}

	if len(changes.MissIDs) > 0 {
		_, err := tx.ExecContext(ctx,
			`UPDATE bookings SET miss_count = miss_count + 1, updated_at = $2
			 WHERE id = ANY($1)`,
			pq.Array(changes.MissIDs), changes.Now,
		)
		if err != nil {
			return fmt.Errorf("消失カウントの加算に失敗しました: %w", err)
		}
	}

	if len(changes.SoftDeleteIDs) > 0 {
		_, err := tx.ExecContext(ctx,
			`UPDATE bookings SET miss_count = miss_count + 1, deleted_at = $2, updated_at = $2
			 WHERE id = ANY($1)`,
			pq.Array(changes.SoftDeleteIDs), changes.Now,
		)
		if err != nil {
			return fmt.Errorf("予約のソフトデリートに失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("照合結果のコミットに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ BookingRepository = (*PostgresBookingRepo)(nil)
