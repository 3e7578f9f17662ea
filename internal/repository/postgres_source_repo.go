package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/staysync/internal/model"
)

// PostgresSourceRepo はPostgreSQLを使用したカレンダーソースリポジトリ。
type PostgresSourceRepo struct {
	db *sql.DB
}

// NewPostgresSourceRepo はPostgresSourceRepoを生成する。
func NewPostgresSourceRepo(db *sql.DB) *PostgresSourceRepo {
	return &PostgresSourceRepo{db: db}
}

// sourceColumns はsourcesテーブルのSELECT列。Scanの順序と一致させること。
const sourceColumns = `id, unit_id, name, feed_url, enabled, sync_interval_minutes,
	last_synced_at, last_sync_status, last_sync_error, consecutive_errors,
	last_sync_stats, created_at, updated_at`

// scanSource は1行分のソースを読み取る。
func scanSource(scan func(dest ...any) error) (*model.Source, error) {
	source := &model.Source{}
	var lastSyncedAt sql.NullTime
	var lastSyncError sql.NullString
	var statsJSON []byte

	err := scan(
		&source.ID, &source.UnitID, &source.Name, &source.FeedURL,
		&source.Enabled, &source.SyncIntervalMinutes,
		&lastSyncedAt, &source.LastSyncStatus, &lastSyncError,
		&source.ConsecutiveErrors, &statsJSON,
		&source.CreatedAt, &source.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastSyncedAt.Valid {
		t := lastSyncedAt.Time
		source.LastSyncedAt = &t
	}
	source.LastSyncError = nullStringValue(lastSyncError)

	if len(statsJSON) > 0 {
		stats := &model.SyncStats{}
		if err := json.Unmarshal(statsJSON, stats); err != nil {
			return nil, fmt.Errorf("同期統計スナップショットの復元に失敗しました: %w", err)
		}
		source.LastSyncStats = stats
	}

	return source, nil
}

// FindByID は指定IDのソースを取得する。見つからない場合はnilを返す。
func (r *PostgresSourceRepo) FindByID(ctx context.Context, id string) (*model.Source, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = $1`, id)

	source, err := scanSource(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ソースの取得に失敗しました: %w", err)
	}
	return source, nil
}

// ListByUnit は指定ユニットのソース一覧を返す。
func (r *PostgresSourceRepo) ListByUnit(ctx context.Context, unitID string) ([]*model.Source, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE unit_id = $1 ORDER BY created_at ASC`,
		unitID,
	)
	if err != nil {
		return nil, fmt.Errorf("ソース一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sources []*model.Source
	for rows.Next() {
		source, err := scanSource(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ソース一覧の読み取りに失敗しました: %w", err)
		}
		sources = append(sources, source)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ソース一覧の走査に失敗しました: %w", err)
	}
	return sources, nil
}

// listWithUnitQuery はユニット情報付きソース取得の共通クエリを実行する。
func (r *PostgresSourceRepo) listWithUnitQuery(ctx context.Context, where string) ([]*model.SourceWithUnit, error) {
	query := `SELECT s.id, s.unit_id, s.name, s.feed_url, s.enabled, s.sync_interval_minutes,
		s.last_synced_at, s.last_sync_status, s.last_sync_error, s.consecutive_errors,
		s.last_sync_stats, s.created_at, s.updated_at,
		u.name, u.slug
	 FROM sources s
	 INNER JOIN units u ON u.id = s.unit_id ` + where

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*model.SourceWithUnit
	for rows.Next() {
		sw := &model.SourceWithUnit{}
		var lastSyncedAt sql.NullTime
		var lastSyncError sql.NullString
		var statsJSON []byte

		if err := rows.Scan(
			&sw.ID, &sw.UnitID, &sw.Name, &sw.FeedURL,
			&sw.Enabled, &sw.SyncIntervalMinutes,
			&lastSyncedAt, &sw.LastSyncStatus, &lastSyncError,
			&sw.ConsecutiveErrors, &statsJSON,
			&sw.CreatedAt, &sw.UpdatedAt,
			&sw.UnitName, &sw.UnitSlug,
		); err != nil {
			return nil, err
		}

		if lastSyncedAt.Valid {
			t := lastSyncedAt.Time
			sw.LastSyncedAt = &t
		}
		sw.LastSyncError = nullStringValue(lastSyncError)
		if len(statsJSON) > 0 {
			stats := &model.SyncStats{}
			if err := json.Unmarshal(statsJSON, stats); err != nil {
				return nil, fmt.Errorf("同期統計スナップショットの復元に失敗しました: %w", err)
			}
			sw.LastSyncStats = stats
		}

		result = append(result, sw)
	}

	return result, rows.Err()
}

// ListWithUnit は全ソースをユニット情報付きで返す。診断APIで使用される。
func (r *PostgresSourceRepo) ListWithUnit(ctx context.Context) ([]*model.SourceWithUnit, error) {
	result, err := r.listWithUnitQuery(ctx, `ORDER BY u.slug ASC, s.created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("ソース一覧（ユニット付き）の取得に失敗しました: %w", err)
	}
	return result, nil
}

// ListDueForSync は同期対象のソースをユニット情報付きで返す。
// enabled = true かつ（未同期、または前回同期からsync_interval_minutes経過済み）が対象。
func (r *PostgresSourceRepo) ListDueForSync(ctx context.Context) ([]*model.SourceWithUnit, error) {
	result, err := r.listWithUnitQuery(ctx,
		`WHERE s.enabled
		   AND (s.last_synced_at IS NULL
		        OR s.last_synced_at + (s.sync_interval_minutes * interval '1 minute') <= now())
		 ORDER BY s.last_synced_at ASC NULLS FIRST`)
	if err != nil {
		return nil, fmt.Errorf("同期対象ソースの取得に失敗しました: %w", err)
	}
	return result, nil
}

// Create はソースを作成する。
func (r *PostgresSourceRepo) Create(ctx context.Context, source *model.Source) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sources (id, unit_id, name, feed_url, enabled, sync_interval_minutes,
		                      last_sync_status, consecutive_errors, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		source.ID, source.UnitID, source.Name, source.FeedURL,
		source.Enabled, source.SyncIntervalMinutes,
		source.LastSyncStatus, source.ConsecutiveErrors,
		source.CreatedAt, source.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ソースの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はソースの設定フィールドを更新する。同期状態フィールドは変更しない。
func (r *PostgresSourceRepo) Update(ctx context.Context, source *model.Source) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET
		    name = $2, feed_url = $3, enabled = $4,
		    sync_interval_minutes = $5, updated_at = $6
		 WHERE id = $1`,
		source.ID, source.Name, source.FeedURL, source.Enabled,
		source.SyncIntervalMinutes, source.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ソースの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのソースを削除する。
func (r *PostgresSourceRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ソースの削除に失敗しました: %w", err)
	}
	return nil
}

// UpdateSyncState はソースの同期状態を更新する。
func (r *PostgresSourceRepo) UpdateSyncState(ctx context.Context, source *model.Source) error {
	var statsJSON []byte
	if source.LastSyncStats != nil {
		b, err := json.Marshal(source.LastSyncStats)
		if err != nil {
			return fmt.Errorf("同期統計スナップショットの変換に失敗しました: %w", err)
		}
		statsJSON = b
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE sources SET
		    last_synced_at = $2,
		    last_sync_status = $3,
		    last_sync_error = $4,
		    consecutive_errors = $5,
		    last_sync_stats = $6,
		    updated_at = now()
		 WHERE id = $1`,
		source.ID,
		source.LastSyncedAt,
		source.LastSyncStatus,
		nullString(source.LastSyncError),
		source.ConsecutiveErrors,
		statsJSON,
	)
	if err != nil {
		return fmt.Errorf("同期状態の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SourceRepository = (*PostgresSourceRepo)(nil)
