package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/staysync/internal/model"
)

// PostgresUnitRepo はPostgreSQLを使用したユニットリポジトリ。
type PostgresUnitRepo struct {
	db *sql.DB
}

// NewPostgresUnitRepo はPostgresUnitRepoを生成する。
func NewPostgresUnitRepo(db *sql.DB) *PostgresUnitRepo {
	return &PostgresUnitRepo{db: db}
}

// FindByID は指定IDのユニットを取得する。見つからない場合はnilを返す。
func (r *PostgresUnitRepo) FindByID(ctx context.Context, id string) (*model.Unit, error) {
	unit := &model.Unit{}
	var notes sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, notes, created_at, updated_at
		 FROM units WHERE id = $1`,
		id,
	).Scan(&unit.ID, &unit.Name, &unit.Slug, &notes, &unit.CreatedAt, &unit.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユニットの取得に失敗しました: %w", err)
	}

	unit.Notes = nullStringValue(notes)
	return unit, nil
}

// FindBySlug はスラッグでユニットを検索する。見つからない場合はnilを返す。
func (r *PostgresUnitRepo) FindBySlug(ctx context.Context, slug string) (*model.Unit, error) {
	unit := &model.Unit{}
	var notes sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, notes, created_at, updated_at
		 FROM units WHERE slug = $1`,
		slug,
	).Scan(&unit.ID, &unit.Name, &unit.Slug, &notes, &unit.CreatedAt, &unit.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スラッグによるユニットの検索に失敗しました: %w", err)
	}

	unit.Notes = nullStringValue(notes)
	return unit, nil
}

// List は全ユニットを作成日時昇順で返す。
func (r *PostgresUnitRepo) List(ctx context.Context) ([]*model.Unit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, slug, notes, created_at, updated_at
		 FROM units ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("ユニット一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var units []*model.Unit
	for rows.Next() {
		unit := &model.Unit{}
		var notes sql.NullString
		if err := rows.Scan(&unit.ID, &unit.Name, &unit.Slug, &notes, &unit.CreatedAt, &unit.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ユニット一覧の読み取りに失敗しました: %w", err)
		}
		unit.Notes = nullStringValue(notes)
		units = append(units, unit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユニット一覧の走査に失敗しました: %w", err)
	}

	return units, nil
}

// Create はユニットを作成する。
func (r *PostgresUnitRepo) Create(ctx context.Context, unit *model.Unit) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO units (id, name, slug, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		unit.ID, unit.Name, unit.Slug, nullString(unit.Notes),
		unit.CreatedAt, unit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ユニットの作成に失敗しました: %w", err)
	}
	return nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ UnitRepository = (*PostgresUnitRepo)(nil)
