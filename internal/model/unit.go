// Package model はドメインモデルを定義する。
package model

import "time"

// Unit は貸出単位（部屋・物件）を表す。
// 1つのUnitは0個以上のSource（外部カレンダーフィード）を持ち、
// Bookingの親エンティティとなる。
type Unit struct {
	ID        string
	Name      string
	Slug      string
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
