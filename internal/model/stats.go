// Package model はドメインモデルを定義する。
package model

import "time"

// SyncStats は1つのSourceに対する同期実行の結果統計。
// 失敗は例外ではなく値として伝播する（Success=false + Error）。
type SyncStats struct {
	SourceID     string `json:"source_id"`
	SourceName   string `json:"source_name"`
	Total        int    `json:"total"`         // 同期後のアクティブ予約数
	New          int    `json:"new"`           // 新規作成数
	Updated      int    `json:"updated"`       // 上書き更新数
	Deleted      int    `json:"deleted"`       // 閾値到達によるソフトデリート数
	Vanished     int    `json:"vanished"`      // 消失検知（閾値未満でミス記録のみ）数
	ParseSkipped int    `json:"parse_skipped"` // パース時にスキップした不正イベント数
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// Failed は失敗を表すSyncStatsを生成する。
func (s SyncStats) Failed(err error) SyncStats {
	s.Success = false
	s.Error = err.Error()
	return s
}

// BatchResult は全Sourceを対象としたバッチ同期の集計結果。
type BatchResult struct {
	SourcesTotal  int           `json:"sources_total"`
	SourcesFailed int           `json:"sources_failed"`
	Total         int           `json:"total"`
	New           int           `json:"new"`
	Updated       int           `json:"updated"`
	Deleted       int           `json:"deleted"`
	Vanished      int           `json:"vanished"`
	Duration      time.Duration `json:"-"`
}

// Add はSourceごとの統計をバッチ集計に加算する。
func (r *BatchResult) Add(s SyncStats) {
	r.SourcesTotal++
	if !s.Success {
		r.SourcesFailed++
		return
	}
	r.Total += s.Total
	r.New += s.New
	r.Updated += s.Updated
	r.Deleted += s.Deleted
	r.Vanished += s.Vanished
}
