package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// SummarySanitizerService はフィード由来テキストのサニタイズ機能の
// インターフェースを定義する。予約のサマリー・説明は外部フィードが
// 自由に記述できる信頼できないテキストであり、保存前に必ず適用する。
type SummarySanitizerService interface {
	// Sanitize は入力からHTMLタグを全て除去し、前後の空白を取り除いた
	// プレーンテキストを返す。同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// summarySanitizer はSummarySanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに動作する。
type summarySanitizer struct {
	policy *bluemonday.Policy
}

// NewSummarySanitizer はSummarySanitizerServiceの新しいインスタンスを生成する。
// 予約データに装飾は不要なため、許可タグを一切持たないStrictPolicyを使用する。
func NewSummarySanitizer() *summarySanitizer {
	return &summarySanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からHTMLタグを除去したプレーンテキストを返す。
func (s *summarySanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

// compile-time interface check
var _ SummarySanitizerService = (*summarySanitizer)(nil)
