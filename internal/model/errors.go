// Package model はドメインモデルを定義する。
package model

import "fmt"

// FetchError はフィード取得の失敗（タイムアウト・非2xx・TLS失敗など）を表す。
// Orchestratorの境界で捕捉され、Sourceの同期状態として記録される。
type FetchError struct {
	URL        string
	StatusCode int // HTTPレスポンスが得られなかった場合は0
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("フィードの取得に失敗しました (HTTP %d): %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("フィードの取得に失敗しました: %s: %v", e.URL, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *FetchError) Unwrap() error { return e.Err }

// ParseError はフィード本文のパース失敗を表す。
type ParseError struct {
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *ParseError) Error() string {
	return fmt.Sprintf("カレンダーフィードの解析に失敗しました: %v", e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *ParseError) Unwrap() error { return e.Err }

// ReconcileError は照合結果の適用失敗（永続化・制約違反）を表す。
// 発生時は該当Sourceのトランザクション全体がロールバックされる。
type ReconcileError struct {
	SourceID string
	Err      error
}

// Error はerrorインターフェースを実装する。
func (e *ReconcileError) Error() string {
	return fmt.Sprintf("予約の照合適用に失敗しました (source=%s): %v", e.SourceID, e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *ReconcileError) Unwrap() error { return e.Err }

// EnumerationError は同期対象Sourceの列挙自体の失敗を表す。
// Source個別の失敗と異なり、Coordinatorの外へ伝播する致命的エラー。
type EnumerationError struct {
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *EnumerationError) Error() string {
	return fmt.Sprintf("同期対象Sourceの列挙に失敗しました: %v", e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *EnumerationError) Unwrap() error { return e.Err }

// APIError は操作API（オペレーター向け）の統一エラーフォーマットを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, source, unit, sync, system
	Action   string // オペレーター向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnitNotFound        = "UNIT_NOT_FOUND"
	ErrCodeSourceNotFound      = "SOURCE_NOT_FOUND"
	ErrCodeInvalidURL          = "INVALID_URL"
	ErrCodeSSRFBlocked         = "SSRF_BLOCKED"
	ErrCodeInvalidSyncInterval = "INVALID_SYNC_INTERVAL"
	ErrCodeDuplicateSlug       = "DUPLICATE_SLUG"
	ErrCodeSyncInProgress      = "SYNC_IN_PROGRESS"
	ErrCodeValidation          = "VALIDATION_FAILED"
)

// NewUnitNotFoundError はUnit未検出エラーを生成する。
func NewUnitNotFoundError(unitID string) *APIError {
	return &APIError{
		Code:     ErrCodeUnitNotFound,
		Message:  fmt.Sprintf("指定されたユニットが見つかりません: %s", unitID),
		Category: "unit",
		Action:   "ユニットIDを確認してください。",
	}
}

// NewSourceNotFoundError はSource未検出エラーを生成する。
func NewSourceNotFoundError(sourceID string) *APIError {
	return &APIError{
		Code:     ErrCodeSourceNotFound,
		Message:  fmt.Sprintf("指定されたカレンダーソースが見つかりません: %s", sourceID),
		Category: "source",
		Action:   "ソースIDを確認してください。",
	}
}

// NewInvalidURLError は無効なフィードURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なフィードURLです: %s", reason),
		Category: "validation",
		Action:   "http:// または https:// で始まるiCalフィードのURLを入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているカレンダーフィードのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewInvalidSyncIntervalError は同期間隔が無効な場合のエラーを生成する。
func NewInvalidSyncIntervalError(minutes int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSyncInterval,
		Message:  fmt.Sprintf("無効な同期間隔です: %d分", minutes),
		Category: "validation",
		Action:   "同期間隔は15分から1440分（24時間）の範囲で指定してください。",
	}
}

// NewDuplicateSlugError はスラッグ重複エラーを生成する。
func NewDuplicateSlugError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateSlug,
		Message:  fmt.Sprintf("このスラッグは既に使用されています: %s", slug),
		Category: "validation",
		Action:   "別のスラッグを指定してください。",
	}
}

// NewSyncInProgressError はバッチ同期が既に実行中の場合のエラーを生成する。
func NewSyncInProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeSyncInProgress,
		Message:  "バッチ同期は既に実行中か、前回実行からの間隔が不足しています。",
		Category: "sync",
		Action:   "しばらく待ってから再度実行してください。",
	}
}

// NewValidationError は汎用バリデーションエラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}
