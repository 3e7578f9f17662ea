package trigger

import (
	"net/http"
	"strings"
)

// excludedPrefixes は同期を起動しないパスの接頭辞。
// 操作API・ヘルスチェック・メトリクススクレイプ・静的ファイルは
// 宿泊客のページ閲覧ではないため、同期の契機にしない。
var excludedPrefixes = []string{
	"/api/",
	"/health",
	"/metrics",
	"/static/",
}

// NewMiddleware は対象リクエストの処理前にバッチ同期を
// バックグラウンドで起動するミドルウェアを返す。
//
// 起動はfire-and-forgetであり、リクエストのレイテンシには
// ほぼ影響しない。実行間隔と多重実行の制御はRunnerのゲートが行うため、
// リクエストのたびに呼んでも実際の同期は間隔を空けて実行される。
func NewMiddleware(runner *Runner) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if qualifies(r) {
				runner.RunAsync()
			}
			next.ServeHTTP(w, r)
		})
	}
}

// qualifies は同期の契機となるリクエストかどうかを返す。
func qualifies(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return false
		}
	}
	return true
}
