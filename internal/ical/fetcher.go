// Package ical は外部カレンダーフィードの取得とパースを提供する。
package ical

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/staysync/internal/model"
)

// SafeClientFactory はSSRF防止付きHTTPクライアント生成のインターフェース。
// テスタビリティのためsecurity.FeedGuardServiceを抽象化する。
type SafeClientFactory interface {
	NewSafeClient(timeout time.Duration) *http.Client
	ValidateFeedURL(rawURL string) error
}

// Fetcher は1つのフィードURLに対するHTTPフェッチを行う。
// タイムアウトとレスポンスサイズ上限を適用し、失敗はmodel.FetchErrorとして返す。
// リトライは行わない。リトライ方針はOrchestrator側の統計計上に委ねる。
type Fetcher struct {
	guard       SafeClientFactory
	timeout     time.Duration
	maxBodySize int64
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
func NewFetcher(guard SafeClientFactory, timeout time.Duration, maxBodySize int64) *Fetcher {
	return &Fetcher{
		guard:       guard,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Fetch は指定URLからフィード本文を取得する。
// SSRF検証 → GET → ステータス確認 → サイズ上限付き読み取りの順で処理し、
// いずれかが失敗した場合は*model.FetchErrorを返す。
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]byte, error) {
	if err := f.guard.ValidateFeedURL(feedURL); err != nil {
		return nil, &model.FetchError{URL: feedURL, Err: fmt.Errorf("URL検証に失敗: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, &model.FetchError{URL: feedURL, Err: fmt.Errorf("リクエスト作成に失敗: %w", err)}
	}

	req.Header.Set("User-Agent", "Staysync/1.0 Calendar Sync")
	req.Header.Set("Accept", "text/calendar, text/plain, */*")

	client := f.guard.NewSafeClient(f.timeout)
	resp, err := client.Do(req)
	if err != nil {
		return nil, &model.FetchError{URL: feedURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &model.FetchError{URL: feedURL, StatusCode: resp.StatusCode}
	}

	// サイズ上限+1バイト読み、上限超過を検知する
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, &model.FetchError{URL: feedURL, Err: fmt.Errorf("レスポンス読み取りに失敗: %w", err)}
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, &model.FetchError{URL: feedURL, Err: fmt.Errorf("レスポンスサイズが上限（%dバイト）を超過しました", f.maxBodySize)}
	}

	return body, nil
}
