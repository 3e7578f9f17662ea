// Package runstate はバッチ同期の実行状態をRedisで共有する。
// サーバープロセスとワーカープロセスが同じゲートを参照することで、
// 多重実行と過剰な実行頻度を防ぐ。
package runstate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lastRunKey = "staysync:sync:last_run"
	runningKey = "staysync:sync:running"
)

// redisClient はRedisGateが使用するRedisコマンドの部分集合。
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisGate はバッチ同期の排他と実行間隔をRedisで調停する。
//
// 獲得はSETNXによるアトミックなチェックアンドセットで行い、
// 実行中フラグにはTTLを設定する。プロセスがクラッシュして
// Releaseが呼ばれなくても、TTL経過後には次の同期が実行できる。
//
// Redisへの到達に失敗した場合は獲得失敗として扱う（fail closed）。
// 同期の実行を重複させるより、見送る方が安全であるため。
type RedisGate struct {
	client redisClient
	runTTL time.Duration
	logger *slog.Logger
}

// NewRedisGate はRedisGateの新しいインスタンスを生成する。
// runTTLは実行中フラグの生存期間（クラッシュ時の自動解放までの時間）。
func NewRedisGate(client redisClient, runTTL time.Duration, logger *slog.Logger) *RedisGate {
	return &RedisGate{
		client: client,
		runTTL: runTTL,
		logger: logger,
	}
}

// TryAcquire はバッチ同期の実行権の獲得を試みる。
// 前回実行からintervalが経過しておらず、または他のプロセスが
// 実行中の場合はfalseを返す。trueが返った場合、呼び出し元は
// 同期完了後に必ずReleaseを呼ぶこと。
func (g *RedisGate) TryAcquire(ctx context.Context, interval time.Duration) bool {
	if g.recentlyRan(ctx, interval) {
		return false
	}

	ok, err := g.client.SetNX(ctx, runningKey, time.Now().UTC().Format(time.RFC3339Nano), g.runTTL).Result()
	if err != nil {
		g.logger.Error("実行中フラグの獲得に失敗しました",
			slog.String("error", err.Error()),
		)
		return false
	}
	if !ok {
		return false
	}

	// フラグ獲得の直前に他のプロセスが完了していた場合に備えて再確認する
	if g.recentlyRan(ctx, interval) {
		if err := g.client.Del(ctx, runningKey).Err(); err != nil {
			g.logger.Error("実行中フラグの解放に失敗しました",
				slog.String("error", err.Error()),
			)
		}
		return false
	}

	return true
}

// Release は実行権を解放し、最終実行時刻を記録する。
// 同期の成否にかかわらず最終実行時刻は更新される。失敗したバッチを
// 即座に再実行してもフィード側の状況は変わらないためである。
func (g *RedisGate) Release(ctx context.Context) {
	if err := g.client.Set(ctx, lastRunKey, time.Now().UTC().Format(time.RFC3339Nano), 0).Err(); err != nil {
		g.logger.Error("最終実行時刻の記録に失敗しました",
			slog.String("error", err.Error()),
		)
	}
	if err := g.client.Del(ctx, runningKey).Err(); err != nil {
		g.logger.Error("実行中フラグの解放に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// recentlyRan は前回実行からintervalが経過していない場合にtrueを返す。
// Redisエラー時もtrueを返し、獲得を見送らせる。
func (g *RedisGate) recentlyRan(ctx context.Context, interval time.Duration) bool {
	value, err := g.client.Get(ctx, lastRunKey).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		g.logger.Error("最終実行時刻の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return true
	}

	lastRun, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		// 壊れた値は未実行として扱う
		return false
	}
	return time.Since(lastRun) < interval
}

// Connect はRedisへ接続し、疎通を確認したクライアントを返す。
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("Redis URLの解析に失敗しました: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("Redisへの接続に失敗しました: %w", err)
	}
	return client, nil
}
