package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/staysync/internal/config"
	"github.com/hitoshi/staysync/internal/database"
	"github.com/hitoshi/staysync/internal/handler"
	"github.com/hitoshi/staysync/internal/ical"
	"github.com/hitoshi/staysync/internal/logger"
	"github.com/hitoshi/staysync/internal/metrics"
	"github.com/hitoshi/staysync/internal/middleware"
	"github.com/hitoshi/staysync/internal/repository"
	"github.com/hitoshi/staysync/internal/runstate"
	"github.com/hitoshi/staysync/internal/security"
	syncpkg "github.com/hitoshi/staysync/internal/sync"
	"github.com/hitoshi/staysync/internal/trigger"
	"github.com/hitoshi/staysync/internal/worker/purge"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// syncPipeline はバッチ同期の依存一式。serveとworkerの両モードで共有する。
type syncPipeline struct {
	registry  *prometheus.Registry
	collector *metrics.Collector
	runner    *trigger.Runner
	units     *repository.PostgresUnitRepo
	sources   *repository.PostgresSourceRepo
	bookings  *repository.PostgresBookingRepo
}

// buildSyncPipeline はフェッチ→パース→突合→集計のバッチ同期経路を組み立てる。
// Redisゲートを共有するため、どのプロセスで組み立てても同一の実行制約に従う。
func buildSyncPipeline(cfg *config.Config, db *sql.DB, redisClient *redis.Client) *syncPipeline {
	unitRepo := repository.NewPostgresUnitRepo(db)
	sourceRepo := repository.NewPostgresSourceRepo(db)
	bookingRepo := repository.NewPostgresBookingRepo(db)

	guard := security.NewFeedGuard()
	sanitizer := security.NewSummarySanitizer()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	fetcher := ical.NewFetcher(guard, cfg.FetchTimeout, cfg.FetchMaxSize)
	parser := ical.NewParser(sanitizer)
	reconciler := syncpkg.NewReconciler(cfg.SyncVanishThreshold)

	orchestrator := syncpkg.NewOrchestrator(
		fetcher, parser, reconciler,
		sourceRepo, bookingRepo, collector, slog.Default(),
	)
	coordinator := syncpkg.NewCoordinator(
		sourceRepo, orchestrator, slog.Default(), cfg.SyncMaxConcurrent,
	)

	gate := runstate.NewRedisGate(redisClient, cfg.SyncRunTTL, slog.Default())
	runner := trigger.NewRunner(
		gate, coordinator, collector,
		cfg.SyncInterval, cfg.SyncRunTTL, slog.Default(),
	)

	return &syncPipeline{
		registry:  registry,
		collector: collector,
		runner:    runner,
		units:     unitRepo,
		sources:   sourceRepo,
		bookings:  bookingRepo,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB・Redis接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. Redis接続（共有実行状態ストア）
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	redisClient, err := runstate.Connect(connectCtx, cfg.RedisURL)
	connectCancel()
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	slog.Info("redis connection established")

	// 3. 同期パイプラインの組み立て
	pipeline := buildSyncPipeline(cfg, db, redisClient)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSync),
	)

	deps := &handler.RouterDeps{
		Logger:        slog.Default(),
		RateLimiter:   rateLimiter,
		TriggerRunner: pipeline.runner,
		Gatherer:      pipeline.registry,
		DB:            db,

		Units:        pipeline.units,
		Sources:      pipeline.sources,
		SourceList:   pipeline.sources,
		Bookings:     pipeline.bookings,
		BookingCount: pipeline.bookings,

		URLValidator: security.NewFeedGuard(),
		SyncRunner:   pipeline.runner,
	}

	router := handler.NewRouter(deps)

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB・Redis接続を開き、定期同期スケジューラとパージジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. Redis接続
	connectCtx, connectCancel := context.WithTimeout(context.Background(), 10*time.Second)
	redisClient, err := runstate.Connect(connectCtx, cfg.RedisURL)
	connectCancel()
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	slog.Info("redis connection established (worker)")

	// 3. 同期パイプラインの組み立て
	pipeline := buildSyncPipeline(cfg, db, redisClient)
	scheduler := trigger.NewScheduler(pipeline.runner, slog.Default())

	// 4. パージジョブの初期化
	purgeJob := purge.NewPurgeJob(db, slog.Default())
	purgeJob.RetentionDays = cfg.PurgeRetentionDays

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Int("max_concurrent", cfg.SyncMaxConcurrent),
		slog.Int("vanish_threshold", cfg.SyncVanishThreshold),
	)

	// パージジョブを日次でバックグラウンド実行
	go purgeJob.Start(ctx, 24*time.Hour)

	// 同期スケジューラをメインgoroutineで実行（ブロッキング）。
	// tickは最小間隔より細かくし、実行可否の判断はRedisゲートに委ねる。
	tick := cfg.SyncInterval / 3
	if tick < time.Minute {
		tick = time.Minute
	}
	scheduler.Start(ctx, tick)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
