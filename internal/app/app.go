package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/feedsync/internal/account"
	"github.com/hitoshi/feedsync/internal/channel"
	"github.com/hitoshi/feedsync/internal/config"
	"github.com/hitoshi/feedsync/internal/database"
	"github.com/hitoshi/feedsync/internal/feedparse"
	"github.com/hitoshi/feedsync/internal/handler"
	"github.com/hitoshi/feedsync/internal/logger"
	"github.com/hitoshi/feedsync/internal/mail"
	"github.com/hitoshi/feedsync/internal/metrics"
	"github.com/hitoshi/feedsync/internal/middleware"
	"github.com/hitoshi/feedsync/internal/notify"
	"github.com/hitoshi/feedsync/internal/repository"
	"github.com/hitoshi/feedsync/internal/security"
	"github.com/hitoshi/feedsync/internal/subscription"
	syncpkg "github.com/hitoshi/feedsync/internal/sync"
	"github.com/hitoshi/feedsync/internal/worker/crawl"
)

// 同期レスポンスで1チャンネルあたりに返す記事数の上限。
const syncItemLimit = 50

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
		slog.String("base_url", cfg.BaseURL),
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

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
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

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	channelRepo := repository.NewPostgresChannelRepo(db)
	subRepo := repository.NewPostgresSubscriptionRepo(db)
	itemRepo := repository.NewPostgresItemRepo(db)

	// 3. メトリクスの初期化
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// 4. セキュリティ・フィード取得の初期化
	ssrfGuard := security.NewSSRFGuard()
	hasher := security.NewPBKDF2Hasher()
	parser := feedparse.NewHTTPParser(ssrfGuard, cfg.CrawlTimeout, cfg.CrawlMaxSize)

	// 5. ドメインサービスの初期化
	notifier := notify.NewLogNotifier(slog.Default())
	registry := channel.NewRegistry(channelRepo, itemRepo, parser, collector)
	subManager := subscription.NewManager(parser, registry, subRepo, notifier, slog.Default())

	var defaults account.DefaultSubscriber
	if len(cfg.DefaultFeedURLs) > 0 {
		defaults = subscription.NewDefaultSet(subManager, cfg.DefaultFeedURLs, slog.Default())
	}

	mailer := newMailer(cfg)
	accountService := account.NewService(
		userRepo, sessionRepo, subRepo, registry,
		hasher, mailer, notifier, defaults,
		cfg.BaseURL, time.Duration(cfg.SessionMaxAge)*time.Second,
		slog.Default(),
	)

	syncEngine := syncpkg.NewEngine(channelRepo, itemRepo, syncItemLimit)

	// 6. ルーターの構築
	// configのレート制限はreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.SubscribeRate = rate.Limit(float64(cfg.RateLimitSubscribe) / 60.0)
	rateLimiterCfg.SubscribeBurst = cfg.RateLimitSubscribe
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(promRegistry),
		StatusRecorder: collector,

		AccountService: accountService,
		UserFinder:     userRepo,
		AccountConfig: handler.AccountHandlerConfig{
			CookieSecure:  cfg.CookieSecure,
			CookieDomain:  cfg.CookieDomain,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		SubscriptionService: subManager,
		SyncService:         syncEngine,
		UsageRecorder:       collector,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
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
// DB接続を開き、クロールスケジューラを起動する。
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

	// 2. リポジトリの初期化
	channelRepo := repository.NewPostgresChannelRepo(db)
	itemRepo := repository.NewPostgresItemRepo(db)

	// 3. メトリクスの初期化
	promRegistry := prometheus.NewRegistry()
	collector := metrics.NewCollector(promRegistry)

	// 4. クローラーの初期化
	ssrfGuard := security.NewSSRFGuard()
	parser := feedparse.NewHTTPParser(ssrfGuard, cfg.CrawlTimeout, cfg.CrawlMaxSize)
	registry := channel.NewRegistry(channelRepo, itemRepo, parser, collector)

	// 5. スケジューラの起動準備
	scheduler := crawl.NewScheduler(
		channelRepo, registry, slog.Default(), cfg.CrawlMaxConcurrent,
	)

	// メトリクスはワーカー専用ポートで公開する
	metricsServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: metrics.SetupMetricsRoute(promRegistry),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server listen error", slog.String("error", err.Error()))
		}
	}()

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
		slog.Duration("crawl_interval", cfg.CrawlInterval),
		slog.Int("max_concurrent", cfg.CrawlMaxConcurrent),
	)

	// クロールスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.CrawlInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("metrics server shutdown failed", slog.String("error", err.Error()))
	}

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

// newMailer はSMTP設定の有無に応じてMailerを選択する。
// SMTP_HOSTが未設定の環境ではログ出力のみのNopMailerにフォールバックする。
func newMailer(cfg *config.Config) mail.Mailer {
	if !cfg.MailEnabled() {
		return mail.NewNopMailer(slog.Default())
	}
	return mail.NewSMTPMailer(
		cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword,
		cfg.MailFrom, slog.Default(),
	)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
