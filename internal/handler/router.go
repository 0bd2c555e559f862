package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feedsync/internal/middleware"
)

// HealthChecker はヘルスチェックのためのDB疎通確認インターフェース。
// *sql.DB がそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ヘルスチェック（nil可）
	HealthChecker HealthChecker

	// Prometheusスクレイプ用ハンドラー（nil可）
	MetricsHandler http.Handler

	// HTTPステータスのメトリクス記録（nil可）
	StatusRecorder middleware.HTTPStatusRecorder

	// アカウント
	AccountService AccountServiceInterface
	UserFinder     UserFinder
	AccountConfig  AccountHandlerConfig

	// 購読
	SubscriptionService SubscriptionServiceInterface

	// 同期
	SyncService SyncServiceInterface

	// メトリクス（nil可）
	UsageRecorder UsageRecorder
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → Recovery → Logging → (Metrics) → Session → RateLimit(General)
//
// サインアップ・有効化・ログインは認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS ミドルウェアを最上位に適用（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}

	accountHandler := NewAccountHandler(deps.AccountService, deps.UserFinder, deps.AccountConfig)
	subHandler := NewSubscriptionHandler(deps.SubscriptionService, deps.UsageRecorder)
	syncHandler := NewSyncHandler(deps.SyncService, deps.SubscriptionService, deps.UsageRecorder)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Post("/api/signup", accountHandler.Signup)
	r.Get("/api/activate", accountHandler.Activate)
	r.Post("/api/login", accountHandler.Login)
	r.Post("/api/logout", accountHandler.Logout)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 購読管理
		r.Route("/api/subscriptions", func(r chi.Router) {
			r.Get("/", subHandler.ListSubscriptions)

			// POST /api/subscriptions - 購読作成（購読専用レート制限を追加）
			r.With(deps.RateLimiter.SubscribeMiddleware()).Post("/", subHandler.Subscribe)

			r.Delete("/{channelID}", subHandler.Unsubscribe)
		})

		// 差分同期
		r.Post("/api/sync", syncHandler.Sync)

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Get("/me", accountHandler.Me)
			r.Delete("/me", accountHandler.Withdraw)
		})
	})

	return r
}
