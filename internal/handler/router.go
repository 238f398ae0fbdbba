package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/nadeguide/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	DeviceConfig      middleware.DeviceConfig
	CSRFConfig        middleware.CSRFConfig
	StatusRecorder    middleware.HTTPStatusRecorder

	// ヘルスチェック・メトリクス
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	Clients         ClientRegistry
	CallbackHandler CallbackHandler
	AuthConfig      AuthHandlerConfig

	// フィルタ参照データ
	FilterCache FilterCache
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → Device
//	  /auth/* : RateLimit(Auth)（POST /auth/logout はCSRFも）
//	  /api/*  : RateLimit(General) → CSRF
//
// /health と /metrics はデバイスIDを発行しない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.Clients, deps.CallbackHandler, deps.AuthConfig, logger)
	filterHandler := NewFilterHandler(deps.FilterCache, deps.Clients, logger)
	prefsHandler := NewPrefsHandler(deps.Clients, logger)
	grenadeHandler := NewGrenadeHandler(deps.Clients, logger)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker, logger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- デバイス単位のルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewDeviceMiddleware(deps.DeviceConfig))

		// ログイン失敗時の遷移先
		r.Get("/login", authHandler.LoginError)

		// 認証ルート（Steam OpenIDフロー）
		r.Route("/auth", func(r chi.Router) {
			r.Use(deps.RateLimiter.AuthMiddleware())

			r.Get("/steam/login", authHandler.SteamLogin)
			r.Get("/steam/callback", authHandler.SteamCallback)
			r.With(middleware.NewCSRFMiddleware(deps.CSRFConfig)).Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// API ルート
		// ミドルウェアスタック: RateLimit(General) → CSRF
		r.Route("/api", func(r chi.Router) {
			r.Use(deps.RateLimiter.GeneralMiddleware())

			// CSRFトークン取得
			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

			r.Group(func(r chi.Router) {
				r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

				// フィルタ参照データ
				r.Route("/filters", func(r chi.Router) {
					r.Get("/", filterHandler.GetFilters)
					r.Post("/reset", filterHandler.ResetFilters)

					r.Get("/selection", filterHandler.GetSelection)
					r.Put("/selection", filterHandler.UpdateSelection)
					r.Delete("/selection", filterHandler.ResetSelection)
				})

				// UI設定値
				r.Route("/prefs", func(r chi.Router) {
					r.Get("/", prefsHandler.ListPreferences)
					r.Put("/{key}", prefsHandler.UpdatePreference)
				})

				// グレネード更新通知
				r.Route("/grenades", func(r chi.Router) {
					r.Get("/tick", grenadeHandler.GetTick)
					r.Post("/changed", grenadeHandler.NotifyChanged)
				})
			})
		})
	})

	return r
}
