package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/nadeguide/internal/client"
	"github.com/hitoshi/nadeguide/internal/config"
	"github.com/hitoshi/nadeguide/internal/database"
	"github.com/hitoshi/nadeguide/internal/filters"
	"github.com/hitoshi/nadeguide/internal/handler"
	"github.com/hitoshi/nadeguide/internal/logger"
	"github.com/hitoshi/nadeguide/internal/metrics"
	"github.com/hitoshi/nadeguide/internal/middleware"
	"github.com/hitoshi/nadeguide/internal/security"
	"github.com/hitoshi/nadeguide/internal/steamauth"
	"github.com/hitoshi/nadeguide/internal/storage"
	"github.com/hitoshi/nadeguide/internal/strapi"
	"github.com/hitoshi/nadeguide/internal/worker/cleanup"
)

const (
	// clientSweepInterval はアイドル状態のクライアントコンテキストを破棄する間隔。
	clientSweepInterval = 5 * time.Minute
	// storageCleanupInterval は古いデバイスデータを削除する間隔。
	storageCleanupInterval = 24 * time.Hour
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if !cmd.needsConfig() {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = config.DefaultServerPort
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
		slog.String("frontend_url", cfg.FrontendURL),
		slog.String("storage_driver", cfg.StorageDriver),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandCleanup:
		return runCleanup(cfg)
	default:
		return runServe(cfg)
	}
}

// server はserveモードで組み立てた依存関係一式。
type server struct {
	router   http.Handler
	registry *client.Registry
	limiter  *middleware.RateLimiter
	backend  storage.Backend
	cleanup  *cleanup.CleanupJob // Prune非対応のストレージではnil
}

// Close は保持しているリソースを解放する。
func (s *server) Close() error {
	s.limiter.Stop()
	return s.backend.Close()
}

// newServer はストレージを開き、全依存関係をワイヤリングする。
func newServer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*server, error) {
	// 1. ストレージ
	backend, err := storage.Open(ctx, storage.OpenConfig{
		Driver:      storage.Driver(cfg.StorageDriver),
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		RedisURL:    cfg.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	log.Info("storage connection established", slog.String("driver", cfg.StorageDriver))

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. バックエンドクライアント
	strapiClient := strapi.NewClient(strapi.NewHTTPClient(cfg.BackendTimeout), cfg.StrapiURL, log)

	// 4. Steam認証
	exchanger := steamauth.NewExchanger(steamauth.ExchangeMode(cfg.SteamExchangeMode), strapiClient)
	if exchanger == nil {
		backend.Close()
		return nil, fmt.Errorf("unsupported steam exchange mode: %q", cfg.SteamExchangeMode)
	}
	callback := steamauth.NewHandler(exchanger, security.NewIdentityGuard(cfg.SteamIdentityHosts), collector, log)

	// 5. フィルタ参照データ（プロセスで共有）
	cache := filters.NewCache(strapiClient, security.NewTextSanitizer(), collector, log, filters.CacheConfig{
		FetchTimeout: cfg.FilterFetchTimeout,
	})

	// 6. デバイスごとのコンテキスト
	clients := client.NewRegistry(backend, client.Deps{
		Profile:  strapiClient,
		Recorder: collector,
		Logger:   log,
	}, cfg.ClientIdleTTL)

	// 7. ルーター
	csrfSecret, err := csrfSecretFrom(cfg.CSRFSecret)
	if err != nil {
		backend.Close()
		return nil, err
	}
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitAuth))

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		DeviceConfig: middleware.DeviceConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CSRFConfig: middleware.CSRFConfig{
			Secret:       csrfSecret,
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		StatusRecorder:  collector,
		HealthChecker:   backend,
		MetricsHandler:  metrics.Handler(registry),
		Clients:         clients,
		CallbackHandler: callback,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:  cfg.FrontendURL,
			SteamAuthURL: cfg.SteamAuthURL,
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},
		FilterCache: cache,
	})

	// 8. 古いデバイスデータの削除ジョブ
	var job *cleanup.CleanupJob
	if pruner, ok := backend.(storage.Pruner); ok {
		job = cleanup.NewCleanupJob(pruner, log)
		job.RetentionDays = cfg.StorageRetentionDays
	}

	return &server{
		router:   router,
		registry: clients,
		limiter:  limiter,
		backend:  backend,
		cleanup:  job,
	}, nil
}

// csrfSecretFrom は設定値の鍵を返す。未設定ならランダムな鍵を生成する。
func csrfSecretFrom(configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate csrf secret: %w", err)
	}
	slog.Warn("CSRF_SECRET is not set; using a per-process secret")
	return b, nil
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer srv.Close()

	// アイドル状態のコンテキストを定期的に破棄
	go srv.registry.Start(ctx, clientSweepInterval)
	if srv.cleanup != nil {
		go srv.cleanup.Start(ctx, storageCleanupInterval)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", httpServer.Addr),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// PostgreSQL以外のドライバーはマイグレーションを必要としない。
func runMigrate(cfg *config.Config) error {
	if storage.Driver(cfg.StorageDriver) != storage.DriverPostgres {
		slog.Info("no migrations required for storage driver",
			slog.String("storage_driver", cfg.StorageDriver),
		)
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runCleanup は古いデバイスデータの削除を一度だけ実行する。
// Prune非対応のドライバー（memory, redis）では何もしない。
func runCleanup(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, storage.OpenConfig{
		Driver:      storage.Driver(cfg.StorageDriver),
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		RedisURL:    cfg.RedisURL,
	})
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer backend.Close()

	pruner, ok := backend.(storage.Pruner)
	if !ok {
		slog.Info("storage driver does not support cleanup",
			slog.String("storage_driver", cfg.StorageDriver),
		)
		return nil
	}

	job := cleanup.NewCleanupJob(pruner, slog.Default())
	job.RetentionDays = cfg.StorageRetentionDays
	if err := job.Run(ctx); err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	httpClient := &http.Client{Timeout: 5 * time.Second}

	resp, err := httpClient.Get(endpoint)
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
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.Redacted()
}
