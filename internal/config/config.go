package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// 既定値。
const (
	DefaultSteamAuthURL       = "https://steamcommunity.com/openid/login"
	DefaultSteamExchangeMode  = "forward"
	DefaultStorageDriver      = "memory"
	DefaultSQLitePath         = "nadeguide.db"
	DefaultServerPort         = "8080"
	DefaultBackendTimeout     = 10 * time.Second
	DefaultFilterFetchTimeout = 15 * time.Second
	DefaultClientIdleTTL      = 30 * time.Minute
	DefaultRetentionDays      = 90
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend (Strapi)
	StrapiURL      string
	BackendTimeout time.Duration

	// Frontend
	FrontendURL string

	// Steam
	SteamAuthURL       string
	SteamExchangeMode  string
	SteamIdentityHosts []string

	// Storage
	StorageDriver string
	DatabaseURL   string
	SQLitePath    string
	RedisURL      string

	// 更新されていないデバイスデータの保持日数（postgres/sqliteのみ）
	StorageRetentionDays int

	// Filter
	FilterFetchTimeout time.Duration

	// Client context
	ClientIdleTTL time.Duration

	// Rate Limit (req/min/device)
	RateLimitGeneral int
	RateLimitAuth    int

	// Server
	ServerPort string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CSRF
	// 未設定の場合は起動ごとにランダムな鍵を使う（再起動でトークンが再発行される）
	CSRFSecret string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.StrapiURL = strings.TrimRight(os.Getenv("STRAPI_URL"), "/")
	if cfg.StrapiURL == "" {
		missing = append(missing, "STRAPI_URL")
	}

	cfg.FrontendURL = strings.TrimRight(os.Getenv("FRONTEND_URL"), "/")
	if cfg.FrontendURL == "" {
		missing = append(missing, "FRONTEND_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SteamAuthURL = getEnvString("STEAM_AUTH_URL", DefaultSteamAuthURL)
	cfg.SteamExchangeMode = strings.ToLower(getEnvString("STEAM_EXCHANGE_MODE", DefaultSteamExchangeMode))
	cfg.SteamIdentityHosts = getEnvList("STEAM_IDENTITY_HOSTS", []string{"steamcommunity.com"})
	cfg.StorageDriver = strings.ToLower(getEnvString("STORAGE_DRIVER", DefaultStorageDriver))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.SQLitePath = getEnvString("SQLITE_PATH", DefaultSQLitePath)
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.StorageRetentionDays = getEnvInt("STORAGE_RETENTION_DAYS", DefaultRetentionDays)
	cfg.ServerPort = getEnvString("SERVER_PORT", DefaultServerPort)
	cfg.BackendTimeout = getEnvDuration("BACKEND_TIMEOUT", DefaultBackendTimeout)
	cfg.FilterFetchTimeout = getEnvDuration("FILTER_FETCH_TIMEOUT", DefaultFilterFetchTimeout)
	cfg.ClientIdleTTL = getEnvDuration("CLIENT_IDLE_TTL", DefaultClientIdleTTL)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 20)
	cfg.CookieSecure = strings.HasPrefix(cfg.FrontendURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CSRFSecret = os.Getenv("CSRF_SECRET")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.FrontendURL)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate は値の組み合わせを検証する。
func (c *Config) validate() error {
	for name, raw := range map[string]string{
		"STRAPI_URL":     c.StrapiURL,
		"FRONTEND_URL":   c.FrontendURL,
		"STEAM_AUTH_URL": c.SteamAuthURL,
	} {
		if !isAbsoluteHTTPURL(raw) {
			return fmt.Errorf("%s must be an absolute http(s) URL: %q", name, raw)
		}
	}

	switch c.SteamExchangeMode {
	case "forward", "post":
	default:
		return fmt.Errorf("STEAM_EXCHANGE_MODE must be forward or post: %q", c.SteamExchangeMode)
	}

	switch c.StorageDriver {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for STORAGE_DRIVER=postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for STORAGE_DRIVER=sqlite")
		}
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for STORAGE_DRIVER=redis")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER: %q", c.StorageDriver)
	}

	// credentials付きCORSはワイルドカードと共存できない
	if c.CORSAllowedOrigin == "*" {
		return fmt.Errorf("CORS_ALLOWED_ORIGIN must not be a wildcard")
	}

	if c.StorageRetentionDays <= 0 {
		return fmt.Errorf("STORAGE_RETENTION_DAYS must be positive: %d", c.StorageRetentionDays)
	}

	if c.RateLimitGeneral <= 0 || c.RateLimitAuth <= 0 {
		return fmt.Errorf("rate limits must be positive: general=%d auth=%d", c.RateLimitGeneral, c.RateLimitAuth)
	}
	return nil
}

func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの環境変数をスライスとして返す。空要素は除く。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
