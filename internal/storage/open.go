package storage

import (
	"context"
	"fmt"

	"github.com/hitoshi/nadeguide/internal/database"
)

// OpenConfig はOpenに渡すストレージ接続設定。
type OpenConfig struct {
	Driver      Driver
	DatabaseURL string // postgres
	SQLitePath  string // sqlite
	RedisURL    string // redis
}

// Open は設定されたドライバーのBackendを開き、疎通を確認して返す。
// PostgreSQLのスキーマは事前に migrate サブコマンドで作成しておく必要がある。
func Open(ctx context.Context, cfg OpenConfig) (Backend, error) {
	var (
		backend Backend
		err     error
	)

	switch cfg.Driver {
	case DriverMemory, "":
		return NewMemoryStorage(), nil
	case DriverPostgres:
		db, openErr := database.Open(cfg.DatabaseURL)
		if openErr != nil {
			return nil, openErr
		}
		backend = NewPostgresStorage(db)
	case DriverSQLite:
		db, openErr := database.OpenSQLite(cfg.SQLitePath)
		if openErr != nil {
			return nil, openErr
		}
		backend = NewSQLiteStorage(db)
	case DriverRedis:
		backend, err = OpenRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}

	if err := backend.Ping(ctx); err != nil {
		backend.Close()
		return nil, fmt.Errorf("failed to connect to %s storage: %w", cfg.Driver, err)
	}

	return backend, nil
}
