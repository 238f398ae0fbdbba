// Package storage はplatform.Storageの実装（メモリ、PostgreSQL、SQLite、Redis）と
// デバイス単位のキー名前空間を提供する。
package storage

import (
	"context"
	"time"

	"github.com/hitoshi/nadeguide/internal/platform"
)

// Backend はアプリケーション全体で共有される永続ストレージ。
// デバイスごとのStorageはScopedで切り出して使用する。
type Backend interface {
	platform.Storage
	// Ping はストレージへの疎通を確認する。ヘルスチェックで使用する。
	Ping(ctx context.Context) error
	// Close は接続を解放する。
	Close() error
}

// Pruner は更新されていない古いエントリを一括削除できるBackend。
// SQLベースの実装のみが満たす。Redisはキーごとの期限に任せる。
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Driver はストレージの実装種別。
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
	DriverRedis    Driver = "redis"
)
