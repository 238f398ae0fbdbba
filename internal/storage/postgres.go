package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStorage はPostgreSQLのclient_storageテーブルを使用するBackend。
// テーブルはdatabase.RunMigrationsで作成される。
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage はPostgresStorageを生成する。
func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// Get はキーの値を返す。
func (s *PostgresStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM client_storage WHERE key = $1`,
		key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get storage value: %w", err)
	}
	return value, true, nil
}

// Set はキーに値を保存する。既存の値は上書きする。
func (s *PostgresStorage) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO client_storage (key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set storage value: %w", err)
	}
	return nil
}

// Remove はキーを削除する。
func (s *PostgresStorage) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM client_storage WHERE key = $1`,
		key,
	)
	if err != nil {
		return fmt.Errorf("failed to remove storage value: %w", err)
	}
	return nil
}

// Ping はデータベースへの疎通を確認する。
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close はデータベース接続を閉じる。
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// Prune はbefore より前に更新されたエントリを削除し、削除件数を返す。
func (s *PostgresStorage) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM client_storage WHERE updated_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune storage: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get pruned count: %w", err)
	}
	return n, nil
}

// compile-time interface check
var (
	_ Backend = (*PostgresStorage)(nil)
	_ Pruner  = (*PostgresStorage)(nil)
)
