package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SQLiteStorage はSQLiteファイルのclient_storageテーブルを使用するBackend。
type SQLiteStorage struct {
	db        *sql.DB
	writeLock sync.Mutex // sqliteは同時書き込みをサポートしない
}

// NewSQLiteStorage はSQLiteStorageを生成する。
// dbはdatabase.OpenSQLiteで開いたものを渡す。
func NewSQLiteStorage(db *sql.DB) *SQLiteStorage {
	return &SQLiteStorage{db: db}
}

// Get はキーの値を返す。
func (s *SQLiteStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM client_storage WHERE key = ?",
		key,
	).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query storage value: %w", err)
	}
	return value, true, nil
}

// Set はキーに値を保存する。
func (s *SQLiteStorage) Set(ctx context.Context, key, value string) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO client_storage (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert storage value: %w", err)
	}
	return nil
}

// Remove はキーを削除する。
func (s *SQLiteStorage) Remove(ctx context.Context, key string) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM client_storage WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete storage value: %w", err)
	}
	return nil
}

// Ping はデータベースへの疎通を確認する。
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Prune はbefore より前に更新されたエントリを削除する。
func (s *SQLiteStorage) Prune(ctx context.Context, before time.Time) (int64, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM client_storage WHERE updated_at < ?", before.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune storage: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruned rows: %w", err)
	}
	return n, nil
}

var (
	_ Backend = (*SQLiteStorage)(nil)
	_ Pruner  = (*SQLiteStorage)(nil)
)
