package storage

import (
	"context"
	"sync"
)

// MemoryStorage はプロセス内のマップに値を保持するBackend。
// プロセス終了で内容は失われる。テストと単一インスタンス運用向け。
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStorage はMemoryStorageを生成する。
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

// Get はキーの値を返す。
func (s *MemoryStorage) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set はキーに値を保存する。
func (s *MemoryStorage) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Remove はキーを削除する。
func (s *MemoryStorage) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Len は保持しているキーの数を返す。テスト用。
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

func (s *MemoryStorage) Ping(ctx context.Context) error { return nil }

func (s *MemoryStorage) Close() error { return nil }

// compile-time interface check
var _ Backend = (*MemoryStorage)(nil)
