package storage

import (
	"context"

	"github.com/hitoshi/nadeguide/internal/platform"
)

// ScopedStorage はキーに名前空間プレフィックスを付与してStorageを分割する。
// デバイスIDごとにブラウザのlocalStorage相当の独立した領域を提供する。
type ScopedStorage struct {
	base   platform.Storage
	prefix string
}

// Scoped はdeviceIDの名前空間に閉じたStorageを返す。
func Scoped(base platform.Storage, deviceID string) *ScopedStorage {
	return &ScopedStorage{
		base:   base,
		prefix: "device:" + deviceID + ":",
	}
}

// Get はスコープ内のキーの値を返す。
func (s *ScopedStorage) Get(ctx context.Context, key string) (string, bool, error) {
	return s.base.Get(ctx, s.prefix+key)
}

// Set はスコープ内のキーに値を保存する。
func (s *ScopedStorage) Set(ctx context.Context, key, value string) error {
	return s.base.Set(ctx, s.prefix+key, value)
}

// Remove はスコープ内のキーを削除する。
func (s *ScopedStorage) Remove(ctx context.Context, key string) error {
	return s.base.Remove(ctx, s.prefix+key)
}

var _ platform.Storage = (*ScopedStorage)(nil)
