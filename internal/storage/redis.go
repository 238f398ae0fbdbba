package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "nadeguide:storage:"

// RedisStorage はRedisの文字列キーを使用するBackend。
// 複数のAPIインスタンス間で同じデバイスの状態を共有できる。
type RedisStorage struct {
	client redis.UniversalClient
}

// NewRedisStorage はRedisStorageを生成する。
func NewRedisStorage(client redis.UniversalClient) *RedisStorage {
	return &RedisStorage{client: client}
}

// OpenRedis はredis:// 形式のURLからクライアントを生成しRedisStorageを返す。
func OpenRedis(redisURL string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return NewRedisStorage(redis.NewClient(opts)), nil
}

// Get はキーの値を返す。
func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, redisKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get storage value: %w", err)
	}
	return value, true, nil
}

// Set はキーに値を保存する。有効期限は設定しない。
func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, redisKeyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set storage value: %w", err)
	}
	return nil
}

// Remove はキーを削除する。
func (s *RedisStorage) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to remove storage value: %w", err)
	}
	return nil
}

// Ping はRedisへの疎通を確認する。
func (s *RedisStorage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close はRedisクライアントを閉じる。
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

// compile-time interface check
var _ Backend = (*RedisStorage)(nil)
