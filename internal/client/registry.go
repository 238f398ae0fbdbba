package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/nadeguide/internal/platform"
	"github.com/hitoshi/nadeguide/internal/storage"
)

// DefaultIdleTTL はアクセスのないコンテキストを破棄するまでの時間。
const DefaultIdleTTL = 30 * time.Minute

type entry struct {
	ctx      *Context
	lastSeen time.Time
}

// Registry はデバイスIDごとのコンテキストを保持する。
// 同じデバイスIDへの同時アクセスでもコンテキストは1回だけ生成される。
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group

	base   platform.Storage
	deps   Deps
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewRegistry はRegistryを生成する。
// baseがnilの場合、コンテキストは永続ストレージを持たない環境として生成される。
func NewRegistry(base platform.Storage, deps Deps, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &Registry{
		entries: make(map[string]*entry),
		base:    base,
		deps:    deps,
		ttl:     ttl,
		now:     time.Now,
		logger:  deps.Logger,
	}
}

// Get はデバイスIDのコンテキストを返す。存在しない場合は生成して登録する。
func (r *Registry) Get(ctx context.Context, deviceID string) *Context {
	if c, ok := r.lookup(deviceID); ok {
		return c
	}

	v, _, _ := r.group.Do(deviceID, func() (any, error) {
		if c, ok := r.lookup(deviceID); ok {
			return c, nil
		}
		c := New(context.WithoutCancel(ctx), deviceID, r.capabilities(deviceID), r.deps)

		r.mu.Lock()
		r.entries[deviceID] = &entry{ctx: c, lastSeen: r.now()}
		r.mu.Unlock()
		return c, nil
	})
	return v.(*Context)
}

func (r *Registry) lookup(deviceID string) (*Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[deviceID]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.ctx, true
}

func (r *Registry) capabilities(deviceID string) platform.Capabilities {
	if r.base == nil {
		return platform.NoStorage()
	}
	return platform.WithStorage(storage.Scoped(r.base, deviceID))
}

// Len は保持しているコンテキスト数を返す。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep はTTLを超えてアクセスのないコンテキストを破棄し、破棄した数を返す。
// 永続化された状態は残るため、次回アクセス時に復元される。
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, e := range r.entries {
		if e.lastSeen.Before(cutoff) {
			delete(r.entries, id)
			evicted++
		}
	}
	return evicted
}

// Start は指定間隔でSweepを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Registry) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("コンテキストの破棄ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("idle_ttl", r.ttl),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("コンテキストの破棄ジョブを停止しました")
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("アイドル状態のコンテキストを破棄しました",
					slog.Int("evicted", n),
					slog.Int("remaining", r.Len()),
				)
			}
		}
	}
}
