// Package filters はフィルタ参照データのキャッシュと、ユーザーのフィルタ選択状態を提供する。
package filters

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/nadeguide/internal/model"
	"github.com/hitoshi/nadeguide/internal/observable"
	"github.com/hitoshi/nadeguide/internal/security"
)

// コレクション名。バックエンドのエンドポイント /api/{name} に対応する。
const (
	CollectionMaps        = "maps"
	CollectionTeams       = "teams"
	CollectionTypes       = "types"
	CollectionCollections = "collections"
)

// DefaultFetchTimeout は取得バッチ全体のタイムアウト。
const DefaultFetchTimeout = 15 * time.Second

const loadKey = "filters"

// Fetcher はコレクションを取得する。strapi.Clientが実装する。
type Fetcher interface {
	Collection(ctx context.Context, name string) ([]model.FilterOption, error)
}

// Recorder は取得バッチの結果を記録する。metrics.Collectorが実装する。
type Recorder interface {
	RecordFilterFetch(success bool, duration time.Duration)
	RecordFilterCoalesced()
}

// CacheConfig はCacheの設定。
type CacheConfig struct {
	// FetchTimeout は取得バッチのタイムアウト。0の場合はDefaultFetchTimeout。
	FetchTimeout time.Duration
}

// Cache はFilter Data Cache。
// 4種のコレクションを並列に1回だけ取得し、同時のLoadは1つの取得バッチに合流する。
type Cache struct {
	data    *observable.Value[model.FilterData]
	loaded  atomic.Bool
	loading atomic.Bool
	group   singleflight.Group

	fetcher   Fetcher
	sanitizer security.TextSanitizerService
	recorder  Recorder
	logger    *slog.Logger
	timeout   time.Duration

	maps        *observable.Derived[[]model.FilterOption]
	teams       *observable.Derived[[]model.FilterOption]
	types       *observable.Derived[[]model.FilterOption]
	collections *observable.Derived[[]model.FilterOption]
}

// NewCache はCacheを生成する。データは空、未ロードの状態で開始する。
func NewCache(fetcher Fetcher, sanitizer security.TextSanitizerService, recorder Recorder, logger *slog.Logger, cfg CacheConfig) *Cache {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}

	c := &Cache{
		data:      observable.New(model.EmptyFilterData()),
		fetcher:   fetcher,
		sanitizer: sanitizer,
		recorder:  recorder,
		logger:    logger,
		timeout:   cfg.FetchTimeout,
	}
	c.maps = observable.Derive[model.FilterData](c.data, func(d model.FilterData) []model.FilterOption { return d.Maps })
	c.teams = observable.Derive[model.FilterData](c.data, func(d model.FilterData) []model.FilterOption { return d.Teams })
	c.types = observable.Derive[model.FilterData](c.data, func(d model.FilterData) []model.FilterOption { return d.Types })
	c.collections = observable.Derive[model.FilterData](c.data, func(d model.FilterData) []model.FilterOption { return d.Collections })
	return c
}

// Load はフィルタ参照データを取得する。
// ロード済みなら何もしない。取得中なら進行中のバッチの完了を待つ。
// 取得はctxのキャンセルから切り離され、ctxがキャンセルされても継続する。
func (c *Cache) Load(ctx context.Context) error {
	if c.loaded.Load() {
		return nil
	}

	if c.loading.Load() && c.recorder != nil {
		c.recorder.RecordFilterCoalesced()
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(loadKey, func() (any, error) {
		// 直前のバッチが完了している場合は新しいバッチを開始しない
		if c.loaded.Load() {
			return nil, nil
		}
		c.loading.Store(true)
		defer c.loading.Store(false)
		return nil, c.fetchAll(detached)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetchAll は4種のコレクションを並列に取得し、すべて成功した場合のみデータを置き換える。
func (c *Cache) fetchAll(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	start := time.Now()
	var next model.FilterData

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(name string, dst *[]model.FilterOption) {
		g.Go(func() error {
			options, err := c.fetcher.Collection(gctx, name)
			if err != nil {
				return err
			}
			*dst = c.sanitize(options)
			return nil
		})
	}
	fetch(CollectionMaps, &next.Maps)
	fetch(CollectionTeams, &next.Teams)
	fetch(CollectionTypes, &next.Types)
	fetch(CollectionCollections, &next.Collections)

	err := g.Wait()
	if c.recorder != nil {
		c.recorder.RecordFilterFetch(err == nil, time.Since(start))
	}
	if err != nil {
		c.logger.Error("error loading filter data", slog.String("error", err.Error()))
		return fmt.Errorf("failed to load filter data: %w", err)
	}

	c.data.Set(next)
	c.loaded.Store(true)
	c.logger.Info("filter data loaded",
		slog.Int("maps", len(next.Maps)),
		slog.Int("teams", len(next.Teams)),
		slog.Int("types", len(next.Types)),
		slog.Int("collections", len(next.Collections)),
	)
	return nil
}

// sanitize は選択肢の表示名からマークアップを除去する。
func (c *Cache) sanitize(options []model.FilterOption) []model.FilterOption {
	out := make([]model.FilterOption, len(options))
	for i, opt := range options {
		if c.sanitizer != nil {
			opt.Name = c.sanitizer.Sanitize(opt.Name)
		}
		out[i] = opt
	}
	return out
}

// Reset はデータを空にし、未ロード状態に戻す。
// 進行中のバッチは中断されず、完了時にロード済みとなる。
func (c *Cache) Reset() {
	c.data.Set(model.EmptyFilterData())
	c.loaded.Store(false)
}

// Loaded はロード済みかを返す。
func (c *Cache) Loaded() bool { return c.loaded.Load() }

// Loading は取得バッチが進行中かを返す。
func (c *Cache) Loading() bool { return c.loading.Load() }

// Data は現在の4種のコレクションを返す。
func (c *Cache) Data() model.FilterData { return c.data.Get() }

// Subscribe はデータ全体の変更を購読する。
func (c *Cache) Subscribe(fn func(model.FilterData)) func() { return c.data.Subscribe(fn) }

// Maps はマップ一覧のビューを返す。
func (c *Cache) Maps() observable.Readable[[]model.FilterOption] { return c.maps }

// Teams はチーム一覧のビューを返す。
func (c *Cache) Teams() observable.Readable[[]model.FilterOption] { return c.teams }

// Types はグレネード種別一覧のビューを返す。
func (c *Cache) Types() observable.Readable[[]model.FilterOption] { return c.types }

// Collections はコレクション一覧のビューを返す。
func (c *Cache) Collections() observable.Readable[[]model.FilterOption] { return c.collections }
