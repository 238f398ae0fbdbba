// Package prefs は永続化されるUI設定値のストアを提供する。
package prefs

import (
	"context"
	"log/slog"
	"sort"

	"github.com/hitoshi/nadeguide/internal/observable"
	"github.com/hitoshi/nadeguide/internal/platform"
)

// 設定キーと既定値。
const (
	KeySidebarWidth     = "sidebarWidth"
	KeyUserSectionWidth = "userSectionWidth"

	DefaultSidebarWidth     = "240px"
	DefaultUserSectionWidth = "72px"
)

// Store は1つの設定値を保持し、変更のたびに永続ストレージへ書き戻す。
type Store struct {
	key   string
	value *observable.Value[string]
}

// NewStore はストレージから初期値を読み込み、未保存の場合はdefが初期値となる。
// 永続ストレージを持たない環境ではdefで開始し、書き戻しは行わない。
func NewStore(ctx context.Context, caps platform.Capabilities, key, def string, logger *slog.Logger) *Store {
	s := &Store{key: key}

	storage, ok := caps.DurableStorage()
	if !ok {
		s.value = observable.New(def)
		return s
	}

	initial := def
	if v, found, err := storage.Get(ctx, key); err != nil {
		logger.Warn("failed to read preference", slog.String("key", key), slog.String("error", err.Error()))
	} else if found {
		initial = v
	}
	s.value = observable.New(initial)

	writeCtx := context.WithoutCancel(ctx)
	s.value.Subscribe(func(v string) {
		if err := storage.Set(writeCtx, key, v); err != nil {
			logger.Error("failed to persist preference", slog.String("key", key), slog.String("error", err.Error()))
		}
	})
	return s
}

// Key は設定キーを返す。
func (s *Store) Key() string { return s.key }

// Get は現在の値を返す。
func (s *Store) Get() string { return s.value.Get() }

// Set は値を更新する。
func (s *Store) Set(v string) { s.value.Set(v) }

// Subscribe は値の変更を購読する。
func (s *Store) Subscribe(fn func(string)) func() { return s.value.Subscribe(fn) }

// Preferences はUI設定値ストアの集合。
type Preferences struct {
	SidebarWidth     *Store
	UserSectionWidth *Store

	byKey map[string]*Store
}

// Load はすべての設定値ストアを生成する。
func Load(ctx context.Context, caps platform.Capabilities, logger *slog.Logger) *Preferences {
	p := &Preferences{
		SidebarWidth:     NewStore(ctx, caps, KeySidebarWidth, DefaultSidebarWidth, logger),
		UserSectionWidth: NewStore(ctx, caps, KeyUserSectionWidth, DefaultUserSectionWidth, logger),
	}
	p.byKey = map[string]*Store{
		KeySidebarWidth:     p.SidebarWidth,
		KeyUserSectionWidth: p.UserSectionWidth,
	}
	return p
}

// Lookup はキーに対応するストアを返す。
func (p *Preferences) Lookup(key string) (*Store, bool) {
	s, ok := p.byKey[key]
	return s, ok
}

// Snapshot はすべての設定値をマップとして返す。
func (p *Preferences) Snapshot() map[string]string {
	out := make(map[string]string, len(p.byKey))
	for k, s := range p.byKey {
		out[k] = s.Get()
	}
	return out
}

// Keys は既知の設定キーをソートして返す。
func (p *Preferences) Keys() []string {
	keys := make([]string, 0, len(p.byKey))
	for k := range p.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
