package filters

import (
	"github.com/hitoshi/nadeguide/internal/model"
	"github.com/hitoshi/nadeguide/internal/observable"
)

// Selection はユーザーが選択中のフィルタ条件のストア。
// 永続化はせず、アプリケーションコンテキストの生存期間だけ保持する。
type Selection struct {
	value *observable.Value[model.FilterSelection]
}

// NewSelection は既定値で初期化されたSelectionを生成する。
func NewSelection() *Selection {
	return &Selection{value: observable.New(model.DefaultFilterSelection())}
}

// Get は現在の選択を返す。
func (s *Selection) Get() model.FilterSelection {
	return s.value.Get()
}

// Set は選択を置き換える。
func (s *Selection) Set(sel model.FilterSelection) {
	s.value.Set(sel)
}

// Update は現在の選択をfnで更新する。
func (s *Selection) Update(fn func(model.FilterSelection) model.FilterSelection) {
	s.value.Update(fn)
}

// Merge はpatchの空でないフィールドだけを現在の選択へ反映し、結果を返す。
func (s *Selection) Merge(patch model.FilterSelection) model.FilterSelection {
	var merged model.FilterSelection
	s.value.Update(func(cur model.FilterSelection) model.FilterSelection {
		if patch.Map != "" {
			cur.Map = patch.Map
		}
		if patch.Team != "" {
			cur.Team = patch.Team
		}
		if patch.Grenade != "" {
			cur.Grenade = patch.Grenade
		}
		if patch.Collection != "" {
			cur.Collection = patch.Collection
		}
		merged = cur
		return cur
	})
	return merged
}

// Reset は既定値に戻す。
func (s *Selection) Reset() {
	s.value.Set(model.DefaultFilterSelection())
}

// Subscribe は選択の変更を購読する。
func (s *Selection) Subscribe(fn func(model.FilterSelection)) func() {
	return s.value.Subscribe(fn)
}
