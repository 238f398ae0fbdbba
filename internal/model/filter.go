package model

import "encoding/json"

// FilterOption はフィルタ参照データ（マップ、チーム、種別、コレクション）の1要素を表す。
// Rawにはバックエンドが返した要素をそのまま保持する。
type FilterOption struct {
	ID         int             `json:"id"`
	DocumentID string          `json:"documentId,omitempty"`
	Name       string          `json:"name"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// FilterData はフィルタ参照データ4種をまとめたもの。
type FilterData struct {
	Maps        []FilterOption `json:"maps"`
	Teams       []FilterOption `json:"teams"`
	Types       []FilterOption `json:"types"`
	Collections []FilterOption `json:"collections"`
}

// EmptyFilterData は空のスライスで初期化されたFilterDataを返す。
// JSON応答で null ではなく [] を返すために使用する。
func EmptyFilterData() FilterData {
	return FilterData{
		Maps:        []FilterOption{},
		Teams:       []FilterOption{},
		Types:       []FilterOption{},
		Collections: []FilterOption{},
	}
}

// FilterSelection はユーザーが選択中のフィルタ条件を表す。
type FilterSelection struct {
	Map        string `json:"map"`
	Team       string `json:"team"`
	Grenade    string `json:"grenade"`
	Collection string `json:"collection"`
}

// DefaultFilterSelection はフィルタ未選択時の既定値を返す。
func DefaultFilterSelection() FilterSelection {
	return FilterSelection{
		Map:        "All Maps",
		Team:       "Both Teams",
		Grenade:    "All Grenades",
		Collection: "No Collection",
	}
}
