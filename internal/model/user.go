// Package model はドメインモデルを定義する。
package model

// User はバックエンド（Strapi）が返すログインユーザーのプロフィールを表す。
// Session Storeが保持する「現在のセッション」の実体。
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	SteamID  string `json:"steamId"`
	Avatar   string `json:"avatar,omitempty"`
}
