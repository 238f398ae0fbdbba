// Package platform は実行環境が提供する機能（永続ストレージ、オープナーウィンドウ）の
// 抽象化を提供する。コアロジックはこのインターフェース越しにのみ環境へアクセスする。
package platform

import "context"

// Storage はクライアントローカルの永続キーバリューストレージ。
// 値はすべてプレーンな文字列として保存される。
type Storage interface {
	// Get はキーの値を返す。存在しない場合はok=falseを返す。
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set はキーに値を保存する。既存の値は上書きされる。
	Set(ctx context.Context, key, value string) error
	// Remove はキーを削除する。存在しない場合もエラーにしない。
	Remove(ctx context.Context, key string) error
}

// Capabilities は実行環境の機能を問い合わせるインターフェース。
type Capabilities interface {
	// DurableStorage は永続ストレージを返す。環境が持たない場合はok=falseを返す。
	DurableStorage() (Storage, bool)
}

// WithStorage は指定のStorageを永続ストレージとして持つCapabilitiesを返す。
// storageがnilの場合は永続ストレージを持たない環境を表す。
func WithStorage(storage Storage) Capabilities {
	return staticCapabilities{storage: storage}
}

// NoStorage は永続ストレージを持たない環境を表すCapabilitiesを返す。
func NoStorage() Capabilities {
	return staticCapabilities{}
}

type staticCapabilities struct {
	storage Storage
}

func (c staticCapabilities) DurableStorage() (Storage, bool) {
	if c.storage == nil {
		return nil, false
	}
	return c.storage, true
}

// Opener はこのウィンドウを開いた親ウィンドウへのメッセージ送信口。
type Opener interface {
	// PostMessage はmessageを親ウィンドウへ送信する。
	// targetOriginに一致するオリジンの親ウィンドウにのみ配送される。
	PostMessage(message any, targetOrigin string) error
}

// Window は現在のブラウジングコンテキストを表す。
type Window interface {
	// Opener は親ウィンドウを返す。ポップアップとして開かれていない場合はok=falseを返す。
	Opener() (opener Opener, ok bool)
	// Origin は現在のウィンドウのオリジン（scheme://host[:port]）を返す。
	Origin() string
	// Close はウィンドウを閉じる。
	Close() error
	// Redirect はトップレベルのウィンドウをlocationへ遷移させる。
	Redirect(location string) error
}
