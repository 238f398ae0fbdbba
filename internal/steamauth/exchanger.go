package steamauth

import (
	"context"

	"github.com/hitoshi/nadeguide/internal/strapi"
)

// ExchangeMode はバックエンドとの交換方式。デプロイごとに1つを選択する。
type ExchangeMode string

const (
	// ExchangeForward は元のクエリをそのまま資格情報付きGETで転送する。
	ExchangeForward ExchangeMode = "forward"
	// ExchangePost は抽出したSteam IDをJSONでPOSTする。
	ExchangePost ExchangeMode = "post"
)

// Exchanger はOpenIDアサーションをバックエンドの資格情報とユーザーに交換する。
type Exchanger interface {
	Exchange(ctx context.Context, rawQuery, steamID string) (*strapi.AuthResponse, error)
}

// ForwardClient はクエリ転送方式の交換エンドポイントを呼び出す。
type ForwardClient interface {
	SteamCallbackForward(ctx context.Context, rawQuery string) (*strapi.AuthResponse, error)
}

// PostClient はSteam ID送信方式の交換エンドポイントを呼び出す。
type PostClient interface {
	SteamCallbackPost(ctx context.Context, steamID string) (*strapi.AuthResponse, error)
}

// ForwardExchanger はOpenIDアサーション全体をバックエンドへ転送し、再検証させる。
type ForwardExchanger struct {
	client ForwardClient
}

// NewForwardExchanger はForwardExchangerを生成する。
func NewForwardExchanger(client ForwardClient) *ForwardExchanger {
	return &ForwardExchanger{client: client}
}

// Exchange は元のクエリを転送する。
func (e *ForwardExchanger) Exchange(ctx context.Context, rawQuery, steamID string) (*strapi.AuthResponse, error) {
	return e.client.SteamCallbackForward(ctx, rawQuery)
}

// PostExchanger はSteam IDのみをバックエンドへ送信する。
type PostExchanger struct {
	client PostClient
}

// NewPostExchanger はPostExchangerを生成する。
func NewPostExchanger(client PostClient) *PostExchanger {
	return &PostExchanger{client: client}
}

// Exchange はSteam IDを送信する。
func (e *PostExchanger) Exchange(ctx context.Context, rawQuery, steamID string) (*strapi.AuthResponse, error) {
	return e.client.SteamCallbackPost(ctx, steamID)
}

// strapiExchangeClient は両方式を提供するクライアント。
type strapiExchangeClient interface {
	ForwardClient
	PostClient
}

// NewExchanger はmodeに応じたExchangerを返す。未知のmodeにはnilを返す。
func NewExchanger(mode ExchangeMode, client strapiExchangeClient) Exchanger {
	switch mode {
	case ExchangeForward:
		return NewForwardExchanger(client)
	case ExchangePost:
		return NewPostExchanger(client)
	default:
		return nil
	}
}

// compile-time interface check
var (
	_ Exchanger            = (*ForwardExchanger)(nil)
	_ Exchanger            = (*PostExchanger)(nil)
	_ strapiExchangeClient = (*strapi.Client)(nil)
)
