// Package strapi はヘッドレスCMS（Strapi）バックエンドのHTTPクライアントを提供する。
package strapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/hitoshi/nadeguide/internal/model"
)

// maxResponseSize はレスポンスボディの最大読み取りサイズ。
const maxResponseSize = 5 << 20

// ErrMalformedResponse は成功ステータスだが必須フィールドを欠くレスポンスを表す。
var ErrMalformedResponse = errors.New("invalid authentication response")

// StatusError はバックエンドが非2xxステータスを返したことを表す。
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
}

// AuthResponse はSteamコールバック交換エンドポイントの成功レスポンス。
type AuthResponse struct {
	JWT  string      `json:"jwt"`
	User *model.User `json:"user"`
}

// Client はStrapiバックエンドのクライアント。
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient はClientを生成する。
// httpClientはCookieJarを持たないものを渡す。Cookieはデバイスごとのjarでのみ扱う。
func NewClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// NewHTTPClient はバックエンド呼び出し用のhttp.Clientを生成する。
// プロセス全体で共有するためCookieJarは持たない。
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// NewCookieJar はpublic suffixリストに基づくデバイス専用のCookieJarを生成する。
func NewCookieJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return jar, nil
}

type cookieJarKey struct{}

// ContextWithCookieJar はコールバック交換で使うデバイスのCookieJarをコンテキストに載せる。
func ContextWithCookieJar(ctx context.Context, jar http.CookieJar) context.Context {
	return context.WithValue(ctx, cookieJarKey{}, jar)
}

func cookieJarFromContext(ctx context.Context) http.CookieJar {
	jar, _ := ctx.Value(cookieJarKey{}).(http.CookieJar)
	return jar
}

// Me はbearer資格情報で現在のユーザープロフィールを取得する。
// GET /api/users/me
func (c *Client) Me(ctx context.Context, jwt string) (*model.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwt)

	var user model.User
	if err := c.do(req, "/api/users/me", &user); err != nil {
		return nil, fmt.Errorf("failed to fetch user data: %w", err)
	}
	return &user, nil
}

// SteamCallbackPost は抽出済みのSteam IDをJSONボディで送信し、資格情報と交換する。
// POST /api/auth/steam/callback
func (c *Client) SteamCallbackPost(ctx context.Context, steamID string) (*AuthResponse, error) {
	body, err := json.Marshal(map[string]string{"steamId": steamID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode callback body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/steam/callback", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.exchange(req)
}

// SteamCallbackForward はOpenIDリダイレクトのクエリ文字列全体を転送し、
// バックエンドにアサーションを再検証させたうえで資格情報と交換する。
// Cookieはctxに載ったデバイスのjarでのみ送受信する。jarがなければ送らない。
// GET /api/auth/steam/callback?<rawQuery>
func (c *Client) SteamCallbackForward(ctx context.Context, rawQuery string) (*AuthResponse, error) {
	target := c.baseURL + "/api/auth/steam/callback"
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback request: %w", err)
	}

	return c.exchangeWith(c.clientWithJar(cookieJarFromContext(ctx)), req)
}

// clientWithJar は共有クライアントのTransportとタイムアウトを使い、jarだけ差し替えたクライアントを返す。
func (c *Client) clientWithJar(jar http.CookieJar) *http.Client {
	if jar == nil {
		return c.httpClient
	}
	return &http.Client{
		Transport:     c.httpClient.Transport,
		CheckRedirect: c.httpClient.CheckRedirect,
		Timeout:       c.httpClient.Timeout,
		Jar:           jar,
	}
}

// Collection はフィルタ参照データのコレクションを取得する。
// GET /api/{name}?populate=*
func (c *Client) Collection(ctx context.Context, name string) ([]model.FilterOption, error) {
	endpoint := "/api/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?populate=*", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", name, err)
	}

	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.do(req, endpoint, &envelope); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", name, err)
	}

	options := make([]model.FilterOption, 0, len(envelope.Data))
	for _, raw := range envelope.Data {
		opt, err := decodeOption(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s entry: %w", name, err)
		}
		options = append(options, opt)
	}
	return options, nil
}

// exchange はコールバック交換リクエストを送信し、jwtとuserの両方を含むことを検証する。
func (c *Client) exchange(req *http.Request) (*AuthResponse, error) {
	return c.exchangeWith(c.httpClient, req)
}

func (c *Client) exchangeWith(httpClient *http.Client, req *http.Request) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.doWith(httpClient, req, "/api/auth/steam/callback", &resp); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	if resp.JWT == "" || resp.User == nil {
		return nil, ErrMalformedResponse
	}
	return &resp, nil
}

// do はリクエストを実行し、2xxの場合にJSONボディをoutへデコードする。
func (c *Client) do(req *http.Request, endpoint string, out any) error {
	return c.doWith(c.httpClient, req, endpoint, out)
}

func (c *Client) doWith(httpClient *http.Client, req *http.Request, endpoint string, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		c.logger.Error("backend request failed",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("backend returned error status",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", endpoint, err)
	}
	return nil
}

// decodeOption はStrapi v4（attributes入れ子）とv5（フラット）の両形式の要素を読み取る。
func decodeOption(raw json.RawMessage) (model.FilterOption, error) {
	var item struct {
		ID         int    `json:"id"`
		DocumentID string `json:"documentId"`
		Name       string `json:"name"`
		Attributes *struct {
			Name string `json:"name"`
		} `json:"attributes"`
	}
	if err := json.Unmarshal(raw, &item); err != nil {
		return model.FilterOption{}, err
	}

	name := item.Name
	if name == "" && item.Attributes != nil {
		name = item.Attributes.Name
	}

	return model.FilterOption{
		ID:         item.ID,
		DocumentID: item.DocumentID,
		Name:       name,
		Raw:        raw,
	}, nil
}
