package middleware

import (
	"context"
	"crypto/rand"
	"net/http"
)

// cspNonceKey はCSPナンスを格納するコンテキストキー。
type cspNonceKey struct{}

// CSPNonceFromContext はリクエストに割り当てられたCSPナンスを返す。未設定の場合は空文字。
func CSPNonceFromContext(ctx context.Context) string {
	nonce, _ := ctx.Value(cspNonceKey{}).(string)
	return nonce
}

// ContextWithCSPNonce はCSPナンスをコンテキストに設定する。
func ContextWithCSPNonce(ctx context.Context, nonce string) context.Context {
	return context.WithValue(ctx, cspNonceKey{}, nonce)
}

// contentSecurityPolicy はnonceを付けたscriptだけを許可するポリシーを組み立てる。
// JSONレスポンスには影響せず、Steamコールバックのブリッジページだけがscriptを実行できる。
func contentSecurityPolicy(nonce string) string {
	return "default-src 'none'; script-src 'nonce-" + nonce + "'; " +
		"base-uri 'none'; form-action 'none'; frame-ancestors 'none'"
}

// NewSecurityHeadersMiddleware はセキュリティ関連のHTTPレスポンスヘッダーを付与するミドルウェアを返す。
// リクエストごとにCSPナンスを発行し、コンテキスト経由でハンドラーに渡す。
//
// ポップアップログインはwindow.openerでフロントエンドに結果を返すため、
// Cross-Origin-Opener-Policyは付与しない。
// コールバックURLにはOpenIDの署名パラメータが含まれるため、Refererは送らない。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nonce := rand.Text()

			h := w.Header()
			h.Set("Content-Security-Policy", contentSecurityPolicy(nonce))
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			next.ServeHTTP(w, r.WithContext(ContextWithCSPNonce(r.Context(), nonce)))
		})
	}
}
