package middleware

import "net/http"

// corsAllowedHeaders はフロントエンドが送信できるリクエストヘッダー。
// 状態変更リクエストはCSRFトークンをヘッダーで送る。
const corsAllowedHeaders = "Content-Type, " + csrfHeaderName

// NewCORSMiddleware はフロントエンドのオリジンだけにCookie付きアクセスを許可するCORSミドルウェアを返す。
// デバイスIDとCSRFのCookieを送受信するため、ワイルドカード(*)は使用しない。
//
// Originヘッダーが許可オリジンと異なる場合はCORSヘッダーを付与せず、
// プリフライトには403で応答する。Originなしのリクエスト（同一オリジンやcurl）はそのまま通す。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			if origin := r.Header.Get("Origin"); origin != "" && origin != allowedOrigin {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Set("Access-Control-Allow-Credentials", "true")
			// GET /api/csrf-token はトークンをヘッダーでも返す
			h.Set("Access-Control-Expose-Headers", csrfHeaderName)

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				h.Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
