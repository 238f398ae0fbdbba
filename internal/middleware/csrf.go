package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/nadeguide/internal/model"
)

const (
	// csrfCookieName はCSRFトークンを保持するCookieの名前。
	// フロントエンドからJavaScriptで読み取れるよう、HttpOnlyではない。
	csrfCookieName = "csrf_token"

	// csrfHeaderName はリクエストヘッダーからCSRFトークンを読み取る際のヘッダー名。
	csrfHeaderName = "X-CSRF-Token"

	csrfNonceSize = 16
)

// CSRFConfig はCSRFミドルウェアの設定。
// トークンはSecretでデバイスIDに署名されるため、別デバイスのトークンは通らない。
type CSRFConfig struct {
	Secret       []byte
	CookieSecure bool
	CookieDomain string
}

// NewCSRFToken はデバイスIDに紐づいたトークン（nonce.署名）を生成する。
func NewCSRFToken(secret []byte, deviceID string) (string, error) {
	nonce := make([]byte, csrfNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate csrf nonce: %w", err)
	}
	n := hex.EncodeToString(nonce)
	return n + "." + signCSRF(secret, deviceID, n), nil
}

func signCSRF(secret []byte, deviceID, nonce string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(deviceID))
	mac.Write([]byte{0})
	mac.Write([]byte(nonce))
	return hex.EncodeToString(mac.Sum(nil))
}

// validCSRFToken はトークンがこのデバイス向けに署名されたものかを判定する。
func validCSRFToken(secret []byte, deviceID, token string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" || deviceID == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(signCSRF(secret, deviceID, nonce)))
}

// NewCSRFMiddleware はCSRFトークンの発行・検証ミドルウェアを返す。
// デバイスIDミドルウェアの内側に置く。
// 安全なメソッド（GET, HEAD, OPTIONS）は検証せず、有効なトークンCookieがなければ発行する。
// 状態変更メソッドはCookieとヘッダーの一致と署名の両方を要求する。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID, _ := DeviceIDFromContext(r.Context())

			if isSafeMethod(r.Method) {
				if _, ok := currentCSRFToken(r, config, deviceID); !ok && deviceID != "" {
					issueCSRFToken(w, config, deviceID)
				}
				next.ServeHTTP(w, r)
				return
			}

			if reason := checkCSRF(r, config, deviceID); reason != "" {
				slog.Warn("CSRF validation failed",
					slog.String("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewCSRFInvalidError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// checkCSRF は検証に失敗した理由を返す。成功時は空文字。
func checkCSRF(r *http.Request, config CSRFConfig, deviceID string) string {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return "missing cookie token"
	}
	header := r.Header.Get(csrfHeaderName)
	if header == "" {
		return "missing header token"
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return "token mismatch"
	}
	if !validCSRFToken(config.Secret, deviceID, header) {
		return "token not issued for this device"
	}
	return ""
}

// NewCSRFTokenHandler はCSRFトークン取得エンドポイントのハンドラーを返す。
// GET /api/csrf-token
// このデバイス向けの有効なCookieがあればそれを返し、なければ新規発行する。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID, err := DeviceIDFromContext(r.Context())
		if err != nil {
			slog.Error("csrf token requested without device id")
			WriteInternalServerError(w)
			return
		}

		token, ok := currentCSRFToken(r, config, deviceID)
		if !ok {
			token = issueCSRFToken(w, config, deviceID)
			if token == "" {
				WriteInternalServerError(w)
				return
			}
		}

		w.Header().Set(csrfHeaderName, token)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"token": token,
		})
	})
}

// currentCSRFToken はリクエストのCookieにこのデバイス向けの有効なトークンがあれば返す。
func currentCSRFToken(r *http.Request, config CSRFConfig, deviceID string) (string, bool) {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || !validCSRFToken(config.Secret, deviceID, cookie.Value) {
		return "", false
	}
	return cookie.Value, true
}

// issueCSRFToken は新しいトークンを生成してCookieに設定する。失敗時は空文字。
func issueCSRFToken(w http.ResponseWriter, config CSRFConfig, deviceID string) string {
	token, err := NewCSRFToken(config.Secret, deviceID)
	if err != nil {
		slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
		return ""
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   86400, // 24時間
		HttpOnly: false, // フロントエンドから読み取り可能
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return token
}

// isSafeMethod はHTTPメソッドが安全（読み取り専用）かどうかを判定する。
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
