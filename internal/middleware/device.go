// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// DeviceCookieName はブラウザを識別するデバイスIDを保持するCookieの名前。
const DeviceCookieName = "device_id"

// deviceCookieMaxAge はデバイスIDCookieの有効期間（1年）。
const deviceCookieMaxAge = 365 * 24 * 60 * 60

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// deviceIDContextKey はリクエストコンテキストにデバイスIDを格納するためのキー。
var deviceIDContextKey = contextKey("device_id")

// DeviceConfig はデバイスIDミドルウェアの設定。
type DeviceConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewDeviceMiddleware はCookieからデバイスIDを読み取り、リクエストコンテキストに注入するミドルウェアを返す。
// Cookieがない、またはUUIDとして不正な場合は新しいIDを発行してCookieに設定する。
func NewDeviceMiddleware(config DeviceConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID := ""
			if cookie, err := r.Cookie(DeviceCookieName); err == nil {
				if id, err := uuid.Parse(cookie.Value); err == nil {
					deviceID = id.String()
				}
			}

			if deviceID == "" {
				deviceID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     DeviceCookieName,
					Value:    deviceID,
					Path:     "/",
					Domain:   config.CookieDomain,
					MaxAge:   deviceCookieMaxAge,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			noteDeviceID(r.Context(), deviceID)
			ctx := context.WithValue(r.Context(), deviceIDContextKey, deviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DeviceIDFromContext はリクエストコンテキストからデバイスIDを取得する。
// デバイスIDミドルウェアを通過したリクエストでのみ有効。
func DeviceIDFromContext(ctx context.Context) (string, error) {
	deviceID, ok := ctx.Value(deviceIDContextKey).(string)
	if !ok || deviceID == "" {
		return "", fmt.Errorf("device ID not found in context")
	}
	return deviceID, nil
}

// ContextWithDeviceID はコンテキストにデバイスIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDContextKey, deviceID)
}
