package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware はハンドラー内のpanicを500の統一エラーレスポンスに変換するミドルウェアを返す。
// どのデバイスのリクエストで発生したかを追えるよう、device_idがあればログに含める。
// http.ErrAbortHandlerはnet/httpによる接続中断のため、そのまま再送出する。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, info := withRequestInfo(r)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				args := []any{
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				}
				if deviceID := loggedDeviceID(r.Context(), info); deviceID != "" {
					args = append(args, slog.String("device_id", deviceID))
				}
				args = append(args, slog.String("stack", string(debug.Stack())))
				logger.ErrorContext(r.Context(), "panic recovered", args...)

				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
