package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// requestInfo は内側のミドルウェアで判明した値を外側のログ出力に渡す。
// デバイスIDミドルウェアはRecovery・Loggingより内側で動くため、
// 外側からはコンテキストの値を直接参照できない。
type requestInfo struct {
	deviceID string
}

type requestInfoKey struct{}

// withRequestInfo はリクエストにrequestInfoを割り当てる。既にあればそれを再利用する。
func withRequestInfo(r *http.Request) (*http.Request, *requestInfo) {
	if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
		return r, info
	}
	info := &requestInfo{}
	return r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)), info
}

// noteDeviceID は外側のミドルウェアのためにデバイスIDを記録する。
func noteDeviceID(ctx context.Context, deviceID string) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.deviceID = deviceID
	}
}

// loggedDeviceID はログに出すデバイスIDを返す。ない場合は空文字。
func loggedDeviceID(ctx context.Context, info *requestInfo) string {
	if deviceID, err := DeviceIDFromContext(ctx); err == nil {
		return deviceID
	}
	return info.deviceID
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードと書き込みバイト数を記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
	bytes      int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Unwrap はhttp.ResponseControllerのために元のResponseWriterを返す。
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// NewLoggingMiddleware はリクエストごとに1行のJSON構造化ログを出力するミドルウェアを返す。
// method, path, route, status, bytes, duration_ms と、判明していればdevice_idを含む。
// 5xxはError、4xxはWarnで出力する。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			r, info := withRequestInfo(r)
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Int("bytes", rec.bytes),
				slog.Float64("duration_ms", float64(time.Since(start).Nanoseconds())/float64(time.Millisecond)),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					args = append(args, slog.String("route", pattern))
				}
			}
			if deviceID := loggedDeviceID(r.Context(), info); deviceID != "" {
				args = append(args, slog.String("device_id", deviceID))
			}

			level := slog.LevelInfo
			switch {
			case rec.statusCode >= 500:
				level = slog.LevelError
			case rec.statusCode >= 400:
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}
