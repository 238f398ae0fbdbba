package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/nadeguide/internal/client"
	"github.com/hitoshi/nadeguide/internal/middleware"
)

// maxRequestBodySize はJSONリクエストボディの上限（64KB）。
const maxRequestBodySize = 64 << 10

// ClientRegistry はデバイスIDに対応するクライアントコンテキストを返す。client.Registryが実装する。
type ClientRegistry interface {
	Get(ctx context.Context, deviceID string) *client.Context
}

// clientFromRequest はリクエストのデバイスIDからクライアントコンテキストを取得する。
// デバイスIDミドルウェアを通過していない場合は500を書き込みfalseを返す。
func clientFromRequest(w http.ResponseWriter, r *http.Request, clients ClientRegistry, logger *slog.Logger) (*client.Context, bool) {
	deviceID, err := middleware.DeviceIDFromContext(r.Context())
	if err != nil {
		logger.Error("device id missing from request", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return clients.Get(r.Context(), deviceID), true
}

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, logger *slog.Logger, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディを厳格にデコードする。未知のフィールドはエラーとする。
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
