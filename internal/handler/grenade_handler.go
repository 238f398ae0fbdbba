package handler

import (
	"log/slog"
	"net/http"
)

// GrenadeHandler はグレネード更新通知のHTTPハンドラー。
type GrenadeHandler struct {
	clients ClientRegistry
	logger  *slog.Logger
}

// NewGrenadeHandler はGrenadeHandlerを生成する。
func NewGrenadeHandler(clients ClientRegistry, logger *slog.Logger) *GrenadeHandler {
	return &GrenadeHandler{clients: clients, logger: logger}
}

// GetTick は最後の変更時刻を返す。
// GET /api/grenades/tick
func (h *GrenadeHandler) GetTick(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFromRequest(w, r, h.clients, h.logger)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, c.Grenades.Current())
}

// NotifyChanged はグレネードの変更を通知し、新しい時刻を返す。
// POST /api/grenades/changed
func (h *GrenadeHandler) NotifyChanged(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFromRequest(w, r, h.clients, h.logger)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, c.Grenades.NotifyChange())
}
