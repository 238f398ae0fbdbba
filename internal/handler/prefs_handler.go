package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/nadeguide/internal/middleware"
	"github.com/hitoshi/nadeguide/internal/model"
)

// updatePreferenceRequest はPUT /api/prefs/{key}のリクエストボディ。
type updatePreferenceRequest struct {
	Value string `json:"value"`
}

// preferenceResponse は単一の設定値のレスポンス。
type preferenceResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// PrefsHandler はUI設定値のHTTPハンドラー。
type PrefsHandler struct {
	clients ClientRegistry
	logger  *slog.Logger
}

// NewPrefsHandler はPrefsHandlerを生成する。
func NewPrefsHandler(clients ClientRegistry, logger *slog.Logger) *PrefsHandler {
	return &PrefsHandler{clients: clients, logger: logger}
}

// ListPreferences はすべての設定値を返す。
// GET /api/prefs
func (h *PrefsHandler) ListPreferences(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFromRequest(w, r, h.clients, h.logger)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, c.Prefs.Snapshot())
}

// UpdatePreference は設定値を更新する。更新は永続ストレージへ書き戻される。
// PUT /api/prefs/{key}
func (h *PrefsHandler) UpdatePreference(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFromRequest(w, r, h.clients, h.logger)
	if !ok {
		return
	}

	key := chi.URLParam(r, "key")
	store, found := c.Prefs.Lookup(key)
	if !found {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUnknownPreferenceError(key))
		return
	}

	var req updatePreferenceRequest
	if err := decodeJSON(r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError(err.Error()))
		return
	}
	if req.Value == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError("value is required"))
		return
	}

	store.Set(req.Value)
	writeJSON(w, h.logger, http.StatusOK, preferenceResponse{Key: key, Value: store.Get()})
}
