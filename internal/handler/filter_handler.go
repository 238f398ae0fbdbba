package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/nadeguide/internal/middleware"
	"github.com/hitoshi/nadeguide/internal/model"
)

// FilterCache はフィルタ参照データのキャッシュ。filters.Cacheが実装する。
type FilterCache interface {
	Load(ctx context.Context) error
	Reset()
	Loaded() bool
	Data() model.FilterData
}

// filtersResponse はフィルタ参照データのレスポンス。
type filtersResponse struct {
	model.FilterData
	Loaded bool `json:"loaded"`
}

// FilterHandler はフィルタ参照データと選択状態のHTTPハンドラー。
type FilterHandler struct {
	cache   FilterCache
	clients ClientRegistry
	logger  *slog.Logger
}

// NewFilterHandler はFilterHandlerを生成する。
func NewFilterHandler(cache FilterCache, clients ClientRegistry, logger *slog.Logger) *FilterHandler {
	return &FilterHandler{cache: cache, clients: clients, logger: logger}
}

// GetFilters は参照データを読み込んで返す。読み込み済みの場合は再取得しない。
// GET /api/filters
func (h *FilterHandler) GetFilters(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Load(r.Context()); err != nil {
		h.logger.Error("failed to load filter data", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadGateway, model.NewFilterUnavailableError())
		return
	}

	writeJSON(w, h.logger, http.StatusOK, filtersResponse{
		FilterData: normalizeFilterData(h.cache.Data()),
		Loaded:     h.cache.Loaded(),
	})
}

// ResetFilters はキャッシュを破棄する。次回のGetFiltersで再取得される。
// POST /api/filters/reset
func (h *FilterHandler) ResetFilters(w http.ResponseWriter, r *http.Request) {
	h.cache.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// GetSelection は現在のフィルタ選択を返す。
// GET /api/filters/selection
func (h *FilterHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFromRequest(w, r, h.clients, h.logger)
	if !ok {
		return
	}
	writeJSON(w, h.logger, http.StatusOK, c.Selection.Get())
}

// UpdateSelection は指定されたフィールドだけを選択に反映する。
// PUT /api/filters/selection
func (h *FilterHandler) UpdateSelection(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFromRequest(w, r, h.clients, h.logger)
	if !ok {
		return
	}

	var patch model.FilterSelection
	if err := decodeJSON(r, &patch); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidBodyError(err.Error()))
		return
	}
	writeJSON(w, h.logger, http.StatusOK, c.Selection.Merge(patch))
}

// ResetSelection は選択を既定値に戻す。
// DELETE /api/filters/selection
func (h *FilterHandler) ResetSelection(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFromRequest(w, r, h.clients, h.logger)
	if !ok {
		return
	}
	c.Selection.Reset()
	writeJSON(w, h.logger, http.StatusOK, c.Selection.Get())
}

// normalizeFilterData はnilのスライスを空スライスに置き換える。
func normalizeFilterData(data model.FilterData) model.FilterData {
	out := model.EmptyFilterData()
	if data.Maps != nil {
		out.Maps = data.Maps
	}
	if data.Teams != nil {
		out.Teams = data.Teams
	}
	if data.Types != nil {
		out.Types = data.Types
	}
	if data.Collections != nil {
		out.Collections = data.Collections
	}
	return out
}
