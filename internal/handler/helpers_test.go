package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/nadeguide/internal/client"
	"github.com/hitoshi/nadeguide/internal/middleware"
	"github.com/hitoshi/nadeguide/internal/model"
	"github.com/hitoshi/nadeguide/internal/storage"
)

const (
	testFrontendURL = "http://localhost:3000"
	testDeviceID    = "5f0c8e9a-3b1d-4c2e-9a7f-1e2d3c4b5a69"
)

// --- モック定義 ---

type mockProfileFetcher struct {
	meFn func(ctx context.Context, jwt string) (*model.User, error)
}

func (m *mockProfileFetcher) Me(ctx context.Context, jwt string) (*model.User, error) {
	if m.meFn != nil {
		return m.meFn(ctx, jwt)
	}
	return nil, nil
}

// --- ヘルパー ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newTestRegistry はメモリストレージを使うクライアントレジストリを返す。
func newTestRegistry(t *testing.T) (*client.Registry, *storage.MemoryStorage) {
	t.Helper()
	base := storage.NewMemoryStorage()
	reg := client.NewRegistry(base, client.Deps{
		Profile: &mockProfileFetcher{},
		Logger:  newTestLogger(),
	}, 0)
	return reg, base
}

// newDeviceRequest はデバイスIDを注入したリクエストを生成する。
func newDeviceRequest(method, target string, body []byte) *http.Request {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	return req.WithContext(middleware.ContextWithDeviceID(req.Context(), testDeviceID))
}

// withURLParam はchiのURLパラメータをリクエストに設定する。
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody[T any](t *testing.T, body io.Reader) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return v
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
