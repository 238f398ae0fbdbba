package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/nadeguide/internal/config"
	"github.com/hitoshi/nadeguide/internal/middleware"
	"github.com/hitoshi/nadeguide/internal/model"
)

const (
	testDeviceID = "3e7a9c1b-5d2f-4a6e-8b0c-9d1e2f3a4b5c"
	testSteamID  = "76561198000000042"
	testJWT      = "strapi-issued-token"
)

// fakeStrapi はバックエンドのエンドポイントを模したテストサーバー。
type fakeStrapi struct {
	mu            sync.Mutex
	callbackQuery string
	meCalls       int
	server        *httptest.Server
}

func newFakeStrapi(t *testing.T) *fakeStrapi {
	t.Helper()
	f := &fakeStrapi{}
	user := model.User{ID: 42, Username: "one_way_smoke", SteamID: testSteamID}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/steam/callback", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.callbackQuery = r.URL.RawQuery
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"jwt": testJWT, "user": user})
	})
	mux.HandleFunc("GET /api/users/me", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.meCalls++
		f.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+testJWT {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(user)
	})
	for _, name := range []string{"maps", "teams", "types", "collections"} {
		mux.HandleFunc("GET /api/"+name, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data":[{"id":1,"documentId":"d1","name":"` + name + `-one"}]}`))
		})
	}

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func testConfig(strapiURL, sqlitePath string) *config.Config {
	return &config.Config{
		StrapiURL:            strapiURL,
		BackendTimeout:       5 * time.Second,
		FrontendURL:          "http://localhost:3000",
		SteamAuthURL:         config.DefaultSteamAuthURL,
		SteamExchangeMode:    "forward",
		SteamIdentityHosts:   []string{"steamcommunity.com"},
		StorageDriver:        "sqlite",
		SQLitePath:           sqlitePath,
		StorageRetentionDays: 90,
		FilterFetchTimeout:   5 * time.Second,
		ClientIdleTTL:        time.Minute,
		RateLimitGeneral:     600,
		RateLimitAuth:        600,
		ServerPort:           "0",
		CORSAllowedOrigin:    "http://localhost:3000",
		LogLevel:             "info",
	}
}

func buildTestServer(t *testing.T, cfg *config.Config) *server {
	t.Helper()
	srv, err := newServer(context.Background(), cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newServer returned error: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

func doRequest(h http.Handler, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.AddCookie(&http.Cookie{Name: middleware.DeviceCookieName, Value: testDeviceID})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestServer_SteamLoginSurvivesRestart(t *testing.T) {
	strapi := newFakeStrapi(t)
	cfg := testConfig(strapi.server.URL, filepath.Join(t.TempDir(), "nadeguide.db"))

	first := buildTestServer(t, cfg)

	identity := url.QueryEscape("https://steamcommunity.com/openid/id/" + testSteamID)
	w := doRequest(first.router, http.MethodGet, "/auth/steam/callback?openid.mode=id_res&openid.identity="+identity)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("callback status = %d, want %d\n%s", w.Code, http.StatusSeeOther, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "http://localhost:3000/" {
		t.Errorf("Location = %q, want frontend home", loc)
	}

	// クエリはそのままバックエンドへ転送される
	strapi.mu.Lock()
	forwarded := strapi.callbackQuery
	strapi.mu.Unlock()
	if !strings.Contains(forwarded, "openid.identity="+identity) {
		t.Errorf("forwarded query = %q", forwarded)
	}

	if me := doRequest(first.router, http.MethodGet, "/auth/me"); me.Code != http.StatusOK {
		t.Fatalf("/auth/me status = %d, want %d", me.Code, http.StatusOK)
	}
	first.Close()

	// 同じSQLiteファイルで再起動すると資格情報からセッションが復元される
	second := buildTestServer(t, cfg)
	me := doRequest(second.router, http.MethodGet, "/auth/me")
	if me.Code != http.StatusOK {
		t.Fatalf("/auth/me after restart status = %d, want %d", me.Code, http.StatusOK)
	}
	var user model.User
	if err := json.NewDecoder(me.Body).Decode(&user); err != nil {
		t.Fatalf("failed to decode user: %v", err)
	}
	if user.SteamID != testSteamID {
		t.Errorf("restored steam id = %q, want %q", user.SteamID, testSteamID)
	}

	strapi.mu.Lock()
	defer strapi.mu.Unlock()
	if strapi.meCalls != 1 {
		t.Errorf("profile fetches = %d, want 1", strapi.meCalls)
	}
}

func TestServer_FiltersAndMetrics(t *testing.T) {
	strapi := newFakeStrapi(t)
	srv := buildTestServer(t, testConfig(strapi.server.URL, filepath.Join(t.TempDir(), "nadeguide.db")))

	w := doRequest(srv.router, http.MethodGet, "/api/filters")
	if w.Code != http.StatusOK {
		t.Fatalf("/api/filters status = %d, want %d\n%s", w.Code, http.StatusOK, w.Body.String())
	}

	var body struct {
		Maps        []model.FilterOption `json:"maps"`
		Collections []model.FilterOption `json:"collections"`
		Loaded      bool                 `json:"loaded"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode filters: %v", err)
	}
	if !body.Loaded || len(body.Maps) != 1 || body.Maps[0].Name != "maps-one" {
		t.Errorf("filters = %+v", body)
	}
	if len(body.Collections) != 1 || body.Collections[0].Name != "collections-one" {
		t.Errorf("collections = %+v", body.Collections)
	}

	metrics := doRequest(srv.router, http.MethodGet, "/metrics")
	if metrics.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", metrics.Code)
	}
	for _, name := range []string{"nadeguide_filter_fetch_total", "nadeguide_session_init_total", "nadeguide_http_status_total", "go_goroutines"} {
		if !strings.Contains(metrics.Body.String(), name) {
			t.Errorf("/metrics missing %s", name)
		}
	}

	if health := doRequest(srv.router, http.MethodGet, "/health"); health.Code != http.StatusOK {
		t.Errorf("/health status = %d, want %d", health.Code, http.StatusOK)
	}
}

func TestServer_CleanupJobOnlyForPrunableStorage(t *testing.T) {
	strapi := newFakeStrapi(t)

	cfg := testConfig(strapi.server.URL, filepath.Join(t.TempDir(), "nadeguide.db"))
	cfg.StorageRetentionDays = 30
	sqliteSrv := buildTestServer(t, cfg)
	if sqliteSrv.cleanup == nil {
		t.Fatal("sqlite storage should get a cleanup job")
	}
	if sqliteSrv.cleanup.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", sqliteSrv.cleanup.RetentionDays)
	}
	if err := sqliteSrv.cleanup.Run(context.Background()); err != nil {
		t.Errorf("cleanup Run returned error: %v", err)
	}

	memCfg := testConfig(strapi.server.URL, "")
	memCfg.StorageDriver = "memory"
	if memSrv := buildTestServer(t, memCfg); memSrv.cleanup != nil {
		t.Error("memory storage should not get a cleanup job")
	}
}
