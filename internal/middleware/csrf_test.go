package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const (
	csrfTestDevice  = "0b0f9a3e-6a4e-4c55-9a43-5b1f0c6f9e01"
	csrfOtherDevice = "7d1c2f5a-1111-4e2b-8c3d-9e8f7a6b5c4d"
)

var csrfTestSecret = []byte("test-csrf-secret")

func newCSRFTestConfig() CSRFConfig {
	return CSRFConfig{Secret: csrfTestSecret}
}

// newCSRFRequest はデバイスIDをコンテキストに持つリクエストを生成する。
func newCSRFRequest(method, deviceID string) *http.Request {
	req := httptest.NewRequest(method, "/api/test", nil)
	if deviceID != "" {
		req = req.WithContext(ContextWithDeviceID(req.Context(), deviceID))
	}
	return req
}

func mustCSRFToken(t *testing.T, deviceID string) string {
	t.Helper()
	token, err := NewCSRFToken(csrfTestSecret, deviceID)
	if err != nil {
		t.Fatalf("NewCSRFToken returned error: %v", err)
	}
	return token
}

func findCSRFCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == csrfCookieName {
			return c
		}
	}
	return nil
}

func TestCSRFMiddleware_SafeMethods_PassThroughWithoutToken(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			mw := NewCSRFMiddleware(newCSRFTestConfig())

			handlerCalled := false
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				w.WriteHeader(http.StatusOK)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, newCSRFRequest(method, csrfTestDevice))

			if !handlerCalled {
				t.Fatalf("handler should have been called for %s request", method)
			}
		})
	}
}

func TestCSRFMiddleware_GETRequest_IssuesDeviceBoundCookie(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{Secret: csrfTestSecret, CookieDomain: "example.com"})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, newCSRFRequest(http.MethodGet, csrfTestDevice))

	c := findCSRFCookie(w.Result())
	if c == nil {
		t.Fatal("expected CSRF cookie to be set on GET")
	}
	if c.HttpOnly {
		t.Error("CSRF cookie must be readable from JavaScript")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("cookie SameSite = %v, want Lax", c.SameSite)
	}
	if !validCSRFToken(csrfTestSecret, csrfTestDevice, c.Value) {
		t.Errorf("issued token %q should validate for its device", c.Value)
	}
	if validCSRFToken(csrfTestSecret, csrfOtherDevice, c.Value) {
		t.Error("issued token must not validate for another device")
	}
}

func TestCSRFMiddleware_GETRequest_ValidCookie_DoesNotReplace(t *testing.T) {
	mw := NewCSRFMiddleware(newCSRFTestConfig())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := newCSRFRequest(http.MethodGet, csrfTestDevice)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: mustCSRFToken(t, csrfTestDevice)})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if c := findCSRFCookie(w.Result()); c != nil {
		t.Errorf("valid cookie should not be replaced, got new value %q", c.Value)
	}
}

func TestCSRFMiddleware_GETRequest_ForeignCookie_IsReplaced(t *testing.T) {
	mw := NewCSRFMiddleware(newCSRFTestConfig())
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := newCSRFRequest(http.MethodGet, csrfTestDevice)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: mustCSRFToken(t, csrfOtherDevice)})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	c := findCSRFCookie(w.Result())
	if c == nil || !validCSRFToken(csrfTestSecret, csrfTestDevice, c.Value) {
		t.Error("token for another device should be replaced with one for this device")
	}
}

func TestCSRFMiddleware_StateChangingRequests_Rejected(t *testing.T) {
	own := func(t *testing.T) string { return mustCSRFToken(t, csrfTestDevice) }

	tests := []struct {
		name   string
		cookie func(t *testing.T) string
		header func(t *testing.T, cookie string) string
	}{
		{"no cookie", nil, func(t *testing.T, _ string) string { return own(t) }},
		{"no header", own, nil},
		{"mismatch", own, func(t *testing.T, _ string) string { return own(t) }},
		{"other device token", func(t *testing.T) string { return mustCSRFToken(t, csrfOtherDevice) },
			func(_ *testing.T, cookie string) string { return cookie }},
		{"unsigned token", func(*testing.T) string { return "token-abc" },
			func(_ *testing.T, cookie string) string { return cookie }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := NewCSRFMiddleware(newCSRFTestConfig())
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := newCSRFRequest(http.MethodPost, csrfTestDevice)
			cookie := ""
			if tt.cookie != nil {
				cookie = tt.cookie(t)
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: cookie})
			}
			if tt.header != nil {
				req.Header.Set(csrfHeaderName, tt.header(t, cookie))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusForbidden {
				t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body.Code != "CSRF_INVALID" {
				t.Errorf("code = %q, want CSRF_INVALID", body.Code)
			}
		})
	}
}

func TestCSRFMiddleware_StateChangingRequest_ValidToken_PassesThrough(t *testing.T) {
	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			mw := NewCSRFMiddleware(newCSRFTestConfig())

			handlerCalled := false
			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
			}))

			token := mustCSRFToken(t, csrfTestDevice)
			req := newCSRFRequest(method, csrfTestDevice)
			req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: token})
			req.Header.Set(csrfHeaderName, token)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if !handlerCalled {
				t.Fatalf("%s with valid token should pass, status = %d", method, w.Code)
			}
		})
	}
}

func TestCSRFMiddleware_DifferentSecret_Rejected(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{Secret: []byte("rotated")})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	token := mustCSRFToken(t, csrfTestDevice)
	req := newCSRFRequest(http.MethodPost, csrfTestDevice)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: token})
	req.Header.Set(csrfHeaderName, token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestCSRFTokenHandler_SetsTokenCookieAndReturnsJSON(t *testing.T) {
	h := NewCSRFTokenHandler(newCSRFTestConfig())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, newCSRFRequest(http.MethodGet, csrfTestDevice))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !strings.Contains(body.Token, ".") {
		t.Errorf("token %q should be nonce.signature", body.Token)
	}

	c := findCSRFCookie(resp)
	if c == nil {
		t.Fatal("expected CSRF cookie to be set")
	}
	if c.Value != body.Token {
		t.Errorf("cookie value = %q, response token = %q; should match", c.Value, body.Token)
	}
	// クロスオリジンのフロントエンドはCORSで公開されたヘッダーから読む
	if got := resp.Header.Get(csrfHeaderName); got != body.Token {
		t.Errorf("%s header = %q, want %q", csrfHeaderName, got, body.Token)
	}
}

func TestCSRFTokenHandler_ValidCookie_ReturnsSameToken(t *testing.T) {
	h := NewCSRFTokenHandler(newCSRFTestConfig())
	existing := mustCSRFToken(t, csrfTestDevice)

	req := newCSRFRequest(http.MethodGet, csrfTestDevice)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: existing})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Token != existing {
		t.Errorf("token = %q, want existing %q", body.Token, existing)
	}
	if findCSRFCookie(w.Result()) != nil {
		t.Error("existing valid cookie should not be reissued")
	}
}

func TestCSRFTokenHandler_NoDevice_Returns500(t *testing.T) {
	h := NewCSRFTokenHandler(newCSRFTestConfig())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, newCSRFRequest(http.MethodGet, ""))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
