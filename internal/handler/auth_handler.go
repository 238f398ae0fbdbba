// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/nadeguide/internal/middleware"
	"github.com/hitoshi/nadeguide/internal/model"
	"github.com/hitoshi/nadeguide/internal/platform"
	"github.com/hitoshi/nadeguide/internal/steamauth"
	"github.com/hitoshi/nadeguide/internal/strapi"
)

const (
	// popupCookieName はログインがポップアップで開始されたことを示すCookieの名前。
	popupCookieName  = "steam_auth_mode"
	popupCookieValue = "popup"
	popupCookiePath  = "/auth/steam"

	// SteamCallbackPath はSteamからの戻り先パス。
	SteamCallbackPath = "/auth/steam/callback"
)

// CallbackHandler はSteamコールバックの状態機械。steamauth.Handlerが実装する。
type CallbackHandler interface {
	Handle(ctx context.Context, rawQuery string, win platform.Window, session steamauth.SessionLogin) steamauth.Outcome
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL  string
	SteamAuthURL string
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はSteamログインとセッション関連のHTTPハンドラー。
type AuthHandler struct {
	clients  ClientRegistry
	callback CallbackHandler
	config   AuthHandlerConfig
	logger   *slog.Logger
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(clients ClientRegistry, callback CallbackHandler, config AuthHandlerConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		clients:  clients,
		callback: callback,
		config:   config,
		logger:   logger,
	}
}

// SteamLogin はSteam OpenIDフローを開始する。
// GET /auth/steam/login[?popup=1]
func (h *AuthHandler) SteamLogin(w http.ResponseWriter, r *http.Request) {
	returnTo := strings.TrimRight(h.config.FrontendURL, "/") + SteamCallbackPath
	loginURL, err := steamauth.LoginURL(h.config.SteamAuthURL, returnTo)
	if err != nil {
		h.logger.Error("failed to build steam login url", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// ポップアップかどうかをコールバックまで持ち回る
	if r.URL.Query().Get("popup") == "1" {
		http.SetCookie(w, &http.Cookie{
			Name:     popupCookieName,
			Value:    popupCookieValue,
			Path:     popupCookiePath,
			Domain:   h.config.CookieDomain,
			MaxAge:   600, // 10分
			HttpOnly: true,
			Secure:   h.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	} else {
		h.clearPopupCookie(w)
	}

	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// SteamCallback はSteam OpenIDのコールバックを処理する。
// GET /auth/steam/callback?openid.*
func (h *AuthHandler) SteamCallback(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFromRequest(w, r, h.clients, h.logger)
	if !ok {
		return
	}

	popup := false
	if cookie, err := r.Cookie(popupCookieName); err == nil && cookie.Value == popupCookieValue {
		popup = true
	}
	h.clearPopupCookie(w)

	win := newHTTPWindow(w, r, h.config.FrontendURL, popup, h.logger)
	ctx := r.Context()
	if c.BackendCookies != nil {
		ctx = strapi.ContextWithCookieJar(ctx, c.BackendCookies)
	}
	out := h.callback.Handle(ctx, r.URL.RawQuery, win, c.Session)

	if !win.Finished() {
		// 状態機械は必ずクローズかリダイレクトで終わるため、ここには到達しない想定
		h.logger.Error("steam callback finished without a response",
			slog.String("state", string(out.State)),
			slog.String("mode", string(out.Mode)),
		)
		win.Redirect(steamauth.RedirectAuthFailed)
	}
}

// LoginError はログイン失敗時の遷移先。エラー内容を記録してトップへ戻す。
// GET /login?error=xxx
func (h *AuthHandler) LoginError(w http.ResponseWriter, r *http.Request) {
	if reason := r.URL.Query().Get("error"); reason != "" {
		h.logger.Warn("login error", slog.String("error", reason))
	}
	http.Redirect(w, r, strings.TrimRight(h.config.FrontendURL, "/")+steamauth.RedirectHome, http.StatusSeeOther)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFromRequest(w, r, h.clients, h.logger)
	if !ok {
		return
	}

	if err := c.Session.Logout(r.Context()); err != nil {
		// 永続化に失敗してもユーザーはクリア済み
		h.logger.Error("failed to logout", slog.String("error", err.Error()))
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFromRequest(w, r, h.clients, h.logger)
	if !ok {
		return
	}

	user := c.Session.Current()
	if user == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, h.logger, http.StatusOK, user)
}

func (h *AuthHandler) clearPopupCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     popupCookieName,
		Value:    "",
		Path:     popupCookiePath,
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
