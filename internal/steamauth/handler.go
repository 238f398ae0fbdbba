// Package steamauth はSteam OpenIDコールバックの処理を提供する。
// コールバックは状態機械として処理され、すべての経路がウィンドウのクローズかリダイレクトで終了する。
package steamauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/hitoshi/nadeguide/internal/model"
	"github.com/hitoshi/nadeguide/internal/platform"
	"github.com/hitoshi/nadeguide/internal/security"
	"github.com/hitoshi/nadeguide/internal/strapi"
)

// State はコールバック処理の状態。
type State string

const (
	StateStart        State = "start"
	StateExtractingID State = "extracting_id"
	StateExchanging   State = "exchanging"
	StateSuccess      State = "success"
	StateFailure      State = "failure"
)

// Mode はコールバックが開かれたウィンドウの種別。
type Mode string

const (
	// ModePopup はオープナーを持つポップアップとして開かれた場合。
	ModePopup Mode = "popup"
	// ModeDirect はトップレベルへのリダイレクトで到達した場合。
	ModeDirect Mode = "direct"
)

// オープナーへ送信するメッセージ種別。
const (
	MessageSuccess = "STEAM_AUTH_SUCCESS"
	MessageError   = "STEAM_AUTH_ERROR"
)

// リダイレクト先。
const (
	RedirectHome       = "/"
	RedirectNoSteamID  = "/login?error=no-steam-id"
	RedirectAuthFailed = "/login?error=steam-auth-failed"
)

const identityParam = "openid.identity"

// ErrNoSteamID はクエリから有効なSteam IDを抽出できないことを表す。
var ErrNoSteamID = errors.New("no-steam-id")

// ErrUnsafeTargetOrigin はメッセージ送信先オリジンが確定できないことを表す。
var ErrUnsafeTargetOrigin = errors.New("refusing to post message without a concrete target origin")

// SuccessData は成功メッセージのペイロード。
type SuccessData struct {
	User model.User `json:"user"`
	JWT  string     `json:"jwt"`
}

// Message はオープナーへ送信するクロスウィンドウメッセージ。
type Message struct {
	Type  string       `json:"type"`
	Data  *SuccessData `json:"data,omitempty"`
	Error string       `json:"error,omitempty"`
}

// SessionLogin はコールバック成功時にセッションを確立する。session.Storeが実装する。
type SessionLogin interface {
	Login(ctx context.Context, user model.User, jwt string) error
}

// OutcomeRecorder は処理結果を記録する。metrics.Collectorが実装する。
type OutcomeRecorder interface {
	RecordAuthOutcome(state, mode string)
}

// Outcome はコールバック処理の最終結果。ログとメトリクスに使用する。
type Outcome struct {
	State    State
	Mode     Mode
	Reason   string
	Location string
	SteamID  string
}

// Handler はSteamコールバックの状態機械。
type Handler struct {
	exchanger Exchanger
	guard     security.IdentityGuardService
	recorder  OutcomeRecorder
	logger    *slog.Logger
}

// NewHandler はHandlerを生成する。
func NewHandler(exchanger Exchanger, guard security.IdentityGuardService, recorder OutcomeRecorder, logger *slog.Logger) *Handler {
	return &Handler{
		exchanger: exchanger,
		guard:     guard,
		recorder:  recorder,
		logger:    logger,
	}
}

// Handle はコールバックのクエリを処理する。
// 成功時はセッションを確立してからウィンドウへ結果を通知する。
func (h *Handler) Handle(ctx context.Context, rawQuery string, win platform.Window, session SessionLogin) Outcome {
	opener, hasOpener := win.Opener()
	out := Outcome{State: StateStart, Mode: ModeDirect}
	if hasOpener {
		out.Mode = ModePopup
	}

	h.transition(&out, StateExtractingID)
	steamID, err := h.extractSteamID(rawQuery)
	if err != nil {
		h.logger.Warn("no steam id in callback", slog.String("error", err.Error()))
		return h.fail(&out, win, opener, ErrNoSteamID)
	}
	out.SteamID = steamID

	h.transition(&out, StateExchanging)
	resp, err := h.exchanger.Exchange(ctx, rawQuery, steamID)
	if err == nil && (resp == nil || resp.User == nil || resp.JWT == "") {
		err = strapi.ErrMalformedResponse
	}
	if err != nil {
		h.logger.Error("steam auth exchange failed",
			slog.String("steam_id", steamID),
			slog.String("error", err.Error()),
		)
		return h.fail(&out, win, opener, err)
	}

	if err := session.Login(ctx, *resp.User, resp.JWT); err != nil {
		h.logger.Error("failed to establish session", slog.String("error", err.Error()))
		return h.fail(&out, win, opener, err)
	}

	h.transition(&out, StateSuccess)
	if hasOpener {
		msg := Message{Type: MessageSuccess, Data: &SuccessData{User: *resp.User, JWT: resp.JWT}}
		h.postAndClose(win, opener, msg)
	} else {
		h.redirect(win, &out, RedirectHome)
	}
	return h.finish(out)
}

// extractSteamID はクエリのopenid.identityから末尾のSteam IDを取り出す。
func (h *Handler) extractSteamID(rawQuery string) (string, error) {
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("invalid callback query: %w", err)
	}
	identity := query.Get(identityParam)
	if identity == "" {
		return "", fmt.Errorf("missing %s", identityParam)
	}
	return h.guard.SteamID(identity)
}

// fail はFAILURE状態へ遷移し、モードに応じて通知またはリダイレクトする。
func (h *Handler) fail(out *Outcome, win platform.Window, opener platform.Opener, cause error) Outcome {
	h.transition(out, StateFailure)
	out.Reason = cause.Error()

	if out.Mode == ModePopup {
		h.postAndClose(win, opener, Message{Type: MessageError, Error: cause.Error()})
		return h.finish(*out)
	}

	location := RedirectAuthFailed
	if errors.Is(cause, ErrNoSteamID) {
		location = RedirectNoSteamID
	}
	h.redirect(win, out, location)
	return h.finish(*out)
}

// postAndClose は自身のオリジン宛てにメッセージを送信してウィンドウを閉じる。
// オリジンが確定できない場合は送信せずに閉じる。
func (h *Handler) postAndClose(win platform.Window, opener platform.Opener, msg Message) {
	origin := win.Origin()
	if origin == "" || origin == "*" {
		h.logger.Error("failed to post auth message", slog.String("error", ErrUnsafeTargetOrigin.Error()))
	} else if err := opener.PostMessage(msg, origin); err != nil {
		h.logger.Error("failed to post auth message", slog.String("error", err.Error()))
	}

	if err := win.Close(); err != nil {
		h.logger.Error("failed to close auth window", slog.String("error", err.Error()))
	}
}

func (h *Handler) redirect(win platform.Window, out *Outcome, location string) {
	out.Location = location
	if err := win.Redirect(location); err != nil {
		h.logger.Error("failed to redirect", slog.String("location", location), slog.String("error", err.Error()))
	}
}

func (h *Handler) transition(out *Outcome, next State) {
	h.logger.Debug("steam auth state",
		slog.String("from", string(out.State)),
		slog.String("to", string(next)),
		slog.String("mode", string(out.Mode)),
	)
	out.State = next
}

func (h *Handler) finish(out Outcome) Outcome {
	if h.recorder != nil {
		h.recorder.RecordAuthOutcome(string(out.State), string(out.Mode))
	}
	h.logger.Info("steam auth finished",
		slog.String("state", string(out.State)),
		slog.String("mode", string(out.Mode)),
		slog.String("location", out.Location),
	)
	return out
}
