package handler

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/nadeguide/internal/middleware"
	"github.com/hitoshi/nadeguide/internal/platform"
)

// errWindowFinished はレスポンス確定後にウィンドウ操作が行われたことを表す。
var errWindowFinished = errors.New("auth window already finished")

// bridgeTemplate はオープナーへメッセージを送信してポップアップを閉じるページ。
// html/templateがscript内の値をJSリテラルとしてエスケープする。
// scriptにはセキュリティヘッダーで発行したCSPナンスを付与する。
var bridgeTemplate = template.Must(template.New("bridge").Parse(`<!DOCTYPE html>
<html lang="ja">
<head><meta charset="utf-8"><title>Steam</title></head>
<body>
<script{{with .Nonce}} nonce="{{.}}"{{end}}>
(function () {
{{- if .HasMessage}}
  if (window.opener) {
    window.opener.postMessage({{.Message}}, {{.Origin}});
  }
{{- end}}
  window.close();
})();
</script>
</body>
</html>
`))

type bridgeData struct {
	Nonce      string
	HasMessage bool
	Message    any
	Origin     string
}

// httpWindow はコールバックのレスポンスをplatform.Windowとして扱うアダプター。
// ポップアップモードではPostMessageの内容をブリッジページとして書き出し、
// ダイレクトモードでは303でリダイレクトする。
type httpWindow struct {
	w       http.ResponseWriter
	r       *http.Request
	origin  string
	baseURL string
	popup   bool
	logger  *slog.Logger

	pending  *bridgeData
	finished bool
}

func newHTTPWindow(w http.ResponseWriter, r *http.Request, frontendURL string, popup bool, logger *slog.Logger) *httpWindow {
	return &httpWindow{
		w:       w,
		r:       r,
		origin:  originOf(frontendURL),
		baseURL: strings.TrimRight(frontendURL, "/"),
		popup:   popup,
		logger:  logger,
	}
}

// Opener はポップアップモードの場合のみオープナーを返す。
func (win *httpWindow) Opener() (platform.Opener, bool) {
	if !win.popup {
		return nil, false
	}
	return httpOpener{win: win}, true
}

// Origin はフロントエンドのオリジンを返す。
func (win *httpWindow) Origin() string { return win.origin }

// Close はブリッジページを書き出す。保留中のメッセージがあれば送信してから閉じる。
func (win *httpWindow) Close() error {
	if win.finished {
		return errWindowFinished
	}
	win.finished = true

	data := bridgeData{}
	if win.pending != nil {
		data = *win.pending
	}
	data.Nonce = middleware.CSPNonceFromContext(win.r.Context())

	win.w.Header().Set("Content-Type", "text/html; charset=utf-8")
	win.w.Header().Set("Cache-Control", "no-store")
	win.w.WriteHeader(http.StatusOK)
	return bridgeTemplate.Execute(win.w, data)
}

// Redirect はフロントエンド上のlocationへ303で遷移させる。
func (win *httpWindow) Redirect(location string) error {
	if win.finished {
		return errWindowFinished
	}
	win.finished = true

	http.Redirect(win.w, win.r, win.baseURL+location, http.StatusSeeOther)
	return nil
}

// Finished はレスポンスが確定したかを返す。
func (win *httpWindow) Finished() bool { return win.finished }

type httpOpener struct {
	win *httpWindow
}

// PostMessage はメッセージを保留し、Closeで書き出すブリッジページに埋め込む。
func (o httpOpener) PostMessage(message any, targetOrigin string) error {
	if o.win.finished {
		return errWindowFinished
	}
	if o.win.pending != nil {
		o.win.logger.Warn("overwriting pending auth message")
	}
	o.win.pending = &bridgeData{
		HasMessage: true,
		Message:    message,
		Origin:     targetOrigin,
	}
	return nil
}

// originOf はURLのスキーム＋ホスト部分を返す。不正なURLの場合は空文字を返す。
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// compile-time interface check
var (
	_ platform.Window = (*httpWindow)(nil)
	_ platform.Opener = httpOpener{}
)
