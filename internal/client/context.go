// Package client はブラウザ（デバイス）ごとのアプリケーションコンテキストを提供する。
// コンテキストはデバイスごとに1回だけ生成され、生成時に永続ストレージから状態を復元する。
package client

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/nadeguide/internal/filters"
	"github.com/hitoshi/nadeguide/internal/grenade"
	"github.com/hitoshi/nadeguide/internal/platform"
	"github.com/hitoshi/nadeguide/internal/prefs"
	"github.com/hitoshi/nadeguide/internal/session"
	"github.com/hitoshi/nadeguide/internal/strapi"
)

// SessionInitRecorder はセッション初期化の結果を記録する。metrics.Collectorが実装する。
type SessionInitRecorder interface {
	RecordSessionInit(result string)
}

// Deps はコンテキスト生成に必要な共有依存。
type Deps struct {
	Profile  session.ProfileFetcher
	Recorder SessionInitRecorder
	Logger   *slog.Logger
}

// Context はデバイスごとのアプリケーションコンテキスト。
type Context struct {
	DeviceID  string
	Session   *session.Store
	Prefs     *prefs.Preferences
	Selection *filters.Selection
	Grenades  *grenade.Notifier

	// BackendCookies はこのデバイスがバックエンドから受け取ったCookie。
	// 資格情報付きのコールバック交換でのみ使い、他のデバイスとは共有しない。
	BackendCookies http.CookieJar
}

// New はコンテキストを生成し、永続ストレージからセッションと設定値を復元する。
func New(ctx context.Context, deviceID string, caps platform.Capabilities, deps Deps) *Context {
	logger := deps.Logger.With(slog.String("device_id", deviceID))

	c := &Context{
		DeviceID:  deviceID,
		Session:   session.NewStore(caps, deps.Profile, logger),
		Prefs:     prefs.Load(ctx, caps, logger),
		Selection: filters.NewSelection(),
		Grenades:  grenade.NewNotifier(),
	}

	jar, err := strapi.NewCookieJar()
	if err != nil {
		// jarなしでも交換はCookieを送らないだけで動作する
		logger.Error("failed to create backend cookie jar", slog.String("error", err.Error()))
	} else {
		c.BackendCookies = jar
	}

	result := c.Session.Init(ctx)
	if deps.Recorder != nil {
		deps.Recorder.RecordSessionInit(string(result))
	}
	logger.Debug("client context initialized", slog.String("session", string(result)))
	return c
}
