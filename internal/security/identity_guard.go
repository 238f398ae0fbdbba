// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultIdentityHosts はSteam OpenIDのidentity URLとして許可されるホスト。
var DefaultIdentityHosts = []string{"steamcommunity.com"}

// allowedSchemes はidentity URLで許可されるスキーム。
var allowedSchemes = []string{"http", "https"}

// IdentityGuardService はOpenIDアサーションのidentity URLを検証するインターフェース。
type IdentityGuardService interface {
	// SteamID はidentity URLを検証し、末尾のパスセグメント（Steam ID）を返す。
	// 検証に失敗した場合はエラーを返す。
	SteamID(identity string) (string, error)
}

// identityGuard はIdentityGuardServiceの実装。
type identityGuard struct {
	hosts map[string]struct{}
}

// NewIdentityGuard はIdentityGuardServiceの新しいインスタンスを生成する。
// hostsが空の場合はDefaultIdentityHostsを使用する。
func NewIdentityGuard(hosts []string) *identityGuard {
	if len(hosts) == 0 {
		hosts = DefaultIdentityHosts
	}
	g := &identityGuard{hosts: make(map[string]struct{}, len(hosts))}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			g.hosts[h] = struct{}{}
		}
	}
	return g
}

// SteamID はidentity URLを検証し、末尾のパスセグメントを返す。
// 例: https://steamcommunity.com/openid/id/76561198000000000 → 76561198000000000
func (g *identityGuard) SteamID(identity string) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("empty identity")
	}

	parsed, err := url.Parse(identity)
	if err != nil {
		return "", fmt.Errorf("invalid identity URL: %w", err)
	}

	// スキーム検証: http/httpsのみ許可
	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return "", fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := strings.ToLower(parsed.Hostname())
	if _, ok := g.hosts[host]; !ok {
		return "", fmt.Errorf("disallowed identity host: %s", host)
	}

	path := strings.TrimRight(parsed.Path, "/")
	segment := path[strings.LastIndex(path, "/")+1:]
	if !isNumeric(segment) {
		return "", fmt.Errorf("identity has no numeric id: %q", segment)
	}

	return segment, nil
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// compile-time interface check
var _ IdentityGuardService = (*identityGuard)(nil)
