package security

import "testing"

// TestNewIdentityGuard はIdentityGuardの生成をテストする。
func TestNewIdentityGuard(t *testing.T) {
	guard := NewIdentityGuard(nil)
	if guard == nil {
		t.Fatal("NewIdentityGuard() returned nil")
	}
	if _, ok := guard.hosts["steamcommunity.com"]; !ok {
		t.Error("default hosts should include steamcommunity.com")
	}
}

// TestSteamID_ValidIdentity は正当なidentity URLからSteam IDが抽出されることをテストする。
func TestSteamID_ValidIdentity(t *testing.T) {
	guard := NewIdentityGuard(nil)

	tests := []struct {
		name     string
		identity string
		want     string
	}{
		{"https", "https://steamcommunity.com/openid/id/76561198000000001", "76561198000000001"},
		{"http", "http://steamcommunity.com/openid/id/76561198000000002", "76561198000000002"},
		{"trailing slash", "https://steamcommunity.com/openid/id/76561198000000003/", "76561198000000003"},
		{"uppercase host", "https://SteamCommunity.com/openid/id/42", "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := guard.SteamID(tt.identity)
			if err != nil {
				t.Fatalf("SteamID(%q) returned error: %v", tt.identity, err)
			}
			if got != tt.want {
				t.Errorf("SteamID(%q) = %q, want %q", tt.identity, got, tt.want)
			}
		})
	}
}

// TestSteamID_RejectedIdentity は不正なidentity URLが拒否されることをテストする。
func TestSteamID_RejectedIdentity(t *testing.T) {
	guard := NewIdentityGuard(nil)

	tests := []struct {
		name     string
		identity string
	}{
		{"空文字列", ""},
		{"許可されていないホスト", "https://evil.example.com/openid/id/76561198000000001"},
		{"サブドメイン偽装", "https://steamcommunity.com.evil.example/openid/id/1"},
		{"javascriptスキーム", "javascript:alert(1)"},
		{"ftpスキーム", "ftp://steamcommunity.com/openid/id/1"},
		{"数値でない末尾", "https://steamcommunity.com/openid/id/abc"},
		{"末尾なし", "https://steamcommunity.com/"},
		{"パスなし", "https://steamcommunity.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, err := guard.SteamID(tt.identity); err == nil {
				t.Errorf("SteamID(%q) = %q, want error", tt.identity, got)
			}
		})
	}
}

// TestSteamID_CustomHosts は設定したホストのみが許可されることをテストする。
func TestSteamID_CustomHosts(t *testing.T) {
	guard := NewIdentityGuard([]string{" 127.0.0.1 ", "openid.test"})

	if _, err := guard.SteamID("http://127.0.0.1:9999/openid/id/7"); err != nil {
		t.Errorf("expected custom host to be allowed: %v", err)
	}
	if _, err := guard.SteamID("https://openid.test/id/8"); err != nil {
		t.Errorf("expected custom host to be allowed: %v", err)
	}
	if _, err := guard.SteamID("https://steamcommunity.com/openid/id/9"); err == nil {
		t.Error("default host should not be allowed when custom hosts are configured")
	}
}
