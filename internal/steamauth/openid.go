package steamauth

import (
	"fmt"
	"net/url"
)

const (
	// DefaultAuthURL はSteam OpenIDプロバイダーのエンドポイント。
	DefaultAuthURL = "https://steamcommunity.com/openid/login"

	openIDNamespace        = "http://specs.openid.net/auth/2.0"
	openIDIdentifierSelect = "http://specs.openid.net/auth/2.0/identifier_select"
)

// LoginURL はSteam OpenID 2.0のcheckid_setupリクエストURLを生成する。
// realmはreturnToのオリジンとする。
func LoginURL(authURL, returnTo string) (string, error) {
	if authURL == "" {
		authURL = DefaultAuthURL
	}

	parsed, err := url.Parse(returnTo)
	if err != nil {
		return "", fmt.Errorf("invalid return_to URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("return_to must be absolute: %q", returnTo)
	}
	realm := parsed.Scheme + "://" + parsed.Host

	params := url.Values{
		"openid.ns":         {openIDNamespace},
		"openid.mode":       {"checkid_setup"},
		"openid.return_to":  {returnTo},
		"openid.realm":      {realm},
		"openid.identity":   {openIDIdentifierSelect},
		"openid.claimed_id": {openIDIdentifierSelect},
	}
	return authURL + "?" + params.Encode(), nil
}
