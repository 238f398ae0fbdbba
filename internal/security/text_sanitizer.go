package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はCMS由来の文字列からマークアップを除去するインターフェース。
// フィルタ選択肢の表示名をキャッシュへ格納する前に使用される。
type TextSanitizerService interface {
	// Sanitize はすべてのHTMLタグを除去したプレーンテキストを返す。
	// エンティティはデコードされ、前後の空白は除去される。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーは並行利用に対して安全。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// タグを一切許可しないStrictPolicyを使用する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はマークアップを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは出力をHTMLエスケープするため、プレーンテキストに戻す
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// compile-time interface check
var _ TextSanitizerService = (*textSanitizer)(nil)
