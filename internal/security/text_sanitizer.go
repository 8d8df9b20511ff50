// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はAIの生成テキストやユーザー入力からHTMLを取り除き、
// 保存・表示するテキストにマークアップが混入しないようにする。
// EndpointGuard はAIエンドポイントへの外部通信をSSRFから保護する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はプレーンテキスト化のインターフェース。
type TextSanitizer interface {
	// Sanitize はHTMLタグを全て除去したプレーンテキストを返す。
	// 文字参照はデコードし、前後の空白を取り除く。同一入力に対して冪等。
	Sanitize(s string) string
}

// textSanitizer はbluemondayのStrictPolicyによるTextSanitizerの実装。
// Policyはスレッドセーフなので共有して使用する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	// StrictPolicyは & や < をエスケープして返すため、プレーンテキストに戻す
	cleaned := html.UnescapeString(s.policy.Sanitize(text))
	return strings.TrimSpace(cleaned)
}

// SanitizeAll はスライスの各要素をサニタイズした新しいスライスを返す。
func SanitizeAll(s TextSanitizer, values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = s.Sanitize(v)
	}
	return out
}
