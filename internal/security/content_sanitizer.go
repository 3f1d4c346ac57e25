// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はコーチやクライアントが入力する自由記述をサニタイズする。
// プログラムの説明のみ簡易な書式タグを許可し、タイトルやメモなどは
// すべてのタグを除去したプレーンテキストとして保存する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由記述のサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// PlainText はすべてのタグを除去し、前後の空白を取り除いたテキストを返す。
	// エンティティはデコードして返す（表示側でエスケープする）。
	PlainText(s string) string

	// RichText は許可タグ（p, br, ul, ol, li, strong, em, a）のみを通過させたHTMLを返す。
	// aタグのhrefは絶対URLのみ許可し、rel="nofollow noreferrer noopener"を付与する。
	RichText(s string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフで、生成後は変更しない。
type textSanitizer struct {
	strict *bluemonday.Policy
	rich   *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements("p", "br", "ul", "ol", "li", "strong", "em")
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowStandardURLs()
	rich.AllowRelativeURLs(false)
	rich.RequireNoFollowOnLinks(true)
	rich.RequireNoReferrerOnLinks(true)
	rich.AddTargetBlankToFullyQualifiedLinks(true)

	return &textSanitizer{
		strict: bluemonday.StrictPolicy(),
		rich:   rich,
	}
}

// PlainText はすべてのタグを除去したテキストを返す。
func (s *textSanitizer) PlainText(in string) string {
	if in == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(in)))
}

// RichText は許可タグのみを通過させたHTMLを返す。
func (s *textSanitizer) RichText(in string) string {
	if in == "" {
		return ""
	}
	return strings.TrimSpace(s.rich.Sanitize(in))
}
