// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はプロフィールの自由入力欄（自己紹介、会社名など）を
// サニタイズし、XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリの厳格ポリシーで、HTMLタグを一切許可しない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はテキストのサニタイズ機能のインターフェースを定義する。
// プロフィールの自由入力欄の保存前に使用される。
type TextSanitizerService interface {
	// Sanitize は入力テキストからHTMLタグを全て除去した安全なテキストを返す。
	// script, iframe, styleタグおよびon*イベント属性を含む全てのマークアップが除去される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(s string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// プロフィール欄はプレーンテキストとして扱うため、タグを一切許可しない
// StrictPolicyを使用する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力テキストからHTMLタグを全て除去した安全なテキストを返す。
// bluemondayはタグ除去後のテキストをHTMLエスケープして返すため、
// プレーンテキストとして保存できるようアンエスケープしてから返す。
func (s *textSanitizer) Sanitize(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

var _ TextSanitizerService = (*textSanitizer)(nil)
