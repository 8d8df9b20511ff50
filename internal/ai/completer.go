// Package ai は生成AIによる質問生成・回答評価・職務経歴書分析を提供する。
//
// 外部エンドポイントへの送信はCompleterが担い、Generatorが応答テキストを
// aijsonで復元し、validateで形を確認してからドメインの型に変換する。
package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// Completer はプロンプトを外部モデルに送信し、生成されたテキストを返す。
// 返すテキストは未加工で、JSONとして妥当である保証はない。
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// TransportError はAIエンドポイントの呼び出し失敗を表す。
// Messageにはプロバイダーが返したエラーメッセージをそのまま保持する。
type TransportError struct {
	StatusCode int // HTTPステータス。通信自体に失敗した場合は0
	Message    string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("AIエンドポイントがステータス %d を返しました: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("AIエンドポイントの呼び出しに失敗しました: %s", e.Message)
}

// Unwrap は原因のエラーを返す。
func (e *TransportError) Unwrap() error {
	return e.Err
}

// transportReason はエラーからユーザーに提示する理由を取り出す。
// プロバイダーのメッセージがあればそれを優先する。
func transportReason(err error) string {
	var te *TransportError
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr.Message != "" {
		return apiErrPtr.Message
	}
	return err.Error()
}
