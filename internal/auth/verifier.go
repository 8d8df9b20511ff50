// Package auth はベアラートークンの検証を提供する。
// トークンの発行はIdPの責務であり、このパッケージは検証のみを行う。
package auth

import (
	"context"
	"errors"

	"github.com/hitoshi/mockprep/internal/model"
)

// ErrInvalidToken はトークンが不正、期限切れ、または署名検証に失敗したことを示す。
var ErrInvalidToken = errors.New("トークンが無効です")

// TokenVerifier はベアラートークンを検証し、呼び出し元の情報を返す。
// 検証に失敗した場合はErrInvalidTokenをラップしたエラーを返す。
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*model.Claims, error)
}
