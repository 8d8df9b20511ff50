package auth

import (
	"context"
	"fmt"

	"google.golang.org/api/idtoken"

	"github.com/hitoshi/mockprep/internal/model"
)

// validateFunc はidtoken.Validateのシグネチャ。テスト用に差し替え可能。
type validateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// GoogleVerifier はGoogle IDトークンを検証する。
type GoogleVerifier struct {
	audience string
	validate validateFunc
}

// NewGoogleVerifier はGoogleVerifierを生成する。
// audienceにはOAuthクライアントIDを指定する。
func NewGoogleVerifier(audience string) *GoogleVerifier {
	return &GoogleVerifier{
		audience: audience,
		validate: idtoken.Validate,
	}
}

// Verify はIDトークンの署名・有効期限・audienceを検証する。
func (v *GoogleVerifier) Verify(ctx context.Context, token string) (*model.Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	payload, err := v.validate(ctx, token, v.audience)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if payload.Subject == "" {
		return nil, fmt.Errorf("%w: subjectがありません", ErrInvalidToken)
	}

	return &model.Claims{
		SubjectID: payload.Subject,
		Email:     claimString(payload.Claims, "email"),
		Name:      claimString(payload.Claims, "name"),
		Picture:   claimString(payload.Claims, "picture"),
	}, nil
}

func claimString(claims map[string]interface{}, key string) string {
	s, _ := claims[key].(string)
	return s
}

// compile-time interface check
var _ TokenVerifier = (*GoogleVerifier)(nil)
