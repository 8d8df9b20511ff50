// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/mockprep/internal/model"
	"github.com/hitoshi/mockprep/internal/repository"
	"github.com/hitoshi/mockprep/internal/security"
)

// プロフィールが欠けている場合の既定値。
const (
	DefaultName  = "Anonymous"
	DefaultEmail = "N/A"
)

// SyncInput はユーザー同期リクエストの内容。
type SyncInput struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo  repository.UserRepository
	sanitizer security.TextSanitizer
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, sanitizer security.TextSanitizer, logger *slog.Logger) *Service {
	return &Service{
		userRepo:  userRepo,
		sanitizer: sanitizer,
		logger:    logger,
	}
}

// Sync はトークンの主体をユーザーとして冪等に登録・更新する。
// リクエストボディの値を優先し、空の場合はトークンのクレームで補う。
func (s *Service) Sync(ctx context.Context, claims *model.Claims, input SyncInput) (*model.User, error) {
	if claims == nil || claims.SubjectID == "" {
		return nil, model.NewAuthRequiredError()
	}

	user := &model.User{
		ID:       claims.SubjectID,
		Name:     firstNonEmpty(s.sanitizer.Sanitize(input.Name), s.sanitizer.Sanitize(claims.Name), DefaultName),
		Email:    firstNonEmpty(strings.TrimSpace(input.Email), strings.TrimSpace(claims.Email), DefaultEmail),
		ImageURL: strings.TrimSpace(claims.Picture),
	}

	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("ユーザーの同期に失敗しました: %w", err)
	}

	s.logger.Info("ユーザーを同期しました",
		slog.String("user_id", user.ID),
	)
	return user, nil
}

// Get は呼び出し元のユーザー情報を返す。未同期の場合はNOT_FOUND_OR_FORBIDDENを返す。
func (s *Service) Get(ctx context.Context, caller string) (*model.User, error) {
	if caller == "" {
		return nil, model.NewAuthRequiredError()
	}

	user, err := s.userRepo.FindByID(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundOrForbiddenError("ユーザー")
	}
	return user, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
