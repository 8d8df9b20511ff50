// Package resume は職務経歴書のAI分析と分析結果の管理を提供する。
package resume

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/mockprep/internal/ai"
	"github.com/hitoshi/mockprep/internal/model"
	"github.com/hitoshi/mockprep/internal/repository"
	"github.com/hitoshi/mockprep/internal/security"
	"github.com/hitoshi/mockprep/internal/store"
)

const (
	// idPrefix は分析結果IDの接頭辞。
	idPrefix = "resume"
	// maxResumeRunes は分析対象テキストの最大文字数。
	maxResumeRunes = 50000
)

// Analyzer は職務経歴書をAIで分析する。
type Analyzer interface {
	AnalyzeResume(ctx context.Context, p ai.ResumePrompt) (*model.ResumeFeedback, error)
}

// Service は職務経歴書分析のサービス層。
type Service struct {
	repo      repository.ResumeRepository
	analyzer  Analyzer
	sanitizer security.TextSanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ResumeRepository, analyzer Analyzer, sanitizer security.TextSanitizer, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		analyzer:  analyzer,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// Analyze は職務経歴書を分析し、結果を呼び出し元の所有として保存する。
// AIの呼び出しに失敗した場合は何も保存しない。
func (s *Service) Analyze(ctx context.Context, caller string, input model.ResumeInput) (*model.ResumeAnalysis, error) {
	if caller == "" {
		return nil, model.NewAuthRequiredError()
	}

	companyName := s.sanitizer.Sanitize(input.CompanyName)
	jobTitle := s.sanitizer.Sanitize(input.JobTitle)
	jobDescription := s.sanitizer.Sanitize(input.JobDescription)
	text, pdfErr := s.resumeText(caller, input)

	switch {
	case companyName == "":
		return nil, model.NewValidationError("companyNameは必須です")
	case jobTitle == "":
		return nil, model.NewValidationError("jobTitleは必須です")
	case jobDescription == "":
		return nil, model.NewValidationError("jobDescriptionは必須です")
	case pdfErr != nil:
		return nil, model.NewValidationError("PDFからテキストを抽出できませんでした")
	case text == "" && len(input.ResumePDF) > 0:
		return nil, model.NewValidationError("PDFにテキストが含まれていません")
	case text == "":
		return nil, model.NewValidationError("resumeTextは必須です")
	case utf8.RuneCountInString(text) > maxResumeRunes:
		return nil, model.NewValidationError(fmt.Sprintf("resumeTextは%d文字以内で入力してください", maxResumeRunes))
	}

	feedback, err := s.analyzer.AnalyzeResume(ctx, ai.ResumePrompt{
		CompanyName:    companyName,
		JobTitle:       jobTitle,
		JobDescription: jobDescription,
		ResumeText:     text,
	})
	if err != nil {
		return nil, err
	}

	id, err := store.NewID(idPrefix)
	if err != nil {
		return nil, fmt.Errorf("分析結果IDの生成に失敗しました: %w", err)
	}

	analysis := &model.ResumeAnalysis{
		ID:             id,
		OwnerID:        caller,
		CompanyName:    companyName,
		JobTitle:       jobTitle,
		JobDescription: jobDescription,
		Feedback:       *feedback,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.repo.Save(ctx, analysis); err != nil {
		s.logger.Error("分析結果の保存に失敗しました",
			slog.String("user_id", caller),
			slog.String("error", err.Error()),
		)
		return nil, model.NewStorageFailureError()
	}

	s.logger.Info("職務経歴書を分析しました",
		slog.String("resume_id", analysis.ID),
		slog.String("user_id", caller),
		slog.Int("overall_score", feedback.OverallScore),
	)
	return analysis, nil
}

// Get は呼び出し元が所有する分析結果を返す。
func (s *Service) Get(ctx context.Context, caller, id string) (*model.ResumeAnalysis, error) {
	if caller == "" {
		return nil, model.NewAuthRequiredError()
	}
	return s.owned(ctx, caller, id)
}

// List は呼び出し元の分析結果を作成日時の降順で返す。
func (s *Service) List(ctx context.Context, caller string) ([]*model.ResumeAnalysis, error) {
	if caller == "" {
		return nil, model.NewAuthRequiredError()
	}
	analyses, err := s.repo.ListByOwner(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("分析結果一覧の取得に失敗しました: %w", err)
	}
	return analyses, nil
}

// Delete は呼び出し元が所有する分析結果を削除する。
func (s *Service) Delete(ctx context.Context, caller, id string) error {
	if caller == "" {
		return model.NewAuthRequiredError()
	}
	if _, err := s.owned(ctx, caller, id); err != nil {
		return err
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("分析結果の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNotFoundOrForbiddenError("分析結果")
	}

	s.logger.Info("分析結果を削除しました",
		slog.String("resume_id", id),
		slog.String("user_id", caller),
	)
	return nil
}

func (s *Service) owned(ctx context.Context, caller, id string) (*model.ResumeAnalysis, error) {
	analysis, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("分析結果の取得に失敗しました: %w", err)
	}
	if analysis == nil || analysis.OwnerID != caller {
		return nil, model.NewNotFoundOrForbiddenError("分析結果")
	}
	return analysis, nil
}

// resumeText は入力から分析対象のテキストを取り出す。
func (s *Service) resumeText(caller string, input model.ResumeInput) (string, error) {
	if len(input.ResumePDF) == 0 {
		return ExtractText(input.ResumeText), nil
	}
	text, err := ExtractPDFText(input.ResumePDF)
	if err != nil {
		s.logger.Warn("PDFからのテキスト抽出に失敗しました",
			slog.String("user_id", caller),
			slog.Int("size", len(input.ResumePDF)),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	return text, nil
}
