// Package interview は面接と回答のデータアクセスを一元化するサービス層を提供する。
//
// 呼び出し元の識別子（subject ID）を受け取り、所有者以外には
// 存在しない場合と同じNOT_FOUND_OR_FORBIDDENを返す。
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/mockprep/internal/ai"
	"github.com/hitoshi/mockprep/internal/model"
	"github.com/hitoshi/mockprep/internal/repository"
	"github.com/hitoshi/mockprep/internal/security"
	"github.com/hitoshi/mockprep/internal/store"
)

// questionIDPrefix は質問IDの接頭辞。
const questionIDPrefix = "q"

// ErrStaleEvaluation は評価対象の回答が評価中に差し替えられたことを示す。
var ErrStaleEvaluation = errors.New("評価対象の回答が更新されています")

// QuestionGenerator は面接設定から質問を生成する。
type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, p ai.InterviewPrompt) ([]model.QuestionAnswer, error)
}

// EvaluationRequest は回答評価の依頼内容。
type EvaluationRequest struct {
	AnswerID        string
	Question        string
	UserAnswer      string
	ReferenceAnswer string
}

// EvaluationQueue は回答評価を非同期に依頼する先。
// キューが満杯などで受け付けられなかった場合はfalseを返す。
type EvaluationQueue interface {
	Submit(req EvaluationRequest) bool
}

// Service は面接・回答のサービス層。
type Service struct {
	interviews repository.InterviewRepository
	answers    repository.AnswerRepository
	generator  QuestionGenerator
	queue      EvaluationQueue
	sanitizer  security.TextSanitizer
	logger     *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// queueがnilの場合、回答は評価されずに保存される。
func NewService(
	interviews repository.InterviewRepository,
	answers repository.AnswerRepository,
	generator QuestionGenerator,
	queue EvaluationQueue,
	sanitizer security.TextSanitizer,
	logger *slog.Logger,
) *Service {
	return &Service{
		interviews: interviews,
		answers:    answers,
		generator:  generator,
		queue:      queue,
		sanitizer:  sanitizer,
		logger:     logger,
	}
}

// GetAll は呼び出し元が所有する面接を作成日時の降順で返す。
func (s *Service) GetAll(ctx context.Context, caller string) ([]*model.Interview, error) {
	if caller == "" {
		return nil, model.NewAuthRequiredError()
	}
	interviews, err := s.interviews.ListByOwner(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("面接一覧の取得に失敗しました: %w", err)
	}
	return interviews, nil
}

// GetByID は呼び出し元が所有する面接を返す。
func (s *Service) GetByID(ctx context.Context, caller, id string) (*model.Interview, error) {
	if caller == "" {
		return nil, model.NewAuthRequiredError()
	}
	return s.owned(ctx, caller, id)
}

// Create は呼び出し元を所有者として面接を作成する。
func (s *Service) Create(ctx context.Context, caller string, input model.InterviewInput) (*model.Interview, error) {
	if caller == "" {
		return nil, model.NewAuthRequiredError()
	}

	interview := &model.Interview{
		Position:    s.sanitizer.Sanitize(input.Position),
		Description: s.sanitizer.Sanitize(input.Description),
		Experience:  input.Experience,
		TechStack:   s.sanitizer.Sanitize(input.TechStack),
		OwnerID:     caller,
	}
	if err := validateSettings(interview); err != nil {
		return nil, err
	}

	questions, err := s.assignQuestionIDs(input.Questions)
	if err != nil {
		return nil, err
	}
	interview.Questions = questions

	if err := s.interviews.Create(ctx, interview); err != nil {
		return nil, fmt.Errorf("面接の作成に失敗しました: %w", err)
	}

	s.logger.Info("面接を作成しました",
		slog.String("interview_id", interview.ID),
		slog.String("user_id", caller),
	)
	return interview, nil
}

// Update は呼び出し元が所有する面接を部分更新する。
// 質問リストを置き換えた場合、新しい質問IDを採番し既存の回答を削除する。
func (s *Service) Update(ctx context.Context, caller, id string, patch model.InterviewPatch) (*model.Interview, error) {
	if caller == "" {
		return nil, model.NewAuthRequiredError()
	}
	interview, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	if patch.Position != nil {
		interview.Position = s.sanitizer.Sanitize(*patch.Position)
	}
	if patch.Description != nil {
		interview.Description = s.sanitizer.Sanitize(*patch.Description)
	}
	if patch.Experience != nil {
		interview.Experience = *patch.Experience
	}
	if patch.TechStack != nil {
		interview.TechStack = s.sanitizer.Sanitize(*patch.TechStack)
	}
	if err := validateSettings(interview); err != nil {
		return nil, err
	}

	if patch.Questions != nil {
		questions, err := s.assignQuestionIDs(patch.Questions)
		if err != nil {
			return nil, err
		}
		return s.replaceQuestions(ctx, interview, questions)
	}

	if err := s.save(ctx, interview); err != nil {
		return nil, err
	}
	return interview, nil
}

// Delete は呼び出し元が所有する面接とその回答を削除する。
func (s *Service) Delete(ctx context.Context, caller, id string) error {
	if caller == "" {
		return model.NewAuthRequiredError()
	}
	if _, err := s.owned(ctx, caller, id); err != nil {
		return err
	}

	// 面接を先に削除する。回答の削除に失敗しても面接が無ければ回答には到達できない
	deleted, err := s.interviews.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("面接の削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNotFoundOrForbiddenError("面接")
	}
	if err := s.answers.DeleteByInterview(ctx, id); err != nil {
		s.logger.Warn("面接削除後の回答削除に失敗しました",
			slog.String("interview_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("面接を削除しました",
		slog.String("interview_id", id),
		slog.String("user_id", caller),
	)
	return nil
}

// GenerateQuestions はAIで質問を生成し、面接の質問リストを置き換える。
// AIの失敗（AI_TRANSPORT / AI_MALFORMED）はそのまま返し、面接は変更しない。
func (s *Service) GenerateQuestions(ctx context.Context, caller, id string) (*model.Interview, error) {
	if caller == "" {
		return nil, model.NewAuthRequiredError()
	}
	interview, err := s.owned(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	pairs, err := s.generator.GenerateQuestions(ctx, ai.InterviewPrompt{
		Position:    interview.Position,
		Description: interview.Description,
		Experience:  interview.Experience,
		TechStack:   interview.TechStack,
	})
	if err != nil {
		return nil, err
	}

	questions, err := s.assignQuestionIDs(pairs)
	if err != nil {
		return nil, err
	}
	return s.replaceQuestions(ctx, interview, questions)
}

// CreateAnswer は呼び出し元の回答を保存し、評価を依頼する。
// 同じ質問への再提出は既存の回答を置き換え、評価をやり直す。
func (s *Service) CreateAnswer(ctx context.Context, caller string, input model.AnswerInput) (*model.UserAnswer, error) {
	if caller == "" {
		return nil, model.NewAuthRequiredError()
	}
	text := s.sanitizer.Sanitize(input.Answer)
	if input.InterviewID == "" || input.QuestionID == "" {
		return nil, model.NewValidationError("interviewIdとquestionIdは必須です")
	}
	if text == "" {
		return nil, model.NewValidationError("回答が空です")
	}

	interview, err := s.owned(ctx, caller, input.InterviewID)
	if err != nil {
		return nil, err
	}
	question := interview.FindQuestion(input.QuestionID)
	if question == nil {
		return nil, model.NewNotFoundOrForbiddenError("質問")
	}

	answer := &model.UserAnswer{
		InterviewID: interview.ID,
		QuestionID:  question.ID,
		UserID:      caller,
		Answer:      text,
	}
	if err := s.answers.Upsert(ctx, answer); err != nil {
		return nil, fmt.Errorf("回答の保存に失敗しました: %w", err)
	}

	if s.queue != nil {
		accepted := s.queue.Submit(EvaluationRequest{
			AnswerID:        answer.ID,
			Question:        question.Question,
			UserAnswer:      answer.Answer,
			ReferenceAnswer: question.Answer,
		})
		if !accepted {
			s.logger.Warn("回答評価の依頼を受け付けられませんでした",
				slog.String("answer_id", answer.ID),
			)
		}
	}
	return answer, nil
}

// GetAnswersByInterviewID は呼び出し元が所有する面接への自分の回答を返す。
func (s *Service) GetAnswersByInterviewID(ctx context.Context, caller, interviewID string) ([]*model.UserAnswer, error) {
	if caller == "" {
		return nil, model.NewAuthRequiredError()
	}
	interview, err := s.owned(ctx, caller, interviewID)
	if err != nil {
		return nil, err
	}
	answers, err := s.answers.ListByInterview(ctx, interviewID, caller)
	if err != nil {
		return nil, fmt.Errorf("回答一覧の取得に失敗しました: %w", err)
	}

	current := make([]*model.UserAnswer, 0, len(answers))
	for _, a := range answers {
		if interview.FindQuestion(a.QuestionID) != nil {
			current = append(current, a)
		}
	}
	return current, nil
}

// SetAnswerEvaluation は評価ワーカーが評価結果を保存するために使用する。
// 評価中に回答が再提出されていた場合はErrStaleEvaluationを返し、保存しない。
func (s *Service) SetAnswerEvaluation(ctx context.Context, answerID, evaluatedAnswer string, feedback model.AnswerFeedback) error {
	if err := s.answers.SetEvaluation(ctx, answerID, evaluatedAnswer, feedback); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrStaleEvaluation
		}
		return fmt.Errorf("評価結果の保存に失敗しました: %w", err)
	}
	return nil
}

// owned は面接を取得し、呼び出し元が所有者であることを確認する。
// 存在しない場合と所有者でない場合は同じエラーを返す。
func (s *Service) owned(ctx context.Context, caller, id string) (*model.Interview, error) {
	if id == "" {
		return nil, model.NewNotFoundOrForbiddenError("面接")
	}
	interview, err := s.interviews.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("面接の取得に失敗しました: %w", err)
	}
	if interview == nil || interview.OwnerID != caller {
		return nil, model.NewNotFoundOrForbiddenError("面接")
	}
	return interview, nil
}

func (s *Service) replaceQuestions(ctx context.Context, interview *model.Interview, questions []model.Question) (*model.Interview, error) {
	previous := interview.Questions
	interview.Questions = questions
	if err := s.save(ctx, interview); err != nil {
		interview.Questions = previous
		return nil, err
	}

	// 古い質問IDを参照する回答は意味を失うため削除する。
	// 失敗しても回答一覧は現在の質問で絞り込むため、古い回答は見えない
	if err := s.answers.DeleteByInterview(ctx, interview.ID); err != nil {
		s.logger.Warn("質問の置き換え後の回答削除に失敗しました",
			slog.String("interview_id", interview.ID),
			slog.String("error", err.Error()),
		)
	}
	return interview, nil
}

func (s *Service) save(ctx context.Context, interview *model.Interview) error {
	err := s.interviews.Update(ctx, interview)
	if errors.Is(err, repository.ErrNotFound) {
		return model.NewNotFoundOrForbiddenError("面接")
	}
	if err != nil {
		return fmt.Errorf("面接の更新に失敗しました: %w", err)
	}
	return nil
}

// assignQuestionIDs は質問ごとに新しいIDを採番する。
func (s *Service) assignQuestionIDs(pairs []model.QuestionAnswer) ([]model.Question, error) {
	questions := make([]model.Question, 0, len(pairs))
	for i, qa := range pairs {
		q := s.sanitizer.Sanitize(qa.Question)
		if q == "" {
			return nil, model.NewValidationError(fmt.Sprintf("%d番目の質問が空です", i+1))
		}
		id, err := store.NewID(questionIDPrefix)
		if err != nil {
			return nil, fmt.Errorf("質問IDの採番に失敗しました: %w", err)
		}
		questions = append(questions, model.Question{
			ID:       id,
			Question: q,
			Answer:   s.sanitizer.Sanitize(qa.Answer),
		})
	}
	return questions, nil
}

func validateSettings(i *model.Interview) error {
	var missing []string
	if strings.TrimSpace(i.Position) == "" {
		missing = append(missing, "position")
	}
	if strings.TrimSpace(i.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(i.TechStack) == "" {
		missing = append(missing, "techStack")
	}
	if len(missing) > 0 {
		return model.NewValidationError(fmt.Sprintf("必須項目が未入力です: %s", strings.Join(missing, ", ")))
	}
	if i.Experience < 0 {
		return model.NewValidationError("experienceは0以上で指定してください")
	}
	return nil
}
