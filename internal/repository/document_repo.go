package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hitoshi/mockprep/internal/model"
	"github.com/hitoshi/mockprep/internal/store"
	"github.com/hitoshi/mockprep/internal/validate"
)

// ドキュメントストアのコレクション名。
const (
	CollectionInterviews  = "interviews"
	CollectionUserAnswers = "user-answers"
	CollectionUsers       = "users"
)

// Collections はドキュメントストアに登録するコレクション定義を返す。
func Collections() []store.Collection {
	return []store.Collection{
		{Name: CollectionInterviews, IDPrefix: "interview", Validate: validate.IsInterview},
		{Name: CollectionUserAnswers, IDPrefix: "answer", Validate: validate.IsUserAnswer},
		{Name: CollectionUsers, IDPrefix: "user", Validate: validate.IsUser},
	}
}

// DocumentInterviewRepo はドキュメントストアを使用した面接リポジトリ。
type DocumentInterviewRepo struct {
	store store.Store
}

// NewDocumentInterviewRepo はDocumentInterviewRepoを生成する。
func NewDocumentInterviewRepo(s store.Store) *DocumentInterviewRepo {
	return &DocumentInterviewRepo{store: s}
}

// ListByOwner は所有者の面接を作成日時の降順で返す。
func (r *DocumentInterviewRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Interview, error) {
	docs, err := r.store.List(ctx, CollectionInterviews)
	if err != nil {
		return nil, fmt.Errorf("面接一覧の取得に失敗しました: %w", err)
	}

	interviews := make([]*model.Interview, 0)
	for _, doc := range docs {
		if doc.String("ownerId") != ownerID {
			continue
		}
		interview := &model.Interview{}
		if err := store.DecodeInto(doc, interview); err != nil {
			continue
		}
		interviews = append(interviews, interview)
	}

	sort.SliceStable(interviews, func(i, j int) bool {
		return interviews[i].CreatedAt.After(interviews[j].CreatedAt)
	})
	return interviews, nil
}

// FindByID は指定IDの面接を取得する。見つからない場合はnilを返す。
func (r *DocumentInterviewRepo) FindByID(ctx context.Context, id string) (*model.Interview, error) {
	doc, found, err := r.store.GetByID(ctx, CollectionInterviews, id)
	if err != nil {
		return nil, fmt.Errorf("面接の取得に失敗しました: %w", err)
	}
	if !found {
		return nil, nil
	}

	interview := &model.Interview{}
	if err := store.DecodeInto(doc, interview); err != nil {
		return nil, err
	}
	return interview, nil
}

// Create は面接を作成し、採番したIDと作成・更新日時をinterviewに設定する。
func (r *DocumentInterviewRepo) Create(ctx context.Context, interview *model.Interview) error {
	doc := interviewFields(interview)
	doc["ownerId"] = interview.OwnerID

	created, err := r.store.Create(ctx, CollectionInterviews, doc)
	if err != nil {
		return err
	}
	return store.DecodeInto(created, interview)
}

// Update は面接の可変フィールドを上書きする。所有者は変更しない。
func (r *DocumentInterviewRepo) Update(ctx context.Context, interview *model.Interview) error {
	updated, found, err := r.store.Update(ctx, CollectionInterviews, interview.ID, interviewFields(interview))
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return store.DecodeInto(updated, interview)
}

// Delete は指定IDの面接を削除し、削除したかどうかを返す。
func (r *DocumentInterviewRepo) Delete(ctx context.Context, id string) (bool, error) {
	return r.store.Delete(ctx, CollectionInterviews, id)
}

func interviewFields(i *model.Interview) store.Document {
	questions := i.Questions
	if questions == nil {
		questions = []model.Question{}
	}
	return store.Document{
		"position":    i.Position,
		"description": i.Description,
		"experience":  i.Experience,
		"techStack":   i.TechStack,
		"questions":   questions,
	}
}

// DocumentAnswerRepo はドキュメントストアを使用した回答リポジトリ。
// 読み取りと書き込みを組み合わせる操作（Upsert・SetEvaluation・DeleteByInterview）はmuで直列化する。
type DocumentAnswerRepo struct {
	mu    sync.Mutex
	store store.Store
}

// NewDocumentAnswerRepo はDocumentAnswerRepoを生成する。
func NewDocumentAnswerRepo(s store.Store) *DocumentAnswerRepo {
	return &DocumentAnswerRepo{store: s}
}

// ListByInterview は面接に対するユーザーの回答を作成日時の昇順で返す。
func (r *DocumentAnswerRepo) ListByInterview(ctx context.Context, interviewID, userID string) ([]*model.UserAnswer, error) {
	docs, err := r.store.List(ctx, CollectionUserAnswers)
	if err != nil {
		return nil, fmt.Errorf("回答一覧の取得に失敗しました: %w", err)
	}

	answers := make([]*model.UserAnswer, 0)
	for _, doc := range docs {
		if doc.String("interviewId") != interviewID || doc.String("userId") != userID {
			continue
		}
		answer := &model.UserAnswer{}
		if err := store.DecodeInto(doc, answer); err != nil {
			continue
		}
		answers = append(answers, answer)
	}

	sort.SliceStable(answers, func(i, j int) bool {
		return answers[i].CreatedAt.Before(answers[j].CreatedAt)
	})
	return answers, nil
}

// FindByID は指定IDの回答を取得する。見つからない場合はnilを返す。
func (r *DocumentAnswerRepo) FindByID(ctx context.Context, id string) (*model.UserAnswer, error) {
	doc, found, err := r.store.GetByID(ctx, CollectionUserAnswers, id)
	if err != nil {
		return nil, fmt.Errorf("回答の取得に失敗しました: %w", err)
	}
	if !found {
		return nil, nil
	}

	answer := &model.UserAnswer{}
	if err := store.DecodeInto(doc, answer); err != nil {
		return nil, err
	}
	return answer, nil
}

// Upsert は (interviewId, questionId, userId) をキーに回答を保存する。
func (r *DocumentAnswerRepo) Upsert(ctx context.Context, answer *model.UserAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs, err := r.store.List(ctx, CollectionUserAnswers)
	if err != nil {
		return fmt.Errorf("回答一覧の取得に失敗しました: %w", err)
	}

	for _, doc := range docs {
		if doc.String("interviewId") != answer.InterviewID ||
			doc.String("questionId") != answer.QuestionID ||
			doc.String("userId") != answer.UserID {
			continue
		}

		// 再提出: IDと作成日時を維持し、評価をクリアする
		updated, found, err := r.store.Update(ctx, CollectionUserAnswers, doc.String(store.FieldID), store.Document{
			"answer":   answer.Answer,
			"rating":   nil,
			"feedback": nil,
		})
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		*answer = model.UserAnswer{}
		return store.DecodeInto(updated, answer)
	}

	created, err := r.store.Create(ctx, CollectionUserAnswers, store.Document{
		"interviewId": answer.InterviewID,
		"questionId":  answer.QuestionID,
		"userId":      answer.UserID,
		"answer":      answer.Answer,
	})
	if err != nil {
		return err
	}
	*answer = model.UserAnswer{}
	return store.DecodeInto(created, answer)
}

// SetEvaluation は回答がevaluatedAnswerのままであれば評価結果を設定する。
// Upsertと同じmuの下で比較と更新を行う。
func (r *DocumentAnswerRepo) SetEvaluation(ctx context.Context, id, evaluatedAnswer string, feedback model.AnswerFeedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, found, err := r.store.GetByID(ctx, CollectionUserAnswers, id)
	if err != nil {
		return fmt.Errorf("回答の取得に失敗しました: %w", err)
	}
	if !found || current.String("answer") != evaluatedAnswer {
		return ErrNotFound
	}

	_, found, err = r.store.Update(ctx, CollectionUserAnswers, id, store.Document{
		"rating":   feedback.Rating,
		"feedback": feedback.Feedback,
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

// DeleteByInterview は面接に紐づく全ての回答を削除する。
func (r *DocumentAnswerRepo) DeleteByInterview(ctx context.Context, interviewID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs, err := r.store.List(ctx, CollectionUserAnswers)
	if err != nil {
		return fmt.Errorf("回答一覧の取得に失敗しました: %w", err)
	}
	for _, doc := range docs {
		if doc.String("interviewId") != interviewID {
			continue
		}
		if _, err := r.store.Delete(ctx, CollectionUserAnswers, doc.String(store.FieldID)); err != nil {
			return err
		}
	}
	return nil
}

// DocumentUserRepo はドキュメントストアを使用したユーザーリポジトリ。
// ドキュメントのidはストアが採番するため、subject IDは subjectId フィールドに保持する。
type DocumentUserRepo struct {
	mu    sync.Mutex
	store store.Store
}

// NewDocumentUserRepo はDocumentUserRepoを生成する。
func NewDocumentUserRepo(s store.Store) *DocumentUserRepo {
	return &DocumentUserRepo{store: s}
}

// FindByID はsubject IDでユーザーを取得する。見つからない場合はnilを返す。
func (r *DocumentUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	doc, err := r.findDocument(ctx, id)
	if err != nil || doc == nil {
		return nil, err
	}
	return decodeUser(doc)
}

// Upsert はsubject IDをキーにユーザーを冪等に保存する。
func (r *DocumentUserRepo) Upsert(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fields := store.Document{
		"name":     user.Name,
		"email":    user.Email,
		"imageUrl": nil,
	}
	if user.ImageURL != "" {
		fields["imageUrl"] = user.ImageURL
	}

	existing, err := r.findDocument(ctx, user.ID)
	if err != nil {
		return err
	}

	var saved store.Document
	if existing != nil {
		updated, found, err := r.store.Update(ctx, CollectionUsers, existing.String(store.FieldID), fields)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		saved = updated
	} else {
		fields["subjectId"] = user.ID
		created, err := r.store.Create(ctx, CollectionUsers, fields)
		if err != nil {
			return err
		}
		saved = created
	}

	u, err := decodeUser(saved)
	if err != nil {
		return err
	}
	*user = *u
	return nil
}

func (r *DocumentUserRepo) findDocument(ctx context.Context, subjectID string) (store.Document, error) {
	docs, err := r.store.List(ctx, CollectionUsers)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	for _, doc := range docs {
		if doc.String("subjectId") == subjectID {
			return doc, nil
		}
	}
	return nil, nil
}

func decodeUser(doc store.Document) (*model.User, error) {
	user := &model.User{}
	if err := store.DecodeInto(doc, user); err != nil {
		return nil, err
	}
	user.ID = doc.String("subjectId")
	return user, nil
}

// compile-time interface check
var (
	_ InterviewRepository = (*DocumentInterviewRepo)(nil)
	_ AnswerRepository    = (*DocumentAnswerRepo)(nil)
	_ UserRepository      = (*DocumentUserRepo)(nil)
)
