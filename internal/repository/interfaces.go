// Package repository はデータ永続化のインターフェースを定義する。
//
// 実装はPostgreSQLを使用するもの（本番構成）と、store.Store の上に構築した
// ドキュメントストア版（ローカル構成・テスト）の2種類がある。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/mockprep/internal/model"
)

// ErrNotFound は更新対象のレコードが存在しないことを示す。
var ErrNotFound = errors.New("レコードが見つかりません")

// InterviewRepository は面接データの永続化インターフェース。
type InterviewRepository interface {
	// ListByOwner は所有者の面接を作成日時の降順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Interview, error)

	// FindByID は指定IDの面接を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Interview, error)

	// Create は面接を作成し、採番したIDと作成・更新日時をinterviewに設定する。
	Create(ctx context.Context, interview *model.Interview) error

	// Update は面接の可変フィールドを上書きし、更新日時をinterviewに設定する。
	// 対象が存在しない場合はErrNotFoundを返す。
	Update(ctx context.Context, interview *model.Interview) error

	// Delete は指定IDの面接を削除し、削除したかどうかを返す。
	Delete(ctx context.Context, id string) (bool, error)
}

// AnswerRepository は回答データの永続化インターフェース。
type AnswerRepository interface {
	// ListByInterview は面接に対するユーザーの回答を作成日時の昇順で返す。
	ListByInterview(ctx context.Context, interviewID, userID string) ([]*model.UserAnswer, error)

	// FindByID は指定IDの回答を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.UserAnswer, error)

	// Upsert は (interviewId, questionId, userId) をキーに回答を保存する。
	// 既存の回答がある場合はIDと作成日時を維持して回答を置き換え、評価をクリアする。
	// 保存後のID・作成日時・更新日時をanswerに設定する。
	Upsert(ctx context.Context, answer *model.UserAnswer) error

	// SetEvaluation は保存中の回答がevaluatedAnswerと一致する場合に限り評価結果を設定する。
	// 比較と書き込みは不可分に行う。対象が存在しないか回答が変わっている場合はErrNotFoundを返す。
	SetEvaluation(ctx context.Context, id, evaluatedAnswer string, feedback model.AnswerFeedback) error

	// DeleteByInterview は面接に紐づく全ての回答を削除する。
	DeleteByInterview(ctx context.Context, interviewID string) error
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Upsert はsubject IDをキーにユーザーを冪等に保存する。
	// 既存ユーザーの作成日時は維持し、保存後の作成・更新日時をuserに設定する。
	Upsert(ctx context.Context, user *model.User) error
}

// ResumeRepository は職務経歴書分析結果の永続化インターフェース。
type ResumeRepository interface {
	// Save は分析結果を保存する。
	Save(ctx context.Context, analysis *model.ResumeAnalysis) error

	// FindByID は指定IDの分析結果を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ResumeAnalysis, error)

	// ListByOwner は所有者の分析結果を作成日時の降順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.ResumeAnalysis, error)

	// Delete は指定IDの分析結果を削除し、削除したかどうかを返す。
	Delete(ctx context.Context, id string) (bool, error)
}
