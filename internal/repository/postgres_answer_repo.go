package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/mockprep/internal/model"
	"github.com/hitoshi/mockprep/internal/store"
)

const answerColumns = `id, interview_id, question_id, user_id, answer, rating, feedback, created_at, updated_at`

// PostgresAnswerRepo はPostgreSQLを使用した回答リポジトリ。
// (interview_id, question_id, user_id) のユニーク制約で1問1回答を保証する。
type PostgresAnswerRepo struct {
	db *sql.DB
}

// NewPostgresAnswerRepo はPostgresAnswerRepoを生成する。
func NewPostgresAnswerRepo(db *sql.DB) *PostgresAnswerRepo {
	return &PostgresAnswerRepo{db: db}
}

// ListByInterview は面接に対するユーザーの回答を作成日時の昇順で返す。
func (r *PostgresAnswerRepo) ListByInterview(ctx context.Context, interviewID, userID string) ([]*model.UserAnswer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+answerColumns+` FROM user_answers
		 WHERE interview_id = $1 AND user_id = $2 ORDER BY created_at ASC`,
		interviewID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("回答一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	answers := make([]*model.UserAnswer, 0)
	for rows.Next() {
		answer, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, answer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("回答一覧の走査に失敗しました: %w", err)
	}
	return answers, nil
}

// FindByID は指定IDの回答を取得する。見つからない場合はnilを返す。
func (r *PostgresAnswerRepo) FindByID(ctx context.Context, id string) (*model.UserAnswer, error) {
	answer, err := scanAnswer(r.db.QueryRowContext(ctx,
		`SELECT `+answerColumns+` FROM user_answers WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return answer, nil
}

// Upsert は (interview_id, question_id, user_id) をキーに回答を保存する。
// 競合時は既存行のIDとcreated_atを維持し、回答を置き換えて評価をクリアする。
func (r *PostgresAnswerRepo) Upsert(ctx context.Context, answer *model.UserAnswer) error {
	id, err := store.NewID("answer")
	if err != nil {
		return fmt.Errorf("回答IDの採番に失敗しました: %w", err)
	}
	now := time.Now().UTC()

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO user_answers (id, interview_id, question_id, user_id, answer, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)
		 ON CONFLICT (interview_id, question_id, user_id) DO UPDATE
		 SET answer = EXCLUDED.answer, rating = NULL, feedback = NULL,
		     updated_at = GREATEST(EXCLUDED.updated_at, user_answers.updated_at + INTERVAL '1 microsecond')
		 RETURNING id, created_at, updated_at`,
		id, answer.InterviewID, answer.QuestionID, answer.UserID, answer.Answer, now,
	).Scan(&answer.ID, &answer.CreatedAt, &answer.UpdatedAt)
	if err != nil {
		return fmt.Errorf("回答の保存に失敗しました: %w", err)
	}

	answer.Rating = nil
	answer.Feedback = ""
	return nil
}

// SetEvaluation は回答がevaluatedAnswerのままであれば評価結果を設定する。
// 回答の比較はUPDATEの条件に含め、再提出との競合を1文で判定する。
func (r *PostgresAnswerRepo) SetEvaluation(ctx context.Context, id, evaluatedAnswer string, feedback model.AnswerFeedback) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_answers
		 SET rating = $2, feedback = $3, updated_at = GREATEST($4, updated_at + INTERVAL '1 microsecond')
		 WHERE id = $1 AND answer = $5`,
		id, feedback.Rating, feedback.Feedback, time.Now().UTC(), evaluatedAnswer,
	)
	if err != nil {
		return fmt.Errorf("回答評価の保存に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByInterview は面接に紐づく全ての回答を削除する。
func (r *PostgresAnswerRepo) DeleteByInterview(ctx context.Context, interviewID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM user_answers WHERE interview_id = $1`, interviewID); err != nil {
		return fmt.Errorf("回答の削除に失敗しました: %w", err)
	}
	return nil
}

func scanAnswer(row rowScanner) (*model.UserAnswer, error) {
	answer := &model.UserAnswer{}
	var rating sql.NullInt64
	var feedback sql.NullString
	err := row.Scan(&answer.ID, &answer.InterviewID, &answer.QuestionID, &answer.UserID, &answer.Answer,
		&rating, &feedback, &answer.CreatedAt, &answer.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("回答行の読み取りに失敗しました: %w", err)
	}

	if rating.Valid {
		v := int(rating.Int64)
		answer.Rating = &v
	}
	answer.Feedback = feedback.String
	return answer, nil
}

// compile-time interface check
var _ AnswerRepository = (*PostgresAnswerRepo)(nil)
