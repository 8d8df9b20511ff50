package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/mockprep/internal/model"
	"github.com/hitoshi/mockprep/internal/store"
)

const interviewColumns = `id, owner_id, position, description, experience, tech_stack, questions, created_at, updated_at`

// PostgresInterviewRepo はPostgreSQLを使用した面接リポジトリ。
// 質問リストはJSONBカラムに保持する。
type PostgresInterviewRepo struct {
	db *sql.DB
}

// NewPostgresInterviewRepo はPostgresInterviewRepoを生成する。
func NewPostgresInterviewRepo(db *sql.DB) *PostgresInterviewRepo {
	return &PostgresInterviewRepo{db: db}
}

// ListByOwner は所有者の面接を作成日時の降順で返す。
func (r *PostgresInterviewRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Interview, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE owner_id = $1 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("面接一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	interviews := make([]*model.Interview, 0)
	for rows.Next() {
		interview, err := scanInterview(rows)
		if err != nil {
			return nil, err
		}
		interviews = append(interviews, interview)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("面接一覧の走査に失敗しました: %w", err)
	}
	return interviews, nil
}

// FindByID は指定IDの面接を取得する。見つからない場合はnilを返す。
func (r *PostgresInterviewRepo) FindByID(ctx context.Context, id string) (*model.Interview, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+interviewColumns+` FROM interviews WHERE id = $1`,
		id,
	)
	interview, err := scanInterview(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return interview, nil
}

// Create は面接を作成し、採番したIDと作成・更新日時をinterviewに設定する。
func (r *PostgresInterviewRepo) Create(ctx context.Context, interview *model.Interview) error {
	id, err := store.NewID("interview")
	if err != nil {
		return fmt.Errorf("面接IDの採番に失敗しました: %w", err)
	}
	questions, err := marshalQuestions(interview.Questions)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO interviews (id, owner_id, position, description, experience, tech_stack, questions, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		id, interview.OwnerID, interview.Position, interview.Description, interview.Experience,
		interview.TechStack, questions, now,
	)
	if err != nil {
		return fmt.Errorf("面接の作成に失敗しました: %w", err)
	}

	interview.ID = id
	interview.CreatedAt = now
	interview.UpdatedAt = now
	return nil
}

// Update は面接の可変フィールドを上書きする。owner_idは変更しない。
// updated_atは常に前回値より後になる。
func (r *PostgresInterviewRepo) Update(ctx context.Context, interview *model.Interview) error {
	questions, err := marshalQuestions(interview.Questions)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(ctx,
		`UPDATE interviews
		 SET position = $2, description = $3, experience = $4, tech_stack = $5, questions = $6,
		     updated_at = GREATEST($7, updated_at + INTERVAL '1 microsecond')
		 WHERE id = $1
		 RETURNING updated_at`,
		interview.ID, interview.Position, interview.Description, interview.Experience,
		interview.TechStack, questions, time.Now().UTC(),
	).Scan(&interview.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("面接の更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDの面接を削除する。関連するuser_answersはCASCADE削除される。
func (r *PostgresInterviewRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM interviews WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("面接の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return rowsAffected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInterview(row rowScanner) (*model.Interview, error) {
	interview := &model.Interview{}
	var questions []byte
	err := row.Scan(&interview.ID, &interview.OwnerID, &interview.Position, &interview.Description,
		&interview.Experience, &interview.TechStack, &questions, &interview.CreatedAt, &interview.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("面接行の読み取りに失敗しました: %w", err)
	}

	interview.Questions = []model.Question{}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &interview.Questions); err != nil {
			return nil, fmt.Errorf("質問リストのデコードに失敗しました: %w", err)
		}
	}
	return interview, nil
}

// marshalQuestions は質問リストをJSONB用の文字列に変換する。
// lib/pq は []byte をbyteaとして送信するため文字列で渡す。
func marshalQuestions(questions []model.Question) (string, error) {
	if questions == nil {
		questions = []model.Question{}
	}
	b, err := json.Marshal(questions)
	if err != nil {
		return "", fmt.Errorf("質問リストの直列化に失敗しました: %w", err)
	}
	return string(b), nil
}

// compile-time interface check
var _ InterviewRepository = (*PostgresInterviewRepo)(nil)
