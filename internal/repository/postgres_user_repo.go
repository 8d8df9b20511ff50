package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/mockprep/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	var imageURL sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, image_url, created_at, updated_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.Name, &imageURL, &user.CreatedAt, &user.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}

	user.ImageURL = imageURL.String
	return user, nil
}

// Upsert はsubject IDをキーにユーザーを冪等に保存する。
// 既存ユーザーの場合はcreated_atを維持し、プロフィールとupdated_atのみ更新する。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	imageURL := sql.NullString{String: user.ImageURL, Valid: user.ImageURL != ""}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, email, name, image_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET email = EXCLUDED.email, name = EXCLUDED.name, image_url = EXCLUDED.image_url,
		     updated_at = GREATEST(EXCLUDED.updated_at, users.updated_at + INTERVAL '1 microsecond')
		 RETURNING created_at, updated_at`,
		user.ID, user.Email, user.Name, imageURL, now,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ユーザーの保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
