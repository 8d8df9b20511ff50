package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/mockprep/internal/model"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

func TestPostgresUserRepo_FindByID_Found(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT\s+id,\s*email,\s*name,\s*image_url,\s*created_at,\s*updated_at\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("sub-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "image_url", "created_at", "updated_at"}).
			AddRow("sub-1", "a@example.com", "Alice", nil, created, created))

	user, err := repo.FindByID(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if user == nil || user.ID != "sub-1" || user.Email != "a@example.com" || user.ImageURL != "" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestPostgresUserRepo_FindByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery(`FROM\s+users`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	user, err := repo.FindByID(context.Background(), "ghost")
	if err != nil || user != nil {
		t.Errorf("FindByID(ghost) = %+v, %v; want nil, nil", user, err)
	}
}

func TestPostgresUserRepo_Upsert(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users.*ON\s+CONFLICT\s*\(id\)\s*DO\s+UPDATE.*RETURNING\s+created_at,\s*updated_at`).
		WithArgs("sub-1", "a@example.com", "Alice", sql.NullString{String: "https://example.com/a.png", Valid: true}, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, updated))

	user := &model.User{ID: "sub-1", Email: "a@example.com", Name: "Alice", ImageURL: "https://example.com/a.png"}
	if err := repo.Upsert(context.Background(), user); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if !user.CreatedAt.Equal(created) || !user.UpdatedAt.Equal(updated) {
		t.Errorf("timestamps = %v / %v", user.CreatedAt, user.UpdatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresUserRepo_Upsert_DBError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	if err := repo.Upsert(context.Background(), &model.User{ID: "sub-1"}); err == nil {
		t.Fatal("エラーが返されるべき")
	}
}
