package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// sqliteSchema はSQLiteSlotsが使用するテーブル定義。
// updated_at はUnixミリ秒で保持する。
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv_slots (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteSlots はSQLiteファイルをバックエンドとするSlotStorage実装。
// 単一ノードのローカル実行で使用する。
type SQLiteSlots struct {
	db  *sql.DB
	now func() time.Time
}

var _ SlotStorage = (*SQLiteSlots)(nil)

// NewSQLiteSlots はSQLiteSlotsを生成する。テーブルはInitで作成する。
func NewSQLiteSlots(db *sql.DB) *SQLiteSlots {
	return &SQLiteSlots{db: db, now: time.Now}
}

// Init はkv_slotsテーブルが無ければ作成する。
func (s *SQLiteSlots) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("kv_slotsテーブルの作成に失敗しました: %w", err)
	}
	return nil
}

// Get はスロットの内容を返す。存在しない場合は nil, nil を返す。
func (s *SQLiteSlots) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_slots WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スロット %s の取得に失敗しました: %w", key, err)
	}
	return value, nil
}

// Put はスロットの内容を置き換える。
func (s *SQLiteSlots) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_slots (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("スロット %s の保存に失敗しました: %w", key, err)
	}
	return nil
}

// Delete はスロットを削除し、削除したかどうかを返す。
func (s *SQLiteSlots) Delete(ctx context.Context, key string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM kv_slots WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("スロット %s の削除に失敗しました: %w", key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

// Keys はprefixで始まるスロット名を昇順で返す。
func (s *SQLiteSlots) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv_slots WHERE key LIKE ? ESCAPE '\' ORDER BY key`,
		likePrefix(prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("スロット一覧の取得に失敗しました: %w", err)
	}
	return scanKeys(rows)
}

// PurgeOlderThan はprefixで始まり、before より前に更新されたスロットを削除する。
func (s *SQLiteSlots) PurgeOlderThan(ctx context.Context, prefix string, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_slots WHERE key LIKE ? ESCAPE '\' AND updated_at < ?`,
		likePrefix(prefix), before.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("古いスロットの削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

// PostgresSlots はPostgreSQLのkv_slotsテーブルをバックエンドとするSlotStorage実装。
// テーブルはマイグレーションで作成される。
type PostgresSlots struct {
	db *sql.DB
}

var _ SlotStorage = (*PostgresSlots)(nil)

// NewPostgresSlots はPostgresSlotsを生成する。
func NewPostgresSlots(db *sql.DB) *PostgresSlots {
	return &PostgresSlots{db: db}
}

// Get はスロットの内容を返す。存在しない場合は nil, nil を返す。
func (s *PostgresSlots) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_slots WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スロット %s の取得に失敗しました: %w", key, err)
	}
	return value, nil
}

// Put はスロットの内容を置き換える。
func (s *PostgresSlots) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_slots (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("スロット %s の保存に失敗しました: %w", key, err)
	}
	return nil
}

// Delete はスロットを削除し、削除したかどうかを返す。
func (s *PostgresSlots) Delete(ctx context.Context, key string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM kv_slots WHERE key = $1`, key)
	if err != nil {
		return false, fmt.Errorf("スロット %s の削除に失敗しました: %w", key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

// Keys はprefixで始まるスロット名を昇順で返す。
func (s *PostgresSlots) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv_slots WHERE key LIKE $1 ESCAPE '\' ORDER BY key`,
		likePrefix(prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("スロット一覧の取得に失敗しました: %w", err)
	}
	return scanKeys(rows)
}

// PurgeOlderThan はprefixで始まり、before より前に更新されたスロットを削除する。
func (s *PostgresSlots) PurgeOlderThan(ctx context.Context, prefix string, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_slots WHERE key LIKE $1 ESCAPE '\' AND updated_at < $2`,
		likePrefix(prefix), before,
	)
	if err != nil {
		return 0, fmt.Errorf("古いスロットの削除に失敗しました: %w", err)
	}
	return result.RowsAffected()
}

func scanKeys(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("スロット名の読み取りに失敗しました: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("スロット一覧の走査中にエラーが発生しました: %w", err)
	}
	return keys, nil
}

// likePrefix はLIKEの前方一致パターンを生成する。ワイルドカード文字はエスケープする。
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
