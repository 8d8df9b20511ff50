// Package store はコレクション単位のドキュメントストアを提供する。
//
// MemoryStore はプロセス内のみで保持する揮発性のストア、DurableStore は
// コレクション全体をキーバリューのスロットに丸ごと直列化する永続ストア。
// どちらも読み出し時に登録済みのバリデータで検証し、形の壊れたレコードは黙って除外する。
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/mockprep/internal/model"
)

// ドキュメントのメタデータキー。
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Document はJSONの汎用表現で保持されるレコード。
type Document map[string]any

// String は文字列フィールドの値を返す。存在しないか文字列でない場合は空文字列を返す。
func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

// Validator はデコード済みの値がレコードの形を満たすかを判定する。
type Validator func(v any) bool

// Collection はストアに登録するコレクションの定義。
type Collection struct {
	Name     string    // コレクション名（スロット名の一部にもなる）
	IDPrefix string    // 採番するIDの接頭辞
	Validate Validator // nilの場合は検証しない
}

// Store はドキュメントストアのインターフェース。
// 見つからない場合はエラーではなく found=false を返す。
type Store interface {
	Create(ctx context.Context, collection string, doc Document) (Document, error)
	List(ctx context.Context, collection string) ([]Document, error)
	GetByID(ctx context.Context, collection, id string) (Document, bool, error)
	Update(ctx context.Context, collection, id string, patch Document) (Document, bool, error)
	Delete(ctx context.Context, collection, id string) (bool, error)
}

// backend はコレクション全体の読み書きを担う。
// loadはトランスポート層の失敗のみをエラーとして返し、内容の破損は空として扱う。
type backend interface {
	load(ctx context.Context, c Collection) ([]Document, error)
	save(ctx context.Context, c Collection, docs []Document) error
}

// engine はMemoryStoreとDurableStoreに共通する操作を実装する。
// 1回の呼び出しはmuで保護され、プロセス内では不可分に実行される。
type engine struct {
	mu          sync.Mutex
	backend     backend
	collections map[string]Collection
	logger      *slog.Logger
	now         func() time.Time // テスト用に差し替え可能
}

func newEngine(b backend, logger *slog.Logger, collections []Collection) *engine {
	registered := make(map[string]Collection, len(collections))
	for _, c := range collections {
		registered[c.Name] = c
	}
	return &engine{
		backend:     b,
		collections: registered,
		logger:      logger,
		now:         time.Now,
	}
}

// Create はドキュメントにIDと作成・更新日時を付与して保存する。
// 入力に含まれるid, createdAt, updatedAtは無視する。
func (e *engine) Create(ctx context.Context, collection string, doc Document) (Document, error) {
	c, err := e.collection(collection)
	if err != nil {
		return nil, err
	}

	record, err := normalize(doc)
	if err != nil {
		return nil, e.storageFailure(c, "ドキュメントの直列化に失敗しました", err)
	}

	id, err := NewID(c.IDPrefix)
	if err != nil {
		return nil, e.storageFailure(c, "IDの採番に失敗しました", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	docs, err := e.loadForWrite(ctx, c)
	if err != nil {
		return nil, err
	}

	ts := formatTime(e.now())
	record[FieldID] = id
	record[FieldCreatedAt] = ts
	record[FieldUpdatedAt] = ts

	if !c.valid(record) {
		return nil, model.NewValidationError(fmt.Sprintf("%s の形式が不正です", c.Name))
	}

	docs = append(docs, record)
	if err := e.backend.save(ctx, c, docs); err != nil {
		return nil, e.storageFailure(c, "コレクションの保存に失敗しました", err)
	}

	return cloneDocument(record), nil
}

// List はコレクションの全ドキュメントを作成順に返す。
// 読み出しに失敗した場合はログに記録し、空のリストを返す。
func (e *engine) List(ctx context.Context, collection string) ([]Document, error) {
	c, err := e.collection(collection)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	docs := e.loadForRead(ctx, c)
	result := make([]Document, 0, len(docs))
	for _, d := range docs {
		result = append(result, cloneDocument(d))
	}
	return result, nil
}

// GetByID は指定IDのドキュメントを返す。
func (e *engine) GetByID(ctx context.Context, collection, id string) (Document, bool, error) {
	c, err := e.collection(collection)
	if err != nil {
		return nil, false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, d := range e.loadForRead(ctx, c) {
		if d.String(FieldID) == id {
			return cloneDocument(d), true, nil
		}
	}
	return nil, false, nil
}

// Update はpatchのトップレベルのキーを既存ドキュメントにマージし、updatedAtを更新する。
// id, createdAt, updatedAtはpatchで変更できない。
// updatedAtは常に前回値より厳密に後の時刻になる。
func (e *engine) Update(ctx context.Context, collection, id string, patch Document) (Document, bool, error) {
	c, err := e.collection(collection)
	if err != nil {
		return nil, false, err
	}

	normalized, err := normalize(patch)
	if err != nil {
		return nil, false, e.storageFailure(c, "ドキュメントの直列化に失敗しました", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	docs, err := e.loadForWrite(ctx, c)
	if err != nil {
		return nil, false, err
	}

	idx := indexOf(docs, id)
	if idx < 0 {
		return nil, false, nil
	}

	updated := cloneDocument(docs[idx])
	for k, v := range normalized {
		switch k {
		case FieldID, FieldCreatedAt, FieldUpdatedAt:
			continue
		}
		updated[k] = v
	}
	updated[FieldUpdatedAt] = formatTime(e.nextUpdatedAt(docs[idx]))

	if !c.valid(updated) {
		return nil, false, model.NewValidationError(fmt.Sprintf("%s の形式が不正です", c.Name))
	}

	docs[idx] = updated
	if err := e.backend.save(ctx, c, docs); err != nil {
		return nil, false, e.storageFailure(c, "コレクションの保存に失敗しました", err)
	}

	return cloneDocument(updated), true, nil
}

// Delete は指定IDのドキュメントを削除し、削除したかどうかを返す。
func (e *engine) Delete(ctx context.Context, collection, id string) (bool, error) {
	c, err := e.collection(collection)
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	docs, err := e.loadForWrite(ctx, c)
	if err != nil {
		return false, err
	}

	idx := indexOf(docs, id)
	if idx < 0 {
		return false, nil
	}

	docs = append(docs[:idx], docs[idx+1:]...)
	if err := e.backend.save(ctx, c, docs); err != nil {
		return false, e.storageFailure(c, "コレクションの保存に失敗しました", err)
	}
	return true, nil
}

func (e *engine) collection(name string) (Collection, error) {
	c, ok := e.collections[name]
	if !ok {
		return Collection{}, fmt.Errorf("未登録のコレクションです: %s", name)
	}
	return c, nil
}

// loadForRead は読み出し用にコレクションを取得する。失敗は空として扱う。
func (e *engine) loadForRead(ctx context.Context, c Collection) []Document {
	docs, err := e.backend.load(ctx, c)
	if err != nil {
		e.logger.Warn("コレクションの読み込みに失敗したため空として扱います",
			slog.String("collection", c.Name),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return c.filter(docs, e.logger)
}

// loadForWrite は書き込み前にコレクションを取得する。
// 読み込みに失敗したまま保存すると既存データを失うため、失敗はSTORAGE_FAILUREとして返す。
func (e *engine) loadForWrite(ctx context.Context, c Collection) ([]Document, error) {
	docs, err := e.backend.load(ctx, c)
	if err != nil {
		return nil, e.storageFailure(c, "コレクションの読み込みに失敗しました", err)
	}
	return c.filter(docs, e.logger), nil
}

// nextUpdatedAt は前回のupdatedAtより厳密に後の時刻を返す。
func (e *engine) nextUpdatedAt(prev Document) time.Time {
	now := e.now().UTC()
	last, err := time.Parse(time.RFC3339Nano, prev.String(FieldUpdatedAt))
	if err == nil && !now.After(last) {
		return last.Add(time.Nanosecond)
	}
	return now
}

func (e *engine) storageFailure(c Collection, msg string, err error) error {
	e.logger.Error(msg,
		slog.String("collection", c.Name),
		slog.String("error", err.Error()),
	)
	return model.NewStorageFailureError()
}

func (c Collection) valid(d Document) bool {
	if c.Validate == nil {
		return true
	}
	return c.Validate(map[string]any(d))
}

// filter はバリデータを通過したドキュメントのみを返す。
func (c Collection) filter(docs []Document, logger *slog.Logger) []Document {
	if c.Validate == nil {
		return docs
	}
	kept := docs[:0:0]
	dropped := 0
	for _, d := range docs {
		if c.valid(d) {
			kept = append(kept, d)
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		logger.Debug("形式が不正なレコードを除外しました",
			slog.String("collection", c.Name),
			slog.Int("dropped", dropped),
		)
	}
	return kept
}

// NewID は "<prefix>-<UUIDv7>" 形式の時刻順のIDを生成する。
func NewID(prefix string) (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	if prefix == "" {
		return u.String(), nil
	}
	return prefix + "-" + u.String(), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func indexOf(docs []Document, id string) int {
	for i, d := range docs {
		if d.String(FieldID) == id {
			return i
		}
	}
	return -1
}

// normalize はドキュメントをJSONの汎用表現（map[string]any, []any, float64 など）に変換する。
// 呼び出し元の値とは独立したコピーになる。
func normalize(doc Document) (Document, error) {
	if doc == nil {
		return Document{}, nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = Document{}
	}
	return out, nil
}

func cloneDocument(d Document) Document {
	return Document(cloneValue(map[string]any(d)).(map[string]any))
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = cloneValue(val)
		}
		return m
	case Document:
		return cloneValue(map[string]any(t))
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = cloneValue(val)
		}
		return s
	default:
		return v
	}
}

// DecodeInto は正規化済みのドキュメントを型付きの値に変換する。
func DecodeInto(doc Document, v any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("ドキュメントの直列化に失敗しました: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("ドキュメントのデコードに失敗しました: %w", err)
	}
	return nil
}

// EncodeFrom は型付きの値をドキュメントに変換する。
func EncodeFrom(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("値の直列化に失敗しました: %w", err)
	}
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("ドキュメントへの変換に失敗しました: %w", err)
	}
	return d, nil
}
