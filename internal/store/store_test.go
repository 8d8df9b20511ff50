package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"github.com/hitoshi/mockprep/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// テスト用のコレクション: nameが文字列であることのみを要求する
var notes = Collection{
	Name:     "notes",
	IDPrefix: "note",
	Validate: func(v any) bool {
		m, ok := v.(map[string]any)
		if !ok {
			return false
		}
		_, ok = m["name"].(string)
		return ok
	},
}

func newSQLiteDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open error: %v", err)
	}
	// :memory: は接続ごとに別のDBになるため1接続に固定する
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// storeFactories は両方のストア実装で同じ性質を検証するためのファクトリ。
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			var buf bytes.Buffer
			return NewMemoryStore(newTestLogger(&buf), notes)
		},
		"durable/memory-slots": func(t *testing.T) Store {
			var buf bytes.Buffer
			return NewDurableStore(NewMemorySlots(), "test", newTestLogger(&buf), notes)
		},
		"durable/sqlite-slots": func(t *testing.T) Store {
			slots := NewSQLiteSlots(newSQLiteDB(t))
			if err := slots.Init(context.Background()); err != nil {
				t.Fatalf("Init error: %v", err)
			}
			var buf bytes.Buffer
			return NewDurableStore(slots, "test", newTestLogger(&buf), notes)
		},
	}
}

func TestStore_CreateThenGetByID(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			input := Document{"name": "first", "tags": []string{"a", "b"}, "count": 3}
			created, err := s.Create(ctx, "notes", input)
			if err != nil {
				t.Fatalf("Create error: %v", err)
			}

			id := created.String(FieldID)
			if !strings.HasPrefix(id, "note-") {
				t.Errorf("id = %q, want prefix note-", id)
			}
			if created.String(FieldCreatedAt) == "" || created.String(FieldCreatedAt) != created.String(FieldUpdatedAt) {
				t.Errorf("createdAt = %q, updatedAt = %q, want equal non-empty", created.String(FieldCreatedAt), created.String(FieldUpdatedAt))
			}

			got, found, err := s.GetByID(ctx, "notes", id)
			if err != nil || !found {
				t.Fatalf("GetByID = found %v, err %v", found, err)
			}

			want := Document{
				"name":         "first",
				"tags":         []any{"a", "b"},
				"count":        float64(3),
				FieldID:        id,
				FieldCreatedAt: created.String(FieldCreatedAt),
				FieldUpdatedAt: created.String(FieldUpdatedAt),
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("GetByID mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStore_CreateIgnoresSuppliedMetadata(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			created, err := s.Create(context.Background(), "notes", Document{
				"name":         "x",
				FieldID:        "forged",
				FieldCreatedAt: "1999-01-01T00:00:00Z",
			})
			if err != nil {
				t.Fatalf("Create error: %v", err)
			}
			if created.String(FieldID) == "forged" {
				t.Error("呼び出し元が指定したidが採用された")
			}
			if created.String(FieldCreatedAt) == "1999-01-01T00:00:00Z" {
				t.Error("呼び出し元が指定したcreatedAtが採用された")
			}
		})
	}
}

func TestStore_UniqueIDs(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			seen := make(map[string]bool)
			for i := 0; i < 50; i++ {
				d, err := s.Create(context.Background(), "notes", Document{"name": "n"})
				if err != nil {
					t.Fatalf("Create error: %v", err)
				}
				id := d.String(FieldID)
				if seen[id] {
					t.Fatalf("IDが重複した: %s", id)
				}
				seen[id] = true
			}

			list, err := s.List(context.Background(), "notes")
			if err != nil {
				t.Fatalf("List error: %v", err)
			}
			if len(list) != 50 {
				t.Errorf("len(List) = %d, want 50", len(list))
			}
		})
	}
}

func TestStore_UpdateRefreshesUpdatedAt(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			created, err := s.Create(ctx, "notes", Document{"name": "before", "keep": true})
			if err != nil {
				t.Fatalf("Create error: %v", err)
			}
			id := created.String(FieldID)

			updated, found, err := s.Update(ctx, "notes", id, Document{
				"name":         "after",
				FieldID:        "other",
				FieldCreatedAt: "1999-01-01T00:00:00Z",
			})
			if err != nil || !found {
				t.Fatalf("Update = found %v, err %v", found, err)
			}

			got, _, _ := s.GetByID(ctx, "notes", id)
			if diff := cmp.Diff(updated, got); diff != "" {
				t.Errorf("Update の戻り値と GetByID が一致しない (-want +got):\n%s", diff)
			}
			if got.String("name") != "after" {
				t.Errorf("name = %q, want after", got.String("name"))
			}
			if got["keep"] != true {
				t.Errorf("patchに含まれないキーが失われた: %v", got["keep"])
			}
			if got.String(FieldID) != id || got.String(FieldCreatedAt) != created.String(FieldCreatedAt) {
				t.Error("id または createdAt が変更された")
			}

			createdAt, _ := time.Parse(time.RFC3339Nano, got.String(FieldCreatedAt))
			updatedAt, _ := time.Parse(time.RFC3339Nano, got.String(FieldUpdatedAt))
			if !updatedAt.After(createdAt) {
				t.Errorf("updatedAt (%v) は createdAt (%v) より後であるべき", updatedAt, createdAt)
			}
		})
	}
}

func TestStore_UpdateStrictlyIncreasesWithFrozenClock(t *testing.T) {
	var buf bytes.Buffer
	s := NewMemoryStore(newTestLogger(&buf), notes)
	frozen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return frozen }
	ctx := context.Background()

	created, _ := s.Create(ctx, "notes", Document{"name": "n"})
	id := created.String(FieldID)

	prev := created.String(FieldUpdatedAt)
	for i := 0; i < 3; i++ {
		updated, _, err := s.Update(ctx, "notes", id, Document{"name": "m"})
		if err != nil {
			t.Fatalf("Update error: %v", err)
		}
		p, _ := time.Parse(time.RFC3339Nano, prev)
		u, _ := time.Parse(time.RFC3339Nano, updated.String(FieldUpdatedAt))
		if !u.After(p) {
			t.Fatalf("updatedAt %v は前回値 %v より後であるべき", u, p)
		}
		prev = updated.String(FieldUpdatedAt)
	}
}

func TestStore_UpdateAndDeleteMissing(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			got, found, err := s.Update(ctx, "notes", "note-missing", Document{"name": "x"})
			if err != nil || found || got != nil {
				t.Errorf("Update(missing) = %v, %v, %v; want nil, false, nil", got, found, err)
			}

			deleted, err := s.Delete(ctx, "notes", "note-missing")
			if err != nil || deleted {
				t.Errorf("Delete(missing) = %v, %v; want false, nil", deleted, err)
			}
		})
	}
}

func TestStore_DeleteThenGetByID(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			a, _ := s.Create(ctx, "notes", Document{"name": "a"})
			b, _ := s.Create(ctx, "notes", Document{"name": "b"})

			deleted, err := s.Delete(ctx, "notes", a.String(FieldID))
			if err != nil || !deleted {
				t.Fatalf("Delete = %v, %v; want true, nil", deleted, err)
			}

			if _, found, _ := s.GetByID(ctx, "notes", a.String(FieldID)); found {
				t.Error("削除したドキュメントが取得できてしまった")
			}
			if _, found, _ := s.GetByID(ctx, "notes", b.String(FieldID)); !found {
				t.Error("削除していないドキュメントが取得できない")
			}

			again, _ := s.Delete(ctx, "notes", a.String(FieldID))
			if again {
				t.Error("2回目の Delete は false を返すべき")
			}
		})
	}
}

func TestStore_InvalidPayloadIsRejected(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			_, err := s.Create(ctx, "notes", Document{"name": 42})
			if !model.HasCode(err, model.ErrCodeValidationFailure) {
				t.Errorf("err = %v, want VALIDATION_FAILURE", err)
			}

			created, _ := s.Create(ctx, "notes", Document{"name": "ok"})
			_, _, err = s.Update(ctx, "notes", created.String(FieldID), Document{"name": nil})
			if !model.HasCode(err, model.ErrCodeValidationFailure) {
				t.Errorf("Update err = %v, want VALIDATION_FAILURE", err)
			}

			got, _, _ := s.GetByID(ctx, "notes", created.String(FieldID))
			if got.String("name") != "ok" {
				t.Errorf("不正な更新が保存された: %v", got)
			}
		})
	}
}

func TestStore_UnknownCollection(t *testing.T) {
	var buf bytes.Buffer
	s := NewMemoryStore(newTestLogger(&buf), notes)
	if _, err := s.List(context.Background(), "unknown"); err == nil {
		t.Error("未登録のコレクションはエラーになるべき")
	}
}

func TestStore_ReturnedDocumentsAreCopies(t *testing.T) {
	var buf bytes.Buffer
	s := NewMemoryStore(newTestLogger(&buf), notes)
	ctx := context.Background()

	created, _ := s.Create(ctx, "notes", Document{"name": "orig", "list": []any{"x"}})
	created["name"] = "mutated"
	created["list"].([]any)[0] = "y"

	got, _, _ := s.GetByID(ctx, "notes", created.String(FieldID))
	if got.String("name") != "orig" || got["list"].([]any)[0] != "x" {
		t.Errorf("返却値の変更がストアに反映された: %v", got)
	}
}

func TestDurableStore_CorruptedSlotReadsAsEmpty(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"truncated", `[{"id":"note-1","name":"a","createdAt":"2026-01-01T00:00:00Z"`},
		{"not an array", `{"id":"note-1"}`},
		{"garbage", `not json at all`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			slots := NewMemorySlots()
			s := NewDurableStore(slots, "ns", newTestLogger(&buf), notes)
			ctx := context.Background()

			if err := slots.Put(ctx, "ns:notes", []byte(tt.raw)); err != nil {
				t.Fatalf("Put error: %v", err)
			}

			list, err := s.List(ctx, "notes")
			if err != nil {
				t.Fatalf("List error: %v", err)
			}
			if len(list) != 0 {
				t.Errorf("len(List) = %d, want 0", len(list))
			}

			// 破損したスロットへの書き込みは新しいコレクションとして扱う
			if _, err := s.Create(ctx, "notes", Document{"name": "fresh"}); err != nil {
				t.Fatalf("Create error: %v", err)
			}
			list, _ = s.List(ctx, "notes")
			if len(list) != 1 {
				t.Errorf("len(List) = %d, want 1", len(list))
			}
		})
	}
}

func TestDurableStore_FiltersForeignRecords(t *testing.T) {
	var buf bytes.Buffer
	slots := NewMemorySlots()
	s := NewDurableStore(slots, "ns", newTestLogger(&buf), notes)
	ctx := context.Background()

	raw := `[{"id":"note-1","name":"valid"},{"id":"note-2","name":7},"scalar",null]`
	_ = slots.Put(ctx, "ns:notes", []byte(raw))

	list, err := s.List(ctx, "notes")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 1 || list[0].String(FieldID) != "note-1" {
		t.Errorf("List = %v, want only note-1", list)
	}

	if _, found, _ := s.GetByID(ctx, "notes", "note-2"); found {
		t.Error("検証に失敗したレコードが GetByID で返された")
	}
}

func TestDurableStore_PersistsAcrossInstances(t *testing.T) {
	var buf bytes.Buffer
	slots := NewMemorySlots()
	ctx := context.Background()

	first := NewDurableStore(slots, "ns", newTestLogger(&buf), notes)
	created, err := first.Create(ctx, "notes", Document{"name": "kept"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	second := NewDurableStore(slots, "ns", newTestLogger(&buf), notes)
	got, found, err := second.GetByID(ctx, "notes", created.String(FieldID))
	if err != nil || !found {
		t.Fatalf("GetByID = %v, %v", found, err)
	}
	if got.String("name") != "kept" {
		t.Errorf("name = %q, want kept", got.String("name"))
	}

	keys, _ := slots.Keys(ctx, "ns:")
	if diff := cmp.Diff([]string{"ns:notes"}, keys); diff != "" {
		t.Errorf("スロット名が一致しない (-want +got):\n%s", diff)
	}
}

// failingSlots は書き込みまたは読み込みに失敗するSlotStorage。
type failingSlots struct {
	*MemorySlots
	getErr error
	putErr error
}

func (f *failingSlots) Get(ctx context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.MemorySlots.Get(ctx, key)
}

func (f *failingSlots) Put(ctx context.Context, key string, value []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.MemorySlots.Put(ctx, key, value)
}

func TestDurableStore_WriteFailureIsStorageFailure(t *testing.T) {
	var buf bytes.Buffer
	slots := &failingSlots{MemorySlots: NewMemorySlots(), putErr: errors.New("quota exceeded")}
	s := NewDurableStore(slots, "ns", newTestLogger(&buf), notes)

	_, err := s.Create(context.Background(), "notes", Document{"name": "x"})
	if !model.HasCode(err, model.ErrCodeStorageFailure) {
		t.Fatalf("err = %v, want STORAGE_FAILURE", err)
	}
	if !strings.Contains(buf.String(), "quota exceeded") {
		t.Errorf("原因がログに記録されていない: %s", buf.String())
	}
}

func TestDurableStore_ReadFailureDegradesToEmpty(t *testing.T) {
	var buf bytes.Buffer
	slots := &failingSlots{MemorySlots: NewMemorySlots(), getErr: errors.New("io error")}
	s := NewDurableStore(slots, "ns", newTestLogger(&buf), notes)
	ctx := context.Background()

	list, err := s.List(ctx, "notes")
	if err != nil || len(list) != 0 {
		t.Errorf("List = %v, %v; want empty, nil", list, err)
	}

	if _, found, err := s.GetByID(ctx, "notes", "note-1"); found || err != nil {
		t.Errorf("GetByID = %v, %v; want false, nil", found, err)
	}

	// 書き込み経路では既存データを守るため失敗として返す
	if _, err := s.Create(ctx, "notes", Document{"name": "x"}); !model.HasCode(err, model.ErrCodeStorageFailure) {
		t.Errorf("Create err = %v, want STORAGE_FAILURE", err)
	}
}

func TestNewID_Format(t *testing.T) {
	a, err := NewID("interview")
	if err != nil {
		t.Fatalf("NewID error: %v", err)
	}
	b, _ := NewID("interview")
	if !strings.HasPrefix(a, "interview-") || a == b {
		t.Errorf("NewID = %q, %q", a, b)
	}

	bare, _ := NewID("")
	if strings.Contains(bare, "--") || strings.HasPrefix(bare, "-") {
		t.Errorf("接頭辞なしのID = %q", bare)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	type sample struct {
		Name  string    `json:"name"`
		Count int       `json:"count"`
		When  time.Time `json:"when"`
	}
	in := sample{Name: "n", Count: 2, When: time.Date(2026, 3, 4, 5, 6, 7, 8, time.UTC)}

	doc, err := EncodeFrom(in)
	if err != nil {
		t.Fatalf("EncodeFrom error: %v", err)
	}
	var out sample
	if err := DecodeInto(doc, &out); err != nil {
		t.Fatalf("DecodeInto error: %v", err)
	}
	if !out.When.Equal(in.When) || out.Name != in.Name || out.Count != in.Count {
		t.Errorf("out = %+v, want %+v", out, in)
	}
}
