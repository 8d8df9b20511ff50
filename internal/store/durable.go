package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// DurableStore はコレクション全体を1つのスロットにJSON配列として保存するドキュメントストア。
// 変更のたびにコレクション全体を直列化し、読み出しのたびにデコードと検証を行う。
// スロットが存在しない、途中で切れている、配列でない場合は空のコレクションとして扱う。
//
// 同じスロットを複数プロセスが更新した場合は後勝ちになる。
type DurableStore struct {
	*engine
	slots     SlotStorage
	namespace string
}

var _ Store = (*DurableStore)(nil)

// NewDurableStore はnamespace配下のスロットにコレクションを保存するDurableStoreを生成する。
// スロット名は "<namespace>:<collection>" になる。
func NewDurableStore(slots SlotStorage, namespace string, logger *slog.Logger, collections ...Collection) *DurableStore {
	s := &DurableStore{
		slots:     slots,
		namespace: namespace,
	}
	s.engine = newEngine(s, logger, collections)
	return s
}

// SlotKey はコレクションを保存するスロット名を返す。
func (s *DurableStore) SlotKey(collection string) string {
	return s.namespace + ":" + collection
}

func (s *DurableStore) load(ctx context.Context, c Collection) ([]Document, error) {
	key := s.SlotKey(c.Name)
	raw, err := s.slots.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("スロット %s の読み込みに失敗しました: %w", key, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		s.logger.Warn("スロットの内容を解析できないため空として扱います",
			slog.String("slot", key),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	docs := make([]Document, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			docs = append(docs, Document(m))
		}
	}
	return docs, nil
}

func (s *DurableStore) save(ctx context.Context, c Collection, docs []Document) error {
	if docs == nil {
		docs = []Document{}
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("コレクション %s の直列化に失敗しました: %w", c.Name, err)
	}
	key := s.SlotKey(c.Name)
	if err := s.slots.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("スロット %s への書き込みに失敗しました: %w", key, err)
	}
	return nil
}
