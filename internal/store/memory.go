package store

import (
	"context"
	"log/slog"
)

// MemoryStore はプロセス内でのみ保持する揮発性のドキュメントストア。
// インスタンスごとに独立しており、アプリケーションのライフサイクルに合わせて生成・破棄する。
type MemoryStore struct {
	*engine
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore は指定コレクションを登録したMemoryStoreを生成する。
func NewMemoryStore(logger *slog.Logger, collections ...Collection) *MemoryStore {
	mem := &memoryBackend{data: make(map[string][]Document)}
	return &MemoryStore{engine: newEngine(mem, logger, collections)}
}

// memoryBackend はコレクションをメモリ上に保持する。
// 呼び出しはengineのロック下で行われる。
type memoryBackend struct {
	data map[string][]Document
}

func (m *memoryBackend) load(_ context.Context, c Collection) ([]Document, error) {
	stored := m.data[c.Name]
	docs := make([]Document, 0, len(stored))
	for _, d := range stored {
		docs = append(docs, cloneDocument(d))
	}
	return docs, nil
}

func (m *memoryBackend) save(_ context.Context, c Collection, docs []Document) error {
	stored := make([]Document, 0, len(docs))
	for _, d := range docs {
		stored = append(stored, cloneDocument(d))
	}
	m.data[c.Name] = stored
	return nil
}
