package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// SlotStorage は名前付きスロットにバイト列を保存するキーバリューストレージ。
// Getはスロットが存在しない場合 nil, nil を返す。
type SlotStorage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// MemorySlots はメモリ上のSlotStorage実装。テストと単一プロセスでの実行に使用する。
type MemorySlots struct {
	mu    sync.Mutex
	slots map[string]memorySlot
	now   func() time.Time
}

type memorySlot struct {
	value     []byte
	updatedAt time.Time
}

var _ SlotStorage = (*MemorySlots)(nil)

// NewMemorySlots はMemorySlotsを生成する。
func NewMemorySlots() *MemorySlots {
	return &MemorySlots{
		slots: make(map[string]memorySlot),
		now:   time.Now,
	}
}

// Get はスロットの内容のコピーを返す。
func (m *MemorySlots) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	slot, ok := m.slots[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), slot.value...), nil
}

// Put はスロットの内容を置き換える。
func (m *MemorySlots) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slots[key] = memorySlot{
		value:     append([]byte(nil), value...),
		updatedAt: m.now(),
	}
	return nil
}

// Delete はスロットを削除し、削除したかどうかを返す。
func (m *MemorySlots) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.slots[key]; !ok {
		return false, nil
	}
	delete(m.slots, key)
	return true, nil
}

// Keys はprefixで始まるスロット名を昇順で返す。
func (m *MemorySlots) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0)
	for k := range m.slots {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// PurgeOlderThan はprefixで始まり、before より前に更新されたスロットを削除する。
func (m *MemorySlots) PurgeOlderThan(_ context.Context, prefix string, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for k, slot := range m.slots {
		if strings.HasPrefix(k, prefix) && slot.updatedAt.Before(before) {
			delete(m.slots, k)
			deleted++
		}
	}
	return deleted, nil
}
