package assetcache

import "sync"

// MemoryTier 是进程生命周期内的 key → 资源映射，首次解析成功后写入，永不淘汰。
type MemoryTier[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewMemoryTier 创建空的内存层。
func NewMemoryTier[T any]() *MemoryTier[T] {
	return &MemoryTier[T]{items: make(map[string]T)}
}

// Get 同步查询，不会阻塞在任何 I/O 上。
func (m *MemoryTier[T]) Get(key string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	asset, ok := m.items[key]
	return asset, ok
}

// Put 幂等覆盖。
func (m *MemoryTier[T]) Put(key string, asset T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = asset
}

func (m *MemoryTier[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}
