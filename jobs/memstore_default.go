package jobs

import (
	"context"
	"sync"
)

// inMemoryStore 是包内置的线程安全内存后端，仅用于默认与测试场景。
// 设计：为了避免 import cycle，不依赖外部子包，实现最小的 Storage 接口。
type inMemoryStore struct {
	mu sync.RWMutex
	m  map[string]*Record
}

// newDefaultMemStore 创建内置内存后端。
func newDefaultMemStore() Storage { return &inMemoryStore{m: map[string]*Record{}} }

// Put 插入或覆盖记录。
func (s *inMemoryStore) Put(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.m[rec.Key] = &cp
	return nil
}

// Get 按键读取记录副本。
func (s *inMemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.m[key]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, ErrNotFound
}

// Delete 按键删除。
func (s *inMemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// List 返回全部记录副本。
func (s *inMemoryStore) List(ctx context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.m))
	for _, v := range s.m {
		out = append(out, *v)
	}
	return out, nil
}
