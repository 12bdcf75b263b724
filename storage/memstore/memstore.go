package memstore

import (
    "context"
    "sync"

    "github.com/mengeric/jobsync-client-go/jobs"
)

// Store 是一个线程安全的内存后端，与包内置默认实现等价，
// 导出供宿主显式注入或在测试里断言内部状态。
type Store struct {
    mu sync.RWMutex
    m  map[string]*jobs.Record
}

// New 创建内存后端。
func New() *Store { return &Store{m: map[string]*jobs.Record{}} }

func (s *Store) Put(ctx context.Context, rec *jobs.Record) error {
    s.mu.Lock(); defer s.mu.Unlock()
    cp := *rec
    s.m[rec.Key] = &cp
    return nil
}

func (s *Store) Get(ctx context.Context, key string) (*jobs.Record, error) {
    s.mu.RLock(); defer s.mu.RUnlock()
    if r, ok := s.m[key]; ok {
        cp := *r
        return &cp, nil
    }
    return nil, jobs.ErrNotFound
}

func (s *Store) Delete(ctx context.Context, key string) error {
    s.mu.Lock(); defer s.mu.Unlock()
    delete(s.m, key)
    return nil
}

func (s *Store) List(ctx context.Context) ([]jobs.Record, error) {
    s.mu.RLock(); defer s.mu.RUnlock()
    out := make([]jobs.Record, 0, len(s.m))
    for _, v := range s.m {
        out = append(out, *v)
    }
    return out, nil
}

// Len 当前记录数（测试辅助）。
func (s *Store) Len() int {
    s.mu.RLock(); defer s.mu.RUnlock()
    return len(s.m)
}
