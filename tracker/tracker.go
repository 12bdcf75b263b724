package tracker

import (
    "context"
    "sync"
    "time"
)

// Instance 维护单条推流通道的上下文、取消句柄与看门狗。
type Instance struct {
    Ctx    context.Context
    Cancel context.CancelFunc

    mu       sync.Mutex
    watchdog *time.Timer
}

// SetWatchdog 挂载看门狗计时器，替换旧计时器时先停止。
func (i *Instance) SetWatchdog(t *time.Timer) {
    i.mu.Lock(); defer i.mu.Unlock()
    if i.watchdog != nil { i.watchdog.Stop() }
    i.watchdog = t
}

// ClearWatchdog 停止并清除看门狗（终态事件到达时调用）。
func (i *Instance) ClearWatchdog() {
    i.mu.Lock(); defer i.mu.Unlock()
    if i.watchdog != nil { i.watchdog.Stop(); i.watchdog = nil }
}

// Manager 简单的通道实例跟踪器：每个任务ID至多一条活跃通道。
type Manager struct {
    mu      sync.RWMutex
    running map[string]*Instance
}

// NewManager 构造。
func NewManager() *Manager { return &Manager{running: map[string]*Instance{}} }

// Start 注册实例；若该ID已有活跃实例则返回 (nil, false)，调用方应视为去重跳过。
func (m *Manager) Start(parent context.Context, id string) (*Instance, bool) {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.running[id]; ok {
        return nil, false
    }
    ctx, cancel := context.WithCancel(parent)
    ins := &Instance{Ctx: ctx, Cancel: cancel}
    m.running[id] = ins
    return ins, true
}

// Stop 取消并移除实例。
func (m *Manager) Stop(id string) bool {
    m.mu.Lock(); defer m.mu.Unlock()
    if ins, ok := m.running[id]; ok {
        ins.ClearWatchdog()
        ins.Cancel()
        delete(m.running, id)
        return true
    }
    return false
}

// StopAll 取消全部实例（上下文拆除时调用）。
func (m *Manager) StopAll() {
    m.mu.Lock(); defer m.mu.Unlock()
    for id, ins := range m.running {
        ins.ClearWatchdog()
        ins.Cancel()
        delete(m.running, id)
    }
}

// Get 查询实例。
func (m *Manager) Get(id string) (*Instance, bool) {
    m.mu.RLock(); defer m.mu.RUnlock()
    ins, ok := m.running[id]
    return ins, ok
}

// ListIDs 返回当前活跃实例ID集合。
func (m *Manager) ListIDs() []string {
    m.mu.RLock(); defer m.mu.RUnlock()
    ids := make([]string, 0, len(m.running))
    for id := range m.running { ids = append(ids, id) }
    return ids
}

// Count 当前活跃实例数。
func (m *Manager) Count() int {
    m.mu.RLock(); defer m.mu.RUnlock()
    return len(m.running)
}
