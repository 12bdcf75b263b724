package jobs

import (
	"context"
	"errors"
	"time"
)

// Status 任务状态。状态机仅允许前向迁移：
// pending → active → {complete | failed | cancelled}，终态不可再变。
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal 是否终态。
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusCancelled
}

// rank 状态序，用于禁止回退合并。终态之间不互相迁移。
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusActive:
		return 2
	case StatusComplete, StatusFailed, StatusCancelled:
		return 3
	}
	return 0
}

// Step 步骤进度。
type Step struct {
	Current int
	Total   int
}

// Record 任务记录（看板实体）。
// Key 为看板主键：乐观记录在服务端确认前使用临时键，确认后 Key == ID。
type Record struct {
	Key          string
	ID           string // 服务端签发的任务ID，确认前为空
	LeadID       string
	Username     string
	AvatarURL    string
	Status       Status
	Progress     int // 0~100
	Step         Step
	StartedAt    time.Time
	UpdatedAt    time.Time
	Optimistic   bool
	ErrorMessage string
}

// Active 是否处于非终态（计入活跃任务数）。
func (r Record) Active() bool { return !r.Status.Terminal() }

// ErrNotFound 记录不存在。
var ErrNotFound = errors.New("record not found")

// Storage 看板记录后端（可由宿主实现或使用内置 memstore / gormstore）。
// 注意：合并语义（终态粘滞、只填空确认）全部在 Board 中实现并由其串行化，
// 后端只需提供按键读写能力。
type Storage interface {
	// Put 以 rec.Key 为主键插入或整体覆盖。
	Put(ctx context.Context, rec *Record) error
	// Get 按键读取，未找到返回 ErrNotFound。
	Get(ctx context.Context, key string) (*Record, error)
	// Delete 按键删除，键不存在时静默成功。
	Delete(ctx context.Context, key string) error
	// List 返回全部记录。
	List(ctx context.Context) ([]Record, error)
}
