package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mengeric/jobsync-client-go/logging"
)

// Board 任务看板：合并推流、轮询与乐观记录三路更新的唯一事实源。
// 所有修改都经过 Board 串行化；其他组件只发起合并请求，从不直接改记录。
// 合并契约：
//   - 终态粘滞：记录一旦进入终态即冻结，任何后续补丁按幂等忽略；
//   - 状态只前向迁移（pending → active → 终态），乱序到达的回退补丁被丢弃；
//   - 相同补丁重复应用不产生第二次变更（幂等）；
//   - Confirm 只填充此前为空的身份字段，从不覆盖已有值。
type Board struct {
	mu    sync.Mutex
	store Storage
	now   func() time.Time

	dismissAfter time.Duration // 终态记录展示多久后移除
	onComplete   func(rec Record)
	completed    map[string]bool // 完成回调去重（按任务键）

	subs    map[int]chan []Record
	nextSub int
	closed  bool
}

// NewBoard 创建看板。
// 参数：store 为 nil 时使用内置内存后端；dismissAfter <= 0 时取默认 10s。
func NewBoard(store Storage, dismissAfter time.Duration) *Board {
	if store == nil {
		store = newDefaultMemStore()
	}
	if dismissAfter <= 0 {
		dismissAfter = 10 * time.Second
	}
	return &Board{
		store:        store,
		now:          time.Now,
		dismissAfter: dismissAfter,
		completed:    map[string]bool{},
		subs:         map[int]chan []Record{},
	}
}

// SetClock 注入时钟（测试用）。
func (b *Board) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now != nil {
		b.now = now
	}
}

// OnComplete 注册完成回调：任务首次进入 complete 时触发一次。
// 回调在独立协程执行，其错误不得影响任务状态。
func (b *Board) OnComplete(fn func(rec Record)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onComplete = fn
}

// Patch 合并请求。零值字段表示"不更新"；Progress/Step 用指针区分未提供与 0。
type Patch struct {
	ID           string
	Status       Status
	Progress     *int
	Step         *Step
	LeadID       string
	Username     string
	AvatarURL    string
	ErrorMessage string
	StartedAt    time.Time // 仅插入新记录时生效
	MergeOnly    bool      // true 时未知 ID 直接忽略，不插入
}

// Upsert 插入或合并一条任务记录。
// 规则：ID 未知且非 MergeOnly 则插入；已知则按合并契约更新；
// 终态记录冻结，试图移出终态的补丁被拒绝（静默忽略）。
func (b *Board) Upsert(ctx context.Context, p Patch) error {
	if p.ID == "" {
		return errors.New("upsert: empty job id")
	}
	b.mu.Lock()
	if b.closed || ctx.Err() != nil {
		b.mu.Unlock()
		return nil
	}
	rec, err := b.store.Get(ctx, p.ID)
	inserted := false
	if errors.Is(err, ErrNotFound) {
		if p.MergeOnly {
			b.mu.Unlock()
			return nil
		}
		started := p.StartedAt
		if started.IsZero() {
			started = b.now()
		}
		rec = &Record{Key: p.ID, ID: p.ID, Status: StatusPending, StartedAt: started}
		inserted = true
	} else if err != nil {
		b.mu.Unlock()
		return err
	}
	prev := rec.Status
	if prev.Terminal() {
		// 终态冻结：重复的同态补丁视为幂等成功
		b.mu.Unlock()
		return nil
	}
	changed := b.apply(rec, p)
	if !changed && !inserted {
		b.mu.Unlock()
		return nil
	}
	rec.UpdatedAt = b.now()
	if err := b.store.Put(ctx, rec); err != nil {
		b.mu.Unlock()
		return err
	}
	b.afterMutateLocked(ctx, prev, *rec)
	b.mu.Unlock()
	return nil
}

// apply 把补丁写入记录，返回是否发生实际变更。状态只前向迁移。
func (b *Board) apply(rec *Record, p Patch) bool {
	changed := false
	if p.Status != "" && p.Status != rec.Status && p.Status.rank() > rec.Status.rank() {
		rec.Status = p.Status
		changed = true
	}
	if p.Progress != nil && *p.Progress != rec.Progress {
		rec.Progress = *p.Progress
		changed = true
	}
	if p.Step != nil && *p.Step != rec.Step {
		rec.Step = *p.Step
		changed = true
	}
	if p.LeadID != "" && p.LeadID != rec.LeadID {
		rec.LeadID = p.LeadID
		changed = true
	}
	if p.Username != "" && p.Username != rec.Username {
		rec.Username = p.Username
		changed = true
	}
	if p.AvatarURL != "" && p.AvatarURL != rec.AvatarURL {
		rec.AvatarURL = p.AvatarURL
		changed = true
	}
	if p.ErrorMessage != "" && p.ErrorMessage != rec.ErrorMessage {
		rec.ErrorMessage = p.ErrorMessage
		changed = true
	}
	return changed
}

// InsertOptimistic 在服务端确认前插入乐观记录，返回临时键。
// 调用方需在拿到服务端身份后调用 Confirm 补全。
func (b *Board) InsertOptimistic(ctx context.Context, seed Record) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || ctx.Err() != nil {
		return "", errors.New("board closed")
	}
	key := "tmp-" + uuid.NewString()
	seed.Key = key
	seed.ID = ""
	seed.Optimistic = true
	if seed.Status == "" {
		seed.Status = StatusPending
	}
	if seed.StartedAt.IsZero() {
		seed.StartedAt = b.now()
	}
	seed.UpdatedAt = b.now()
	if err := b.store.Put(ctx, &seed); err != nil {
		return "", err
	}
	b.afterMutateLocked(ctx, seed.Status, seed)
	return key, nil
}

// ConfirmFields 服务端确认时补全的权威字段。
type ConfirmFields struct {
	ID        string
	LeadID    string
	Username  string
	AvatarURL string
	Status    Status
	Progress  *int
	Step      *Step
}

// Confirm 用服务端权威信息补全乐观记录。
// 规则：身份字段只填空不覆盖；状态/进度走常规前向合并，不降级；
// 补全 ID 后记录换键（临时键 → 任务ID）。
func (b *Board) Confirm(ctx context.Context, key string, c ConfirmFields) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || ctx.Err() != nil {
		return nil
	}
	rec, err := b.store.Get(ctx, key)
	if err != nil {
		return err
	}
	prev := rec.Status
	oldKey := rec.Key
	if rec.ID == "" && c.ID != "" {
		rec.ID = c.ID
		rec.Key = c.ID
	}
	if rec.LeadID == "" {
		rec.LeadID = c.LeadID
	}
	if rec.Username == "" {
		rec.Username = c.Username
	}
	if rec.AvatarURL == "" {
		rec.AvatarURL = c.AvatarURL
	}
	if !prev.Terminal() {
		if c.Status != "" && c.Status.rank() > rec.Status.rank() {
			rec.Status = c.Status
		}
		if c.Progress != nil && *c.Progress > rec.Progress {
			rec.Progress = *c.Progress
		}
		if c.Step != nil && c.Step.Total > 0 {
			rec.Step = *c.Step
		}
	}
	rec.Optimistic = false
	rec.UpdatedAt = b.now()
	if rec.Key != oldKey {
		if err := b.store.Delete(ctx, oldKey); err != nil {
			return err
		}
	}
	if err := b.store.Put(ctx, rec); err != nil {
		return err
	}
	b.afterMutateLocked(ctx, prev, *rec)
	return nil
}

// Remove 删除记录（展示期满或宿主主动清理）。
func (b *Board) Remove(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	if err := b.store.Delete(ctx, key); err != nil {
		return err
	}
	delete(b.completed, key)
	b.notifyLocked(ctx)
	return nil
}

// MarkFailed 将任务置为失败终态（仅对已知记录生效）。
func (b *Board) MarkFailed(ctx context.Context, id, msg string) error {
	return b.Upsert(ctx, Patch{ID: id, Status: StatusFailed, ErrorMessage: msg, MergeOnly: true})
}

// Get 按任务ID读取记录。
func (b *Board) Get(ctx context.Context, id string) (Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, err := b.store.Get(ctx, id)
	if err != nil {
		return Record{}, false
	}
	return *rec, true
}

// FindOptimistic 按 LeadID 查找仍未确认的乐观记录（轮询对账用）。
func (b *Board) FindOptimistic(ctx context.Context, leadID string) (Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list, err := b.store.List(ctx)
	if err != nil {
		return Record{}, false
	}
	for _, r := range list {
		if r.Optimistic && r.LeadID == leadID {
			return r, true
		}
	}
	return Record{}, false
}

// List 返回全部记录快照。
func (b *Board) List(ctx context.Context) []Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	list, err := b.store.List(ctx)
	if err != nil {
		logging.L().Warnf(ctx, "board list failed: %v", err)
		return nil
	}
	return list
}

// ActiveCount 当前非终态任务数。
func (b *Board) ActiveCount(ctx context.Context) int {
	n := 0
	for _, r := range b.List(ctx) {
		if r.Active() {
			n++
		}
	}
	return n
}

// Subscribe 订阅看板快照流。每次有效变更后推送一次全量快照；
// 消费不及时会丢弃中间快照（保留最新语义由消费方兜底）。
// 返回的取消函数用于退订。
func (b *Board) Subscribe() (<-chan []Record, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan []Record, 8)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Close 关停看板：不再接受任何写入，关闭全部订阅。
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// afterMutateLocked 处理变更后的副作用：完成回调、终态移除计时、订阅推送。
// 调用方必须持有 b.mu。
func (b *Board) afterMutateLocked(ctx context.Context, prev Status, rec Record) {
	if rec.Status == StatusComplete && prev != StatusComplete && !b.completed[rec.Key] {
		b.completed[rec.Key] = true
		if fn := b.onComplete; fn != nil {
			go fn(rec)
		}
	}
	if rec.Status.Terminal() && !prev.Terminal() {
		key := rec.Key
		time.AfterFunc(b.dismissAfter, func() {
			_ = b.Remove(context.Background(), key)
		})
	}
	b.notifyLocked(ctx)
}

// notifyLocked 向订阅方推送最新快照（非阻塞，满则丢弃）。
func (b *Board) notifyLocked(ctx context.Context) {
	if len(b.subs) == 0 {
		return
	}
	snap, err := b.store.List(ctx)
	if err != nil {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
