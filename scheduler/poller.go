package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mengeric/jobsync-client-go/backoff"
	"github.com/mengeric/jobsync-client-go/client"
	"github.com/mengeric/jobsync-client-go/jobs"
	"github.com/mengeric/jobsync-client-go/logging"
	"github.com/mengeric/jobsync-client-go/metrics"
)

// ChannelOpener 轮询器对推流管理器的最小依赖：发现活跃任务时补开通道。
type ChannelOpener interface {
	Open(jobID string)
}

// Options 轮询参数。
type Options struct {
	SlowEvery     time.Duration // 1~3 个活跃任务时的间隔，默认 10s（推流在做实时工作）
	FastEvery     time.Duration // 达到 FastAt 后的批量同步间隔，默认 5s
	FastAt        int           // 进入批量同步模式的活跃任务数阈值，默认 4
	OrphanAfter   time.Duration // 活跃任务从拉取结果消失多久后视为孤儿，默认 30s
	AwaitEvery    time.Duration // 单任务等待流程的轮询间隔，默认 2s
	AwaitAttempts int           // 单任务等待流程的次数上限，默认 90
	Policy        backoff.Policy
}

func (o *Options) withDefaults() {
	if o.SlowEvery <= 0 {
		o.SlowEvery = 10 * time.Second
	}
	if o.FastEvery <= 0 {
		o.FastEvery = 5 * time.Second
	}
	if o.FastAt <= 0 {
		o.FastAt = 4
	}
	if o.OrphanAfter <= 0 {
		o.OrphanAfter = 30 * time.Second
	}
	if o.AwaitEvery <= 0 {
		o.AwaitEvery = 2 * time.Second
	}
	if o.AwaitAttempts <= 0 {
		o.AwaitAttempts = 90
	}
	if o.Policy == (backoff.Policy{}) {
		o.Policy = backoff.Default()
	}
}

// Poller 拉取对账轮询器：周期性获取活跃任务全集并合并进看板，
// 作为推流通道之外的可靠性兜底。间隔随活跃任务数自适应，
// 没有活跃任务时完全停摆，等待 Kick 唤醒。
type Poller struct {
	api     client.ServerAPI
	base    string
	board   *jobs.Board
	chans   ChannelOpener // 可为 nil
	opt     Options
	kick    chan struct{}
	running atomic.Bool
	now     func() time.Time
}

// NewPoller 构造。chans 为 nil 时不补开推流通道。
func NewPoller(api client.ServerAPI, base string, board *jobs.Board, chans ChannelOpener, opt Options) *Poller {
	opt.withDefaults()
	return &Poller{api: api, base: base, board: board, chans: chans, opt: opt, kick: make(chan struct{}, 1), now: time.Now}
}

// SetClock 注入时钟（测试用）。
func (p *Poller) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Interval 按活跃任务数给出下一次轮询间隔。
// 返回 ok=false 表示无需轮询（停摆）。
func (p *Poller) Interval(active int) (time.Duration, bool) {
	switch {
	case active <= 0:
		return 0, false
	case active >= p.opt.FastAt:
		return p.opt.FastEvery, true
	default:
		return p.opt.SlowEvery, true
	}
}

// Kick 唤醒轮询器（新任务提交后调用），非阻塞。
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Start 启动轮询循环；重复调用为无操作。受 ctx 控制生命周期。
func (p *Poller) Start(ctx context.Context) {
	if p.running.Swap(true) {
		return
	}
	go p.loop(ctx)
}

// loop 主循环。拉取失败不升级为进程错误：按分类退避，
// 即使超出服务端类的次数上限也只退化到最大间隔继续兜底，
// 看板绝不因一轮 5xx 连击而失去对账来源。
func (p *Poller) loop(ctx context.Context) {
	attempt := 0
	for {
		var wake <-chan time.Time
		var timer *time.Timer
		if d, ok := p.Interval(p.board.ActiveCount(ctx)); ok {
			timer = time.NewTimer(d)
			wake = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-p.kick:
			if timer != nil {
				timer.Stop()
			}
		case <-wake:
		}
		if err := p.syncOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			class := p.opt.Policy.Classify(err, 0)
			dec := p.opt.Policy.Next(class, attempt)
			wait := dec.Delay
			if dec.Action == backoff.ActionFail {
				wait = p.opt.Policy.MaxDelay
			}
			logging.L().Warnf(ctx, "poll failed (attempt %d, retry in %s): %v", attempt, wait, err)
			if !sleepCtx(ctx, wait) {
				return
			}
			continue
		}
		attempt = 0
	}
}

// syncOnce 执行一轮拉取与对账。
func (p *Poller) syncOnce(ctx context.Context) error {
	resp, err := p.api.ListActiveJobs(ctx, p.base)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	seen := make(map[string]bool, len(resp.Jobs))
	for _, snap := range resp.Jobs {
		seen[snap.JobID] = true
		p.merge(ctx, snap)
	}
	p.promoteOrphans(ctx, seen)
	return nil
}

// merge 将一条服务端快照并入看板：
// 本地不存在 → 插入；本地为乐观记录 → 确认补全；其余 → 常规合并。
// 终态粘滞与幂等由看板保证，这里只负责翻译快照。
func (p *Poller) merge(ctx context.Context, snap client.JobSnapshot) {
	status := jobs.Status(snap.Status)
	step := jobs.Step{Current: snap.Step.Current, Total: snap.Step.Total}
	if _, ok := p.board.Get(ctx, snap.JobID); !ok {
		if opt, ok := p.board.FindOptimistic(ctx, snap.LeadID); ok && snap.LeadID != "" {
			err := p.board.Confirm(ctx, opt.Key, jobs.ConfirmFields{
				ID: snap.JobID, LeadID: snap.LeadID, Username: snap.Username, AvatarURL: snap.AvatarURL,
				Status: status, Progress: &snap.Progress, Step: &step,
			})
			if err != nil {
				logging.L().Warnf(ctx, "confirm optimistic record failed: job=%s err=%v", snap.JobID, err)
			}
		} else {
			started := time.Time{}
			if snap.StartedAt > 0 {
				started = time.UnixMilli(snap.StartedAt)
			}
			_ = p.board.Upsert(ctx, jobs.Patch{
				ID: snap.JobID, Status: status, Progress: &snap.Progress, Step: &step,
				LeadID: snap.LeadID, Username: snap.Username, AvatarURL: snap.AvatarURL,
				ErrorMessage: snap.Error, StartedAt: started,
			})
		}
	} else {
		_ = p.board.Upsert(ctx, jobs.Patch{
			ID: snap.JobID, Status: status, Progress: &snap.Progress, Step: &step,
			LeadID: snap.LeadID, Username: snap.Username, AvatarURL: snap.AvatarURL,
			ErrorMessage: snap.Error, MergeOnly: true,
		})
	}
	if p.chans != nil && !status.Terminal() {
		p.chans.Open(snap.JobID)
	}
}

// promoteOrphans 孤儿处理：本地活跃且已确认的任务，
// 连续缺席超过 OrphanAfter（自 StartedAt 起算）即强制提升为 complete，
// 假定其已在脱离跟踪的情况下完成，避免界面永久卡住。
func (p *Poller) promoteOrphans(ctx context.Context, seen map[string]bool) {
	for _, rec := range p.board.List(ctx) {
		if !rec.Active() || rec.Optimistic || rec.ID == "" || seen[rec.ID] {
			continue
		}
		if p.now().Sub(rec.StartedAt) <= p.opt.OrphanAfter {
			continue
		}
		logging.L().Warn(ctx, "promoting orphaned job to complete", "job", rec.ID, "age", p.now().Sub(rec.StartedAt), "snapshot", metrics.CollectSnapshot(ctx))
		progress := 100
		_ = p.board.Upsert(ctx, jobs.Patch{ID: rec.ID, Status: jobs.StatusComplete, Progress: &progress, MergeOnly: true})
	}
}

// AwaitTerminal 单任务等待流程：轮询看板直到任务进入终态。
// 次数上限耗尽视为超出墙钟预算（Fatal-Timeout）：任务被置失败并返回错误。
func (p *Poller) AwaitTerminal(ctx context.Context, jobID string) (jobs.Record, error) {
	for i := 0; i < p.opt.AwaitAttempts; i++ {
		if rec, ok := p.board.Get(ctx, jobID); ok && rec.Status.Terminal() {
			return rec, nil
		}
		if !sleepCtx(ctx, p.opt.AwaitEvery) {
			return jobs.Record{}, ctx.Err()
		}
	}
	msg := fmt.Sprintf("job did not reach a terminal state within %s", time.Duration(p.opt.AwaitAttempts)*p.opt.AwaitEvery)
	_ = p.board.MarkFailed(ctx, jobID, msg)
	rec, _ := p.board.Get(ctx, jobID)
	return rec, backoff.ErrBudgetExceeded
}

// sleepCtx 可取消的等待，返回 false 表示被取消。
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
