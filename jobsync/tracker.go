package jobsync

import (
	"context"
	"errors"
	"sync"

	"github.com/mengeric/jobsync-client-go/auth"
	"github.com/mengeric/jobsync-client-go/client"
	"github.com/mengeric/jobsync-client-go/jobs"
	"github.com/mengeric/jobsync-client-go/logging"
	"github.com/mengeric/jobsync-client-go/scheduler"
	"github.com/mengeric/jobsync-client-go/stream"
)

// Tracker 组件主对象：把乐观提交、推流通道与拉取对账装配到同一块看板上。
// 说明：消费方只读看板（Board 的快照/订阅），不与通道或轮询器直接交互；
// 任务进入 complete 时触发一次余额刷新（失败仅记日志）。
type Tracker struct {
	opt     Options
	api     client.ServerAPI
	board   *jobs.Board
	tokens  client.TokenProvider
	balance client.BalanceAPI
	dial    stream.DialFunc

	mu     sync.Mutex
	chans  *stream.Manager
	poll   *scheduler.Poller
	runCtx context.Context
	cancel context.CancelFunc
}

// NewTracker 创建 Tracker。
// 功能：按照 With... 可选项组合出可运行实例；未显式传入存储实现时
// 默认使用内置内存存储；未传入 ServerAPI 时使用 HTTP 实现。
// 构造阶段不返回错误，运行时问题通过日志输出并按策略重试。
func NewTracker(opts ...Option) *Tracker {
	cfg := &trackerConfig{}
	for _, fn := range opts {
		fn(cfg)
	}
	cfg.opt.withDefaults()

	t := &Tracker{opt: cfg.opt, balance: cfg.balance, dial: cfg.dial}
	t.board = jobs.NewBoard(cfg.store, cfg.opt.DismissAfter)
	if cfg.tokens != nil {
		// 缓存包装：令牌只在被拒绝时强制刷新
		t.tokens = auth.New(cfg.tokens)
	}
	if cfg.api != nil {
		t.api = cfg.api
	} else {
		t.api = client.NewHTTPServerAPI(t.tokens)
	}
	t.board.OnComplete(t.onComplete)
	return t
}

// Board 返回看板，供消费方读取快照或订阅变更。
func (t *Tracker) Board() *jobs.Board { return t.board }

// Start 启动后台组件（推流管理器与对账轮询器）。
// 生命周期受传入 ctx 控制：ctx.Done 时关闭全部通道、停止轮询、
// 关停看板，迟到的回调因存活检查而被丢弃。重复调用为无操作。
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runCtx != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.runCtx = runCtx
	t.cancel = cancel

	t.chans = stream.NewManager(runCtx, t.board, t.tokens, stream.Options{
		WSBase:    t.opt.WSBase,
		Watchdog:  t.opt.Watchdog,
		ResumeMax: t.opt.ResumeMax,
		Policy:    t.opt.Policy,
		Dial:      t.dial,
	})
	t.poll = scheduler.NewPoller(t.api, t.opt.ServerBase, t.board, t.chans, scheduler.Options{
		SlowEvery:     t.opt.SlowEvery,
		FastEvery:     t.opt.FastEvery,
		FastAt:        t.opt.FastAt,
		OrphanAfter:   t.opt.OrphanAfter,
		AwaitEvery:    t.opt.AwaitEvery,
		AwaitAttempts: t.opt.AwaitMax,
		Policy:        t.opt.Policy,
	})
	t.poll.Start(runCtx)

	go func() {
		<-runCtx.Done()
		t.chans.CloseAll()
		t.board.Close()
	}()
}

// Stop 主动拆除（等价于取消 Start 传入的 ctx）。
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Submit 提交任务：先落乐观记录，服务端受理后补全身份并开启推流。
// 返回服务端签发的任务ID。提交失败时乐观记录被置为失败终态，
// 界面总能拿到可解析的状态。
func (t *Tracker) Submit(ctx context.Context, req client.SubmitJobReq) (string, error) {
	t.mu.Lock()
	chans, poll := t.chans, t.poll
	t.mu.Unlock()
	if chans == nil {
		return "", errors.New("tracker not started")
	}

	key, err := t.board.InsertOptimistic(ctx, jobs.Record{
		LeadID:   req.LeadID,
		Username: req.Username,
		Status:   jobs.StatusPending,
	})
	if err != nil {
		return "", err
	}

	resp, err := t.api.SubmitJob(ctx, t.opt.ServerBase, req)
	if err != nil {
		_ = t.board.MarkFailed(ctx, key, err.Error())
		return "", err
	}

	if cerr := t.board.Confirm(ctx, key, jobs.ConfirmFields{
		ID:     resp.JobID,
		LeadID: req.LeadID,
		Status: jobs.Status(resp.Status),
	}); cerr != nil {
		logging.L().Warnf(ctx, "confirm submitted job failed: job=%s err=%v", resp.JobID, cerr)
	}

	chans.Open(resp.JobID)
	poll.Kick()
	return resp.JobID, nil
}

// Await 等待单个任务进入终态（带次数上限的轮询流程）。
func (t *Tracker) Await(ctx context.Context, jobID string) (jobs.Record, error) {
	t.mu.Lock()
	poll := t.poll
	t.mu.Unlock()
	if poll == nil {
		return jobs.Record{}, errors.New("tracker not started")
	}
	return poll.AwaitTerminal(ctx, jobID)
}

// onComplete 完成回调：请求一次余额刷新。
// 刷新失败仅记日志，绝不重开、重试或影响任务状态。
func (t *Tracker) onComplete(rec jobs.Record) {
	if t.balance == nil {
		return
	}
	t.mu.Lock()
	ctx := t.runCtx
	t.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := t.balance.FetchBalance(ctx); err != nil {
		logging.L().Warnf(ctx, "balance refresh failed (ignored): job=%s err=%v", rec.ID, err)
	}
}
