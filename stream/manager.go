package stream

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mengeric/jobsync-client-go/backoff"
	"github.com/mengeric/jobsync-client-go/client"
	"github.com/mengeric/jobsync-client-go/jobs"
	"github.com/mengeric/jobsync-client-go/logging"
	"github.com/mengeric/jobsync-client-go/metrics"
	"github.com/mengeric/jobsync-client-go/tracker"
)

// Conn 推流连接的最小读取视图，*websocket.Conn 天然满足。
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// DialFunc 建立到单个任务进度流的连接。测试可注入假实现。
type DialFunc func(ctx context.Context, rawURL string) (Conn, error)

// defaultDial 基于 gorilla DefaultDialer。
func defaultDial(ctx context.Context, rawURL string) (Conn, error) {
	c, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		if resp != nil {
			return nil, &client.APIError{Status: resp.StatusCode, Message: err.Error()}
		}
		return nil, err
	}
	return c, nil
}

// Options 推流通道参数。
type Options struct {
	WSBase    string          // 形如 ws://host/api
	Watchdog  time.Duration   // 无终态事件的最长等待，默认 60s
	ResumeMax int             // 断连续接上限，默认 2（轮询器才是可靠性兜底）
	Policy    backoff.Policy  // 与轮询器共用的退避策略
	Dial      DialFunc        // 留空用 gorilla
}

func (o *Options) withDefaults() {
	if o.Watchdog <= 0 {
		o.Watchdog = 60 * time.Second
	}
	if o.ResumeMax <= 0 {
		o.ResumeMax = 2
	}
	if o.Policy == (backoff.Policy{}) {
		o.Policy = backoff.Default()
	}
	if o.Dial == nil {
		o.Dial = defaultDial
	}
}

// Manager 推流通道管理器：每个活跃任务ID至多一条连接。
// 事件经 Decode 得到类型化载荷后，统一由 dispatch 写入看板。
type Manager struct {
	opt    Options
	board  *jobs.Board
	tokens client.TokenProvider
	trk    *tracker.Manager
	parent context.Context
}

// NewManager 构造。parent 为跟踪上下文，拆除时全部通道随之关闭。
func NewManager(parent context.Context, board *jobs.Board, tokens client.TokenProvider, opt Options) *Manager {
	opt.withDefaults()
	if parent == nil {
		parent = context.Background()
	}
	return &Manager{opt: opt, board: board, tokens: tokens, trk: tracker.NewManager(), parent: parent}
}

// Open 为任务开启推流通道；该ID已有通道时为无操作（去重）。
func (m *Manager) Open(jobID string) {
	ins, ok := m.trk.Start(m.parent, jobID)
	if !ok {
		return
	}
	// 看门狗：窗口内未见终态事件则判定超时失败并关闭通道
	ins.SetWatchdog(time.AfterFunc(m.opt.Watchdog, func() {
		msg := fmt.Sprintf("progress stream timed out after %s", m.opt.Watchdog)
		logging.L().Warn(m.parent, "push channel watchdog fired", "job", jobID, "snapshot", metrics.CollectSnapshot(m.parent))
		_ = m.board.MarkFailed(m.parent, jobID, msg)
		m.trk.Stop(jobID)
	}))
	go m.run(ins, jobID)
}

// Close 关闭单个任务的通道。
func (m *Manager) Close(jobID string) { m.trk.Stop(jobID) }

// CloseAll 关闭全部通道（任务清空或上下文拆除时调用）。
func (m *Manager) CloseAll() { m.trk.StopAll() }

// Streaming 查询某任务是否有活跃通道。
func (m *Manager) Streaming(jobID string) bool {
	_, ok := m.trk.Get(jobID)
	return ok
}

// run 单条通道的连接与读取循环。
// 连接失败走退避决策；终态前断开按封顶次数续接，超限即把兜底交给轮询器。
func (m *Manager) run(ins *tracker.Instance, jobID string) {
	ctx := ins.Ctx
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := m.dial(ctx, jobID)
		if err != nil {
			if !m.onStreamError(ctx, jobID, err, &attempt) {
				return
			}
			continue
		}
		// 取消时立刻断开连接，解除 ReadMessage 阻塞
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		terminal, readErr := m.readLoop(ctx, conn, jobID)
		stop()
		_ = conn.Close()
		if terminal || ctx.Err() != nil {
			return
		}
		attempt++
		if attempt > m.opt.ResumeMax {
			logging.L().Warnf(ctx, "push channel gave up after %d resumes, poller takes over: job=%s err=%v", attempt-1, jobID, readErr)
			m.trk.Stop(jobID)
			return
		}
		logging.L().Debugf(ctx, "push channel dropped, resuming: job=%s err=%v", jobID, readErr)
		if !m.wait(ctx, m.opt.Policy.Base) {
			return
		}
	}
}

// dial 取令牌并连接进度流。该传输不支持自定义头，令牌走连接参数。
// tokens 为 nil 表示无鉴权场景，直接裸连。
func (m *Manager) dial(ctx context.Context, jobID string) (Conn, error) {
	if m.tokens == nil {
		return m.opt.Dial(ctx, m.streamURL(jobID, ""))
	}
	tok, err := m.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	conn, err := m.opt.Dial(ctx, m.streamURL(jobID, tok))
	if err != nil && client.IsUnauthorized(err) {
		if tok, rerr := m.tokens.Refresh(ctx); rerr == nil {
			return m.opt.Dial(ctx, m.streamURL(jobID, tok))
		}
	}
	return conn, err
}

// streamURL 拼接单任务进度流地址。
func (m *Manager) streamURL(jobID, tok string) string {
	u := fmt.Sprintf("%s/jobs/%s/progress", m.opt.WSBase, url.PathEscape(jobID))
	if tok != "" {
		u += "?token=" + url.QueryEscape(tok)
	}
	return u
}

// onStreamError 对通道错误做退避决策。
// 返回 true 表示可以继续重试；false 表示本通道到此为止。
// 续接超限不把任务置失败：轮询器仍在兜底，任务状态由它裁决。
func (m *Manager) onStreamError(ctx context.Context, jobID string, err error, attempt *int) bool {
	if ctx.Err() != nil {
		return false
	}
	*attempt++
	age := m.jobAge(ctx, jobID)
	class := m.opt.Policy.Classify(err, age)
	dec := m.opt.Policy.Next(class, *attempt)
	switch {
	case dec.Action == backoff.ActionFail && (class == backoff.ClassFatal || class == backoff.ClassTimeout):
		logging.L().Warnf(ctx, "push channel fatal: job=%s err=%v", jobID, err)
		_ = m.board.MarkFailed(ctx, jobID, err.Error())
		m.trk.Stop(jobID)
		return false
	case *attempt > m.opt.ResumeMax || dec.Action == backoff.ActionFail:
		logging.L().Warnf(ctx, "push channel gave up after %d attempts, poller takes over: job=%s err=%v", *attempt, jobID, err)
		m.trk.Stop(jobID)
		return false
	case dec.Action == backoff.ActionContinue:
		return m.wait(ctx, m.opt.Policy.Base)
	default:
		return m.wait(ctx, dec.Delay)
	}
}

// wait 可取消的等待。
func (m *Manager) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// readLoop 读取并分发事件，直到出错或收到终态事件。
// 返回 terminal=true 表示已处理终态（含解码失败转 Fatal-Other）。
func (m *Manager) readLoop(ctx context.Context, conn Conn, jobID string) (terminal bool, readErr error) {
	for {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return false, err
		}
		ev, err := Decode(raw)
		if err != nil {
			// 载荷损坏属于 Fatal-Other：置失败并关闭通道
			logging.L().Errorf(ctx, "push channel decode failed: job=%s err=%v", jobID, err)
			_ = m.board.MarkFailed(ctx, jobID, err.Error())
			m.finish(jobID)
			return true, nil
		}
		if m.dispatch(ctx, jobID, ev) {
			m.finish(jobID)
			return true, nil
		}
	}
}

// dispatch 类型化事件的唯一分发路径。返回 true 表示事件为终态。
func (m *Manager) dispatch(ctx context.Context, jobID string, ev any) bool {
	switch p := ev.(type) {
	case *ConnectedPayload:
		logging.L().Debugf(ctx, "push channel connected: job=%s msg=%s", jobID, p.Message)
		_ = m.board.Upsert(ctx, jobs.Patch{ID: jobID, Status: jobs.StatusActive, MergeOnly: true})
		return false
	case *ProgressPayload:
		st, _ := parseStatus(p.Status)
		step := jobs.Step{Current: p.Step.Current, Total: p.Step.Total}
		_ = m.board.Upsert(ctx, jobs.Patch{
			ID: jobID, Status: st, Progress: &p.Progress, Step: &step,
			AvatarURL: p.AvatarURL, LeadID: p.LeadID, MergeOnly: true,
		})
		return false
	case *CompletePayload:
		progress := 100
		step := jobs.Step{Current: p.Step.Current, Total: p.Step.Total}
		_ = m.board.Upsert(ctx, jobs.Patch{
			ID: jobID, Status: jobs.StatusComplete, Progress: &progress, Step: &step,
			AvatarURL: p.AvatarURL, LeadID: p.LeadID, MergeOnly: true,
		})
		return true
	case *FailedPayload:
		step := jobs.Step{Current: p.Step.Current, Total: p.Step.Total}
		_ = m.board.Upsert(ctx, jobs.Patch{
			ID: jobID, Status: jobs.StatusFailed, Progress: &p.Progress, Step: &step,
			ErrorMessage: p.Error, MergeOnly: true,
		})
		return true
	case *CancelledPayload:
		step := jobs.Step{Current: p.Step.Current, Total: p.Step.Total}
		_ = m.board.Upsert(ctx, jobs.Patch{
			ID: jobID, Status: jobs.StatusCancelled, Progress: &p.Progress, Step: &step, MergeOnly: true,
		})
		return true
	}
	return false
}

// finish 终态收尾：清看门狗、取消上下文，之后不再接受任何发送。
func (m *Manager) finish(jobID string) {
	m.trk.Stop(jobID)
}

// jobAge 任务自提交起的年龄，用于宽限期判定。
func (m *Manager) jobAge(ctx context.Context, jobID string) time.Duration {
	if rec, ok := m.board.Get(ctx, jobID); ok {
		return time.Since(rec.StartedAt)
	}
	return 0
}
