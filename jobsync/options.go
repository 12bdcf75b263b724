package jobsync

import (
	"strings"
	"time"

	"github.com/mengeric/jobsync-client-go/backoff"
	"github.com/mengeric/jobsync-client-go/client"
	"github.com/mengeric/jobsync-client-go/jobs"
	"github.com/mengeric/jobsync-client-go/stream"
)

// Options 跟踪器运行参数。
type Options struct {
	ServerBase   string        // 任务后端地址，如 https://api.example.com/v1
	WSBase       string        // 进度流地址；留空时由 ServerBase 推导（http→ws）
	Watchdog     time.Duration // 推流看门狗窗口
	ResumeMax    int           // 推流断连续接上限
	SlowEvery    time.Duration // 轮询慢速间隔（1~3 个活跃任务）
	FastEvery    time.Duration // 轮询批量同步间隔（4+ 个活跃任务）
	FastAt       int           // 批量同步阈值
	OrphanAfter  time.Duration // 孤儿提升窗口
	DismissAfter time.Duration // 终态记录展示期
	AwaitEvery   time.Duration // 单任务等待流程间隔
	AwaitMax     int           // 单任务等待流程次数上限
	Policy       backoff.Policy
}

// withDefaults 填充默认值。各子组件还有自己的缺省，这里只处理推导项。
func (o *Options) withDefaults() {
	if o.WSBase == "" && o.ServerBase != "" {
		o.WSBase = deriveWSBase(o.ServerBase)
	}
	if o.Policy == (backoff.Policy{}) {
		o.Policy = backoff.Default()
	}
}

// deriveWSBase 由 HTTP 地址推导 WebSocket 地址。
func deriveWSBase(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}

// trackerConfig 聚合可选项。
type trackerConfig struct {
	opt     Options
	store   jobs.Storage
	api     client.ServerAPI
	tokens  client.TokenProvider
	balance client.BalanceAPI
	dial    stream.DialFunc
}

// Option 可选项函数。
type Option func(*trackerConfig)

// WithServerBase 设置任务后端地址。
func WithServerBase(base string) Option { return func(c *trackerConfig) { c.opt.ServerBase = base } }

// WithWSBase 显式设置进度流地址。
func WithWSBase(base string) Option { return func(c *trackerConfig) { c.opt.WSBase = base } }

// WithOptions 整体覆盖运行参数。
func WithOptions(opt Options) Option { return func(c *trackerConfig) { c.opt = opt } }

// WithStorage 注入看板记录后端（默认内置内存实现）。
func WithStorage(s jobs.Storage) Option { return func(c *trackerConfig) { c.store = s } }

// WithClientAPI 注入 ServerAPI 实现（测试打桩用）。
func WithClientAPI(api client.ServerAPI) Option { return func(c *trackerConfig) { c.api = api } }

// WithTokenProvider 注入会话协作方。
func WithTokenProvider(tp client.TokenProvider) Option { return func(c *trackerConfig) { c.tokens = tp } }

// WithBalanceAPI 注入余额协作方（完成回调触发其刷新）。
func WithBalanceAPI(b client.BalanceAPI) Option { return func(c *trackerConfig) { c.balance = b } }

// WithDial 注入推流连接函数（测试打桩用）。
func WithDial(d stream.DialFunc) Option { return func(c *trackerConfig) { c.dial = d } }

// WithWatchdog 设置推流看门狗窗口。
func WithWatchdog(d time.Duration) Option { return func(c *trackerConfig) { c.opt.Watchdog = d } }

// WithPollIntervals 设置轮询慢/快间隔。
func WithPollIntervals(slow, fast time.Duration) Option {
	return func(c *trackerConfig) { c.opt.SlowEvery, c.opt.FastEvery = slow, fast }
}

// WithOrphanAfter 设置孤儿提升窗口。
func WithOrphanAfter(d time.Duration) Option { return func(c *trackerConfig) { c.opt.OrphanAfter = d } }

// WithDismissAfter 设置终态记录展示期。
func WithDismissAfter(d time.Duration) Option { return func(c *trackerConfig) { c.opt.DismissAfter = d } }

// WithPolicy 设置退避策略。
func WithPolicy(p backoff.Policy) Option { return func(c *trackerConfig) { c.opt.Policy = p } }
