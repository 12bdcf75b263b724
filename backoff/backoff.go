package backoff

import (
	"errors"
	"math"
	"net"
	"time"

	"github.com/mengeric/jobsync-client-go/client"
)

// 统一重试策略引擎：推流通道与轮询器共用，保证两侧退避行为一致。
// 引擎本身无状态，输入 (错误, 任务年龄, 尝试次数, 已耗时) 即可得出决策。

// Class 错误分类。
type Class int

const (
	// ClassWarmup 初始化窗口内的 not_found：不是错误，按原节奏继续。
	ClassWarmup Class = iota
	// ClassServer 服务端 5xx / 限流：有限次指数退避，超限后终态失败。
	ClassServer
	// ClassNetwork 网络类错误：指数退避且不设次数上限，由取消终止。
	ClassNetwork
	// ClassTimeout 超出墙钟预算：立即终态失败。
	ClassTimeout
	// ClassFatal 其余未知错误：立即终态失败，不重试。
	ClassFatal
)

// Action 决策动作。
type Action int

const (
	ActionContinue Action = iota // 按原间隔继续，不计入失败
	ActionRetry                  // 等待 Delay 后重试
	ActionFail                   // 终态失败
)

// Decision 单次决策结果。
type Decision struct {
	Action Action
	Delay  time.Duration
}

// ErrBudgetExceeded 轮询预算耗尽的哨兵错误。
var ErrBudgetExceeded = errors.New("polling budget exceeded")

// Policy 策略参数。
type Policy struct {
	Base           time.Duration // 指数退避基数
	MaxDelay       time.Duration // 单次等待上限
	ServerAttempts int           // 服务端错误的尝试次数上限
	Warmup         time.Duration // not_found 的宽限窗口
}

// Default 默认策略：基数 2s、上限 30s、服务端错误最多 3 次、宽限 10s。
func Default() Policy {
	return Policy{Base: 2 * time.Second, MaxDelay: 30 * time.Second, ServerAttempts: 3, Warmup: 10 * time.Second}
}

// Classify 将错误归类。
// 参数：age 为任务自提交起的年龄，用于判定 not_found 是否处于宽限窗口。
// 约定：age < Warmup 才享受宽限；恰好等于窗口边界按真实错误处理。
func (p Policy) Classify(err error, age time.Duration) Class {
	switch {
	case err == nil:
		return ClassWarmup
	case errors.Is(err, ErrBudgetExceeded):
		return ClassTimeout
	case client.IsNotFound(err):
		if age < p.Warmup {
			return ClassWarmup
		}
		return ClassFatal
	case client.IsServerError(err), isRateLimited(err):
		return ClassServer
	case isNetwork(err):
		return ClassNetwork
	default:
		return ClassFatal
	}
}

// Next 根据分类与尝试次数给出决策。
// attempt 从 1 开始计数（第 1 次失败后传 1）。
func (p Policy) Next(class Class, attempt int) Decision {
	switch class {
	case ClassWarmup:
		return Decision{Action: ActionContinue}
	case ClassServer:
		if attempt > p.ServerAttempts {
			return Decision{Action: ActionFail}
		}
		return Decision{Action: ActionRetry, Delay: p.delay(attempt)}
	case ClassNetwork:
		return Decision{Action: ActionRetry, Delay: p.delay(attempt)}
	default:
		return Decision{Action: ActionFail}
	}
}

// delay 返回 Base * 2^(attempt-1)，封顶 MaxDelay。
func (p Policy) delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.Base) * math.Pow(2, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// isRateLimited 限流按服务端类处理：有限次退避后放弃。
func isRateLimited(err error) bool {
	var ae *client.APIError
	if errors.As(err, &ae) {
		return ae.Status == 429 || ae.Code == client.CodeRateLimited
	}
	return false
}

// isNetwork 识别传输层错误（连接拒绝、超时、DNS 等）。
func isNetwork(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}
