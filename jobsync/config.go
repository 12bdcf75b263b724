package jobsync

import (
	"time"

	"github.com/mengeric/jobsync-client-go/backoff"
	"github.com/mengeric/jobsync-client-go/config"
)

// FromConfig 把 YAML 配置转换为运行参数。零值字段由各组件的缺省兜底。
func FromConfig(c config.Config) Options {
	o := Options{
		ServerBase:   c.ServerBase,
		WSBase:       c.WSBase,
		SlowEvery:    time.Duration(c.SlowPollSeconds) * time.Second,
		FastEvery:    time.Duration(c.FastPollSeconds) * time.Second,
		FastAt:       c.FastAt,
		Watchdog:     time.Duration(c.WatchdogSeconds) * time.Second,
		ResumeMax:    c.ResumeMax,
		OrphanAfter:  time.Duration(c.OrphanSeconds) * time.Second,
		DismissAfter: time.Duration(c.DismissSeconds) * time.Second,
	}
	p := backoff.Default()
	if c.BackoffBaseMS > 0 {
		p.Base = time.Duration(c.BackoffBaseMS) * time.Millisecond
	}
	if c.BackoffMaxMS > 0 {
		p.MaxDelay = time.Duration(c.BackoffMaxMS) * time.Millisecond
	}
	if c.ServerAttempts > 0 {
		p.ServerAttempts = c.ServerAttempts
	}
	if c.WarmupSeconds > 0 {
		p.Warmup = time.Duration(c.WarmupSeconds) * time.Second
	}
	o.Policy = p
	return o
}
