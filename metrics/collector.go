package metrics

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot 本地运行环境快照。
// 用途：看门狗超时或孤儿提升发生时随日志输出，
// 便于把卡住的任务与本地资源压力关联起来。
type Snapshot struct {
	CPULoad        float64
	CPUProcessors  int
	DiskUsageRatio float64
	MemTotalGB     float64
	ProcUsedMemGB  float64
	ProcMemUsage   float64
	Goroutines     int
}

// String 紧凑单行格式，便于塞进结构化日志字段。
func (s Snapshot) String() string {
	return fmt.Sprintf("load=%.2f cpus=%d disk=%.2f mem=%.2f/%.2fGB goroutines=%d",
		s.CPULoad, s.CPUProcessors, s.DiskUsageRatio, s.ProcUsedMemGB, s.MemTotalGB, s.Goroutines)
}

// CollectSnapshot 采集系统/进程指标。采集失败的项保持零值，不报错。
func CollectSnapshot(ctx context.Context) Snapshot {
	var out Snapshot
	if avg, err := load.AvgWithContext(ctx); err == nil {
		out.CPULoad = avg.Load1
	}
	out.CPUProcessors = runtime.NumCPU()
	out.Goroutines = runtime.NumGoroutine()
	if du, err := disk.UsageWithContext(ctx, "/"); err == nil && du.Total > 0 {
		out.DiskUsageRatio = du.UsedPercent / 100.0
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm.Total > 0 {
		out.MemTotalGB = float64(vm.Total) / (1024 * 1024 * 1024)
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if pm, err := p.MemoryInfoWithContext(ctx); err == nil && pm != nil {
			out.ProcUsedMemGB = float64(pm.RSS) / (1024 * 1024 * 1024)
			if out.MemTotalGB > 0 {
				out.ProcMemUsage = out.ProcUsedMemGB / out.MemTotalGB
			}
		}
	}
	return out
}
