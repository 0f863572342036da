// Package sysmetrics samples host resource usage for the healing loop.
package sysmetrics

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/havenops/remedy/internal/types"
)

// Collector samples cpu, memory, disk and process metrics via gopsutil.
// Samples are cached briefly so concurrent callers do not hammer /proc.
type Collector struct {
	mu       sync.Mutex
	cached   map[string]float64
	cachedAt time.Time
	cacheTTL time.Duration

	// DiskPath is the mount point sampled for disk usage
	DiskPath string
}

// NewCollector creates a collector sampling the root filesystem with a
// 2 second cache.
func NewCollector() *Collector {
	return &Collector{
		cacheTTL: 2 * time.Second,
		DiskPath: "/",
	}
}

// Collect returns the current metric snapshot. Individual probe failures
// degrade to missing keys rather than failing the whole snapshot; only a
// total failure returns an error.
func (c *Collector) Collect(ctx context.Context) (map[string]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && time.Since(c.cachedAt) < c.cacheTTL {
		return cloneSnapshot(c.cached), nil
	}

	snapshot := make(map[string]float64)

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snapshot["cpu_usage"] = percents[0]
	}
	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snapshot["memory_usage"] = memInfo.UsedPercent
	}
	if diskInfo, err := disk.UsageWithContext(ctx, c.DiskPath); err == nil {
		snapshot["disk_usage"] = diskInfo.UsedPercent
	}
	if pids, err := process.PidsWithContext(ctx); err == nil {
		snapshot["process_count"] = float64(len(pids))
	}
	if loadAvg, err := load.AvgWithContext(ctx); err == nil {
		snapshot["load_1m"] = loadAvg.Load1
	}
	snapshot["goroutines"] = float64(runtime.NumGoroutine())

	if len(snapshot) <= 1 {
		return nil, fmt.Errorf("all resource probes failed")
	}

	c.cached = snapshot
	c.cachedAt = time.Now()
	return cloneSnapshot(snapshot), nil
}

// Snapshot converts the latest sample into a resource snapshot suitable
// for attaching to error events. Returns nil if sampling fails.
func (c *Collector) Snapshot(ctx context.Context) *types.ResourceSnapshot {
	metrics, err := c.Collect(ctx)
	if err != nil {
		return nil
	}
	return &types.ResourceSnapshot{
		CPUPercent:    metrics["cpu_usage"],
		MemoryPercent: metrics["memory_usage"],
		DiskPercent:   metrics["disk_usage"],
		ProcessCount:  int(metrics["process_count"]),
	}
}

func cloneSnapshot(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
