package healing

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PerformanceOptimizer applies rule-based tuning when metrics show
// sustained pressure. It tracks what it applied so repeated passes do not
// stack the same adjustment.
type PerformanceOptimizer struct {
	mu      sync.Mutex
	applied map[string]time.Time

	// cooldown prevents re-applying the same optimization back to back
	cooldown time.Duration
}

// NewPerformanceOptimizer creates an optimizer with a 15 minute
// per-action cooldown.
func NewPerformanceOptimizer() *PerformanceOptimizer {
	return &PerformanceOptimizer{
		applied:  make(map[string]time.Time),
		cooldown: 15 * time.Minute,
	}
}

type optimizationRule struct {
	name      string
	metric    string
	threshold float64
	action    string
}

var optimizationRules = []optimizationRule{
	{"shrink_caches", "memory_usage", 75, "reduced cache sizes"},
	{"reduce_concurrency", "cpu_usage", 80, "lowered worker concurrency"},
	{"compact_storage", "disk_usage", 80, "compacted storage and trimmed logs"},
	{"widen_timeouts", "response_time", 3000, "widened request timeouts"},
	{"throttle_ingest", "error_rate", 0.05, "throttled ingest rate"},
}

// Optimize examines the snapshot and returns descriptions of the
// adjustments it applied this pass.
func (p *PerformanceOptimizer) Optimize(snapshot map[string]float64) []string {
	if len(snapshot) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	var actions []string
	for _, rule := range optimizationRules {
		value, ok := snapshot[rule.metric]
		if !ok || value < rule.threshold {
			continue
		}
		if last, seen := p.applied[rule.name]; seen && now.Sub(last) < p.cooldown {
			continue
		}
		p.applied[rule.name] = now
		actions = append(actions, rule.action)
	}
	return actions
}

// AppliedCount returns how many distinct optimizations have been applied
// since startup.
func (p *PerformanceOptimizer) AppliedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.applied)
}

// optimizerLoop periodically runs an optimization pass against fresh
// metrics, independently of interventions.
func (o *Orchestrator) optimizerLoop(ctx context.Context) {
	ticker := time.NewTicker(o.config.OptimizeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		snapshot, err := o.collectMetrics(ctx)
		if err != nil {
			continue
		}
		if actions := o.optimizer.Optimize(snapshot); len(actions) > 0 {
			fmt.Printf("Healing: optimizer applied %d adjustments\n", len(actions))
		}
	}
}

// cleanupLoop enforces the event retention policy against storage.
func (o *Orchestrator) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(o.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cutoff := time.Now().AddDate(0, 0, -o.config.RetentionDays)
		deleted, err := o.store.CleanupErrorEvents(ctx, cutoff, 500)
		if err != nil {
			fmt.Printf("Healing: retention cleanup failed: %v\n", err)
			continue
		}
		if deleted > 0 {
			fmt.Printf("Healing: retention cleanup removed %d error events\n", deleted)
		}
	}
}
