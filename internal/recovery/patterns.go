package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/havenops/remedy/internal/types"
)

// PatternSink persists refined recovery patterns. Writes are
// fire-and-forget relative to the in-memory store.
type PatternSink interface {
	UpsertRecoveryPattern(ctx context.Context, pattern *types.RecoveryPattern) error
}

// PatternStore holds learned recovery patterns keyed by error signature.
// Patterns are never deleted, only refined with incremental-mean updates.
// Only the recovery manager writes to the store; other tasks read
// snapshots, so no fine-grained locking beyond the store mutex is needed.
type PatternStore struct {
	mu       sync.RWMutex
	patterns map[string]*types.RecoveryPattern
	sink     PatternSink
}

// NewPatternStore creates a pattern store. The sink may be nil.
func NewPatternStore(sink PatternSink) *PatternStore {
	return &PatternStore{
		patterns: make(map[string]*types.RecoveryPattern),
		sink:     sink,
	}
}

// Load seeds the store from previously persisted patterns.
func (ps *PatternStore) Load(patterns []*types.RecoveryPattern) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, p := range patterns {
		ps.patterns[p.Signature] = p
	}
}

// FindPattern returns the pattern for a signature, if known.
func (ps *PatternStore) FindPattern(signature string) (*types.RecoveryPattern, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.patterns[signature]
	if !ok {
		return nil, false
	}
	cp := clonePattern(p)
	return cp, true
}

// SuccessRate returns the running success rate for a strategy under a
// signature, and whether any history exists.
func (ps *PatternStore) SuccessRate(signature string, strategy types.RecoveryStrategy) (float64, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.patterns[signature]
	if !ok {
		return 0, false
	}
	rate, ok := p.SuccessRates[strategy]
	return rate, ok
}

// RecordOutcome refines the pattern for a signature with one recovery
// outcome. The success rate is an incremental mean per strategy; the
// average recovery time is an incremental mean across all outcomes.
func (ps *PatternStore) RecordOutcome(ctx context.Context, signature string, strategy types.RecoveryStrategy, success bool, duration time.Duration) *types.RecoveryPattern {
	ps.mu.Lock()

	p, ok := ps.patterns[signature]
	if !ok {
		p = &types.RecoveryPattern{
			ID:               uuid.New().String(),
			Signature:        signature,
			SuccessRates:     make(map[types.RecoveryStrategy]float64),
			StrategyAttempts: make(map[types.RecoveryStrategy]int),
			Conditions:       map[string]interface{}{},
		}
		ps.patterns[signature] = p
	}
	if p.StrategyAttempts == nil {
		p.StrategyAttempts = make(map[types.RecoveryStrategy]int)
	}

	p.UsageCount++
	outcome := 0.0
	if success {
		outcome = 1.0
		if !containsStrategy(p.SuccessfulStrategies, strategy) {
			p.SuccessfulStrategies = append(p.SuccessfulStrategies, strategy)
		}
	}
	// Each strategy's rate is an incremental mean over its own attempts
	// only; attempts with other strategies must not dilute it.
	p.StrategyAttempts[strategy]++
	rate := p.SuccessRates[strategy]
	p.SuccessRates[strategy] = rate + (outcome-rate)/float64(p.StrategyAttempts[strategy])

	avg := float64(p.AvgRecoveryTime)
	p.AvgRecoveryTime = time.Duration(avg + (float64(duration)-avg)/float64(p.UsageCount))
	p.LastUpdated = time.Now()

	snapshot := clonePattern(p)
	ps.mu.Unlock()

	if ps.sink != nil {
		if err := ps.sink.UpsertRecoveryPattern(ctx, snapshot); err != nil {
			fmt.Printf("Recovery: failed to persist pattern %s: %v\n", signature, err)
		}
	}
	return snapshot
}

// Snapshot returns a copy of all patterns, for learning-layer reads.
func (ps *PatternStore) Snapshot() []*types.RecoveryPattern {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	out := make([]*types.RecoveryPattern, 0, len(ps.patterns))
	for _, p := range ps.patterns {
		out = append(out, clonePattern(p))
	}
	return out
}

func clonePattern(p *types.RecoveryPattern) *types.RecoveryPattern {
	cp := *p
	cp.SuccessfulStrategies = append([]types.RecoveryStrategy{}, p.SuccessfulStrategies...)
	cp.SuccessRates = make(map[types.RecoveryStrategy]float64, len(p.SuccessRates))
	for k, v := range p.SuccessRates {
		cp.SuccessRates[k] = v
	}
	cp.StrategyAttempts = make(map[types.RecoveryStrategy]int, len(p.StrategyAttempts))
	for k, v := range p.StrategyAttempts {
		cp.StrategyAttempts[k] = v
	}
	return &cp
}

func containsStrategy(list []types.RecoveryStrategy, s types.RecoveryStrategy) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
