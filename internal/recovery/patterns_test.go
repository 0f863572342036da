package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/havenops/remedy/internal/types"
)

type patternSinkStub struct {
	mu      sync.Mutex
	upserts int
	fail    bool
}

func (s *patternSinkStub) UpsertRecoveryPattern(ctx context.Context, pattern *types.RecoveryPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("db locked")
	}
	s.upserts++
	return nil
}

func TestPatternStoreRecordOutcome(t *testing.T) {
	ps := NewPatternStore(nil)
	ctx := context.Background()
	sig := "timeout:request_timed_out"

	// Strategy A fails twice, strategy B then succeeds once.
	ps.RecordOutcome(ctx, sig, types.StrategyRetryBackoff, false, time.Second)
	ps.RecordOutcome(ctx, sig, types.StrategyRetryBackoff, false, time.Second)
	p := ps.RecordOutcome(ctx, sig, types.StrategyParameterAdjustment, true, 3*time.Second)

	if p.UsageCount != 3 {
		t.Errorf("usage count = %d, want 3", p.UsageCount)
	}

	rateA, ok := ps.SuccessRate(sig, types.StrategyRetryBackoff)
	if !ok {
		t.Fatal("strategy A history missing")
	}
	if rateA != 0 {
		t.Errorf("failed-only strategy rate = %.3f, want 0", rateA)
	}

	rateB, ok := ps.SuccessRate(sig, types.StrategyParameterAdjustment)
	if !ok {
		t.Fatal("strategy B history missing")
	}
	if rateB != 1.0 {
		t.Errorf("strategy with a single success should rate 1.0, got %.3f", rateB)
	}

	if len(p.SuccessfulStrategies) != 1 || p.SuccessfulStrategies[0] != types.StrategyParameterAdjustment {
		t.Errorf("successful strategies = %v", p.SuccessfulStrategies)
	}
	if p.AvgRecoveryTime <= 0 {
		t.Error("average recovery time should be tracked")
	}
}

func TestPatternStoreRatesPerStrategy(t *testing.T) {
	ps := NewPatternStore(nil)
	ctx := context.Background()
	sig := "network:connection_refused"

	// A fails twice, then B succeeds twice. B's rate must be computed
	// over B's own attempts, not the pattern-wide usage count.
	ps.RecordOutcome(ctx, sig, types.StrategyRetryBackoff, false, time.Second)
	ps.RecordOutcome(ctx, sig, types.StrategyRetryBackoff, false, time.Second)
	ps.RecordOutcome(ctx, sig, types.StrategyAlternativeApproach, true, time.Second)
	p := ps.RecordOutcome(ctx, sig, types.StrategyAlternativeApproach, true, time.Second)

	if rate := p.SuccessRates[types.StrategyAlternativeApproach]; rate != 1.0 {
		t.Errorf("B succeeded 2/2 but rate = %.3f, want 1.0", rate)
	}
	if rate := p.SuccessRates[types.StrategyRetryBackoff]; rate != 0 {
		t.Errorf("A failed 2/2 but rate = %.3f, want 0", rate)
	}
	if n := p.StrategyAttempts[types.StrategyAlternativeApproach]; n != 2 {
		t.Errorf("B attempts = %d, want 2", n)
	}
	if p.UsageCount != 4 {
		t.Errorf("usage count = %d, want 4", p.UsageCount)
	}

	// A mixed record converges on its own attempt count: 1 success in 3.
	ps.RecordOutcome(ctx, sig, types.StrategyRetryBackoff, true, time.Second)
	rateA, _ := ps.SuccessRate(sig, types.StrategyRetryBackoff)
	if diff := rateA - 1.0/3.0; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("A rate = %.3f, want 0.333", rateA)
	}
}

func TestPatternStoreFindReturnsCopy(t *testing.T) {
	ps := NewPatternStore(nil)
	ctx := context.Background()
	sig := "resource:out_of_memory"

	ps.RecordOutcome(ctx, sig, types.StrategyResourceReallocation, true, time.Second)

	p1, ok := ps.FindPattern(sig)
	if !ok {
		t.Fatal("pattern not found")
	}
	// Mutating the copy must not leak into the store.
	p1.SuccessRates[types.StrategyResourceReallocation] = 0.001
	p1.UsageCount = 999

	p2, _ := ps.FindPattern(sig)
	if p2.UsageCount == 999 {
		t.Error("store pattern mutated through returned copy")
	}
	if p2.SuccessRates[types.StrategyResourceReallocation] == 0.001 {
		t.Error("store success rates mutated through returned copy")
	}
}

func TestPatternStoreUnknownSignature(t *testing.T) {
	ps := NewPatternStore(nil)
	if _, ok := ps.FindPattern("nope"); ok {
		t.Error("unknown signature should not be found")
	}
	if _, ok := ps.SuccessRate("nope", types.StrategyRetryBackoff); ok {
		t.Error("unknown signature should have no rate")
	}
}

func TestPatternStoreSinkWrites(t *testing.T) {
	sink := &patternSinkStub{}
	ps := NewPatternStore(sink)
	ctx := context.Background()

	ps.RecordOutcome(ctx, "a", types.StrategyRetryBackoff, true, time.Second)
	ps.RecordOutcome(ctx, "a", types.StrategyRetryBackoff, true, time.Second)

	sink.mu.Lock()
	n := sink.upserts
	sink.mu.Unlock()
	if n != 2 {
		t.Errorf("sink should see every refinement, saw %d", n)
	}
}

func TestPatternStoreSinkFailureIsNonFatal(t *testing.T) {
	ps := NewPatternStore(&patternSinkStub{fail: true})
	ctx := context.Background()

	p := ps.RecordOutcome(ctx, "a", types.StrategyRetryBackoff, true, time.Second)
	if p == nil || p.UsageCount != 1 {
		t.Error("in-memory refinement must survive sink failure")
	}
}

func TestPatternStoreLoadAndSnapshot(t *testing.T) {
	ps := NewPatternStore(nil)
	ps.Load([]*types.RecoveryPattern{
		{ID: "p1", Signature: "sig-1", SuccessRates: map[types.RecoveryStrategy]float64{types.StrategyRetryBackoff: 0.9}, UsageCount: 10},
		{ID: "p2", Signature: "sig-2", SuccessRates: map[types.RecoveryStrategy]float64{}, UsageCount: 2},
	})

	if _, ok := ps.FindPattern("sig-1"); !ok {
		t.Error("loaded pattern not findable")
	}
	if got := len(ps.Snapshot()); got != 2 {
		t.Errorf("snapshot size = %d, want 2", got)
	}
}
