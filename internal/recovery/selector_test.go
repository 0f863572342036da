package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/havenops/remedy/internal/types"
)

func timeoutEvent() *types.ErrorEvent {
	return &types.ErrorEvent{
		ID:       "ev-1",
		Type:     types.ErrorTypeTimeout,
		Severity: types.SeverityMedium,
		Message:  "request timed out",
	}
}

func openContext() *types.RecoveryContext {
	return &types.RecoveryContext{
		Goal:                    "finish the job",
		ResourcesAvailable:      true,
		CheckpointsAvailable:    true,
		EscalationAllowed:       true,
		SelfModificationAllowed: true,
		MaxAttempts:             3,
		EscalateAfter:           2,
	}
}

func TestCandidatesOrderedForType(t *testing.T) {
	s := NewSelector(nil)

	got := s.Candidates(timeoutEvent(), openContext(), "sig")
	if len(got) == 0 {
		t.Fatal("no candidates returned")
	}
	if got[0] != types.StrategyRetryBackoff {
		t.Errorf("first candidate for timeout = %v, want retry_with_backoff", got[0])
	}
}

func TestCandidatesSkipAttempted(t *testing.T) {
	s := NewSelector(nil)
	rctx := openContext()
	rctx.RecordAttempt(types.StrategyRetryBackoff, false, "failed")

	for _, c := range s.Candidates(timeoutEvent(), rctx, "sig") {
		if c == types.StrategyRetryBackoff {
			t.Fatal("attempted strategy must never be offered again")
		}
	}
}

func TestCandidatesHonorConstraints(t *testing.T) {
	s := NewSelector(nil)
	rctx := openContext()
	rctx.EscalationAllowed = false
	rctx.SelfModificationAllowed = false
	rctx.CheckpointsAvailable = false
	rctx.ResourcesAvailable = false

	event := &types.ErrorEvent{Type: types.ErrorTypeResource, Message: "out of memory"}
	for _, c := range s.Candidates(event, rctx, "sig") {
		switch c {
		case types.StrategyHumanEscalation, types.StrategySelfModification,
			types.StrategyRollbackRetry, types.StrategyResourceReallocation:
			t.Errorf("disallowed strategy %v offered", c)
		}
	}
}

func TestCandidatesUnknownTypeFallsBack(t *testing.T) {
	s := NewSelector(nil)
	event := &types.ErrorEvent{Type: types.ErrorTypeUnknown, Message: "mystery"}

	got := s.Candidates(event, openContext(), "sig")
	if len(got) == 0 {
		t.Fatal("unknown type should fall back to the default chain")
	}
	if got[0] != types.StrategyRetryBackoff {
		t.Errorf("default chain should lead with retry, got %v", got[0])
	}
}

func TestCandidatesHistoryReordering(t *testing.T) {
	ps := NewPatternStore(nil)
	ctx := context.Background()
	sig := "timeout:request_timed_out"

	// Tank retry's history and boost parameter adjustment's. Adjacent
	// base scores differ by 0.1, so a +0.1/-0.1 swing flips their order.
	for i := 0; i < 10; i++ {
		ps.RecordOutcome(ctx, sig, types.StrategyRetryBackoff, false, time.Second)
		ps.RecordOutcome(ctx, sig, types.StrategyParameterAdjustment, true, time.Second)
	}

	s := NewSelector(ps)
	got := s.Candidates(timeoutEvent(), openContext(), sig)
	if len(got) < 2 {
		t.Fatal("expected multiple candidates")
	}
	if got[0] != types.StrategyParameterAdjustment {
		t.Errorf("history should promote parameter adjustment, got %v first", got[0])
	}
}
