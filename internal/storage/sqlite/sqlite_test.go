package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenops/remedy/internal/types"
)

func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestErrorEventRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	event := &types.ErrorEvent{
		ID:         "ev-1",
		Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
		Type:       types.ErrorTypeTimeout,
		Severity:   types.SeverityHigh,
		Message:    "operation timed out",
		StackTrace: "goroutine 1 [running]",
		Context:    map[string]interface{}{"attempt": "first"},
		ProcessID:  "worker-3",
	}
	require.NoError(t, s.StoreErrorEvent(ctx, event))

	events, err := s.GetRecentErrorEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	got := events[0]
	assert.Equal(t, event.ID, got.ID)
	assert.Equal(t, event.Type, got.Type)
	assert.Equal(t, event.Severity, got.Severity)
	assert.Equal(t, event.Message, got.Message)
	assert.Equal(t, event.StackTrace, got.StackTrace)
	assert.Equal(t, "first", got.Context["attempt"])
	assert.Equal(t, "worker-3", got.ProcessID)
}

func TestErrorEventOrderingAndSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		event := &types.ErrorEvent{
			ID:        "ev-" + string(rune('a'+i)),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Type:      types.ErrorTypeRuntime,
			Severity:  types.SeverityLow,
			Message:   "sequenced error",
		}
		require.NoError(t, s.StoreErrorEvent(ctx, event))
	}

	recent, err := s.GetRecentErrorEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "ev-e", recent[0].ID, "newest first")
	assert.Equal(t, "ev-d", recent[1].ID)

	since, err := s.GetErrorEventsSince(ctx, base.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, "ev-d", since[0].ID, "oldest first")
	assert.Equal(t, "ev-e", since[1].ID)
}

func TestCleanupErrorEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 7; i++ {
		age := time.Duration(i) * 24 * time.Hour
		event := &types.ErrorEvent{
			ID:        "ev-" + string(rune('0'+i)),
			Timestamp: now.Add(-age),
			Type:      types.ErrorTypeRuntime,
			Severity:  types.SeverityLow,
			Message:   "aging error",
		}
		require.NoError(t, s.StoreErrorEvent(ctx, event))
	}

	// Events older than 3 days: ages 4, 5, 6. Batch size below the match
	// count exercises the loop.
	deleted, err := s.CleanupErrorEvents(ctx, now.Add(-3*24*time.Hour-time.Minute), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	remaining, err := s.GetRecentErrorEvents(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, remaining, 4)
}

func TestAnomalyRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	anomaly := &types.Anomaly{
		ID:              "an-1",
		Timestamp:       time.Now().UTC(),
		Type:            types.AnomalyThreshold,
		Severity:        types.SeverityCritical,
		Description:     "memory_usage breached ceiling",
		AffectedMetrics: []string{"memory_usage"},
		Confidence:      0.9,
		Deviation:       1.6,
	}
	require.NoError(t, s.StoreAnomaly(ctx, anomaly))

	anomalies, err := s.GetRecentAnomalies(ctx, 10)
	require.NoError(t, err)
	require.Len(t, anomalies, 1)

	got := anomalies[0]
	assert.Equal(t, types.AnomalyThreshold, got.Type)
	assert.Equal(t, types.SeverityCritical, got.Severity)
	assert.Equal(t, []string{"memory_usage"}, got.AffectedMetrics)
	assert.Equal(t, 0.9, got.Confidence)
	assert.Equal(t, 1.6, got.Deviation)
}

func TestRecoveryPatternUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pattern := &types.RecoveryPattern{
		ID:                   "pat-1",
		Signature:            "timeout:operation timed out",
		SuccessfulStrategies: []types.RecoveryStrategy{types.StrategyRetryBackoff},
		SuccessRates:         map[types.RecoveryStrategy]float64{types.StrategyRetryBackoff: 0.5},
		StrategyAttempts:     map[types.RecoveryStrategy]int{types.StrategyRetryBackoff: 2},
		AvgRecoveryTime:      3 * time.Second,
		LastUpdated:          time.Now().UTC(),
		UsageCount:           2,
	}
	require.NoError(t, s.UpsertRecoveryPattern(ctx, pattern))

	// Refine and upsert again under the same signature.
	pattern.UsageCount = 3
	pattern.SuccessRates[types.StrategyRetryBackoff] = 0.67
	pattern.StrategyAttempts[types.StrategyRetryBackoff] = 3
	require.NoError(t, s.UpsertRecoveryPattern(ctx, pattern))

	patterns, err := s.GetRecoveryPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1, "upsert is keyed by signature")

	got := patterns[0]
	assert.Equal(t, 3, got.UsageCount)
	assert.Equal(t, 0.67, got.SuccessRates[types.StrategyRetryBackoff])
	assert.Equal(t, 3, got.StrategyAttempts[types.StrategyRetryBackoff])
	assert.Equal(t, 3*time.Second, got.AvgRecoveryTime)
	assert.Equal(t, []types.RecoveryStrategy{types.StrategyRetryBackoff}, got.SuccessfulStrategies)
}

func TestCodeFixCountersNeverRegress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fix := &types.CodeFix{
		ID:           "fix-1",
		Type:         types.FixErrorHandling,
		Description:  "Add bounds checking before the index access",
		Confidence:   0.75,
		SuccessCount: 4,
		FailureCount: 2,
	}
	require.NoError(t, s.UpsertCodeFix(ctx, fix))

	// A writer with stale counters must not shrink the stored tallies.
	stale := &types.CodeFix{
		ID:           "fix-1",
		Type:         types.FixErrorHandling,
		Description:  "Add bounds checking before the index access",
		Confidence:   0.8,
		SuccessCount: 1,
		FailureCount: 3,
	}
	require.NoError(t, s.UpsertCodeFix(ctx, stale))

	got, err := s.GetCodeFix(ctx, "fix-1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.SuccessCount, "max of stored and incoming")
	assert.Equal(t, 3, got.FailureCount)
	assert.Equal(t, 0.8, got.Confidence, "non-counter fields take the newer value")
}

func TestGetCodeFixNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetCodeFix(context.Background(), "missing")
	assert.Error(t, err)
}

func TestHealingSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	session := &types.HealingSession{
		ID:           "sess-1",
		StartTime:    time.Now().UTC().Add(-time.Minute),
		Trigger:      types.TriggerAnomaly,
		InitialState: &types.SystemHealth{OverallScore: 0.4},
	}
	require.NoError(t, s.CreateHealingSession(ctx, session))

	session.EndTime = time.Now().UTC()
	session.Success = true
	session.Lessons = "retry resolved the anomaly"
	session.Recoveries = []*types.RecoveryResult{{Strategy: types.StrategyRetryBackoff, Success: true}}
	require.NoError(t, s.CloseHealingSession(ctx, session))

	sessions, err := s.GetRecentHealingSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	got := sessions[0]
	assert.Equal(t, types.TriggerAnomaly, got.Trigger)
	assert.True(t, got.Success)
	assert.False(t, got.EndTime.IsZero())
	assert.Equal(t, "retry resolved the anomaly", got.Lessons)
}

func TestCloseUnknownSessionFails(t *testing.T) {
	s := newTestStore(t)
	err := s.CloseHealingSession(context.Background(), &types.HealingSession{ID: "ghost", EndTime: time.Now()})
	assert.Error(t, err)
}

func TestStoreExperience(t *testing.T) {
	s := newTestStore(t)
	exp := &types.Experience{
		ID:            "exp-1",
		Timestamp:     time.Now().UTC(),
		Context:       map[string]interface{}{"trigger": "manual"},
		Actions:       []string{"retry-with-backoff"},
		Outcome:       "recovered",
		Success:       true,
		ExecutionTime: 90 * time.Second,
		Efficiency:    1.0,
	}
	require.NoError(t, s.StoreExperience(context.Background(), exp))

	// Duplicate IDs are rejected by the primary key.
	assert.Error(t, s.StoreExperience(context.Background(), exp))
}
