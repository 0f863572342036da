package healing

import (
	"context"
	"testing"
	"time"

	"github.com/havenops/remedy/internal/anomaly"
	"github.com/havenops/remedy/internal/errstream"
	"github.com/havenops/remedy/internal/recovery"
	"github.com/havenops/remedy/internal/rootcause"
	"github.com/havenops/remedy/internal/types"
)

// stubMetrics serves a fixed snapshot, copied per call so detectors can
// mutate their view safely.
type stubMetrics struct {
	snapshot map[string]float64
	err      error
}

func (s *stubMetrics) Collect(ctx context.Context) (map[string]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]float64, len(s.snapshot))
	for k, v := range s.snapshot {
		out[k] = v
	}
	return out, nil
}

type stubExecutor struct{ calls int }

func (e *stubExecutor) ProcessGoal(ctx context.Context, goal string, overrides map[string]interface{}) (*recovery.ExecResult, error) {
	e.calls++
	return &recovery.ExecResult{Status: "success"}, nil
}

func newTestOrchestrator(t *testing.T, metrics MetricsSource) *Orchestrator {
	t.Helper()
	patterns := recovery.NewPatternStore(nil)
	mgr, err := recovery.NewManager(&recovery.ManagerConfig{Patterns: patterns})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if metrics == nil {
		metrics = &stubMetrics{snapshot: map[string]float64{}}
	}
	o, err := NewOrchestrator(&Deps{
		Metrics:  metrics,
		Stream:   errstream.NewStream(nil, nil),
		Engine:   anomaly.NewEngine(anomaly.NewThresholdDetector(nil), anomaly.NewCorrelationDetector()),
		Predict:  anomaly.NewPredictor(),
		Recovery: mgr,
		Analyzer: rootcause.NewAnalyzer(&rootcause.Config{Patterns: patterns}),
		Executor: &stubExecutor{},
	})
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	return o
}

func TestNewOrchestratorRequiresDeps(t *testing.T) {
	if _, err := NewOrchestrator(nil); err == nil {
		t.Fatal("expected error for nil deps")
	}
	if _, err := NewOrchestrator(&Deps{}); err == nil {
		t.Fatal("expected error for missing metrics source")
	}
}

func TestEscalatedRecoveryEntersEscalatingState(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	o.config.MaxRecoveryAttempts = 1
	o.config.EscalateAfter = 1

	// Security errors lead with rollback-and-retry; without a
	// checkpointer the attempt fails and the episode escalates.
	event := &types.ErrorEvent{
		ID:       "ev-sec",
		Type:     types.ErrorTypeSecurity,
		Severity: types.SeverityCritical,
		Message:  "security violation detected in worker sandbox",
	}
	session := &types.HealingSession{ID: "sess-esc", StartTime: time.Now(), Trigger: types.TriggerManual}

	result := o.recover(context.Background(), event, session)
	if result == nil || result.Status != types.RecoveryEscalated {
		t.Fatalf("expected escalated recovery, got %+v", result)
	}
	if got := o.State(); got != types.StateEscalating {
		t.Errorf("state after escalated recovery = %v, want %v", got, types.StateEscalating)
	}

	o.closeSession(context.Background(), session)
	if got := o.State(); got != types.StateMonitoring {
		t.Errorf("state after session close = %v, want %v", got, types.StateMonitoring)
	}
}

func TestInterventionWarrantedRules(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	healthy := &types.SystemHealth{
		OverallScore:    0.95,
		ComponentScores: map[string]float64{"responsiveness": 1.0},
	}

	tests := []struct {
		name      string
		health    *types.SystemHealth
		anomalies []*types.Anomaly
		pred      *types.FailureProbability
		errorRate float64
		want      types.TriggerType
		warranted bool
	}{
		{"all quiet", healthy, nil, nil, 0, "", false},
		{"error rate breach", healthy, nil, nil, 0.2, types.TriggerErrorThreshold, true},
		{"high anomaly", healthy, []*types.Anomaly{{Severity: types.SeverityHigh}}, nil, 0, types.TriggerAnomaly, true},
		{"low anomaly ignored", healthy, []*types.Anomaly{{Severity: types.SeverityLow}}, nil, 0, "", false},
		{"failure prediction", healthy, nil, &types.FailureProbability{Probability: 0.8}, 0, types.TriggerFailurePredict, true},
		{"prediction below threshold", healthy, nil, &types.FailureProbability{Probability: 0.5}, 0, "", false},
		{
			"unresponsive",
			&types.SystemHealth{OverallScore: 0.8, ComponentScores: map[string]float64{"responsiveness": 0.1}},
			nil, nil, 0, types.TriggerPerformance, true,
		},
		{
			"health floor",
			&types.SystemHealth{OverallScore: 0.4, ComponentScores: map[string]float64{"responsiveness": 1.0}},
			nil, nil, 0, types.TriggerHealthDegraded, true,
		},
		{
			"error rate wins over anomaly",
			healthy, []*types.Anomaly{{Severity: types.SeverityCritical}}, nil, 0.5, types.TriggerErrorThreshold, true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := o.interventionWarranted(tt.health, tt.anomalies, tt.pred, tt.errorRate)
			if ok != tt.warranted || got != tt.want {
				t.Errorf("got (%s, %v), want (%s, %v)", got, ok, tt.want, tt.warranted)
			}
		})
	}
}

func TestEnqueuePriorityBumps(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	o.enqueueIntervention(types.TriggerAnomaly, &types.SystemHealth{OverallScore: 0.9}, nil, nil)
	o.enqueueIntervention(types.TriggerAnomaly, &types.SystemHealth{OverallScore: 0.45}, nil, nil)
	o.enqueueIntervention(types.TriggerAnomaly, &types.SystemHealth{OverallScore: 0.2}, nil, nil)

	wants := []int{
		basePriorities[types.TriggerAnomaly] + 20, // below the degraded floor
		basePriorities[types.TriggerAnomaly] + 10, // below the intervention floor
		basePriorities[types.TriggerAnomaly],
	}
	for _, want := range wants {
		iv := o.queue.Pop(time.Second)
		if iv == nil {
			t.Fatal("queue exhausted early")
		}
		if iv.Priority != want {
			t.Errorf("priority = %d, want %d", iv.Priority, want)
		}
	}
}

func TestTriggerManualIntervention(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	id := o.TriggerManualIntervention(map[string]interface{}{"reason": "operator request"})
	if id == "" {
		t.Fatal("expected a non-empty intervention ID")
	}
	iv := o.queue.Pop(time.Second)
	if iv == nil {
		t.Fatal("manual intervention not queued")
	}
	if iv.ID != id || iv.Trigger != types.TriggerManual {
		t.Errorf("queued %+v, want manual intervention %s", iv, id)
	}
	if iv.Priority != basePriorities[types.TriggerManual] {
		t.Errorf("priority = %d, want %d", iv.Priority, basePriorities[types.TriggerManual])
	}
	if iv.Context["reason"] != "operator request" {
		t.Errorf("context not carried: %v", iv.Context)
	}
}

func TestRunHealthCheckQueuesOnMemorySpike(t *testing.T) {
	src := &stubMetrics{snapshot: map[string]float64{
		"cpu_usage":     30,
		"memory_usage":  96, // breaches the 80% ceiling
		"disk_usage":    40,
		"response_time": 200,
	}}
	o := newTestOrchestrator(t, src)

	o.runHealthCheck(context.Background())

	iv := o.queue.Pop(time.Second)
	if iv == nil {
		t.Fatal("expected an intervention for the memory spike")
	}
	if iv.Trigger != types.TriggerAnomaly {
		t.Errorf("trigger = %s, want anomaly", iv.Trigger)
	}
	if len(iv.Anomalies) == 0 {
		t.Fatal("anomalies not attached to the intervention")
	}
	found := false
	for _, a := range iv.Anomalies {
		for _, m := range a.AffectedMetrics {
			if m == "memory_usage" {
				found = true
			}
		}
	}
	if !found {
		t.Error("memory_usage not among affected metrics")
	}
	if iv.Health == nil || iv.Health.OverallScore >= 1.0 {
		t.Errorf("health snapshot missing or implausible: %+v", iv.Health)
	}
}

func TestRunHealthCheckQuietSystem(t *testing.T) {
	src := &stubMetrics{snapshot: map[string]float64{
		"cpu_usage":     20,
		"memory_usage":  30,
		"disk_usage":    25,
		"response_time": 100,
	}}
	o := newTestOrchestrator(t, src)

	o.runHealthCheck(context.Background())

	if n := o.queue.Len(); n != 0 {
		t.Errorf("queue depth = %d on a quiet system, want 0", n)
	}
	if o.State() != types.StateHealthy {
		t.Errorf("state = %s, want healthy", o.State())
	}
	status := o.GetHealingStatus()
	if status.Health == nil || status.Health.OverallScore < 0.9 {
		t.Errorf("health not recorded or too low: %+v", status.Health)
	}
}

func TestHandleInterventionClosesSession(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	// Seed a recent error so the manual handler has something to recover.
	if _, err := o.stream.RecordMessage(context.Background(), "connection timed out", "", nil, "worker-1", ""); err != nil {
		t.Fatalf("RecordMessage failed: %v", err)
	}

	iv := &types.Intervention{
		ID:       "iv-1",
		Trigger:  types.TriggerManual,
		Priority: basePriorities[types.TriggerManual],
		QueuedAt: time.Now(),
	}
	o.handleIntervention(context.Background(), iv)

	sessions := o.RecentSessions(1)
	if len(sessions) != 1 {
		t.Fatalf("sessions retained = %d, want 1", len(sessions))
	}
	s := sessions[0]
	if s.Trigger != types.TriggerManual {
		t.Errorf("trigger = %s", s.Trigger)
	}
	if s.EndTime.IsZero() {
		t.Error("session not closed")
	}
	if len(s.Recoveries) == 0 {
		t.Error("no recovery attempted for the seeded error")
	}
	if !s.Success {
		t.Errorf("session failed: lessons=%q", s.Lessons)
	}
	if o.State() != types.StateMonitoring {
		t.Errorf("state = %s after session close, want monitoring", o.State())
	}
}

func TestBackoffDoublesAfterConsecutiveFailures(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	failed := func() *types.HealingSession {
		return &types.HealingSession{
			ID:        "s",
			StartTime: time.Now(),
			Trigger:   types.TriggerErrorThreshold,
			Recoveries: []*types.RecoveryResult{
				{Success: false, Status: types.RecoveryFailed},
			},
		}
	}

	for i := 0; i < o.config.BackoffThreshold-1; i++ {
		o.closeSession(context.Background(), failed())
	}
	if got := o.currentCheckInterval(); got != o.config.CheckInterval {
		t.Fatalf("interval backed off early: %v", got)
	}

	o.closeSession(context.Background(), failed())
	if got := o.currentCheckInterval(); got != 2*o.config.CheckInterval {
		t.Fatalf("interval = %v after %d failures, want doubled", got, o.config.BackoffThreshold)
	}

	// A successful session resets the backoff.
	o.closeSession(context.Background(), &types.HealingSession{
		ID:        "ok",
		StartTime: time.Now(),
		Trigger:   types.TriggerManual,
		Recoveries: []*types.RecoveryResult{
			{Success: true, Status: types.RecoverySuccess},
		},
	})
	if got := o.currentCheckInterval(); got != o.config.CheckInterval {
		t.Errorf("interval = %v after success, want reset to %v", got, o.config.CheckInterval)
	}
}

func TestSessionSucceeded(t *testing.T) {
	tests := []struct {
		name    string
		session *types.HealingSession
		want    bool
	}{
		{"no recoveries, no lessons", &types.HealingSession{Trigger: types.TriggerManual}, true},
		{"no recoveries with failure lesson", &types.HealingSession{Trigger: types.TriggerManual, Lessons: "handler panicked"}, false},
		{
			"preventive session always counts",
			&types.HealingSession{Trigger: types.TriggerFailurePredict, Lessons: "applied 2 preventive mitigations"},
			true,
		},
		{
			"all recoveries succeeded",
			&types.HealingSession{Recoveries: []*types.RecoveryResult{{Success: true}, {Success: true}}},
			true,
		},
		{
			"one recovery failed",
			&types.HealingSession{Recoveries: []*types.RecoveryResult{{Success: true}, {Success: false}}},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sessionSucceeded(tt.session); got != tt.want {
				t.Errorf("sessionSucceeded = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetHealingStatistics(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	now := time.Now()
	o.completedSessions = []*types.HealingSession{
		{
			Trigger: types.TriggerAnomaly, Success: true,
			StartTime: now, EndTime: now.Add(2 * time.Second),
			Recoveries: []*types.RecoveryResult{{Strategy: types.StrategyRetryBackoff, Success: true}},
		},
		{
			Trigger: types.TriggerAnomaly, Success: false,
			StartTime: now, EndTime: now.Add(4 * time.Second),
			Recoveries: []*types.RecoveryResult{
				{Strategy: types.StrategyRetryBackoff, Success: false},
				{Strategy: types.StrategyParameterAdjustment, Success: false},
			},
		},
		{
			Trigger: types.TriggerManual, Success: true,
			StartTime: now, EndTime: now.Add(6 * time.Second),
		},
	}

	stats := o.GetHealingStatistics()
	if stats.TotalSessions != 3 {
		t.Errorf("total = %d, want 3", stats.TotalSessions)
	}
	if stats.TriggerCounts[types.TriggerAnomaly] != 2 || stats.TriggerCounts[types.TriggerManual] != 1 {
		t.Errorf("trigger counts = %v", stats.TriggerCounts)
	}
	if stats.StrategyCounts[types.StrategyRetryBackoff] != 2 {
		t.Errorf("retry count = %d, want 2", stats.StrategyCounts[types.StrategyRetryBackoff])
	}
	if want := 2.0 / 3.0; stats.SuccessRate < want-1e-9 || stats.SuccessRate > want+1e-9 {
		t.Errorf("success rate = %.3f, want %.3f", stats.SuccessRate, want)
	}
	if stats.AvgDuration != 4*time.Second {
		t.Errorf("avg duration = %v, want 4s", stats.AvgDuration)
	}
}

func TestStartStop(t *testing.T) {
	o := newTestOrchestrator(t, nil)

	ctx := context.Background()
	if err := o.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := o.Start(ctx); err == nil {
		t.Error("second Start should fail while running")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := o.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	// Stopping again is a no-op.
	if err := o.Stop(stopCtx); err != nil {
		t.Errorf("idempotent Stop failed: %v", err)
	}
}
