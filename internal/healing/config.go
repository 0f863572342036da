package healing

import "time"

// Config controls the healing loop cadence and decision thresholds.
type Config struct {
	// CheckInterval is the cadence of the health-check tick
	CheckInterval time.Duration `yaml:"check_interval" json:"check_interval"`
	// MaxCheckInterval caps the backoff applied after repeated failed sessions
	MaxCheckInterval time.Duration `yaml:"max_check_interval" json:"max_check_interval"`
	// BackoffThreshold is the consecutive failed-session count that starts backoff
	BackoffThreshold int `yaml:"backoff_threshold" json:"backoff_threshold"`
	// ErrorWindow is the lookback used for error-rate computation
	ErrorWindow time.Duration `yaml:"error_window" json:"error_window"`
	// ErrorRateThreshold is the errors-per-second rate that warrants intervention
	ErrorRateThreshold float64 `yaml:"error_rate_threshold" json:"error_rate_threshold"`
	// FailureProbThreshold is the predicted failure probability that warrants intervention
	FailureProbThreshold float64 `yaml:"failure_prob_threshold" json:"failure_prob_threshold"`
	// InterventionFloor is the overall health score below which intervention is warranted
	InterventionFloor float64 `yaml:"intervention_floor" json:"intervention_floor"`
	// DegradedFloor is the health score below which the loop reports degraded
	DegradedFloor float64 `yaml:"degraded_floor" json:"degraded_floor"`
	// FailedFloor is the health score below which the loop reports failed
	FailedFloor float64 `yaml:"failed_floor" json:"failed_floor"`
	// MinSessionGap is the minimum spacing between healing session starts
	MinSessionGap time.Duration `yaml:"min_session_gap" json:"min_session_gap"`
	// QueuePollTimeout bounds each blocking queue poll so shutdown stays responsive
	QueuePollTimeout time.Duration `yaml:"queue_poll_timeout" json:"queue_poll_timeout"`
	// MaxSessionHistory bounds the in-memory completed session ring
	MaxSessionHistory int `yaml:"max_session_history" json:"max_session_history"`
	// MaxRecoveryAttempts bounds attempts per recovery episode
	MaxRecoveryAttempts int `yaml:"max_recovery_attempts" json:"max_recovery_attempts"`
	// EscalateAfter is the attempt count after which escalation is considered
	EscalateAfter int `yaml:"escalate_after" json:"escalate_after"`
	// SelfModificationAllowed permits the code-fix recovery strategy
	SelfModificationAllowed bool `yaml:"self_modification_allowed" json:"self_modification_allowed"`
	// RetentionDays is how long persisted error events are kept
	RetentionDays int `yaml:"retention_days" json:"retention_days"`
	// CleanupInterval is the cadence of the storage retention sweep
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	// OptimizeInterval is the cadence of the performance optimizer pass
	OptimizeInterval time.Duration `yaml:"optimize_interval" json:"optimize_interval"`
}

// DefaultConfig returns the standard healing loop configuration.
func DefaultConfig() *Config {
	return &Config{
		CheckInterval:        30 * time.Second,
		MaxCheckInterval:     10 * time.Minute,
		BackoffThreshold:     3,
		ErrorWindow:          60 * time.Second,
		ErrorRateThreshold:   0.1,
		FailureProbThreshold: 0.7,
		InterventionFloor:    0.5,
		DegradedFloor:        0.3,
		FailedFloor:          0.1,
		MinSessionGap:        5 * time.Second,
		QueuePollTimeout:     2 * time.Second,
		MaxSessionHistory:    100,
		MaxRecoveryAttempts:  3,
		EscalateAfter:        2,
		SelfModificationAllowed: true,
		RetentionDays:        7,
		CleanupInterval:      6 * time.Hour,
		OptimizeInterval:     5 * time.Minute,
	}
}

// applyDefaults fills zero-valued fields so partially specified configs
// behave sensibly.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.CheckInterval <= 0 {
		c.CheckInterval = d.CheckInterval
	}
	if c.MaxCheckInterval <= 0 {
		c.MaxCheckInterval = d.MaxCheckInterval
	}
	if c.BackoffThreshold <= 0 {
		c.BackoffThreshold = d.BackoffThreshold
	}
	if c.ErrorWindow <= 0 {
		c.ErrorWindow = d.ErrorWindow
	}
	if c.ErrorRateThreshold <= 0 {
		c.ErrorRateThreshold = d.ErrorRateThreshold
	}
	if c.FailureProbThreshold <= 0 {
		c.FailureProbThreshold = d.FailureProbThreshold
	}
	if c.InterventionFloor <= 0 {
		c.InterventionFloor = d.InterventionFloor
	}
	if c.DegradedFloor <= 0 {
		c.DegradedFloor = d.DegradedFloor
	}
	if c.FailedFloor <= 0 {
		c.FailedFloor = d.FailedFloor
	}
	if c.MinSessionGap <= 0 {
		c.MinSessionGap = d.MinSessionGap
	}
	if c.QueuePollTimeout <= 0 {
		c.QueuePollTimeout = d.QueuePollTimeout
	}
	if c.MaxSessionHistory <= 0 {
		c.MaxSessionHistory = d.MaxSessionHistory
	}
	if c.MaxRecoveryAttempts <= 0 {
		c.MaxRecoveryAttempts = d.MaxRecoveryAttempts
	}
	if c.EscalateAfter <= 0 {
		c.EscalateAfter = d.EscalateAfter
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	if c.OptimizeInterval <= 0 {
		c.OptimizeInterval = d.OptimizeInterval
	}
}
