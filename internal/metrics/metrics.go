// Package metrics exposes Prometheus collectors for the healing loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remedy",
			Name:      "anomalies_total",
			Help:      "Total anomalies detected, partitioned by detector type and severity.",
		},
		[]string{"type", "severity"},
	)

	recoveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remedy",
			Name:      "recoveries_total",
			Help:      "Total recovery attempts, partitioned by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remedy",
			Name:      "healing_sessions_total",
			Help:      "Total healing sessions, partitioned by trigger and outcome.",
		},
		[]string{"trigger", "outcome"},
	)

	sessionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "remedy",
			Name:      "healing_session_seconds",
			Help:      "Healing session duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	healthScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "remedy",
			Name:      "health_score",
			Help:      "Current overall health score in [0,1].",
		},
	)
)

// Register attaches remedy collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		anomaliesTotal,
		recoveriesTotal,
		sessionsTotal,
		sessionDurationSeconds,
		healthScore,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnomaly counts one detected anomaly.
func ObserveAnomaly(anomalyType, severity string) {
	anomaliesTotal.WithLabelValues(anomalyType, severity).Inc()
}

// ObserveRecovery counts one recovery attempt outcome.
func ObserveRecovery(strategy string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	recoveriesTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveSession records a completed healing session.
func ObserveSession(trigger string, success bool, duration time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	sessionsTotal.WithLabelValues(trigger, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	sessionDurationSeconds.Observe(duration.Seconds())
}

// SetHealthScore publishes the current overall health score.
func SetHealthScore(score float64) {
	healthScore.Set(score)
}
