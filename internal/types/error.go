package types

import (
	"time"
)

// ErrorType classifies an observed failure into a fixed taxonomy.
type ErrorType string

const (
	ErrorTypeMalformedInput ErrorType = "malformed_input"
	ErrorTypeLogic          ErrorType = "logic_error"
	ErrorTypeRuntime        ErrorType = "runtime_error"
	ErrorTypeResource       ErrorType = "resource_exhaustion"
	ErrorTypeExternal       ErrorType = "external_service"
	ErrorTypeSecurity       ErrorType = "security"
	ErrorTypePerformance    ErrorType = "performance_degradation"
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypePermission     ErrorType = "permission"
	ErrorTypeTimeout        ErrorType = "timeout"
	ErrorTypeUnknown        ErrorType = "unknown"
)

// Severity indicates how serious an error or anomaly is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank returns a numeric ordering for severity comparison.
// Higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ResourceSnapshot captures resource usage at the moment an error occurred.
type ResourceSnapshot struct {
	// CPUPercent is CPU utilization 0-100
	CPUPercent float64 `json:"cpu_percent"`
	// MemoryPercent is memory utilization 0-100
	MemoryPercent float64 `json:"memory_percent"`
	// DiskPercent is disk utilization 0-100
	DiskPercent float64 `json:"disk_percent"`
	// OpenFiles is the number of open file descriptors
	OpenFiles int `json:"open_files"`
	// ProcessCount is the number of live processes/goroutines
	ProcessCount int `json:"process_count"`
}

// ErrorEvent is a single observed failure. Immutable once created;
// appended to the bounded error stream and to persistent storage.
type ErrorEvent struct {
	// ID uniquely identifies this event
	ID string `json:"id"`
	// Timestamp is when the error was recorded
	Timestamp time.Time `json:"timestamp"`
	// Type is the classified error type
	Type ErrorType `json:"error_type"`
	// Severity is the classified severity
	Severity Severity `json:"severity"`
	// Message is the human-readable error text
	Message string `json:"message"`
	// StackTrace is the optional stack or trace text
	StackTrace string `json:"stack_trace,omitempty"`
	// CodeLocation is an optional snippet or file:line reference
	CodeLocation string `json:"code_location,omitempty"`
	// Context carries free-form key/value context
	Context map[string]interface{} `json:"context,omitempty"`
	// Resources is an optional resource-usage snapshot taken at record time
	Resources *ResourceSnapshot `json:"resources,omitempty"`
	// ProcessID identifies the originating process
	ProcessID string `json:"process_id,omitempty"`
	// AgentID identifies the originating agent
	AgentID string `json:"agent_id,omitempty"`
}
