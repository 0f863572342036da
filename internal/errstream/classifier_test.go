package errstream

import (
	"testing"

	"github.com/havenops/remedy/internal/types"
)

func TestClassifyType(t *testing.T) {
	tests := []struct {
		name    string
		message string
		stack   string
		want    types.ErrorType
	}{
		{"timeout", "request timed out after 30s", "", types.ErrorTypeTimeout},
		{"deadline", "context deadline exceeded", "", types.ErrorTypeTimeout},
		{"oom", "process killed: out of memory", "", types.ErrorTypeResource},
		{"disk full", "write failed: disk full", "", types.ErrorTypeResource},
		{"connection refused", "dial tcp: connection refused", "", types.ErrorTypeNetwork},
		{"permission", "open /etc/shadow: permission denied", "", types.ErrorTypePermission},
		{"security", "unauthorized access attempt detected", "", types.ErrorTypeSecurity},
		{"malformed", "parse error: unexpected token '}'", "", types.ErrorTypeMalformedInput},
		{"index", "list index out of range", "", types.ErrorTypeRuntime},
		{"nil deref", "invalid memory address or nil pointer dereference", "", types.ErrorTypeRuntime},
		{"logic", "assertion failed: expected 3 got 4", "", types.ErrorTypeLogic},
		{"external", "upstream returned 502 bad gateway", "", types.ErrorTypeExternal},
		{"performance", "query is slow, latency above budget", "", types.ErrorTypePerformance},
		{"stack only", "something broke", "goroutine 1 [running]: panic", types.ErrorTypeRuntime},
		{"unknown", "qwerty asdf", "", types.ErrorTypeUnknown},
		{"case insensitive", "Request TIMED OUT", "", types.ErrorTypeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyType(tt.message, tt.stack)
			if got != tt.want {
				t.Errorf("ClassifyType(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}

func TestClassifyTypeDeterministic(t *testing.T) {
	// Same input must always produce the same classification.
	msg := "timeout waiting for network connection"
	first := ClassifyType(msg, "")
	for i := 0; i < 100; i++ {
		if got := ClassifyType(msg, ""); got != first {
			t.Fatalf("classification changed on iteration %d: %v != %v", i, got, first)
		}
	}
}

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		message string
		want    types.Severity
	}{
		{"fatal error in worker", types.SeverityCritical},
		{"data loss detected in segment 4", types.SeverityCritical},
		{"memory usage above limit", types.SeverityHigh},
		{"security policy violation", types.SeverityHigh},
		{"request timeout", types.SeverityMedium},
		{"warning: config deprecated", types.SeverityLow},
		{"something odd happened", types.SeverityMedium}, // default
	}

	for _, tt := range tests {
		if got := ClassifySeverity(tt.message); got != tt.want {
			t.Errorf("ClassifySeverity(%q) = %v, want %v", tt.message, got, tt.want)
		}
	}
}

func TestSignature(t *testing.T) {
	// Digits are stripped so messages differing only in numbers share a
	// signature.
	a := Signature(types.ErrorTypeTimeout, "request timed out after 30s on shard 7")
	b := Signature(types.ErrorTypeTimeout, "request timed out after 45s on shard 9")
	if a != b {
		t.Errorf("signatures differ for same shape: %q vs %q", a, b)
	}

	c := Signature(types.ErrorTypeNetwork, "request timed out after 30s on shard 7")
	if a == c {
		t.Error("different error types must not share a signature")
	}

	d := Signature(types.ErrorTypeTimeout, "connection pool exhausted")
	if a == d {
		t.Error("different messages must not share a signature")
	}
}
