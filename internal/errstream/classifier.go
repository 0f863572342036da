package errstream

import (
	"strings"

	"github.com/havenops/remedy/internal/types"
)

// typeRule maps message keywords to an error type. Rules are evaluated in
// order; the first match wins so more specific keywords come first.
type typeRule struct {
	keywords []string
	errType  types.ErrorType
}

var typeRules = []typeRule{
	{[]string{"security", "unauthorized", "forbidden", "injection", "exploit"}, types.ErrorTypeSecurity},
	{[]string{"permission denied", "access denied", "permission"}, types.ErrorTypePermission},
	{[]string{"timeout", "timed out", "deadline exceeded"}, types.ErrorTypeTimeout},
	{[]string{"out of memory", "memory exhausted", "disk full", "no space", "resource exhaust", "too many open files"}, types.ErrorTypeResource},
	{[]string{"connection refused", "connection reset", "network", "dns", "unreachable", "socket"}, types.ErrorTypeNetwork},
	{[]string{"api error", "service unavailable", "bad gateway", "upstream", "rate limit", "external service"}, types.ErrorTypeExternal},
	{[]string{"slow", "latency", "degraded", "performance"}, types.ErrorTypePerformance},
	{[]string{"invalid input", "malformed", "parse error", "unexpected token", "validation failed", "bad request"}, types.ErrorTypeMalformedInput},
	{[]string{"index out of range", "nil pointer", "null", "panic", "segmentation", "stack overflow", "division by zero", "runtime"}, types.ErrorTypeRuntime},
	{[]string{"assertion", "unexpected value", "invariant", "logic", "wrong result", "off by one"}, types.ErrorTypeLogic},
}

// severityRule maps message keywords to a severity, checked most severe
// first. Messages matching no rule default to medium.
type severityRule struct {
	keywords []string
	severity types.Severity
}

var severityRules = []severityRule{
	{[]string{"critical", "fatal", "crash", "panic", "data loss", "corrupt"}, types.SeverityCritical},
	{[]string{"memory", "disk", "security", "unauthorized", "exhaust"}, types.SeverityHigh},
	{[]string{"timeout", "connection", "permission", "unavailable"}, types.SeverityMedium},
	{[]string{"warning", "deprecated", "minor"}, types.SeverityLow},
}

// ClassifyType maps an error message (plus optional stack text) to the
// error-type taxonomy. The same input always yields the same type.
func ClassifyType(message, stack string) types.ErrorType {
	text := strings.ToLower(message + " " + stack)
	for _, rule := range typeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.errType
			}
		}
	}
	return types.ErrorTypeUnknown
}

// ClassifySeverity maps an error message to a severity. Defaults to
// medium when no keyword rule matches.
func ClassifySeverity(message string) types.Severity {
	text := strings.ToLower(message)
	for _, rule := range severityRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.severity
			}
		}
	}
	return types.SeverityMedium
}

// Signature normalizes an error into a stable signature string used to
// key recovery patterns: the classified type plus the first significant
// words of the message with digits stripped.
func Signature(errType types.ErrorType, message string) string {
	words := strings.Fields(strings.ToLower(message))
	if len(words) > 6 {
		words = words[:6]
	}
	for i, w := range words {
		words[i] = strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return -1
			}
			return r
		}, w)
	}
	return string(errType) + ":" + strings.Join(words, "_")
}
