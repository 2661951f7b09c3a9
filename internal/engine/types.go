package engine

import (
	"fmt"
	"time"
)

// Quality flags carried by readings from the plant data sources.
const (
	QualityGood      = "GOOD"
	QualityBad       = "BAD"
	QualityUncertain = "UNCERTAIN"
)

// Severity levels, ordered low to high.
const (
	SeverityLow      = "LOW"
	SeverityMedium   = "MEDIUM"
	SeverityHigh     = "HIGH"
	SeverityCritical = "CRITICAL"
)

var severityRank = map[string]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

func SeverityRank(severity string) int {
	return severityRank[severity]
}

// Condition types supported by trigger rules. Percent conditions are
// relative to the parameter's normal range.
const (
	CondGreaterThan        = "GREATER_THAN"
	CondLessThan           = "LESS_THAN"
	CondGreaterOrEqual     = "GREATER_OR_EQUAL"
	CondLessOrEqual        = "LESS_OR_EQUAL"
	CondOutOfRange         = "OUT_OF_RANGE"
	CondAboveNormalPercent = "ABOVE_NORMAL_PERCENT"
	CondBelowNormalPercent = "BELOW_NORMAL_PERCENT"
)

const (
	TriggerLimitExceeded = "LIMIT_EXCEEDED"
	TriggerDeviation     = "DEVIATION"
)

// Trigger event lifecycle states.
const (
	EventActive       = "ACTIVE"
	EventAcknowledged = "ACKNOWLEDGED"
	EventResolved     = "RESOLVED"
)

type Reading struct {
	ParameterID string    `json:"parameter_id"`
	Timestamp   time.Time `json:"timestamp"`
	Value       float64   `json:"value"`
	Quality     string    `json:"quality"`
	Source      string    `json:"source"`
}

// Parameter is the engine's read-only view of a configured process
// parameter. The critical range must contain the normal range.
type Parameter struct {
	ID          string
	SystemID    string
	Name        string
	Unit        string
	NormalMin   float64
	NormalMax   float64
	CriticalMin float64
	CriticalMax float64
}

type Rule struct {
	ID             string
	ParameterID    string
	Name           string
	Condition      string
	Threshold      float64
	EvalWindowMin  int
	MinDurationMin int
	RecoveryMin    int
	Severity       string
	TriggerType    string
	Enabled        bool
}

type ErrorDetail struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
	Hint    string `json:"hint,omitempty"`
}

type RuleError struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details"`
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func ValidateParameter(p Parameter) *RuleError {
	var details []ErrorDetail
	if p.ID == "" {
		details = append(details, ErrorDetail{Field: "id", Problem: "missing"})
	}
	if p.NormalMin >= p.NormalMax {
		details = append(details, ErrorDetail{Field: "normalRange", Problem: "invalid", Hint: "normalMin must be < normalMax"})
	}
	if p.CriticalMin > p.NormalMin || p.CriticalMax < p.NormalMax {
		details = append(details, ErrorDetail{Field: "criticalRange", Problem: "invalid", Hint: "critical range must contain the normal range"})
	}
	if len(details) > 0 {
		return &RuleError{Code: "PARAMETER_INVALID", Message: "parameter failed validation", Details: details}
	}
	return nil
}

func ValidateRule(rule Rule, param Parameter) *RuleError {
	var details []ErrorDetail
	switch rule.Condition {
	case CondGreaterThan, CondLessThan, CondGreaterOrEqual, CondLessOrEqual, CondOutOfRange:
	case CondAboveNormalPercent, CondBelowNormalPercent:
		if rule.Threshold <= 0 {
			details = append(details, ErrorDetail{Field: "threshold", Problem: "out of range", Hint: "percent must be > 0"})
		}
	default:
		details = append(details, ErrorDetail{Field: "condition", Problem: "unsupported"})
	}
	if rule.MinDurationMin < 0 {
		details = append(details, ErrorDetail{Field: "minDurationMinutes", Problem: "out of range", Hint: "must be >= 0"})
	}
	if rule.EvalWindowMin < rule.MinDurationMin {
		details = append(details, ErrorDetail{Field: "evalWindowMinutes", Problem: "too small", Hint: "must be >= minDurationMinutes"})
	}
	if rule.RecoveryMin < 0 {
		details = append(details, ErrorDetail{Field: "recoveryMinutes", Problem: "out of range", Hint: "must be >= 0"})
	}
	if severityRank[rule.Severity] == 0 {
		details = append(details, ErrorDetail{Field: "severity", Problem: "unsupported"})
	}
	if rule.TriggerType != TriggerLimitExceeded && rule.TriggerType != TriggerDeviation {
		details = append(details, ErrorDetail{Field: "triggerType", Problem: "unsupported"})
	}
	if rule.ParameterID != param.ID {
		details = append(details, ErrorDetail{Field: "parameterId", Problem: "mismatch"})
	}
	if len(details) > 0 {
		return &RuleError{Code: "RULE_INVALID", Message: "trigger rule failed validation", Details: details}
	}
	return nil
}
