package fmea

import "fmt"

// Urgency bands derived from an RPN value. Thresholds are fixed
// policy, not per-instance configuration.
const (
	UrgencyImmediate = "IMMEDIATE"
	UrgencyHigh      = "HIGH"
	UrgencyMedium    = "MEDIUM"
	UrgencyLow       = "LOW"
)

const (
	immediateThreshold = 200
	highThreshold      = 125
	mediumThreshold    = 75
	attentionThreshold = 100
)

type ScoreError struct {
	Factor string
	Value  int
}

func (e *ScoreError) Error() string {
	return fmt.Sprintf("%s score %d out of range [1,10]", e.Factor, e.Value)
}

// Scores holds a severity/occurrence/detection triple.
type Scores struct {
	Severity   int
	Occurrence int
	Detection  int
}

func (s Scores) Validate() error {
	if s.Severity < 1 || s.Severity > 10 {
		return &ScoreError{Factor: "severity", Value: s.Severity}
	}
	if s.Occurrence < 1 || s.Occurrence > 10 {
		return &ScoreError{Factor: "occurrence", Value: s.Occurrence}
	}
	if s.Detection < 1 || s.Detection > 10 {
		return &ScoreError{Factor: "detection", Value: s.Detection}
	}
	return nil
}

// RPN computes severity x occurrence x detection for validated scores.
func RPN(s Scores) (int, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	return s.Severity * s.Occurrence * s.Detection, nil
}

func Urgency(rpn int) string {
	switch {
	case rpn >= immediateThreshold:
		return UrgencyImmediate
	case rpn >= highThreshold:
		return UrgencyHigh
	case rpn >= mediumThreshold:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

var urgencyRank = map[string]int{
	UrgencyLow:       1,
	UrgencyMedium:    2,
	UrgencyHigh:      3,
	UrgencyImmediate: 4,
}

func UrgencyRank(urgency string) int {
	return urgencyRank[urgency]
}

// Recommendable reports whether an urgency band produces a strategy
// recommendation by default (MEDIUM and above).
func Recommendable(urgency string) bool {
	return urgencyRank[urgency] >= urgencyRank[UrgencyMedium]
}

// Summary aggregates a system's current assessment RPNs for dashboard
// consumers.
type Summary struct {
	Count         int     `json:"count"`
	MaxRPN        int     `json:"max_rpn"`
	AvgRPN        float64 `json:"avg_rpn"`
	HighRiskCount int     `json:"high_risk_count"`
}

func Summarize(rpns []int) Summary {
	s := Summary{Count: len(rpns)}
	if len(rpns) == 0 {
		return s
	}
	total := 0
	for _, rpn := range rpns {
		total += rpn
		if rpn > s.MaxRPN {
			s.MaxRPN = rpn
		}
		if rpn >= attentionThreshold {
			s.HighRiskCount++
		}
	}
	s.AvgRPN = float64(total) / float64(len(rpns))
	return s
}
