package engine

import (
	"fmt"
	"time"
)

// Transition kinds emitted by a single evaluation step.
const (
	TransitionFire    = "FIRE"
	TransitionRefresh = "REFRESH"
	TransitionResolve = "RESOLVE"
)

type Transition struct {
	Kind        string
	RuleID      string
	ParameterID string
	Value       float64
	At          time.Time
	BreachedFor time.Duration
	LimitExpr   string
}

type sample struct {
	ts    time.Time
	value float64
}

// RuleState is the latched evaluation state for one rule. It is owned
// exclusively by the evaluator goroutine responsible for the rule's
// parameter and is never shared.
type RuleState struct {
	window      []sample
	breachSince *time.Time
	normalSince *time.Time
	active      bool
	lastValue   float64
}

func (s *RuleState) Active() bool { return s.active }

// MarkResolved clears the latched active flag, used when an operator
// resolves the event out of band.
func (s *RuleState) MarkResolved() {
	s.active = false
	s.breachSince = nil
	s.normalSince = nil
}

func conditionHolds(rule Rule, param Parameter, value float64) bool {
	switch rule.Condition {
	case CondGreaterThan:
		return value > rule.Threshold
	case CondGreaterOrEqual:
		return value >= rule.Threshold
	case CondLessThan:
		return value < rule.Threshold
	case CondLessOrEqual:
		return value <= rule.Threshold
	case CondOutOfRange:
		return value < param.NormalMin || value > param.NormalMax
	case CondAboveNormalPercent:
		return value > param.NormalMax*(1+rule.Threshold/100)
	case CondBelowNormalPercent:
		return value < param.NormalMin*(1-rule.Threshold/100)
	default:
		return false
	}
}

func limitExpr(rule Rule, param Parameter) string {
	switch rule.Condition {
	case CondGreaterThan:
		return fmt.Sprintf("> %v", rule.Threshold)
	case CondGreaterOrEqual:
		return fmt.Sprintf(">= %v", rule.Threshold)
	case CondLessThan:
		return fmt.Sprintf("< %v", rule.Threshold)
	case CondLessOrEqual:
		return fmt.Sprintf("<= %v", rule.Threshold)
	case CondOutOfRange:
		return fmt.Sprintf("outside [%v, %v]", param.NormalMin, param.NormalMax)
	case CondAboveNormalPercent:
		return fmt.Sprintf("> %v%% above normal max %v", rule.Threshold, param.NormalMax)
	case CondBelowNormalPercent:
		return fmt.Sprintf("> %v%% below normal min %v", rule.Threshold, param.NormalMin)
	default:
		return rule.Condition
	}
}

func inNormalRange(param Parameter, value float64) bool {
	return value >= param.NormalMin && value <= param.NormalMax
}

// Step advances the rule state with one reading and returns the
// resulting transition, if any. Readings must arrive in timestamp
// order per parameter; out-of-order readings are dropped. Non-GOOD
// readings never reach this function.
func Step(rule Rule, param Parameter, state *RuleState, reading Reading) *Transition {
	ts := reading.Timestamp
	if n := len(state.window); n > 0 && ts.Before(state.window[n-1].ts) {
		return nil
	}
	state.window = append(state.window, sample{ts: ts, value: reading.Value})
	cutoff := ts.Add(-time.Duration(rule.EvalWindowMin) * time.Minute)
	trimmed := state.window[:0]
	for _, s := range state.window {
		if !s.ts.Before(cutoff) {
			trimmed = append(trimmed, s)
		}
	}
	state.window = trimmed
	state.lastValue = reading.Value

	holds := conditionHolds(rule, param, reading.Value)
	if holds {
		if state.breachSince == nil {
			t := ts
			state.breachSince = &t
		}
	} else {
		state.breachSince = nil
	}
	if inNormalRange(param, reading.Value) {
		if state.normalSince == nil {
			t := ts
			state.normalSince = &t
		}
	} else {
		state.normalSince = nil
	}

	if state.active {
		if holds {
			return &Transition{
				Kind:        TransitionRefresh,
				RuleID:      rule.ID,
				ParameterID: param.ID,
				Value:       reading.Value,
				At:          ts,
				LimitExpr:   limitExpr(rule, param),
			}
		}
		if state.normalSince != nil && ts.Sub(*state.normalSince) >= time.Duration(rule.RecoveryMin)*time.Minute {
			state.active = false
			held := ts.Sub(*state.normalSince)
			state.normalSince = nil
			return &Transition{
				Kind:        TransitionResolve,
				RuleID:      rule.ID,
				ParameterID: param.ID,
				Value:       reading.Value,
				At:          ts,
				BreachedFor: held,
			}
		}
		return nil
	}

	if holds && state.breachSince != nil {
		held := ts.Sub(*state.breachSince)
		if held >= time.Duration(rule.MinDurationMin)*time.Minute {
			state.active = true
			return &Transition{
				Kind:        TransitionFire,
				RuleID:      rule.ID,
				ParameterID: param.ID,
				Value:       reading.Value,
				At:          ts,
				BreachedFor: held,
				LimitExpr:   limitExpr(rule, param),
			}
		}
	}
	return nil
}
