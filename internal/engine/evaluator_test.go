package engine

import (
	"testing"
	"time"
)

var testParam = Parameter{
	ID:          "TI-101-01",
	SystemID:    "SYS-REACTOR-1",
	Name:        "Reactor inlet temperature",
	Unit:        "degC",
	NormalMin:   40,
	NormalMax:   85,
	CriticalMin: 0,
	CriticalMax: 120,
}

var testRule = Rule{
	ID:             "rule-1",
	ParameterID:    "TI-101-01",
	Name:           "inlet temp high",
	Condition:      CondGreaterThan,
	Threshold:      85,
	EvalWindowMin:  30,
	MinDurationMin: 15,
	RecoveryMin:    10,
	Severity:       SeverityHigh,
	TriggerType:    TriggerLimitExceeded,
	Enabled:        true,
}

func reading(ts time.Time, value float64) Reading {
	return Reading{ParameterID: "TI-101-01", Timestamp: ts, Value: value, Quality: QualityGood, Source: "DCS"}
}

func TestStepFiresAfterSustainedBreach(t *testing.T) {
	state := &RuleState{}
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var fires, refreshes int
	for min := 0; min <= 20; min++ {
		tr := Step(testRule, testParam, state, reading(start.Add(time.Duration(min)*time.Minute), 87))
		if tr == nil {
			continue
		}
		switch tr.Kind {
		case TransitionFire:
			fires++
			if min != 15 {
				t.Fatalf("expected fire at minute 15, got minute %d", min)
			}
			if tr.BreachedFor != 15*time.Minute {
				t.Fatalf("expected 15m breach, got %v", tr.BreachedFor)
			}
		case TransitionRefresh:
			refreshes++
		}
	}
	if fires != 1 {
		t.Fatalf("expected exactly one fire, got %d", fires)
	}
	if refreshes != 5 {
		t.Fatalf("expected 5 refreshes after the fire, got %d", refreshes)
	}
}

func TestStepShortBreachNeverFires(t *testing.T) {
	state := &RuleState{}
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	values := []float64{87, 87, 87, 80, 87, 87, 87, 80}
	for i, v := range values {
		if tr := Step(testRule, testParam, state, reading(start.Add(time.Duration(i)*5*time.Minute), v)); tr != nil {
			t.Fatalf("expected no transition, got %s at step %d", tr.Kind, i)
		}
	}
	if state.Active() {
		t.Fatalf("expected inactive state")
	}
}

func TestStepDipResetsDebounce(t *testing.T) {
	state := &RuleState{}
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// 10 minutes breached, a single normal reading, then 10 more
	// breached minutes: the debounce clock restarts at the dip.
	for min := 0; min <= 10; min++ {
		if tr := Step(testRule, testParam, state, reading(start.Add(time.Duration(min)*time.Minute), 90)); tr != nil {
			t.Fatalf("unexpected transition %s at minute %d", tr.Kind, min)
		}
	}
	if tr := Step(testRule, testParam, state, reading(start.Add(11*time.Minute), 70)); tr != nil {
		t.Fatalf("unexpected transition %s at dip", tr.Kind)
	}
	for min := 12; min <= 22; min++ {
		if tr := Step(testRule, testParam, state, reading(start.Add(time.Duration(min)*time.Minute), 90)); tr != nil {
			t.Fatalf("unexpected transition %s at minute %d", tr.Kind, min)
		}
	}
	// 15 minutes after the dip the breach is long enough again.
	tr := Step(testRule, testParam, state, reading(start.Add(27*time.Minute), 90))
	if tr == nil || tr.Kind != TransitionFire {
		t.Fatalf("expected fire after rebuilt breach, got %+v", tr)
	}
}

func TestStepResolvesAfterRecovery(t *testing.T) {
	state := &RuleState{}
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for min := 0; min <= 15; min++ {
		Step(testRule, testParam, state, reading(start.Add(time.Duration(min)*time.Minute), 87))
	}
	if !state.Active() {
		t.Fatalf("expected active state after sustained breach")
	}
	// Back in the normal range, but recovery takes 10 minutes.
	var resolved *Transition
	for min := 16; min <= 26; min++ {
		tr := Step(testRule, testParam, state, reading(start.Add(time.Duration(min)*time.Minute), 80))
		if tr != nil && tr.Kind == TransitionResolve {
			resolved = tr
			if min != 26 {
				t.Fatalf("expected resolve at minute 26, got minute %d", min)
			}
		}
	}
	if resolved == nil {
		t.Fatalf("expected resolve transition")
	}
	if state.Active() {
		t.Fatalf("expected inactive state after resolve")
	}
}

func TestStepBelowThresholdAboveNormalBlocksResolve(t *testing.T) {
	state := &RuleState{}
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rule := testRule
	rule.Threshold = 90
	for min := 0; min <= 15; min++ {
		Step(rule, testParam, state, reading(start.Add(time.Duration(min)*time.Minute), 95))
	}
	if !state.Active() {
		t.Fatalf("expected active state")
	}
	// 87 no longer holds the condition but sits above the normal max,
	// so the recovery clock never starts.
	for min := 16; min <= 40; min++ {
		if tr := Step(rule, testParam, state, reading(start.Add(time.Duration(min)*time.Minute), 87)); tr != nil {
			t.Fatalf("unexpected transition %s at minute %d", tr.Kind, min)
		}
	}
	if !state.Active() {
		t.Fatalf("expected event to stay active outside normal range")
	}
}

func TestStepDropsOutOfOrderReadings(t *testing.T) {
	state := &RuleState{}
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	Step(testRule, testParam, state, reading(start.Add(10*time.Minute), 87))
	if tr := Step(testRule, testParam, state, reading(start, 87)); tr != nil {
		t.Fatalf("expected out-of-order reading to be dropped")
	}
	if state.lastValue != 87 {
		t.Fatalf("expected last value 87, got %v", state.lastValue)
	}
}

func TestStepPercentConditions(t *testing.T) {
	rule := testRule
	rule.Condition = CondAboveNormalPercent
	rule.Threshold = 10
	rule.MinDurationMin = 0
	state := &RuleState{}
	ts := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// Normal max 85, so the limit is 93.5.
	if tr := Step(rule, testParam, state, reading(ts, 93)); tr != nil {
		t.Fatalf("expected 93 below the percent limit")
	}
	tr := Step(rule, testParam, state, reading(ts.Add(time.Minute), 94))
	if tr == nil || tr.Kind != TransitionFire {
		t.Fatalf("expected fire at 94, got %+v", tr)
	}
}

func TestStepMarkResolvedAllowsRefire(t *testing.T) {
	state := &RuleState{}
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for min := 0; min <= 15; min++ {
		Step(testRule, testParam, state, reading(start.Add(time.Duration(min)*time.Minute), 87))
	}
	if !state.Active() {
		t.Fatalf("expected active state")
	}
	state.MarkResolved()
	// A fresh sustained breach fires a second time.
	var fired bool
	for min := 16; min <= 40; min++ {
		tr := Step(testRule, testParam, state, reading(start.Add(time.Duration(min)*time.Minute), 88))
		if tr != nil && tr.Kind == TransitionFire {
			fired = true
		}
	}
	if !fired {
		t.Fatalf("expected refire after operator resolve")
	}
}

func TestValidateRule(t *testing.T) {
	bad := testRule
	bad.EvalWindowMin = 5
	if err := ValidateRule(bad, testParam); err == nil {
		t.Fatalf("expected window shorter than min duration to fail")
	}
	bad = testRule
	bad.Severity = "URGENT"
	if err := ValidateRule(bad, testParam); err == nil {
		t.Fatalf("expected unknown severity to fail")
	}
	if err := ValidateRule(testRule, testParam); err != nil {
		t.Fatalf("expected valid rule, got %v", err)
	}
}

func TestValidateParameter(t *testing.T) {
	bad := testParam
	bad.CriticalMax = 80
	err := ValidateParameter(bad)
	if err == nil {
		t.Fatalf("expected critical range not containing normal range to fail")
	}
	if err.Code != "PARAMETER_INVALID" {
		t.Fatalf("expected PARAMETER_INVALID, got %s", err.Code)
	}
}
