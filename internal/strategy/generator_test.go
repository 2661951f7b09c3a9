package strategy

import (
	"context"
	"testing"
	"time"

	"cmms-backend/services/adaptation-service/internal/engine"
	"cmms-backend/services/adaptation-service/internal/fmea"
	"cmms-backend/services/adaptation-service/internal/review"
	"cmms-backend/services/adaptation-service/internal/storage"
)

func newGenerator(mem *storage.Memory, mappings map[string]Mapping) *Generator {
	return &Generator{Store: mem, Mappings: mappings, Logger: testLogger()}
}

func limitEvent(id, ruleID, severity string) storage.TriggerEventRecord {
	return storage.TriggerEventRecord{
		ID:            id,
		RuleID:        ruleID,
		ParameterID:   "TI-101-01",
		SystemID:      "SYS-REACTOR-1",
		State:         engine.EventActive,
		Severity:      severity,
		TriggerType:   engine.TriggerLimitExceeded,
		FirstBreachAt: time.Now().UTC(),
	}
}

func TestGenerateForTrigger(t *testing.T) {
	mem := storage.NewMemory()
	gen := newGenerator(mem, map[string]Mapping{
		"rule-1": {RuleID: "rule-1", StrategyID: "STRAT-1", EquipmentID: "EQ-P-101", AutoApply: true},
	})
	ctx := context.Background()

	rec, err := gen.GenerateForTrigger(ctx, limitEvent("evt-1", "rule-1", engine.SeverityHigh))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected a recommendation")
	}
	if rec.Action != ActionIncreaseFrequency {
		t.Fatalf("expected INCREASE_FREQUENCY, got %s", rec.Action)
	}
	if rec.Urgency != fmea.UrgencyHigh {
		t.Fatalf("expected HIGH urgency, got %s", rec.Urgency)
	}
	if !rec.AutoApply {
		t.Fatalf("expected auto-apply from the mapping")
	}
	if rec.Magnitude == nil || *rec.Magnitude != 25 {
		t.Fatalf("expected default 25%% magnitude, got %v", rec.Magnitude)
	}
	if rec.OriginKey != "trigger:evt-1" {
		t.Fatalf("unexpected origin key %s", rec.OriginKey)
	}
}

func TestGenerateForTriggerIsIdempotent(t *testing.T) {
	mem := storage.NewMemory()
	gen := newGenerator(mem, map[string]Mapping{
		"rule-1": {RuleID: "rule-1", StrategyID: "STRAT-1"},
	})
	ctx := context.Background()

	first, err := gen.GenerateForTrigger(ctx, limitEvent("evt-1", "rule-1", engine.SeverityHigh))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := gen.GenerateForTrigger(ctx, limitEvent("evt-1", "rule-1", engine.SeverityHigh))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected one recommendation per trigger, got %s and %s", first.ID, second.ID)
	}
	recs, _ := mem.ListRecommendations(ctx, storage.RecommendationFilter{})
	if len(recs) != 1 {
		t.Fatalf("expected one stored recommendation, got %d", len(recs))
	}
}

func TestGenerateForTriggerUnmappedRule(t *testing.T) {
	mem := storage.NewMemory()
	gen := newGenerator(mem, map[string]Mapping{})
	rec, err := gen.GenerateForTrigger(context.Background(), limitEvent("evt-1", "rule-x", engine.SeverityHigh))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no recommendation for an unmapped rule")
	}
}

func TestGenerateForTriggerCriticalNeverAutoApplies(t *testing.T) {
	mem := storage.NewMemory()
	gen := newGenerator(mem, map[string]Mapping{
		"rule-1": {RuleID: "rule-1", StrategyID: "STRAT-1", AutoApply: true},
	})
	rec, err := gen.GenerateForTrigger(context.Background(), limitEvent("evt-1", "rule-1", engine.SeverityCritical))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Urgency != fmea.UrgencyImmediate {
		t.Fatalf("expected IMMEDIATE urgency, got %s", rec.Urgency)
	}
	if rec.AutoApply {
		t.Fatalf("IMMEDIATE recommendations must wait for a human")
	}
}

func TestGenerateForTriggerLowSeverityDeviation(t *testing.T) {
	mem := storage.NewMemory()
	gen := newGenerator(mem, map[string]Mapping{
		"rule-1": {RuleID: "rule-1", StrategyID: "STRAT-1", AutoApply: true},
	})
	evt := limitEvent("evt-1", "rule-1", engine.SeverityLow)
	evt.TriggerType = engine.TriggerDeviation
	rec, err := gen.GenerateForTrigger(context.Background(), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Action != ActionDecreaseFrequency {
		t.Fatalf("expected DECREASE_FREQUENCY, got %s", rec.Action)
	}
	if rec.AutoApply {
		t.Fatalf("frequency decreases must never auto-apply")
	}
}

func scoredAssessment(modeID, strategyID string, rpn int) review.ScoredAssessment {
	return review.ScoredAssessment{
		Assessment:  storage.AssessmentRecord{FailureModeID: modeID, RPN: rpn},
		FailureMode: storage.FailureModeRecord{ID: modeID, StrategyID: strategyID, EquipmentID: "EQ-P-101"},
		RPN:         rpn,
		Urgency:     fmea.Urgency(rpn),
	}
}

func TestGenerateForReviewFiltersByUrgency(t *testing.T) {
	mem := storage.NewMemory()
	gen := newGenerator(mem, nil)
	ctx := context.Background()

	rev, err := mem.CreateReview(ctx, storage.ReviewRecord{SystemID: "SYS-REACTOR-1", Type: "SCHEDULED", Status: "UNDER_REVIEW"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	recs, err := gen.GenerateForReview(ctx, rev, []review.ScoredAssessment{
		scoredAssessment("FM-1", "STRAT-1", 210), // IMMEDIATE
		scoredAssessment("FM-2", "STRAT-2", 90),  // MEDIUM
		scoredAssessment("FM-3", "STRAT-3", 40),  // LOW, filtered out
		scoredAssessment("FM-4", "", 150),        // no strategy, skipped
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 recommendations, got %d", len(recs))
	}
	byStrategy := map[string]storage.RecommendationRecord{}
	for _, r := range recs {
		byStrategy[r.StrategyID] = r
	}
	if r := byStrategy["STRAT-1"]; r.Action != ActionIncreaseFrequency || r.Magnitude == nil {
		t.Fatalf("expected frequency increase for IMMEDIATE, got %+v", r)
	}
	if r := byStrategy["STRAT-2"]; r.Action != ActionAddMonitoring {
		t.Fatalf("expected monitoring for MEDIUM, got %+v", r)
	}
	for _, r := range recs {
		if r.ReviewID == nil || *r.ReviewID != rev.ID {
			t.Fatalf("expected review origin on %+v", r)
		}
		if r.AutoApply {
			t.Fatalf("scheduled review output must not auto-apply")
		}
	}
}

func TestGenerateForReviewDedupesSharedStrategy(t *testing.T) {
	mem := storage.NewMemory()
	gen := newGenerator(mem, nil)
	ctx := context.Background()

	rev, err := mem.CreateReview(ctx, storage.ReviewRecord{SystemID: "SYS-REACTOR-1", Type: "SCHEDULED", Status: "UNDER_REVIEW"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Two failure modes maintained by the same strategy collapse to a
	// single recommendation, reported once.
	recs, err := gen.GenerateForReview(ctx, rev, []review.ScoredAssessment{
		scoredAssessment("FM-1", "STRAT-1", 210),
		scoredAssessment("FM-2", "STRAT-1", 168),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one recommendation for the shared strategy, got %d", len(recs))
	}
	stored, err := mem.ListRecommendations(ctx, storage.RecommendationFilter{ReviewID: rev.ID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected one stored recommendation, got %d", len(stored))
	}

	// Re-running generation for the same review reports nothing new.
	again, err := gen.GenerateForReview(ctx, rev, []review.ScoredAssessment{
		scoredAssessment("FM-1", "STRAT-1", 210),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no new recommendations on rerun, got %d", len(again))
	}
}
