package storage

import (
	"context"
	"testing"
	"time"
)

func TestMemoryOneUnresolvedEventPerRule(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	first, created, err := mem.UpsertActiveEvent(ctx, TriggerEventRecord{RuleID: "rule-1", ParameterID: "TI-101-01", TriggerValue: 92, FirstBreachAt: at})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || first.State != "ACTIVE" {
		t.Fatalf("expected fresh ACTIVE event, got created=%v state=%s", created, first.State)
	}

	second, created, err := mem.UpsertActiveEvent(ctx, TriggerEventRecord{RuleID: "rule-1", ParameterID: "TI-101-01", TriggerValue: 95, FirstBreachAt: at.Add(time.Minute)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created || second.ID != first.ID {
		t.Fatalf("expected upsert onto the open event, got created=%v id=%s", created, second.ID)
	}
	if second.LastValue != 95 {
		t.Fatalf("expected refreshed last value, got %v", second.LastValue)
	}

	if _, err := mem.ResolveEventByRule(ctx, "rule-1", at.Add(time.Hour), 80); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, created, err = mem.UpsertActiveEvent(ctx, TriggerEventRecord{RuleID: "rule-1", ParameterID: "TI-101-01", TriggerValue: 97, FirstBreachAt: at.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatalf("expected a new event after resolution")
	}
}

func TestMemoryReviewVersionConflict(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	rec, err := mem.CreateReview(ctx, ReviewRecord{SystemID: "SYS-REACTOR-1", Type: "SCHEDULED", Status: "DRAFT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stale := rec
	rec.Status = "IN_PROGRESS"
	if _, err := mem.UpdateReview(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stale.Status = "COMPLETED"
	if _, err := mem.UpdateReview(ctx, stale); err != ErrConflict {
		t.Fatalf("expected ErrConflict for stale version, got %v", err)
	}
}

func TestMemoryRecommendationOriginKey(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	first, created, err := mem.CreateRecommendation(ctx, RecommendationRecord{OriginKey: "trigger:evt-1", StrategyID: "STRAT-1", Action: "ADD_MONITORING"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || first.Status != "PENDING" {
		t.Fatalf("expected fresh PENDING recommendation, got created=%v status=%s", created, first.Status)
	}
	dup, created, err := mem.CreateRecommendation(ctx, RecommendationRecord{OriginKey: "trigger:evt-1", StrategyID: "STRAT-1", Action: "ADD_MONITORING"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created || dup.ID != first.ID {
		t.Fatalf("expected dedupe on (origin, strategy), got created=%v", created)
	}
	other, created, err := mem.CreateRecommendation(ctx, RecommendationRecord{OriginKey: "trigger:evt-1", StrategyID: "STRAT-2", Action: "ADD_MONITORING"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || other.ID == first.ID {
		t.Fatalf("expected a distinct recommendation for another strategy")
	}
}

func TestMemoryTransitionRecommendation(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	rec, _, err := mem.CreateRecommendation(ctx, RecommendationRecord{OriginKey: "trigger:evt-1", StrategyID: "STRAT-1", Action: "ADD_MONITORING"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mem.TransitionRecommendation(ctx, rec.ID, []string{"PENDING", "FAILED"}, "APPLYING", "", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mem.TransitionRecommendation(ctx, rec.ID, []string{"PENDING", "FAILED"}, "APPLYING", "", nil); err != ErrConflict {
		t.Fatalf("expected ErrConflict on double claim, got %v", err)
	}
	now := time.Now().UTC()
	applied, err := mem.TransitionRecommendation(ctx, rec.ID, []string{"APPLYING"}, "APPLIED", "", &now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied.Status != "APPLIED" || applied.AppliedAt == nil {
		t.Fatalf("unexpected applied record %+v", applied)
	}
}
