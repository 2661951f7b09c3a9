package trigger

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"cmms-backend/services/adaptation-service/internal/engine"
	"cmms-backend/services/adaptation-service/internal/storage"
)

type recordingPublisher struct {
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, payload any) error {
	p.subjects = append(p.subjects, subject)
	return nil
}

func setupSink(t *testing.T) (*EventSink, *storage.Memory, *recordingPublisher) {
	t.Helper()
	mem := storage.NewMemory()
	mem.SeedParameter(storage.ParameterRecord{
		ID:        "TI-101-01",
		SystemID:  "SYS-REACTOR-1",
		Name:      "Reactor inlet temperature",
		NormalMin: 40, NormalMax: 85,
		CriticalMin: 0, CriticalMax: 120,
	})
	pub := &recordingPublisher{}
	sink := &EventSink{
		Store:  mem,
		Bus:    pub,
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	}
	return sink, mem, pub
}

var sinkRule = engine.Rule{
	ID:          "rule-1",
	ParameterID: "TI-101-01",
	Severity:    engine.SeverityHigh,
	TriggerType: engine.TriggerLimitExceeded,
	Enabled:     true,
}

func transition(kind string, value float64, at time.Time) engine.Transition {
	return engine.Transition{
		Kind:        kind,
		RuleID:      sinkRule.ID,
		ParameterID: sinkRule.ParameterID,
		Value:       value,
		At:          at,
		LimitExpr:   "> 85",
	}
}

func TestSinkFirePublishesOncePerOpenEvent(t *testing.T) {
	sink, mem, pub := setupSink(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	sink.Apply(ctx, sinkRule, transition(engine.TransitionFire, 92, at))
	events, err := mem.ListTriggerEvents(ctx, storage.TriggerEventFilter{State: engine.EventActive})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one active event, got %d", len(events))
	}
	evt := events[0]
	if evt.SystemID != "SYS-REACTOR-1" || evt.TriggerValue != 92 || evt.Severity != engine.SeverityHigh {
		t.Fatalf("unexpected event %+v", evt)
	}
	if len(pub.subjects) != 1 || pub.subjects[0] != "trigger.created" {
		t.Fatalf("expected one trigger.created publish, got %v", pub.subjects)
	}

	// A second fire while the event is still open refreshes it and
	// stays silent on the bus.
	sink.Apply(ctx, sinkRule, transition(engine.TransitionFire, 95, at.Add(time.Minute)))
	events, _ = mem.ListTriggerEvents(ctx, storage.TriggerEventFilter{State: engine.EventActive})
	if len(events) != 1 {
		t.Fatalf("expected the open event to absorb the re-fire, got %d", len(events))
	}
	if events[0].LastValue != 95 {
		t.Fatalf("expected last value 95, got %v", events[0].LastValue)
	}
	if len(pub.subjects) != 1 {
		t.Fatalf("expected no extra publish on re-fire, got %v", pub.subjects)
	}
}

func TestSinkRefreshUpdatesWithoutPublishing(t *testing.T) {
	sink, mem, pub := setupSink(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	sink.Apply(ctx, sinkRule, transition(engine.TransitionFire, 92, at))
	sink.Apply(ctx, sinkRule, transition(engine.TransitionRefresh, 97, at.Add(2*time.Minute)))

	events, _ := mem.ListTriggerEvents(ctx, storage.TriggerEventFilter{State: engine.EventActive})
	if len(events) != 1 || events[0].LastValue != 97 {
		t.Fatalf("expected refreshed event with last value 97, got %+v", events)
	}
	if len(pub.subjects) != 1 {
		t.Fatalf("expected refresh to stay off the bus, got %v", pub.subjects)
	}
}

func TestSinkResolveClosesEventAndPublishes(t *testing.T) {
	sink, mem, pub := setupSink(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)

	sink.Apply(ctx, sinkRule, transition(engine.TransitionFire, 92, at))
	sink.Apply(ctx, sinkRule, transition(engine.TransitionResolve, 70, at.Add(30*time.Minute)))

	events, _ := mem.ListTriggerEvents(ctx, storage.TriggerEventFilter{State: engine.EventResolved})
	if len(events) != 1 {
		t.Fatalf("expected one resolved event, got %d", len(events))
	}
	if events[0].ResolvedAt == nil || events[0].LastValue != 70 {
		t.Fatalf("unexpected resolved event %+v", events[0])
	}
	want := []string{"trigger.created", "trigger.resolved"}
	if len(pub.subjects) != 2 || pub.subjects[0] != want[0] || pub.subjects[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, pub.subjects)
	}

	// Resolving again with nothing open logs and publishes nothing.
	sink.Apply(ctx, sinkRule, transition(engine.TransitionResolve, 70, at.Add(40*time.Minute)))
	if len(pub.subjects) != 2 {
		t.Fatalf("expected no publish without an open event, got %v", pub.subjects)
	}
}
