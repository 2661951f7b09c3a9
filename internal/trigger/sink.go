// Package trigger persists evaluator transitions as trigger events and
// announces lifecycle changes on the bus.
package trigger

import (
	"context"
	"log/slog"
	"time"

	"cmms-backend/services/adaptation-service/internal/engine"
	"cmms-backend/services/adaptation-service/internal/storage"
)

type Store interface {
	UpsertActiveEvent(ctx context.Context, rec storage.TriggerEventRecord) (storage.TriggerEventRecord, bool, error)
	RefreshEvent(ctx context.Context, ruleID string, value float64, at time.Time) error
	ResolveEventByRule(ctx context.Context, ruleID string, at time.Time, value float64) (storage.TriggerEventRecord, error)
	GetParameter(ctx context.Context, id string) (storage.ParameterRecord, error)
}

type Publisher interface {
	Publish(subject string, payload any) error
}

// EventSink implements engine.Sink against the trigger event store.
// FIRE upserts under the one-unresolved-event-per-rule constraint, so
// a re-breach during an open event only refreshes it. Downstream work
// (reviews, recommendations) hangs off the trigger.created message,
// not off this sink.
type EventSink struct {
	Store  Store
	Bus    Publisher
	Logger *slog.Logger
}

func (s *EventSink) Apply(ctx context.Context, rule engine.Rule, tr engine.Transition) {
	switch tr.Kind {
	case engine.TransitionFire:
		s.fire(ctx, rule, tr)
	case engine.TransitionRefresh:
		if err := s.Store.RefreshEvent(ctx, rule.ID, tr.Value, tr.At); err != nil {
			s.Logger.Error("refresh trigger event failed",
				slog.String("rule", rule.ID),
				slog.String("error", err.Error()))
		}
	case engine.TransitionResolve:
		evt, err := s.Store.ResolveEventByRule(ctx, rule.ID, tr.At, tr.Value)
		if err != nil {
			s.Logger.Error("resolve trigger event failed",
				slog.String("rule", rule.ID),
				slog.String("error", err.Error()))
			return
		}
		s.publish("trigger.resolved", map[string]any{"event_id": evt.ID, "rule_id": rule.ID, "parameter_id": evt.ParameterID})
		s.Logger.Info("trigger event resolved",
			slog.String("event", evt.ID),
			slog.String("rule", rule.ID))
	}
}

func (s *EventSink) fire(ctx context.Context, rule engine.Rule, tr engine.Transition) {
	systemID := ""
	if param, err := s.Store.GetParameter(ctx, tr.ParameterID); err == nil {
		systemID = param.SystemID
	}
	evt, created, err := s.Store.UpsertActiveEvent(ctx, storage.TriggerEventRecord{
		RuleID:        rule.ID,
		ParameterID:   tr.ParameterID,
		SystemID:      systemID,
		Severity:      rule.Severity,
		TriggerType:   rule.TriggerType,
		TriggerValue:  tr.Value,
		LimitExpr:     tr.LimitExpr,
		FirstBreachAt: tr.At,
	})
	if err != nil {
		s.Logger.Error("create trigger event failed",
			slog.String("rule", rule.ID),
			slog.String("error", err.Error()))
		return
	}
	if !created {
		return
	}
	s.publish("trigger.created", map[string]any{
		"event_id":     evt.ID,
		"rule_id":      rule.ID,
		"parameter_id": tr.ParameterID,
		"severity":     rule.Severity,
	})
	s.Logger.Info("trigger event created",
		slog.String("event", evt.ID),
		slog.String("rule", rule.ID),
		slog.String("parameter", tr.ParameterID),
		slog.String("severity", rule.Severity))
}

func (s *EventSink) publish(subject string, payload any) {
	if s.Bus == nil {
		return
	}
	if err := s.Bus.Publish(subject, payload); err != nil {
		s.Logger.Warn("publish failed", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
