package strategy

import (
	"context"
	"log/slog"
	"time"

	"cmms-backend/services/adaptation-service/internal/engine"
	"cmms-backend/services/adaptation-service/internal/fmea"
	"cmms-backend/services/adaptation-service/internal/review"
	"cmms-backend/services/adaptation-service/internal/storage"
)

const (
	ActionIncreaseFrequency = "INCREASE_FREQUENCY"
	ActionDecreaseFrequency = "DECREASE_FREQUENCY"
	ActionAddMonitoring     = "ADD_MONITORING"
	ActionModifyScope       = "MODIFY_SCOPE"
)

// Application statuses of a recommendation.
const (
	StatusPending  = "PENDING"
	StatusApplying = "APPLYING"
	StatusApplied  = "APPLIED"
	StatusFailed   = "FAILED"
)

const defaultIncreasePercent = 25.0

// Mapping binds a trigger rule to the maintenance strategy it should
// adapt. Owned by configuration.
type Mapping struct {
	RuleID      string
	StrategyID  string
	EquipmentID string
	AutoApply   bool
	Magnitude   *float64
}

type Store interface {
	CreateRecommendation(ctx context.Context, rec storage.RecommendationRecord) (storage.RecommendationRecord, bool, error)
	GetRecommendation(ctx context.Context, id string) (storage.RecommendationRecord, error)
	TransitionRecommendation(ctx context.Context, id string, from []string, to, lastError string, appliedAt *time.Time) (storage.RecommendationRecord, error)
	GetReview(ctx context.Context, id string) (storage.ReviewRecord, error)
	GetTriggerEvent(ctx context.Context, id string) (storage.TriggerEventRecord, error)
}

// Generator maps high-RPN assessments and rule-to-strategy mappings
// into proposed strategy changes, exactly one per (origin, target
// strategy) pair. Re-running generation for an origin is a no-op.
type Generator struct {
	Store    Store
	Mappings map[string]Mapping
	Logger   *slog.Logger
}

func (g *Generator) mappingForRule(ruleID string) (Mapping, bool) {
	m, ok := g.Mappings[ruleID]
	return m, ok
}

// GenerateForReview runs at approval time over the rescored
// assessments; only urgency MEDIUM and above produce recommendations.
func (g *Generator) GenerateForReview(ctx context.Context, rec storage.ReviewRecord, scored []review.ScoredAssessment) ([]storage.RecommendationRecord, error) {
	var out []storage.RecommendationRecord
	for _, s := range scored {
		if !fmea.Recommendable(s.Urgency) {
			continue
		}
		if s.FailureMode.StrategyID == "" {
			g.Logger.Warn("failure mode has no strategy, skipping",
				slog.String("failure_mode", s.FailureMode.ID))
			continue
		}
		action := ActionAddMonitoring
		var magnitude *float64
		if fmea.UrgencyRank(s.Urgency) >= fmea.UrgencyRank(fmea.UrgencyHigh) {
			action = ActionIncreaseFrequency
			pct := defaultIncreasePercent
			magnitude = &pct
		}
		autoApply := false
		if rec.TriggerEventID != nil && action == ActionIncreaseFrequency && s.Urgency != fmea.UrgencyImmediate {
			// A triggered review inherits the auto-apply flag of the
			// rule mapping that produced its trigger event.
			if m, ok := g.mappingForTrigger(ctx, *rec.TriggerEventID); ok {
				autoApply = m.AutoApply
				if m.Magnitude != nil {
					magnitude = m.Magnitude
				}
			}
		}
		reviewID := rec.ID
		created, isNew, err := g.Store.CreateRecommendation(ctx, storage.RecommendationRecord{
			ReviewID:    &reviewID,
			TriggerID:   rec.TriggerEventID,
			OriginKey:   "review:" + rec.ID,
			StrategyID:  s.FailureMode.StrategyID,
			EquipmentID: s.FailureMode.EquipmentID,
			Action:      action,
			Magnitude:   magnitude,
			Urgency:     s.Urgency,
			AutoApply:   autoApply,
		})
		if err != nil {
			return nil, err
		}
		// Two assessments targeting the same strategy dedupe to one
		// record; only the first sighting is reported, so the approval
		// path announces each recommendation once.
		if isNew {
			out = append(out, created)
		}
	}
	return out, nil
}

// GenerateForTrigger produces the mapping-driven recommendation for a
// confirmed trigger event, idempotently per (event, strategy).
func (g *Generator) GenerateForTrigger(ctx context.Context, evt storage.TriggerEventRecord) (*storage.RecommendationRecord, error) {
	m, ok := g.mappingForRule(evt.RuleID)
	if !ok {
		return nil, nil
	}
	urgency := urgencyForSeverity(evt.Severity)
	action := ActionAddMonitoring
	var magnitude *float64
	switch {
	case evt.TriggerType == engine.TriggerLimitExceeded:
		action = ActionIncreaseFrequency
		pct := defaultIncreasePercent
		if m.Magnitude != nil {
			pct = *m.Magnitude
		}
		magnitude = &pct
	case evt.Severity == engine.SeverityLow:
		// Sustained low-severity deviation: propose relaxing the
		// schedule, subject to human approval in all cases.
		action = ActionDecreaseFrequency
		pct := defaultIncreasePercent
		if m.Magnitude != nil {
			pct = *m.Magnitude
		}
		magnitude = &pct
	}
	autoApply := m.AutoApply && action == ActionIncreaseFrequency && urgency != fmea.UrgencyImmediate
	triggerID := evt.ID
	created, isNew, err := g.Store.CreateRecommendation(ctx, storage.RecommendationRecord{
		TriggerID:   &triggerID,
		OriginKey:   "trigger:" + evt.ID,
		StrategyID:  m.StrategyID,
		EquipmentID: m.EquipmentID,
		Action:      action,
		Magnitude:   magnitude,
		Urgency:     urgency,
		AutoApply:   autoApply,
	})
	if err != nil {
		return nil, err
	}
	if isNew {
		g.Logger.Info("recommendation generated from trigger",
			slog.String("recommendation", created.ID),
			slog.String("trigger_event", evt.ID),
			slog.String("action", action))
	}
	return &created, nil
}

func (g *Generator) mappingForTrigger(ctx context.Context, triggerEventID string) (Mapping, bool) {
	evt, err := g.Store.GetTriggerEvent(ctx, triggerEventID)
	if err != nil {
		return Mapping{}, false
	}
	return g.mappingForRule(evt.RuleID)
}

func urgencyForSeverity(severity string) string {
	switch severity {
	case engine.SeverityCritical:
		return fmea.UrgencyImmediate
	case engine.SeverityHigh:
		return fmea.UrgencyHigh
	case engine.SeverityMedium:
		return fmea.UrgencyMedium
	default:
		return fmea.UrgencyLow
	}
}
