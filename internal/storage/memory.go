package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-memory implementation of the repository surface. It
// keeps the same invariants as the Postgres schema (one unresolved
// event per rule, one triggered review per trigger event, optimistic
// review versions, write-once recommendations) and backs tests and the
// dry-run mode of the worker.
type Memory struct {
	mu              sync.Mutex
	parameters      map[string]ParameterRecord
	rules           map[string]TriggerRuleRecord
	failureModes    map[string]FailureModeRecord
	events          map[string]TriggerEventRecord
	reviews         map[string]ReviewRecord
	assessments     map[string][]AssessmentRecord
	recommendations map[string]RecommendationRecord
}

func NewMemory() *Memory {
	return &Memory{
		parameters:      map[string]ParameterRecord{},
		rules:           map[string]TriggerRuleRecord{},
		failureModes:    map[string]FailureModeRecord{},
		events:          map[string]TriggerEventRecord{},
		reviews:         map[string]ReviewRecord{},
		assessments:     map[string][]AssessmentRecord{},
		recommendations: map[string]RecommendationRecord{},
	}
}

func (m *Memory) SeedParameter(rec ParameterRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parameters[rec.ID] = rec
}

func (m *Memory) SeedRule(rec TriggerRuleRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[rec.ID] = rec
}

func (m *Memory) SeedFailureMode(rec FailureModeRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failureModes[rec.ID] = rec
}

func (m *Memory) ListParameters(ctx context.Context) ([]ParameterRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := make([]ParameterRecord, 0, len(m.parameters))
	for _, rec := range m.parameters {
		results = append(results, rec)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (m *Memory) GetParameter(ctx context.Context, id string) (ParameterRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.parameters[id]
	if !ok {
		return ParameterRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListRules(ctx context.Context) ([]TriggerRuleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := make([]TriggerRuleRecord, 0, len(m.rules))
	for _, rec := range m.rules {
		results = append(results, rec)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (m *Memory) GetRule(ctx context.Context, id string) (TriggerRuleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rules[id]
	if !ok {
		return TriggerRuleRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) GetFailureMode(ctx context.Context, id string) (FailureModeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.failureModes[id]
	if !ok {
		return FailureModeRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListFailureModes(ctx context.Context, systemID string) ([]FailureModeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := []FailureModeRecord{}
	for _, rec := range m.failureModes {
		if rec.SystemID == systemID {
			results = append(results, rec)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

func (m *Memory) UpsertActiveEvent(ctx context.Context, rec TriggerEventRecord) (TriggerEventRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.events {
		if existing.RuleID == rec.RuleID && existing.State != "RESOLVED" {
			existing.LastValue = rec.TriggerValue
			existing.LastSeenAt = rec.FirstBreachAt
			existing.UpdatedAt = time.Now().UTC()
			m.events[id] = existing
			return existing, false, nil
		}
	}
	now := time.Now().UTC()
	rec.ID = uuid.NewString()
	rec.State = "ACTIVE"
	rec.LastValue = rec.TriggerValue
	rec.LastSeenAt = rec.FirstBreachAt
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.events[rec.ID] = rec
	return rec, true, nil
}

func (m *Memory) RefreshEvent(ctx context.Context, ruleID string, value float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.events {
		if rec.RuleID == ruleID && rec.State != "RESOLVED" {
			rec.LastValue = value
			rec.LastSeenAt = at
			rec.UpdatedAt = time.Now().UTC()
			m.events[id] = rec
		}
	}
	return nil
}

func (m *Memory) ResolveEventByRule(ctx context.Context, ruleID string, at time.Time, value float64) (TriggerEventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range m.events {
		if rec.RuleID == ruleID && rec.State != "RESOLVED" {
			rec.State = "RESOLVED"
			rec.LastValue = value
			resolved := at
			rec.ResolvedAt = &resolved
			rec.UpdatedAt = time.Now().UTC()
			m.events[id] = rec
			return rec, nil
		}
	}
	return TriggerEventRecord{}, ErrNotFound
}

func (m *Memory) GetTriggerEvent(ctx context.Context, id string) (TriggerEventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.events[id]
	if !ok {
		return TriggerEventRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListTriggerEvents(ctx context.Context, filter TriggerEventFilter) ([]TriggerEventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := []TriggerEventRecord{}
	for _, rec := range m.events {
		if filter.State != "" && rec.State != filter.State {
			continue
		}
		if filter.Severity != "" && rec.Severity != filter.Severity {
			continue
		}
		if filter.SystemID != "" && rec.SystemID != filter.SystemID {
			continue
		}
		results = append(results, rec)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].FirstBreachAt.After(results[j].FirstBreachAt) })
	return results, nil
}

func (m *Memory) AcknowledgeEvent(ctx context.Context, id, by string, at time.Time) (TriggerEventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.events[id]
	if !ok {
		return TriggerEventRecord{}, ErrNotFound
	}
	if rec.State != "ACTIVE" {
		return TriggerEventRecord{}, ErrConflict
	}
	rec.State = "ACKNOWLEDGED"
	rec.AcknowledgedBy = by
	ackAt := at
	rec.AcknowledgedAt = &ackAt
	rec.UpdatedAt = time.Now().UTC()
	m.events[id] = rec
	return rec, nil
}

func (m *Memory) ResolveEvent(ctx context.Context, id string, at time.Time) (TriggerEventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.events[id]
	if !ok {
		return TriggerEventRecord{}, ErrNotFound
	}
	if rec.State == "RESOLVED" {
		return TriggerEventRecord{}, ErrConflict
	}
	rec.State = "RESOLVED"
	resolved := at
	rec.ResolvedAt = &resolved
	rec.UpdatedAt = time.Now().UTC()
	m.events[id] = rec
	return rec, nil
}

func (m *Memory) CreateReview(ctx context.Context, rec ReviewRecord) (ReviewRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	rec.ID = uuid.NewString()
	rec.ApprovalStatus = "PENDING"
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.reviews[rec.ID] = rec
	return rec, nil
}

func (m *Memory) CreateTriggeredReview(ctx context.Context, rec ReviewRecord) (ReviewRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.reviews {
		if existing.Type == "TRIGGERED" && existing.TriggerEventID != nil && rec.TriggerEventID != nil && *existing.TriggerEventID == *rec.TriggerEventID {
			return existing, false, nil
		}
	}
	now := time.Now().UTC()
	rec.ID = uuid.NewString()
	rec.Type = "TRIGGERED"
	rec.Status = "DRAFT"
	rec.ApprovalStatus = "PENDING"
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.reviews[rec.ID] = rec
	return rec, true, nil
}

func (m *Memory) GetReview(ctx context.Context, id string) (ReviewRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.reviews[id]
	if !ok {
		return ReviewRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListReviews(ctx context.Context, filter ReviewFilter) ([]ReviewRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := []ReviewRecord{}
	for _, rec := range m.reviews {
		if filter.SystemID != "" && rec.SystemID != filter.SystemID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		results = append(results, rec)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })
	return results, nil
}

func (m *Memory) UpdateReview(ctx context.Context, rec ReviewRecord) (ReviewRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.reviews[rec.ID]
	if !ok {
		return ReviewRecord{}, ErrNotFound
	}
	if existing.Version != rec.Version {
		return ReviewRecord{}, ErrConflict
	}
	existing.Status = rec.Status
	existing.ApprovalStatus = rec.ApprovalStatus
	existing.DecidedBy = rec.DecidedBy
	existing.DecisionNote = rec.DecisionNote
	existing.CompletedAt = rec.CompletedAt
	existing.Version++
	existing.UpdatedAt = time.Now().UTC()
	m.reviews[rec.ID] = existing
	return existing, nil
}

func (m *Memory) AddAssessment(ctx context.Context, rec AssessmentRecord) (AssessmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	rec.ID = uuid.NewString()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.assessments[rec.ReviewID] = append(m.assessments[rec.ReviewID], rec)
	return rec, nil
}

func (m *Memory) ListAssessments(ctx context.Context, reviewID string) ([]AssessmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AssessmentRecord, len(m.assessments[reviewID]))
	copy(out, m.assessments[reviewID])
	return out, nil
}

func (m *Memory) ListSystemRPNs(ctx context.Context, systemID string) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := []int{}
	for reviewID, recs := range m.assessments {
		review, ok := m.reviews[reviewID]
		if !ok || review.SystemID != systemID {
			continue
		}
		for _, rec := range recs {
			results = append(results, rec.RPN)
		}
	}
	return results, nil
}

func (m *Memory) CreateRecommendation(ctx context.Context, rec RecommendationRecord) (RecommendationRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.recommendations {
		if existing.OriginKey == rec.OriginKey && existing.StrategyID == rec.StrategyID {
			return existing, false, nil
		}
	}
	now := time.Now().UTC()
	rec.ID = uuid.NewString()
	rec.Status = "PENDING"
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.recommendations[rec.ID] = rec
	return rec, true, nil
}

func (m *Memory) GetRecommendation(ctx context.Context, id string) (RecommendationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recommendations[id]
	if !ok {
		return RecommendationRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ListRecommendations(ctx context.Context, filter RecommendationFilter) ([]RecommendationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := []RecommendationRecord{}
	for _, rec := range m.recommendations {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.ReviewID != "" && (rec.ReviewID == nil || *rec.ReviewID != filter.ReviewID) {
			continue
		}
		results = append(results, rec)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })
	return results, nil
}

func (m *Memory) TransitionRecommendation(ctx context.Context, id string, from []string, to, lastError string, appliedAt *time.Time) (RecommendationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recommendations[id]
	if !ok {
		return RecommendationRecord{}, ErrNotFound
	}
	allowed := false
	for _, s := range from {
		if rec.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return RecommendationRecord{}, ErrConflict
	}
	rec.Status = to
	rec.LastError = lastError
	if appliedAt != nil {
		rec.AppliedAt = appliedAt
	}
	rec.UpdatedAt = time.Now().UTC()
	m.recommendations[id] = rec
	return rec, nil
}

func (m *Memory) ListPendingAutoApply(ctx context.Context) ([]RecommendationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := []RecommendationRecord{}
	for _, rec := range m.recommendations {
		if rec.AutoApply && rec.Status == "PENDING" {
			results = append(results, rec)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.Before(results[j].CreatedAt) })
	return results, nil
}

func (m *Memory) ListStaleApplying(ctx context.Context, cutoff time.Time) ([]RecommendationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := []RecommendationRecord{}
	for _, rec := range m.recommendations {
		if rec.Status == "APPLYING" && rec.UpdatedAt.Before(cutoff) {
			results = append(results, rec)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.Before(results[j].CreatedAt) })
	return results, nil
}
