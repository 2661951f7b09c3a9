package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cmms-backend/services/adaptation-service/internal/engine"
	"cmms-backend/services/adaptation-service/internal/fmea"
	"cmms-backend/services/adaptation-service/internal/storage"
)

const (
	TypeScheduled   = "SCHEDULED"
	TypeTriggered   = "TRIGGERED"
	TypeEventDriven = "EVENT_DRIVEN"
)

const (
	StatusDraft       = "DRAFT"
	StatusInProgress  = "IN_PROGRESS"
	StatusUnderReview = "UNDER_REVIEW"
	StatusCompleted   = "COMPLETED"
)

const (
	ApprovalPending  = "PENDING"
	ApprovalApproved = "APPROVED"
	ApprovalRejected = "REJECTED"
)

type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Store is the persistence surface the orchestrator needs. Satisfied
// by *storage.Repository and *storage.Memory.
type Store interface {
	CreateReview(ctx context.Context, rec storage.ReviewRecord) (storage.ReviewRecord, error)
	CreateTriggeredReview(ctx context.Context, rec storage.ReviewRecord) (storage.ReviewRecord, bool, error)
	GetReview(ctx context.Context, id string) (storage.ReviewRecord, error)
	UpdateReview(ctx context.Context, rec storage.ReviewRecord) (storage.ReviewRecord, error)
	AddAssessment(ctx context.Context, rec storage.AssessmentRecord) (storage.AssessmentRecord, error)
	ListAssessments(ctx context.Context, reviewID string) ([]storage.AssessmentRecord, error)
	GetFailureMode(ctx context.Context, id string) (storage.FailureModeRecord, error)
}

// ScoredAssessment pairs an assessment with its recomputed RPN and
// urgency band at approval time.
type ScoredAssessment struct {
	Assessment  storage.AssessmentRecord
	FailureMode storage.FailureModeRecord
	RPN         int
	Urgency     string
}

// Generator produces strategy recommendations for an approved review.
type Generator interface {
	GenerateForReview(ctx context.Context, rec storage.ReviewRecord, scored []ScoredAssessment) ([]storage.RecommendationRecord, error)
}

type Publisher interface {
	Publish(subject string, payload any) error
}

type Orchestrator struct {
	Store      Store
	Gen        Generator
	Bus        Publisher
	AutoReview func(systemID string) bool
	Logger     *slog.Logger
}

// CreateScheduled always creates a fresh review; scheduled creation
// carries no idempotency constraint.
func (o *Orchestrator) CreateScheduled(ctx context.Context, systemID, leader string) (storage.ReviewRecord, error) {
	return o.create(ctx, systemID, leader, TypeScheduled)
}

func (o *Orchestrator) CreateEventDriven(ctx context.Context, systemID, leader string) (storage.ReviewRecord, error) {
	return o.create(ctx, systemID, leader, TypeEventDriven)
}

func (o *Orchestrator) create(ctx context.Context, systemID, leader, reviewType string) (storage.ReviewRecord, error) {
	if systemID == "" {
		return storage.ReviewRecord{}, &ValidationError{Code: "SYSTEM_REQUIRED", Message: "system id is required"}
	}
	rec, err := o.Store.CreateReview(ctx, storage.ReviewRecord{
		SystemID: systemID,
		Type:     reviewType,
		Status:   StatusDraft,
		Leader:   leader,
	})
	if err != nil {
		return storage.ReviewRecord{}, err
	}
	o.publish("review.created", map[string]any{"review_id": rec.ID, "system_id": rec.SystemID, "type": rec.Type})
	return rec, nil
}

// EnsureTriggered creates a TRIGGERED review for a qualifying trigger
// event, idempotently per trigger-event id. Events below HIGH severity
// or on systems without automatic review are ignored.
func (o *Orchestrator) EnsureTriggered(ctx context.Context, evt storage.TriggerEventRecord) (storage.ReviewRecord, bool, error) {
	if engine.SeverityRank(evt.Severity) < engine.SeverityRank(engine.SeverityHigh) {
		return storage.ReviewRecord{}, false, nil
	}
	if o.AutoReview != nil && !o.AutoReview(evt.SystemID) {
		return storage.ReviewRecord{}, false, nil
	}
	triggerID := evt.ID
	rec, created, err := o.Store.CreateTriggeredReview(ctx, storage.ReviewRecord{
		SystemID:       evt.SystemID,
		TriggerEventID: &triggerID,
	})
	if err != nil {
		return storage.ReviewRecord{}, false, err
	}
	if created {
		o.publish("review.created", map[string]any{"review_id": rec.ID, "system_id": rec.SystemID, "type": rec.Type})
		o.Logger.Info("triggered review created",
			slog.String("review", rec.ID),
			slog.String("trigger_event", triggerID),
			slog.String("system", evt.SystemID))
	}
	return rec, created, nil
}

// AddAssessment validates the S/O/D scores, derives the RPN and the
// score_changed flag against the failure mode baseline, and attaches
// the assessment. Adding the first assessment moves a DRAFT review to
// IN_PROGRESS.
func (o *Orchestrator) AddAssessment(ctx context.Context, reviewID, failureModeID string, scores fmea.Scores, justification string) (storage.AssessmentRecord, error) {
	rec, err := o.Store.GetReview(ctx, reviewID)
	if err != nil {
		return storage.AssessmentRecord{}, err
	}
	if rec.Status == StatusCompleted {
		return storage.AssessmentRecord{}, &ValidationError{Code: "REVIEW_COMPLETED", Message: "completed reviews are immutable"}
	}
	mode, err := o.Store.GetFailureMode(ctx, failureModeID)
	if err != nil {
		return storage.AssessmentRecord{}, &ValidationError{Code: "FAILURE_MODE_NOT_FOUND", Message: "unknown failure mode"}
	}
	rpn, err := fmea.RPN(scores)
	if err != nil {
		return storage.AssessmentRecord{}, &ValidationError{Code: "SCORE_OUT_OF_RANGE", Message: err.Error()}
	}
	changed := rpn != mode.BaselineRPN
	if changed && justification == "" {
		return storage.AssessmentRecord{}, &ValidationError{Code: "JUSTIFICATION_REQUIRED", Message: "changed scores require a justification"}
	}
	assessment, err := o.Store.AddAssessment(ctx, storage.AssessmentRecord{
		ReviewID:      reviewID,
		FailureModeID: failureModeID,
		Severity:      scores.Severity,
		Occurrence:    scores.Occurrence,
		Detection:     scores.Detection,
		RPN:           rpn,
		ScoreChanged:  changed,
		Justification: justification,
	})
	if err != nil {
		return storage.AssessmentRecord{}, err
	}
	if rec.Status == StatusDraft {
		rec.Status = StatusInProgress
		if _, err := o.Store.UpdateReview(ctx, rec); err != nil {
			return storage.AssessmentRecord{}, err
		}
	}
	return assessment, nil
}

// Submit moves the review to UNDER_REVIEW. At least one assessment
// must be present.
func (o *Orchestrator) Submit(ctx context.Context, reviewID string) (storage.ReviewRecord, error) {
	rec, err := o.Store.GetReview(ctx, reviewID)
	if err != nil {
		return storage.ReviewRecord{}, err
	}
	if rec.Status != StatusDraft && rec.Status != StatusInProgress {
		return storage.ReviewRecord{}, &ValidationError{Code: "INVALID_STATE", Message: fmt.Sprintf("cannot submit from %s", rec.Status)}
	}
	assessments, err := o.Store.ListAssessments(ctx, reviewID)
	if err != nil {
		return storage.ReviewRecord{}, err
	}
	if len(assessments) == 0 {
		return storage.ReviewRecord{}, &ValidationError{Code: "NO_ASSESSMENTS", Message: "submission requires at least one failure mode assessment"}
	}
	rec.Status = StatusUnderReview
	return o.Store.UpdateReview(ctx, rec)
}

// Approve rescores every assessment with its latest values, generates
// recommendations for qualifying assessments, and only then marks the
// review COMPLETED/APPROVED. The initial version-checked claim update
// serializes racing approve/reject callers before any recommendation
// is written.
func (o *Orchestrator) Approve(ctx context.Context, reviewID, approver string) (storage.ReviewRecord, []storage.RecommendationRecord, error) {
	rec, err := o.Store.GetReview(ctx, reviewID)
	if err != nil {
		return storage.ReviewRecord{}, nil, err
	}
	if rec.Status != StatusUnderReview {
		return storage.ReviewRecord{}, nil, &ValidationError{Code: "INVALID_STATE", Message: fmt.Sprintf("cannot approve from %s", rec.Status)}
	}
	rec, err = o.Store.UpdateReview(ctx, rec)
	if err != nil {
		return storage.ReviewRecord{}, nil, err
	}
	scored, err := o.scoreAssessments(ctx, reviewID)
	if err != nil {
		return storage.ReviewRecord{}, nil, err
	}
	var recommendations []storage.RecommendationRecord
	if o.Gen != nil {
		recommendations, err = o.Gen.GenerateForReview(ctx, rec, scored)
		if err != nil {
			return storage.ReviewRecord{}, nil, err
		}
	}
	now := time.Now().UTC()
	rec.Status = StatusCompleted
	rec.ApprovalStatus = ApprovalApproved
	rec.DecidedBy = approver
	rec.CompletedAt = &now
	out, err := o.Store.UpdateReview(ctx, rec)
	if err != nil {
		return storage.ReviewRecord{}, nil, err
	}
	for _, r := range recommendations {
		o.publish("recommendation.created", map[string]any{
			"recommendation_id": r.ID,
			"strategy_id":       r.StrategyID,
			"action":            r.Action,
			"auto_apply":        r.AutoApply,
		})
	}
	o.Logger.Info("review approved",
		slog.String("review", out.ID),
		slog.Int("recommendations", len(recommendations)))
	return out, recommendations, nil
}

// Reject cancels the review at any point before completion; no
// recommendations are generated.
func (o *Orchestrator) Reject(ctx context.Context, reviewID, decidedBy, note string) (storage.ReviewRecord, error) {
	rec, err := o.Store.GetReview(ctx, reviewID)
	if err != nil {
		return storage.ReviewRecord{}, err
	}
	if rec.Status == StatusCompleted {
		return storage.ReviewRecord{}, &ValidationError{Code: "INVALID_STATE", Message: "review already completed"}
	}
	now := time.Now().UTC()
	rec.Status = StatusCompleted
	rec.ApprovalStatus = ApprovalRejected
	rec.DecidedBy = decidedBy
	rec.DecisionNote = note
	rec.CompletedAt = &now
	return o.Store.UpdateReview(ctx, rec)
}

// Reopen moves a rejected review back to DRAFT, the only backward
// transition in the lifecycle. Assessments are retained.
func (o *Orchestrator) Reopen(ctx context.Context, reviewID string) (storage.ReviewRecord, error) {
	rec, err := o.Store.GetReview(ctx, reviewID)
	if err != nil {
		return storage.ReviewRecord{}, err
	}
	if rec.Status != StatusCompleted || rec.ApprovalStatus != ApprovalRejected {
		return storage.ReviewRecord{}, &ValidationError{Code: "INVALID_STATE", Message: "only rejected reviews can be reopened"}
	}
	rec.Status = StatusDraft
	rec.ApprovalStatus = ApprovalPending
	rec.CompletedAt = nil
	rec.DecidedBy = ""
	rec.DecisionNote = ""
	return o.Store.UpdateReview(ctx, rec)
}

func (o *Orchestrator) scoreAssessments(ctx context.Context, reviewID string) ([]ScoredAssessment, error) {
	assessments, err := o.Store.ListAssessments(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	scored := make([]ScoredAssessment, 0, len(assessments))
	for _, a := range assessments {
		rpn, err := fmea.RPN(fmea.Scores{Severity: a.Severity, Occurrence: a.Occurrence, Detection: a.Detection})
		if err != nil {
			return nil, err
		}
		mode, err := o.Store.GetFailureMode(ctx, a.FailureModeID)
		if err != nil {
			return nil, err
		}
		scored = append(scored, ScoredAssessment{
			Assessment:  a,
			FailureMode: mode,
			RPN:         rpn,
			Urgency:     fmea.Urgency(rpn),
		})
	}
	return scored, nil
}

func (o *Orchestrator) publish(subject string, payload any) {
	if o.Bus == nil {
		return
	}
	if err := o.Bus.Publish(subject, payload); err != nil {
		o.Logger.Warn("publish failed", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
