package storage

import (
	"context"

	"github.com/google/uuid"
)

func (r *Repository) CreateReview(ctx context.Context, rec ReviewRecord) (ReviewRecord, error) {
	rec.ID = uuid.NewString()
	rec.Version = 1
	row := r.Store.Pool.QueryRow(ctx, `
		INSERT INTO risk_reviews (id, system_id, type, status, approval_status, trigger_event_id, leader, version, created_at, updated_at)
		VALUES ($1,$2,$3,$4,'PENDING',$5,$6,1,now(),now())
		RETURNING created_at, updated_at`,
		rec.ID, rec.SystemID, rec.Type, rec.Status, rec.TriggerEventID, rec.Leader)
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return ReviewRecord{}, err
	}
	rec.ApprovalStatus = "PENDING"
	return rec, nil
}

// CreateTriggeredReview creates a TRIGGERED review for the trigger
// event, or returns the one that already references it. The partial
// unique index on trigger_event_id makes duplicate creation under
// concurrent callers resolve to a single row.
func (r *Repository) CreateTriggeredReview(ctx context.Context, rec ReviewRecord) (ReviewRecord, bool, error) {
	id := uuid.NewString()
	tag, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO risk_reviews (id, system_id, type, status, approval_status, trigger_event_id, leader, version, created_at, updated_at)
		VALUES ($1,$2,'TRIGGERED','DRAFT','PENDING',$3,$4,1,now(),now())
		ON CONFLICT (trigger_event_id) WHERE type='TRIGGERED' DO NOTHING`,
		id, rec.SystemID, rec.TriggerEventID, rec.Leader)
	if err != nil {
		return ReviewRecord{}, false, err
	}
	created := tag.RowsAffected() == 1
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT id, system_id, type, status, approval_status, trigger_event_id, leader, decided_by, decision_note, version, created_at, updated_at, completed_at
		FROM risk_reviews WHERE type='TRIGGERED' AND trigger_event_id=$1`, rec.TriggerEventID)
	out, err := scanReview(row)
	if err != nil {
		return ReviewRecord{}, false, err
	}
	return out, created, nil
}

func (r *Repository) GetReview(ctx context.Context, id string) (ReviewRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT id, system_id, type, status, approval_status, trigger_event_id, leader, decided_by, decision_note, version, created_at, updated_at, completed_at
		FROM risk_reviews WHERE id=$1`, id)
	return scanReview(row)
}

func (r *Repository) ListReviews(ctx context.Context, filter ReviewFilter) ([]ReviewRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, system_id, type, status, approval_status, trigger_event_id, leader, decided_by, decision_note, version, created_at, updated_at, completed_at
		FROM risk_reviews
		WHERE ($1='' OR system_id=$1) AND ($2='' OR status=$2)
		ORDER BY created_at DESC`,
		filter.SystemID, filter.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []ReviewRecord{}
	for rows.Next() {
		rec, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// UpdateReview writes the review's mutable fields guarded by an
// optimistic version check. A stale version returns ErrConflict.
func (r *Repository) UpdateReview(ctx context.Context, rec ReviewRecord) (ReviewRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		UPDATE risk_reviews
		SET status=$1, approval_status=$2, decided_by=$3, decision_note=$4, completed_at=$5, version=version+1, updated_at=now()
		WHERE id=$6 AND version=$7
		RETURNING id, system_id, type, status, approval_status, trigger_event_id, leader, decided_by, decision_note, version, created_at, updated_at, completed_at`,
		rec.Status, rec.ApprovalStatus, rec.DecidedBy, rec.DecisionNote, rec.CompletedAt, rec.ID, rec.Version)
	out, err := scanReview(row)
	if err != nil {
		if _, getErr := r.GetReview(ctx, rec.ID); getErr == nil {
			return ReviewRecord{}, ErrConflict
		}
		return ReviewRecord{}, ErrNotFound
	}
	return out, nil
}

func (r *Repository) AddAssessment(ctx context.Context, rec AssessmentRecord) (AssessmentRecord, error) {
	rec.ID = uuid.NewString()
	row := r.Store.Pool.QueryRow(ctx, `
		INSERT INTO failure_mode_assessments (id, review_id, failure_mode_id, severity, occurrence, detection, rpn, score_changed, justification, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
		RETURNING created_at, updated_at`,
		rec.ID, rec.ReviewID, rec.FailureModeID, rec.Severity, rec.Occurrence, rec.Detection, rec.RPN, rec.ScoreChanged, rec.Justification)
	if err := row.Scan(&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return AssessmentRecord{}, err
	}
	return rec, nil
}

func (r *Repository) ListAssessments(ctx context.Context, reviewID string) ([]AssessmentRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, review_id, failure_mode_id, severity, occurrence, detection, rpn, score_changed, justification, created_at, updated_at
		FROM failure_mode_assessments WHERE review_id=$1 ORDER BY created_at`, reviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []AssessmentRecord{}
	for rows.Next() {
		var rec AssessmentRecord
		if err := rows.Scan(&rec.ID, &rec.ReviewID, &rec.FailureModeID, &rec.Severity, &rec.Occurrence, &rec.Detection, &rec.RPN, &rec.ScoreChanged, &rec.Justification, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// ListSystemRPNs returns the RPN of each assessment attached to the
// system's reviews, for the dashboard aggregates.
func (r *Repository) ListSystemRPNs(ctx context.Context, systemID string) ([]int, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT a.rpn FROM failure_mode_assessments a
		JOIN risk_reviews rv ON rv.id = a.review_id
		WHERE rv.system_id=$1`, systemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []int{}
	for rows.Next() {
		var rpn int
		if err := rows.Scan(&rpn); err != nil {
			return nil, err
		}
		results = append(results, rpn)
	}
	return results, rows.Err()
}

func scanReview(row rowScanner) (ReviewRecord, error) {
	var rec ReviewRecord
	if err := row.Scan(&rec.ID, &rec.SystemID, &rec.Type, &rec.Status, &rec.ApprovalStatus, &rec.TriggerEventID, &rec.Leader, &rec.DecidedBy, &rec.DecisionNote, &rec.Version, &rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt); err != nil {
		return ReviewRecord{}, ErrNotFound
	}
	return rec, nil
}
