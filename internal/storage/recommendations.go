package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreateRecommendation inserts a recommendation keyed by its origin
// (review or trigger event) and target strategy. Re-running generation
// for the same origin is a no-op that returns the existing row.
func (r *Repository) CreateRecommendation(ctx context.Context, rec RecommendationRecord) (RecommendationRecord, bool, error) {
	id := uuid.NewString()
	tag, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO strategy_recommendations (id, review_id, trigger_event_id, origin_key, strategy_id, equipment_id, action, magnitude, urgency, auto_apply, status, last_error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,'PENDING','',now(),now())
		ON CONFLICT (origin_key, strategy_id) DO NOTHING`,
		id, rec.ReviewID, rec.TriggerID, rec.OriginKey, rec.StrategyID, rec.EquipmentID, rec.Action, rec.Magnitude, rec.Urgency, rec.AutoApply)
	if err != nil {
		return RecommendationRecord{}, false, err
	}
	created := tag.RowsAffected() == 1
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT id, review_id, trigger_event_id, origin_key, strategy_id, equipment_id, action, magnitude, urgency, auto_apply, status, last_error, applied_at, created_at, updated_at
		FROM strategy_recommendations WHERE origin_key=$1 AND strategy_id=$2`,
		rec.OriginKey, rec.StrategyID)
	out, err := scanRecommendation(row)
	if err != nil {
		return RecommendationRecord{}, false, err
	}
	return out, created, nil
}

func (r *Repository) GetRecommendation(ctx context.Context, id string) (RecommendationRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT id, review_id, trigger_event_id, origin_key, strategy_id, equipment_id, action, magnitude, urgency, auto_apply, status, last_error, applied_at, created_at, updated_at
		FROM strategy_recommendations WHERE id=$1`, id)
	return scanRecommendation(row)
}

func (r *Repository) ListRecommendations(ctx context.Context, filter RecommendationFilter) ([]RecommendationRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, review_id, trigger_event_id, origin_key, strategy_id, equipment_id, action, magnitude, urgency, auto_apply, status, last_error, applied_at, created_at, updated_at
		FROM strategy_recommendations
		WHERE ($1='' OR status=$1) AND ($2='' OR review_id=$2)
		ORDER BY created_at DESC`,
		filter.Status, filter.ReviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []RecommendationRecord{}
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// TransitionRecommendation moves the application status with a
// conditional update. A row whose current status is not in the allowed
// set loses the race and gets ErrConflict, which is how two concurrent
// apply calls are reduced to one.
func (r *Repository) TransitionRecommendation(ctx context.Context, id string, from []string, to, lastError string, appliedAt *time.Time) (RecommendationRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		UPDATE strategy_recommendations
		SET status=$1, last_error=$2, applied_at=COALESCE($3, applied_at), updated_at=now()
		WHERE id=$4 AND status=ANY($5)
		RETURNING id, review_id, trigger_event_id, origin_key, strategy_id, equipment_id, action, magnitude, urgency, auto_apply, status, last_error, applied_at, created_at, updated_at`,
		to, lastError, appliedAt, id, from)
	rec, err := scanRecommendation(row)
	if err != nil {
		if _, getErr := r.GetRecommendation(ctx, id); getErr == nil {
			return RecommendationRecord{}, ErrConflict
		}
		return RecommendationRecord{}, ErrNotFound
	}
	return rec, nil
}

// ListPendingAutoApply returns auto-apply recommendations that have
// not been dispatched yet, for the worker's startup reconcile.
func (r *Repository) ListPendingAutoApply(ctx context.Context) ([]RecommendationRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, review_id, trigger_event_id, origin_key, strategy_id, equipment_id, action, magnitude, urgency, auto_apply, status, last_error, applied_at, created_at, updated_at
		FROM strategy_recommendations WHERE auto_apply AND status='PENDING'
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []RecommendationRecord{}
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// ListStaleApplying returns recommendations stuck in APPLYING since
// before the cutoff: claims abandoned by a crashed dispatcher, for the
// worker's startup reconcile.
func (r *Repository) ListStaleApplying(ctx context.Context, cutoff time.Time) ([]RecommendationRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, review_id, trigger_event_id, origin_key, strategy_id, equipment_id, action, magnitude, urgency, auto_apply, status, last_error, applied_at, created_at, updated_at
		FROM strategy_recommendations WHERE status='APPLYING' AND updated_at < $1
		ORDER BY created_at`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []RecommendationRecord{}
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func scanRecommendation(row rowScanner) (RecommendationRecord, error) {
	var rec RecommendationRecord
	if err := row.Scan(&rec.ID, &rec.ReviewID, &rec.TriggerID, &rec.OriginKey, &rec.StrategyID, &rec.EquipmentID, &rec.Action, &rec.Magnitude, &rec.Urgency, &rec.AutoApply, &rec.Status, &rec.LastError, &rec.AppliedAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return RecommendationRecord{}, ErrNotFound
	}
	return rec, nil
}
