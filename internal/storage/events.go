package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UpsertActiveEvent creates a new trigger event for the rule, or, when
// an unresolved event already exists, refreshes its last-seen value
// instead. The partial unique index on (rule_id) over unresolved rows
// guarantees at most one unresolved event per rule even under
// concurrent evaluation cycles. Returns the event and whether a new
// row was created.
func (r *Repository) UpsertActiveEvent(ctx context.Context, rec TriggerEventRecord) (TriggerEventRecord, bool, error) {
	id := uuid.NewString()
	row := r.Store.Pool.QueryRow(ctx, `
		INSERT INTO trigger_events (id, rule_id, parameter_id, system_id, state, severity, trigger_type, trigger_value, last_value, limit_expr, first_breach_at, last_seen_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,'ACTIVE',$5,$6,$7,$7,$8,$9,$9,now(),now())
		ON CONFLICT (rule_id) WHERE state IN ('ACTIVE','ACKNOWLEDGED')
		DO UPDATE SET last_value=EXCLUDED.last_value, last_seen_at=EXCLUDED.last_seen_at, updated_at=now()
		RETURNING id, state, severity, trigger_value, first_breach_at, created_at, (xmax = 0)`,
		id, rec.RuleID, rec.ParameterID, rec.SystemID, rec.Severity, rec.TriggerType, rec.TriggerValue, rec.LimitExpr, rec.FirstBreachAt,
	)
	out := rec
	var created bool
	if err := row.Scan(&out.ID, &out.State, &out.Severity, &out.TriggerValue, &out.FirstBreachAt, &out.CreatedAt, &created); err != nil {
		return TriggerEventRecord{}, false, err
	}
	out.LastValue = rec.TriggerValue
	out.LastSeenAt = rec.FirstBreachAt
	return out, created, nil
}

// RefreshEvent updates the last-seen value of the rule's unresolved
// event, if any.
func (r *Repository) RefreshEvent(ctx context.Context, ruleID string, value float64, at time.Time) error {
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE trigger_events SET last_value=$1, last_seen_at=$2, updated_at=now()
		WHERE rule_id=$3 AND state IN ('ACTIVE','ACKNOWLEDGED')`, value, at, ruleID)
	return err
}

// ResolveEventByRule resolves the rule's unresolved event, used by the
// hysteresis rule when the parameter has stayed in the normal range.
func (r *Repository) ResolveEventByRule(ctx context.Context, ruleID string, at time.Time, value float64) (TriggerEventRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		UPDATE trigger_events
		SET state='RESOLVED', resolved_at=$1, last_value=$2, updated_at=now()
		WHERE rule_id=$3 AND state IN ('ACTIVE','ACKNOWLEDGED')
		RETURNING id, rule_id, parameter_id, system_id, state, severity, trigger_type, trigger_value, last_value, limit_expr, first_breach_at, last_seen_at, acknowledged_by, acknowledged_at, resolved_at, created_at, updated_at`,
		at, value, ruleID)
	return scanTriggerEvent(row)
}

func (r *Repository) GetTriggerEvent(ctx context.Context, id string) (TriggerEventRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT id, rule_id, parameter_id, system_id, state, severity, trigger_type, trigger_value, last_value, limit_expr, first_breach_at, last_seen_at, acknowledged_by, acknowledged_at, resolved_at, created_at, updated_at
		FROM trigger_events WHERE id=$1`, id)
	return scanTriggerEvent(row)
}

func (r *Repository) ListTriggerEvents(ctx context.Context, filter TriggerEventFilter) ([]TriggerEventRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, rule_id, parameter_id, system_id, state, severity, trigger_type, trigger_value, last_value, limit_expr, first_breach_at, last_seen_at, acknowledged_by, acknowledged_at, resolved_at, created_at, updated_at
		FROM trigger_events
		WHERE ($1='' OR state=$1) AND ($2='' OR severity=$2) AND ($3='' OR system_id=$3)
		ORDER BY first_breach_at DESC`,
		filter.State, filter.Severity, filter.SystemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []TriggerEventRecord{}
	for rows.Next() {
		rec, err := scanTriggerEvent(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// AcknowledgeEvent transitions ACTIVE -> ACKNOWLEDGED. Any other
// starting state is a conflict; the lifecycle is monotonic.
func (r *Repository) AcknowledgeEvent(ctx context.Context, id, by string, at time.Time) (TriggerEventRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		UPDATE trigger_events
		SET state='ACKNOWLEDGED', acknowledged_by=$1, acknowledged_at=$2, updated_at=now()
		WHERE id=$3 AND state='ACTIVE'
		RETURNING id, rule_id, parameter_id, system_id, state, severity, trigger_type, trigger_value, last_value, limit_expr, first_breach_at, last_seen_at, acknowledged_by, acknowledged_at, resolved_at, created_at, updated_at`,
		by, at, id)
	rec, err := scanTriggerEvent(row)
	if err != nil {
		if _, getErr := r.GetTriggerEvent(ctx, id); getErr == nil {
			return TriggerEventRecord{}, ErrConflict
		}
		return TriggerEventRecord{}, ErrNotFound
	}
	return rec, nil
}

// ResolveEvent is the operator-driven resolve; RESOLVED is terminal.
func (r *Repository) ResolveEvent(ctx context.Context, id string, at time.Time) (TriggerEventRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		UPDATE trigger_events
		SET state='RESOLVED', resolved_at=$1, updated_at=now()
		WHERE id=$2 AND state IN ('ACTIVE','ACKNOWLEDGED')
		RETURNING id, rule_id, parameter_id, system_id, state, severity, trigger_type, trigger_value, last_value, limit_expr, first_breach_at, last_seen_at, acknowledged_by, acknowledged_at, resolved_at, created_at, updated_at`,
		at, id)
	rec, err := scanTriggerEvent(row)
	if err != nil {
		if _, getErr := r.GetTriggerEvent(ctx, id); getErr == nil {
			return TriggerEventRecord{}, ErrConflict
		}
		return TriggerEventRecord{}, ErrNotFound
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTriggerEvent(row rowScanner) (TriggerEventRecord, error) {
	var rec TriggerEventRecord
	if err := row.Scan(&rec.ID, &rec.RuleID, &rec.ParameterID, &rec.SystemID, &rec.State, &rec.Severity, &rec.TriggerType, &rec.TriggerValue, &rec.LastValue, &rec.LimitExpr, &rec.FirstBreachAt, &rec.LastSeenAt, &rec.AcknowledgedBy, &rec.AcknowledgedAt, &rec.ResolvedAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return TriggerEventRecord{}, ErrNotFound
	}
	return rec, nil
}
