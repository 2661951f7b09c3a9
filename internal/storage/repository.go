package storage

import (
	"context"
)

type Repository struct {
	Store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{Store: store}
}

func (r *Repository) ListParameters(ctx context.Context) ([]ParameterRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, system_id, name, unit, normal_min, normal_max, critical_min, critical_max, created_at
		FROM process_parameters ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []ParameterRecord{}
	for rows.Next() {
		var rec ParameterRecord
		if err := rows.Scan(&rec.ID, &rec.SystemID, &rec.Name, &rec.Unit, &rec.NormalMin, &rec.NormalMax, &rec.CriticalMin, &rec.CriticalMax, &rec.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (r *Repository) GetParameter(ctx context.Context, id string) (ParameterRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT id, system_id, name, unit, normal_min, normal_max, critical_min, critical_max, created_at
		FROM process_parameters WHERE id=$1`, id)
	var rec ParameterRecord
	if err := row.Scan(&rec.ID, &rec.SystemID, &rec.Name, &rec.Unit, &rec.NormalMin, &rec.NormalMax, &rec.CriticalMin, &rec.CriticalMax, &rec.CreatedAt); err != nil {
		return ParameterRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) ListRules(ctx context.Context) ([]TriggerRuleRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, parameter_id, name, condition, threshold, eval_window_min, min_duration_min, recovery_min, severity, trigger_type, enabled, created_at, updated_at
		FROM trigger_rules ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []TriggerRuleRecord{}
	for rows.Next() {
		var rec TriggerRuleRecord
		if err := rows.Scan(&rec.ID, &rec.ParameterID, &rec.Name, &rec.Condition, &rec.Threshold, &rec.EvalWindowMin, &rec.MinDurationMin, &rec.RecoveryMin, &rec.Severity, &rec.TriggerType, &rec.Enabled, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (r *Repository) GetRule(ctx context.Context, id string) (TriggerRuleRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT id, parameter_id, name, condition, threshold, eval_window_min, min_duration_min, recovery_min, severity, trigger_type, enabled, created_at, updated_at
		FROM trigger_rules WHERE id=$1`, id)
	var rec TriggerRuleRecord
	if err := row.Scan(&rec.ID, &rec.ParameterID, &rec.Name, &rec.Condition, &rec.Threshold, &rec.EvalWindowMin, &rec.MinDurationMin, &rec.RecoveryMin, &rec.Severity, &rec.TriggerType, &rec.Enabled, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return TriggerRuleRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) GetFailureMode(ctx context.Context, id string) (FailureModeRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT id, system_id, name, strategy_id, equipment_id, severity, occurrence, detection, baseline_rpn, created_at
		FROM failure_modes WHERE id=$1`, id)
	var rec FailureModeRecord
	if err := row.Scan(&rec.ID, &rec.SystemID, &rec.Name, &rec.StrategyID, &rec.EquipmentID, &rec.Severity, &rec.Occurrence, &rec.Detection, &rec.BaselineRPN, &rec.CreatedAt); err != nil {
		return FailureModeRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) ListFailureModes(ctx context.Context, systemID string) ([]FailureModeRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, system_id, name, strategy_id, equipment_id, severity, occurrence, detection, baseline_rpn, created_at
		FROM failure_modes WHERE system_id=$1 ORDER BY id`, systemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []FailureModeRecord{}
	for rows.Next() {
		var rec FailureModeRecord
		if err := rows.Scan(&rec.ID, &rec.SystemID, &rec.Name, &rec.StrategyID, &rec.EquipmentID, &rec.Severity, &rec.Occurrence, &rec.Detection, &rec.BaselineRPN, &rec.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}
