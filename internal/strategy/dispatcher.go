package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"cmms-backend/services/adaptation-service/internal/esapi"
	"cmms-backend/services/adaptation-service/internal/review"
	"cmms-backend/services/adaptation-service/internal/storage"
)

// ErrNotApproved guards non-auto recommendations: their review must be
// approved before apply is allowed.
var ErrNotApproved = errors.New("recommendation's review is not approved")

// DefaultStaleClaim is how long an APPLYING claim may sit untouched
// before it is treated as abandoned by a crashed dispatcher and
// becomes reclaimable.
const DefaultStaleClaim = 5 * time.Minute

type Publisher interface {
	Publish(subject string, payload any) error
}

// Dispatcher applies approved recommendations to the external
// Equipment Strategy store, atomically per recommendation, with
// bounded retry. Dispatch failure is never silent: the FAILED status
// and last error stay on the record for the approver queue.
type Dispatcher struct {
	Store         Store
	Client        esapi.Client
	Bus           Publisher
	Logger        *slog.Logger
	Attempts      uint64
	RetryInterval time.Duration
	Timeout       time.Duration
	StaleClaim    time.Duration
}

func (d *Dispatcher) staleClaim() time.Duration {
	if d.StaleClaim > 0 {
		return d.StaleClaim
	}
	return DefaultStaleClaim
}

// Apply drives one recommendation through PENDING -> APPLYING ->
// APPLIED/FAILED. Applying an already-APPLIED recommendation is a
// no-op; a concurrent apply loses the APPLYING claim and gets
// ErrConflict. FAILED records may be re-applied manually, and an
// APPLYING claim abandoned for longer than StaleClaim (a dispatcher
// crash between the claim and the final transition) is reclaimed:
// the ES update is idempotent per recommendation key, so re-driving
// an indeterminate apply is safe.
func (d *Dispatcher) Apply(ctx context.Context, id string) (storage.RecommendationRecord, error) {
	rec, err := d.Store.GetRecommendation(ctx, id)
	if err != nil {
		return storage.RecommendationRecord{}, err
	}
	if rec.Status == StatusApplied {
		return rec, nil
	}
	if rec.ReviewID != nil {
		rev, err := d.Store.GetReview(ctx, *rec.ReviewID)
		if err != nil {
			return storage.RecommendationRecord{}, err
		}
		if rev.ApprovalStatus != review.ApprovalApproved {
			return rec, ErrNotApproved
		}
	}
	from := []string{StatusPending, StatusFailed}
	if rec.Status == StatusApplying && time.Since(rec.UpdatedAt) >= d.staleClaim() {
		from = append(from, StatusApplying)
	}
	rec, err = d.Store.TransitionRecommendation(ctx, id, from, StatusApplying, "", nil)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Lost the claim: either another apply is in flight or it
			// already finished. Report the current state.
			current, getErr := d.Store.GetRecommendation(ctx, id)
			if getErr == nil && current.Status == StatusApplied {
				return current, nil
			}
		}
		return storage.RecommendationRecord{}, err
	}

	applyErr := d.callWithRetry(ctx, rec)
	if applyErr == nil {
		now := time.Now().UTC()
		applied, err := d.Store.TransitionRecommendation(ctx, id, []string{StatusApplying}, StatusApplied, "", &now)
		if err != nil {
			return storage.RecommendationRecord{}, err
		}
		d.publish("recommendation.applied", map[string]any{
			"recommendation_id": applied.ID,
			"strategy_id":       applied.StrategyID,
			"action":            applied.Action,
		})
		d.Logger.Info("recommendation applied",
			slog.String("recommendation", id),
			slog.String("strategy", rec.StrategyID),
			slog.String("action", rec.Action))
		return applied, nil
	}

	failed, err := d.Store.TransitionRecommendation(ctx, id, []string{StatusApplying}, StatusFailed, applyErr.Error(), nil)
	if err != nil {
		return storage.RecommendationRecord{}, err
	}
	d.publish("recommendation.failed", map[string]any{
		"recommendation_id": failed.ID,
		"strategy_id":       failed.StrategyID,
		"action":            failed.Action,
	})
	d.Logger.Error("recommendation apply failed",
		slog.String("recommendation", id),
		slog.String("error", applyErr.Error()))
	return failed, fmt.Errorf("apply recommendation %s: %w", id, applyErr)
}

func (d *Dispatcher) callWithRetry(ctx context.Context, rec storage.RecommendationRecord) error {
	attempts := d.Attempts
	if attempts == 0 {
		attempts = 3
	}
	timeout := d.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	policy := backoff.NewExponentialBackOff()
	if d.RetryInterval > 0 {
		policy.InitialInterval = d.RetryInterval
	}
	// The idempotency key is derived from the recommendation id, so a
	// retry after an indeterminate (cancelled or timed-out) call is
	// safe: the store deduplicates repeated sends.
	op := func() error {
		upd, err := d.buildUpdate(ctx, rec)
		if err != nil {
			return backoff.Permanent(err)
		}
		return d.Client.UpdateStrategy(ctx, rec.StrategyID, upd, "rec-"+rec.ID)
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, attempts-1), ctx))
}

func (d *Dispatcher) buildUpdate(ctx context.Context, rec storage.RecommendationRecord) (esapi.StrategyUpdate, error) {
	switch rec.Action {
	case ActionIncreaseFrequency, ActionDecreaseFrequency:
		current, err := d.Client.GetStrategy(ctx, rec.StrategyID)
		if err != nil {
			return esapi.StrategyUpdate{}, err
		}
		pct := defaultIncreasePercent
		if rec.Magnitude != nil {
			pct = *rec.Magnitude
		}
		freq := current.FrequencyDays
		if rec.Action == ActionIncreaseFrequency {
			// More frequent maintenance means fewer days between tasks.
			freq = freq * (1 - pct/100)
		} else {
			freq = freq * (1 + pct/100)
		}
		return esapi.StrategyUpdate{FrequencyDays: &freq}, nil
	case ActionAddMonitoring:
		scope := "condition monitoring"
		return esapi.StrategyUpdate{Scope: &scope}, nil
	case ActionModifyScope:
		scope := "scope review required"
		return esapi.StrategyUpdate{Scope: &scope}, nil
	default:
		return esapi.StrategyUpdate{}, fmt.Errorf("unsupported action %q", rec.Action)
	}
}

func (d *Dispatcher) publish(subject string, payload any) {
	if d.Bus == nil {
		return
	}
	if err := d.Bus.Publish(subject, payload); err != nil {
		d.Logger.Warn("publish failed", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
