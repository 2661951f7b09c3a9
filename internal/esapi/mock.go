package esapi

import (
	"context"
	"errors"
	"sync"
)

// Mock is an in-memory Client for tests and dry-run mode. FailTimes
// makes the next N updates fail, to exercise the dispatcher's retry
// path.
type Mock struct {
	mu         sync.Mutex
	Strategies map[string]Strategy
	FailTimes  int
	Err        error
	updates    []MockUpdate
}

type MockUpdate struct {
	StrategyID     string
	Update         StrategyUpdate
	IdempotencyKey string
}

func NewMock() *Mock {
	return &Mock{Strategies: map[string]Strategy{}}
}

func (m *Mock) GetStrategy(ctx context.Context, id string) (Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return Strategy{}, m.Err
	}
	return m.Strategies[id], nil
}

func (m *Mock) UpdateStrategy(ctx context.Context, id string, upd StrategyUpdate, idempotencyKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailTimes > 0 {
		m.FailTimes--
		if m.Err != nil {
			return m.Err
		}
		return errors.New("simulated network error")
	}
	// The real store deduplicates by idempotency key; the mock does
	// the same so repeated sends count once.
	for _, u := range m.updates {
		if u.IdempotencyKey == idempotencyKey {
			return nil
		}
	}
	m.updates = append(m.updates, MockUpdate{StrategyID: id, Update: upd, IdempotencyKey: idempotencyKey})
	s := m.Strategies[id]
	s.ID = id
	if upd.FrequencyDays != nil {
		s.FrequencyDays = *upd.FrequencyDays
	}
	if upd.Scope != nil {
		s.Scope = *upd.Scope
	}
	m.Strategies[id] = s
	return nil
}

// Updates returns the deduplicated updates the mock has accepted.
func (m *Mock) Updates() []MockUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockUpdate, len(m.updates))
	copy(out, m.updates)
	return out
}
