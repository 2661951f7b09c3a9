package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Sink receives confirmed transitions from the evaluators. Implemented
// by the worker against the trigger event store and the bus.
type Sink interface {
	Apply(ctx context.Context, rule Rule, tr Transition)
}

// Registry routes readings to one evaluator goroutine per parameter so
// that readings for a parameter are always evaluated in arrival order,
// while distinct parameters evaluate concurrently. All rule state is
// owned by the parameter's goroutine.
type Registry struct {
	mu         sync.Mutex
	params     map[string]*paramWorker
	sink       Sink
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	skipped    atomic.Int64
	bufferSize int
}

type paramWorker struct {
	param  Parameter
	rules  []Rule
	states map[string]*RuleState
	in     chan readingJob
	stop   chan struct{}
}

// readingJob carries an optional reply channel so batch callers can
// learn how many rules fired for the reading. A job with resolveRule
// set is a control message: it clears that rule's latch instead of
// evaluating a reading, so latch writes stay on the owning goroutine.
type readingJob struct {
	reading     Reading
	fired       chan int
	resolveRule string
}

func NewRegistry(sink Sink, logger *slog.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		params:     map[string]*paramWorker{},
		sink:       sink,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		bufferSize: 256,
	}
}

func (r *Registry) Stop() {
	r.cancel()
	r.mu.Lock()
	for _, w := range r.params {
		close(w.stop)
	}
	r.params = map[string]*paramWorker{}
	r.mu.Unlock()
	r.wg.Wait()
}

// SkippedReadings reports how many non-GOOD readings were dropped.
func (r *Registry) SkippedReadings() int64 {
	return r.skipped.Load()
}

// Configure registers or replaces the evaluator for a parameter with
// the given enabled rules. Invalid parameters and rules are rejected
// here with a log line rather than reaching the evaluator; a rejected
// parameter leaves any previously registered evaluator untouched.
// Latched state for rules that survive the update is retained so a
// reload does not reset debounce progress.
func (r *Registry) Configure(param Parameter, rules []Rule) {
	if verr := ValidateParameter(param); verr != nil {
		r.logger.Warn("parameter rejected",
			slog.String("parameter", param.ID),
			slog.String("error", verr.Error()))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	enabled := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled || rule.ParameterID != param.ID {
			continue
		}
		if verr := ValidateRule(rule, param); verr != nil {
			r.logger.Warn("trigger rule rejected",
				slog.String("rule", rule.ID),
				slog.String("parameter", param.ID),
				slog.String("error", verr.Error()))
			continue
		}
		enabled = append(enabled, rule)
	}
	if existing, ok := r.params[param.ID]; ok {
		states := map[string]*RuleState{}
		for _, rule := range enabled {
			if st, ok := existing.states[rule.ID]; ok {
				states[rule.ID] = st
			} else {
				states[rule.ID] = &RuleState{}
			}
		}
		existing.param = param
		existing.rules = enabled
		existing.states = states
		return
	}
	w := &paramWorker{
		param:  param,
		rules:  enabled,
		states: map[string]*RuleState{},
		in:     make(chan readingJob, r.bufferSize),
		stop:   make(chan struct{}),
	}
	for _, rule := range enabled {
		w.states[rule.ID] = &RuleState{}
	}
	r.params[param.ID] = w
	r.wg.Add(1)
	go r.run(w)
}

func (r *Registry) Remove(parameterID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.params[parameterID]; ok {
		close(w.stop)
		delete(r.params, parameterID)
	}
}

// Offer enqueues a reading for evaluation. Readings with unknown
// parameters or non-GOOD quality are skipped; skips never advance or
// clear rule state.
func (r *Registry) Offer(reading Reading) {
	w, ok := r.admit(reading)
	if !ok {
		return
	}
	select {
	case w.in <- readingJob{reading: reading}:
	case <-r.ctx.Done():
	}
}

// Process evaluates one reading and waits for the result, reporting
// how many rules fired. The reading still flows through the
// parameter's evaluator goroutine, so batch and streaming callers
// never reorder each other. ok is false when the reading was skipped.
func (r *Registry) Process(ctx context.Context, reading Reading) (int, bool) {
	w, ok := r.admit(reading)
	if !ok {
		return 0, false
	}
	fired := make(chan int, 1)
	select {
	case w.in <- readingJob{reading: reading, fired: fired}:
	case <-ctx.Done():
		return 0, false
	case <-r.ctx.Done():
		return 0, false
	}
	select {
	case n := <-fired:
		return n, true
	case <-ctx.Done():
		return 0, false
	case <-r.ctx.Done():
		return 0, false
	}
}

func (r *Registry) admit(reading Reading) (*paramWorker, bool) {
	if reading.Quality != QualityGood {
		r.skipped.Add(1)
		r.logger.Info("data quality skip",
			slog.String("parameter", reading.ParameterID),
			slog.String("quality", reading.Quality))
		return nil, false
	}
	r.mu.Lock()
	w, ok := r.params[reading.ParameterID]
	r.mu.Unlock()
	if !ok {
		r.logger.Warn("reading for unknown parameter", slog.String("parameter", reading.ParameterID))
		return nil, false
	}
	return w, true
}

// MarkResolved informs the evaluator that a rule's event was resolved
// externally (operator action). The clear is routed through the
// parameter's goroutine so it never races a Step on the same state;
// it takes effect before any reading enqueued after this call.
func (r *Registry) MarkResolved(parameterID, ruleID string) {
	r.mu.Lock()
	w, ok := r.params[parameterID]
	r.mu.Unlock()
	if !ok {
		return
	}
	select {
	case w.in <- readingJob{resolveRule: ruleID}:
	case <-r.ctx.Done():
	}
}

func (r *Registry) run(w *paramWorker) {
	defer r.wg.Done()
	for {
		select {
		case job := <-w.in:
			if job.resolveRule != "" {
				r.clearLatch(w, job.resolveRule)
				continue
			}
			fired := r.evaluate(w, job.reading)
			if job.fired != nil {
				job.fired <- fired
			}
		case <-w.stop:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Registry) clearLatch(w *paramWorker, ruleID string) {
	r.mu.Lock()
	st, ok := w.states[ruleID]
	r.mu.Unlock()
	if ok {
		st.MarkResolved()
	}
}

func (r *Registry) evaluate(w *paramWorker, reading Reading) int {
	r.mu.Lock()
	param := w.param
	rules := w.rules
	states := w.states
	r.mu.Unlock()
	fired := 0
	for _, rule := range rules {
		st, ok := states[rule.ID]
		if !ok {
			continue
		}
		if tr := Step(rule, param, st, reading); tr != nil {
			if tr.Kind == TransitionFire {
				fired++
			}
			r.sink.Apply(r.ctx, rule, *tr)
		}
	}
	return fired
}
