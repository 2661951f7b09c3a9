package histdb

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cmms-backend/services/adaptation-service/internal/engine"
)

type Offerer interface {
	Offer(reading engine.Reading)
}

// Poller tails one or more historian sources on a fixed interval and
// feeds new readings into the evaluation pipeline. Each source keeps
// its own watermark so a slow historian never stalls the others.
type Poller struct {
	mu        sync.Mutex
	sink      Offerer
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	sources   map[string]*tailer
	ctx       context.Context
	cancel    context.CancelFunc
}

type tailer struct {
	name   string
	source Source
	since  time.Time
	stop   chan struct{}
}

func NewPoller(sink Offerer, interval time.Duration, batchSize int, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		sink:      sink,
		interval:  interval,
		batchSize: normalizeFetchLimit(batchSize),
		logger:    logger,
		sources:   map[string]*tailer{},
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (p *Poller) Stop() {
	p.cancel()
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.sources {
		close(t.stop)
		_ = t.source.Close()
	}
	p.sources = map[string]*tailer{}
}

// Track starts tailing a source. Readings older than now are ignored;
// the engine owns historical catch-up through the batch ingest API.
func (p *Poller) Track(name string, source Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.sources[name]; ok {
		close(existing.stop)
		_ = existing.source.Close()
	}
	t := &tailer{name: name, source: source, since: time.Now().UTC(), stop: make(chan struct{})}
	p.sources[name] = t
	go p.run(t)
}

func (p *Poller) run(t *tailer) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.drain(t)
		case <-t.stop:
			return
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Poller) drain(t *tailer) {
	ctx, cancel := context.WithTimeout(p.ctx, p.interval)
	defer cancel()
	for {
		readings, err := t.source.FetchReadings(ctx, t.since, p.batchSize)
		if err != nil {
			p.logger.Warn("historian fetch failed",
				slog.String("source", t.name),
				slog.String("error", err.Error()))
			return
		}
		if len(readings) == 0 {
			return
		}
		for _, r := range readings {
			p.sink.Offer(r)
			if r.Timestamp.After(t.since) {
				t.since = r.Timestamp
			}
		}
		if len(readings) < p.batchSize {
			return
		}
	}
}
