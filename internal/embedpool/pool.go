package embedpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/dshills/notecontext/internal/embedder"
	"github.com/dshills/notecontext/internal/storage"
)

// Defaults
const (
	DefaultWorkers   = 1
	DefaultBatchSize = 100
	DefaultInterval  = 30 * time.Second
	eventBuffer      = 64
)

var (
	ErrStoreRequired    = errors.New("store is required")
	ErrEmbedderRequired = errors.New("embedder is required")
	ErrPoolStopped      = errors.New("embedding pool stopped")
)

// ChunkStore is the slice of the content store the pool needs.
type ChunkStore interface {
	ListChunksNeedingEmbeddingsAfter(ctx context.Context, model string, afterID int64, limit int) ([]storage.PendingChunk, error)
	UpsertEmbedding(ctx context.Context, chunkID int64, vector []float32, dim int, model string) error
}

// EventType identifies a pool event
type EventType string

const (
	EventProgress EventType = "progress"
	EventError    EventType = "error"
	EventIdle     EventType = "idle"
)

// Event is a progress notification suitable for forwarding to a UI.
type Event struct {
	Type      EventType `json:"type"`
	ChunkID   int64     `json:"chunk_id,omitempty"`
	Processed int64     `json:"processed"`
	Failed    int64     `json:"failed"`
	Error     string    `json:"error,omitempty"`
	Time      time.Time `json:"time"`
}

// Stats is a snapshot of the pool counters
type Stats struct {
	Running   bool      `json:"running"`
	Model     string    `json:"model"`
	Workers   int       `json:"workers"`
	Processed int64     `json:"processed"`
	Failed    int64     `json:"failed"`
	Passes    int64     `json:"passes"`
	LastError string    `json:"last_error,omitempty"`
	LastPass  time.Time `json:"last_pass,omitempty"`
}

// Pool drains chunks lacking embeddings.
type Pool struct {
	store     ChunkStore
	emb       embedder.Embedder
	workers   int
	batchSize int
	interval  time.Duration
	logger    *slog.Logger

	pool    *ants.Pool
	trigger chan struct{}
	events  chan Event

	// serializes passes between Drain callers and the background loop
	drainMu sync.Mutex

	hooksMu sync.RWMutex
	hooks   []func(stored int)

	processed atomic.Int64
	failed    atomic.Int64
	passes    atomic.Int64

	mu        sync.Mutex
	lastError string
	lastPass  time.Time
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Pool.
type Option func(*Pool)

// WithWorkers sets the number of concurrent embedding calls.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n < 1 {
			n = 1
		}
		p.workers = n
	}
}

// WithBatchSize sets how many pending chunks are fetched per round trip.
func WithBatchSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithInterval sets the period between background passes. Zero disables
// the timer so only Trigger starts a pass.
func WithInterval(d time.Duration) Option {
	return func(p *Pool) {
		if d >= 0 {
			p.interval = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pool. Call Start for background operation or Drain for a
// single synchronous pass.
func New(store ChunkStore, emb embedder.Embedder, opts ...Option) (*Pool, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if emb == nil {
		return nil, ErrEmbedderRequired
	}

	p := &Pool{
		store:     store,
		emb:       emb,
		workers:   DefaultWorkers,
		batchSize: DefaultBatchSize,
		interval:  DefaultInterval,
		logger:    slog.Default().With("component", "embedpool"),
		trigger:   make(chan struct{}, 1),
		events:    make(chan Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(p)
	}

	pool, err := ants.NewPool(p.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	p.pool = pool
	return p, nil
}

// Events returns the event stream. Events are dropped when nobody reads.
func (p *Pool) Events() <-chan Event {
	return p.events
}

// Start launches the background loop. It runs an initial pass immediately.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if p.pool.IsClosed() {
		return ErrPoolStopped
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.loop(ctx, p.done)
	p.Trigger()
	return nil
}

// OnStored registers fn to run after a batch stored at least one
// embedding. Hooks run synchronously on the draining goroutine.
func (p *Pool) OnStored(fn func(stored int)) {
	p.hooksMu.Lock()
	p.hooks = append(p.hooks, fn)
	p.hooksMu.Unlock()
}

func (p *Pool) notifyStored(n int) {
	if n == 0 {
		return
	}
	p.hooksMu.RLock()
	defer p.hooksMu.RUnlock()
	for _, fn := range p.hooks {
		fn(n)
	}
}

// Trigger requests a pass without blocking. Multiple triggers while a pass
// is pending collapse into one.
func (p *Pool) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Stop ends the background loop, waits for the current pass and releases
// the workers. The pool cannot be restarted.
func (p *Pool) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	p.pool.Release()
}

func (p *Pool) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if p.interval > 0 {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.trigger:
		case <-tick:
		}
		if _, _, err := p.Drain(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("embedding pass failed", "err", err)
		}
	}
}

type result struct {
	chunkID int64
	vector  []float32
	err     error
}

// Drain runs one complete pass over every chunk lacking an embedding for the
// embedder's model and returns how many were stored and how many failed.
// A failed chunk is not retried within the pass.
func (p *Pool) Drain(ctx context.Context) (processed, failed int, err error) {
	p.drainMu.Lock()
	defer p.drainMu.Unlock()

	model := p.emb.Model()
	var afterID int64

	defer func() {
		p.passes.Add(1)
		p.mu.Lock()
		p.lastPass = time.Now()
		p.mu.Unlock()
		if err == nil {
			p.emit(Event{Type: EventIdle})
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return processed, failed, err
		}

		batch, err := p.store.ListChunksNeedingEmbeddingsAfter(ctx, model, afterID, p.batchSize)
		if err != nil {
			return processed, failed, fmt.Errorf("failed to list pending chunks: %w", err)
		}
		if len(batch) == 0 {
			return processed, failed, nil
		}
		afterID = batch[len(batch)-1].ChunkID

		results := make(chan result, len(batch))
		stored := 0
		submitted := 0
		for _, chunk := range batch {
			if err := p.pool.Submit(p.task(ctx, chunk, results)); err != nil {
				if submitted == 0 {
					return processed, failed, fmt.Errorf("%w: %v", ErrPoolStopped, err)
				}
				break
			}
			submitted++
		}

		for i := 0; i < submitted; i++ {
			res := <-results
			if res.err == nil {
				res.err = p.store.UpsertEmbedding(ctx, res.chunkID, res.vector, len(res.vector), model)
			}
			if res.err != nil {
				if ctx.Err() != nil {
					continue
				}
				failed++
				p.recordFailure(res.chunkID, res.err)
				continue
			}
			processed++
			stored++
			n := p.processed.Add(1)
			p.emit(Event{Type: EventProgress, ChunkID: res.chunkID, Processed: n, Failed: p.failed.Load()})
		}
		p.notifyStored(stored)

		if len(batch) < p.batchSize {
			return processed, failed, nil
		}
	}
}

func (p *Pool) task(ctx context.Context, chunk storage.PendingChunk, results chan<- result) func() {
	return func() {
		res := result{chunkID: chunk.ChunkID}
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("embedding panicked: %v", r)
			}
			results <- res
		}()

		emb, err := p.emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: chunk.EmbedText()})
		if err != nil {
			res.err = err
			return
		}
		res.vector = emb.Vector
	}
}

func (p *Pool) recordFailure(chunkID int64, err error) {
	n := p.failed.Add(1)
	p.mu.Lock()
	p.lastError = err.Error()
	p.mu.Unlock()

	p.logger.Warn("failed to embed chunk", "chunk_id", chunkID, "err", err)
	p.emit(Event{Type: EventError, ChunkID: chunkID, Processed: p.processed.Load(), Failed: n, Error: err.Error()})
}

func (p *Pool) emit(ev Event) {
	ev.Time = time.Now()
	select {
	case p.events <- ev:
	default:
	}
}

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Running:   p.running,
		Model:     p.emb.Model(),
		Workers:   p.workers,
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Passes:    p.passes.Load(),
		LastError: p.lastError,
		LastPass:  p.lastPass,
	}
}
