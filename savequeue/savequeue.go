// Package savequeue persists entities in the background.
//
// Callers on any goroutine hand dirty entities to Add; a single worker saves
// them off the caller's path. Repeat submissions of an entity that is still
// waiting coalesce into one save, and because entities serialise their own
// state at save time, that save writes the latest state. Failed saves are
// logged and reported. The entity stays dirty and is parked: the worker
// leaves it alone, and the next Flush or submission saves it again.
package savequeue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Savable is an entity the queue can persist. Implementations must be
// comparable, typically a pointer.
type Savable interface {
	IsSaveNeeded() bool
	SaveImmediately(ctx context.Context) error
}

// DefaultInterval is how often the worker wakes when nothing signals it.
const DefaultInterval = time.Second

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger used for save failures.
func WithLogger(l *slog.Logger) Option { return func(q *Queue) { q.logger = l } }

// WithFailureHandler sets a callback invoked for every failed save.
func WithFailureHandler(fn func(Savable, error)) Option {
	return func(q *Queue) { q.onFailure = fn }
}

// WithInterval sets the periodic wake interval.
func WithInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.interval = d
		}
	}
}

// Stats is a snapshot of queue activity.
type Stats struct {
	Pending   int   `json:"pending"`
	Parked    int   `json:"parked"`
	Saved     int64 `json:"saved"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
	Coalesced int64 `json:"coalesced"`
}

// Queue is a write-behind save queue.
type Queue struct {
	logger    *slog.Logger
	onFailure func(Savable, error)
	interval  time.Duration

	mu      sync.Mutex
	pending []Savable
	queued  map[Savable]struct{}
	parked  map[Savable]struct{}
	closed  bool
	started bool

	// drainMu serialises the worker and synchronous flushes.
	drainMu sync.Mutex
	wake    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	saved     atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
	coalesced atomic.Int64
}

// New creates a queue. Start must be called for background saving; until
// then entities accumulate and are written by Flush or Close.
func New(opts ...Option) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		logger:   slog.Default(),
		interval: DefaultInterval,
		queued:   make(map[Savable]struct{}),
		parked:   make(map[Savable]struct{}),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the background worker. Calling it again has no effect.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	q.wg.Add(1)
	go q.run()
}

// Add enqueues s. It returns false when the queue is closed or s is nil.
// An entity already waiting is not queued twice.
func (q *Queue) Add(s Savable) bool {
	if s == nil {
		return false
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if _, ok := q.queued[s]; ok {
		q.mu.Unlock()
		q.coalesced.Add(1)
		return true
	}
	delete(q.parked, s)
	q.queued[s] = struct{}{}
	q.pending = append(q.pending, s)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of waiting entities.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stats returns the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	parked := len(q.parked)
	q.mu.Unlock()
	return Stats{
		Pending:   q.Len(),
		Parked:    parked,
		Saved:     q.saved.Load(),
		Failed:    q.failed.Load(),
		Skipped:   q.skipped.Load(),
		Coalesced: q.coalesced.Load(),
	}
}

// Flush saves every waiting entity on the calling goroutine, and retries
// once every entity whose earlier save failed. Entities submitted while it
// runs are saved too. If ctx ends first, unsaved entities go back on the
// queue and ctx.Err() is returned.
func (q *Queue) Flush(ctx context.Context) error {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()
	q.unpark()
	return q.drain(ctx)
}

// unpark moves failed entities back onto the queue.
func (q *Queue) unpark() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for s := range q.parked {
		delete(q.parked, s)
		if _, ok := q.queued[s]; ok {
			continue
		}
		q.queued[s] = struct{}{}
		q.pending = append(q.pending, s)
	}
}

// Close stops accepting entities, stops the worker and saves everything
// still waiting before returning. It is safe to call more than once.
func (q *Queue) Close(ctx context.Context) error {
	var err error
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		q.cancel()
		q.wg.Wait()
		err = q.Flush(ctx)
	})
	return err
}

func (q *Queue) run() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-q.wake:
		case <-ticker.C:
		}
		q.drainMu.Lock()
		_ = q.drain(context.Background())
		q.drainMu.Unlock()
	}
}

// take removes and returns every waiting entity. Entities leave the
// coalescing set before they are saved so that a submission racing with
// the save is queued again.
func (q *Queue) take() []Savable {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.pending
	q.pending = nil
	for _, s := range batch {
		delete(q.queued, s)
	}
	return batch
}

func (q *Queue) putBack(rest []Savable) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range rest {
		if _, ok := q.queued[s]; ok {
			continue
		}
		q.queued[s] = struct{}{}
		q.pending = append(q.pending, s)
	}
}

// drain must be called with drainMu held.
func (q *Queue) drain(ctx context.Context) error {
	for {
		batch := q.take()
		if len(batch) == 0 {
			return nil
		}
		for i, s := range batch {
			if err := ctx.Err(); err != nil {
				q.putBack(batch[i:])
				return err
			}
			q.save(ctx, s)
		}
	}
}

func (q *Queue) save(ctx context.Context, s Savable) {
	if !s.IsSaveNeeded() {
		q.skipped.Add(1)
		return
	}
	if err := s.SaveImmediately(ctx); err != nil {
		q.failed.Add(1)
		q.logger.Error("savequeue: save failed", "entity", s, "error", err)
		q.mu.Lock()
		if _, ok := q.queued[s]; !ok {
			q.parked[s] = struct{}{}
		}
		q.mu.Unlock()
		if q.onFailure != nil {
			q.onFailure(s, err)
		}
		return
	}
	q.saved.Add(1)
}
