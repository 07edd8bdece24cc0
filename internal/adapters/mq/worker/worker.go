// Package worker consumes fact-change notifications and invalidates cached
// leaderboards.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/questrank/internal/domain/model"
	"github.com/okian/questrank/pkg/logger"
	"github.com/okian/questrank/pkg/metrics"
)

const (
	defaultWorkerCount  = 2
	invalidateTimeout   = 5 * time.Second
	poolShutdownTimeout = 30 * time.Second
)

// Invalidator reacts to one fact change.
type Invalidator interface {
	Invalidate(ctx context.Context, change model.FactChange) error
}

// Queue defines how workers receive notifications.
type Queue interface {
	Dequeue() <-chan model.FactChange
}

// InMemoryWorker drains the queue until it is closed or the worker is stopped.
type InMemoryWorker struct {
	queue       Queue
	invalidator Invalidator
	name        string
	processed   *atomic.Int64

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(q Queue, inv Invalidator, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		invalidator: inv,
		name:        "worker",
		processed:   &atomic.Int64{},
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes notifications until the queue closes, ctx is cancelled or
// Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	changes := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if d, ok := w.queue.(interface{ Done() }); ok {
				d.Done()
			}
			if err := w.process(ctx, c); err != nil {
				w.logger.Error(ctx, "invalidation failed",
					logger.String("eventID", c.EventID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker and waits for the in-flight notification.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns how many notifications this worker handled.
func (w *InMemoryWorker) Processed() int64 {
	return w.processed.Load()
}

func (w *InMemoryWorker) process(ctx context.Context, c model.FactChange) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	ctx, cancel := context.WithTimeout(ctx, invalidateTimeout)
	defer cancel()

	if err := w.invalidator.Invalidate(ctx, c); err != nil {
		metrics.RecordWorkerError("invalidate")
		return fmt.Errorf("invalidate after %s: %w", c.EventID, err)
	}
	w.processed.Add(1)
	w.logger.Debug(ctx, "leaderboards invalidated",
		logger.String("eventID", c.EventID),
		logger.String("userID", c.UserID),
		logger.String("source", c.Source),
	)
	return nil
}

// Pool runs a fixed number of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	wg      sync.WaitGroup
	logger  logger.Logger
}

// NewPool creates count workers. A count below one uses the default.
func NewPool(count int, q Queue, inv Invalidator, opts ...Option) *Pool {
	if count < 1 {
		count = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, count),
		queue:   q,
		logger:  logger.Nop(),
	}
	// Workers share the pool's options; read the logger off a template.
	tmpl := &InMemoryWorker{logger: p.logger}
	for _, opt := range opts {
		opt(tmpl)
	}
	p.logger = tmpl.logger.Named("worker-pool")

	for i := range p.workers {
		workerOpts := append(append([]Option{}, opts...), WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(q, inv, workerOpts...)
	}
	metrics.UpdateWorkerCount(count)
	return p
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns the total number of notifications handled.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Shutdown closes the queue, lets workers drain what is buffered and waits
// for them, bounded by ctx and poolShutdownTimeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	select {
	case <-done:
		metrics.UpdateWorkerCount(0)
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "worker pool shutdown timed out")
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}
