// Package worker runs transcript lines from the queue through an evaluator
// and records the results.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/ivscan/internal/adapters/mq/queue"
	"github.com/okian/ivscan/internal/domain/model"
	"github.com/okian/ivscan/internal/domain/refdata"
	"github.com/okian/ivscan/internal/domain/transcript"
	"github.com/okian/ivscan/pkg/logger"
	"github.com/okian/ivscan/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Evaluator turns one transcript line into an evaluation.
type Evaluator interface {
	Evaluate(ctx context.Context, line string) (model.Evaluation, error)
}

// Recorder stores a finished evaluation. A Recorder error stops the pool.
type Recorder interface {
	Record(ctx context.Context, seq int, ev model.Evaluation) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs and records evaluations using the provided interfaces.
type Worker interface {
	// Run processes jobs until the channel closes, ctx is cancelled or
	// Shutdown is called.
	Run(ctx context.Context, jobs <-chan queue.Job) error

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	evaluator Evaluator
	recorder  Recorder
	name      string
	onError   ErrorHandler
	processed atomic.Int64

	shutdown     chan struct{}
	shutdownOnce atomic.Bool
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(evaluator Evaluator, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		evaluator: evaluator,
		recorder:  recorder,
		name:      "worker",
		onError:   func(context.Context, queue.Job, error) {},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop. It returns nil when jobs is closed, ctx.Err()
// when cancelled and the recorder's error when a result cannot be stored.
func (w *InMemoryWorker) Run(ctx context.Context, jobs <-chan queue.Job) error {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.shutdown:
			return nil
		case j, ok := <-jobs:
			if !ok {
				return nil
			}
			// a job picked up after cancellation is dropped
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := w.process(ctx, j); err != nil {
				return err
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	if w.shutdownOnce.CompareAndSwap(false, true) {
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

// Processed returns the number of jobs this worker evaluated successfully.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

// process handles a single job. Only recorder failures are returned.
func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	ev, err := w.evaluator.Evaluate(ctx, j.Line)
	if err != nil {
		reason := Reason(err)
		metrics.RecordWorkerError(reason)
		// non-observation lines are the common case in a log stream
		if reason != reasonNoMatch {
			w.logger.Debug(ctx, "evaluation failed",
				logger.Int("seq", j.Seq),
				logger.String("reason", reason),
				logger.Error(err),
			)
		}
		w.onError(ctx, j, err)
		return nil
	}

	if err := w.recorder.Record(ctx, j.Seq, ev); err != nil {
		metrics.RecordWorkerError("record")
		w.logger.Error(ctx, "recording evaluation failed",
			logger.Int("seq", j.Seq),
			logger.String("evaluation_id", ev.ID),
			logger.Error(err),
		)
		return fmt.Errorf("record evaluation %s: %w", ev.ID, err)
	}

	w.processed.Add(1)
	return nil
}

const (
	reasonNoMatch   = "no_match"
	reasonMalformed = "malformed"
	reasonLookup    = "lookup"
	reasonCancelled = "cancelled"
	reasonOther     = "evaluation"
)

// Reason maps an evaluation error to a metrics label.
func Reason(err error) string {
	switch {
	case errors.Is(err, transcript.ErrNoMatch):
		return reasonNoMatch
	case errors.Is(err, transcript.ErrMalformedField):
		return reasonMalformed
	case errors.Is(err, refdata.ErrOutOfRange):
		return reasonLookup
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return reasonCancelled
	default:
		return reasonOther
	}
}

// Pool runs a fixed set of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a new worker pool. A non-positive count uses runtime.NumCPU().
// opts are applied to every worker; each worker is named worker-<i>.
func NewPool(workerCount int, q Queue, evaluator Evaluator, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		workerOpts := append(append([]Option{}, opts...), WithName("worker-"+strconv.Itoa(i)))
		pool.workers[i] = NewInMemoryWorker(evaluator, recorder, workerOpts...)
	}

	metrics.UpdateWorkerCount(workerCount)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the jobs evaluated successfully across all workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Run starts every worker and blocks until the queue is drained, ctx is
// cancelled or a worker fails. The first failure cancels the others.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	jobs := p.queue.Dequeue(gctx)

	for _, w := range p.workers {
		g.Go(func() error {
			return w.Run(gctx, jobs)
		})
	}

	err := g.Wait()
	p.logger.Debug(ctx, "worker pool stopped",
		logger.Int("workers", len(p.workers)),
		logger.Int("processed", int(p.Processed())),
	)
	return err
}

// Shutdown stops every worker after its current job.
func (p *Pool) Shutdown(ctx context.Context) error {
	var errs []error
	for i, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
