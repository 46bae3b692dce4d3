package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joseph-ayodele/bill-extractor/internal/pipeline"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// Processor is the work each job performs.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type job struct {
	ctx         context.Context
	req         pipeline.Request
	submittedAt time.Time
	done        chan outcome
}

type outcome struct {
	res pipeline.Result
	err error
}

// ProcessorQueue runs pipeline jobs on a fixed set of workers. Submit blocks
// until the job finishes so HTTP handlers can answer synchronously while the
// number of concurrent pipelines stays bounded.
type ProcessorQueue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool

	depth prometheus.Gauge
	wait  prometheus.Histogram
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithRegisterer registers the queue's gauges with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(q *ProcessorQueue) {
		if reg != nil {
			reg.MustRegister(q.depth, q.wait)
		}
	}
}

func NewProcessorQueue(proc Processor, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 2,
		timeout: 10 * time.Minute,
		ch:      make(chan job, 32),
		depth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bill_extractor",
			Name:      "queue_depth",
			Help:      "Jobs waiting for a worker.",
		}),
		wait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bill_extractor",
			Name:      "queue_wait_seconds",
			Help:      "Time jobs spent waiting for a worker.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for j := range q.ch {
					q.depth.Dec()
					q.wait.Observe(time.Since(j.submittedAt).Seconds())
					j.done <- q.run(workerID, j)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) run(workerID int, j job) outcome {
	if err := j.ctx.Err(); err != nil {
		q.logger.Warn("job abandoned before start", "worker_id", workerID, "job_id", j.req.JobID)
		return outcome{err: err}
	}
	// the caller's cancellation still applies
	ctx, cancel := context.WithTimeout(j.ctx, q.timeout)
	defer cancel()

	res, err := q.proc.Process(ctx, j.req)
	if err != nil {
		q.logger.Error("processing failed", "worker_id", workerID, "job_id", j.req.JobID, "error", err)
	} else {
		q.logger.Info("processed job successfully", "worker_id", workerID, "job_id", j.req.JobID)
	}
	return outcome{res: res, err: err}
}

// Submit enqueues req and waits for its result. A full queue applies
// backpressure until ctx is done.
func (q *ProcessorQueue) Submit(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	j := job{ctx: ctx, req: req, submittedAt: time.Now(), done: make(chan outcome, 1)}

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", req.JobID)
		return pipeline.Result{JobID: req.JobID}, ErrQueueClosed
	}
	select {
	case q.ch <- j:
		q.depth.Inc()
		q.logger.Info("queued job for processing", "job_id", req.JobID, "files", len(req.Files))
	default:
		q.logger.Warn("queue full, applying backpressure", "job_id", req.JobID)
		select {
		case q.ch <- j:
			q.depth.Inc()
		case <-ctx.Done():
			q.mu.RUnlock()
			return pipeline.Result{JobID: req.JobID}, ctx.Err()
		}
	}
	q.mu.RUnlock()

	out := <-j.done
	return out.res, out.err
}

func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
