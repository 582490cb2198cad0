package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spikelab/videoworker/internal/common"
	"github.com/spikelab/videoworker/internal/job"
	"github.com/spikelab/videoworker/internal/queue"
)

// HandlerFunc runs one job to completion and returns its result payload.
type HandlerFunc func(ctx context.Context, j *job.Job) (string, error)

// maxLeaseFailures is the number of consecutive lease transport faults after
// which the pool gives up and reports fatal to the supervisor.
const maxLeaseFailures = 10

// Pool continuously leases jobs from one named queue and drives each through
// the handler matching its kind, up to a fixed concurrency limit. Individual
// job failures (including panics) never take the pool down; only a sustained
// queue transport fault does, and that is surfaced on Done rather than
// swallowed.
type Pool struct {
	queue       queue.JobQueue
	queueName   string
	concurrency int
	maxJobTime  time.Duration
	handlers    map[job.Kind]HandlerFunc

	wg       sync.WaitGroup
	fatal    chan error
	fatalOne sync.Once
}

func NewPool(q queue.JobQueue, queueName string, concurrency int, maxJobTime time.Duration) *Pool {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &Pool{
		queue:       q,
		queueName:   queueName,
		concurrency: concurrency,
		maxJobTime:  maxJobTime,
		handlers:    make(map[job.Kind]HandlerFunc),
		fatal:       make(chan error, 1),
	}
}

// Register binds a handler to a job kind. Must be called before Start.
func (p *Pool) Register(kind job.Kind, h HandlerFunc) {
	p.handlers[kind] = h
}

// Done delivers at most one fatal queue-transport error. The process
// supervisor should treat it as unrecoverable.
func (p *Pool) Done() <-chan error {
	return p.fatal
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i+1)
	}
	slog.Info("worker pool started", "queue", p.queueName, "concurrency", p.concurrency)
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker shutting down", "queue", p.queueName, "worker", id)
			return
		default:
		}

		j, err := p.queue.Lease(ctx, p.queueName)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			slog.Error("failed to lease job", "queue", p.queueName, "worker", id,
				"consecutive_failures", failures, "error", err)
			if common.IsQueueUnavailable(err) && failures >= maxLeaseFailures {
				p.fatalOne.Do(func() {
					p.fatal <- fmt.Errorf("queue %s: lease failing persistently: %w", p.queueName, err)
				})
				return
			}
			time.Sleep(time.Second) // backoff on transport error
			continue
		}
		failures = 0

		if j == nil {
			continue // nothing ready within the poll window
		}

		p.runJob(ctx, j, id)
	}
}

// runJob executes one job in isolation: any error or panic is converted into
// exactly one terminal Fail, never propagated to sibling jobs.
func (p *Pool) runJob(ctx context.Context, j *job.Job, workerID int) {
	slog.Info("processing job", "job_id", j.ID, "queue", p.queueName, "kind", j.Kind, "worker", workerID)
	start := time.Now()

	result, err := p.execute(ctx, j)
	if err != nil {
		slog.Error("job failed", "job_id", j.ID, "kind", j.Kind, "worker", workerID, "error", err)
		if ferr := p.queue.Fail(context.WithoutCancel(ctx), j.ID, err.Error()); ferr != nil {
			slog.Error("failed to report job failure", "job_id", j.ID, "error", ferr)
		}
		return
	}

	if cerr := p.queue.Complete(context.WithoutCancel(ctx), j.ID, result); cerr != nil {
		slog.Error("failed to report job completion", "job_id", j.ID, "error", cerr)
		return
	}
	slog.Info("job completed", "job_id", j.ID, "kind", j.Kind, "worker", workerID,
		"duration", time.Since(start))
}

func (p *Pool) execute(ctx context.Context, j *job.Job) (result string, err error) {
	handler, ok := p.handlers[j.Kind]
	if !ok {
		return "", fmt.Errorf("unknown job kind: %s", j.Kind)
	}

	runCtx := ctx
	if p.maxJobTime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.maxJobTime)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	return handler(runCtx, j)
}
