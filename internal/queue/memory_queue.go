package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spikelab/videoworker/internal/common"
	"github.com/spikelab/videoworker/internal/job"
)

// memQueue is an in-process JobQueue used by tests and single-node runs.
// It honors the same lease and terminal-transition semantics as the Redis
// implementation.
type memQueue struct {
	buffer   int
	pollWait time.Duration

	mu      sync.RWMutex
	waiting map[string]chan uuid.UUID // per queue name
	jobs    map[uuid.UUID]*job.Job
}

func NewMemoryQueue(buffer int) JobQueue {
	return &memQueue{
		buffer:   buffer,
		pollWait: 250 * time.Millisecond,
		waiting:  make(map[string]chan uuid.UUID),
		jobs:     make(map[uuid.UUID]*job.Job),
	}
}

func (q *memQueue) queueChan(name string) chan uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.waiting[name]
	if !ok {
		ch = make(chan uuid.UUID, q.buffer)
		q.waiting[name] = ch
	}
	return ch
}

func (q *memQueue) Enqueue(ctx context.Context, queueName string, kind job.Kind, payload []byte) (uuid.UUID, error) {
	j := &job.Job{
		ID:       uuid.New(),
		Queue:    queueName,
		Kind:     kind,
		Payload:  payload,
		Status:   job.StatusWaiting,
		Enqueued: time.Now(),
	}

	ch := q.queueChan(queueName)

	// The record must be visible before the id is handed out: a leaser that
	// receives the id looks it up in q.jobs immediately.
	q.mu.Lock()
	q.jobs[j.ID] = j
	q.mu.Unlock()

	select {
	case ch <- j.ID:
	default:
		// Enqueue never waits for a worker slot; a full buffer is a
		// capacity fault, not a reason to block the producer.
		q.mu.Lock()
		delete(q.jobs, j.ID)
		q.mu.Unlock()
		return uuid.Nil, common.WrapQueueUnavailable("enqueue",
			fmt.Errorf("queue %s buffer is full", queueName))
	}
	return j.ID, nil
}

func (q *memQueue) Lease(ctx context.Context, queueName string) (*job.Job, error) {
	ch := q.queueChan(queueName)

	select {
	case id := <-ch:
		q.mu.Lock()
		defer q.mu.Unlock()
		j, ok := q.jobs[id]
		if !ok || j.Status != job.StatusWaiting {
			return nil, nil
		}
		now := time.Now()
		j.Status = job.StatusActive
		j.Started = &now
		return cloneJob(j), nil
	case <-time.After(q.pollWait):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// cloneJob snapshots a job, including its log, so callers never share the
// live slice with a concurrent ReportProgress append.
func cloneJob(j *job.Job) *job.Job {
	cp := *j
	cp.Log = append([]string(nil), j.Log...)
	return &cp
}

func (q *memQueue) ReportProgress(ctx context.Context, id uuid.UUID, percent int, line string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok || j.Status.Terminal() {
		return
	}
	if percent > j.Progress {
		j.Progress = percent
	}
	if line != "" {
		j.Log = append(j.Log, line)
	}
}

func (q *memQueue) Complete(ctx context.Context, id uuid.UUID, result string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return nil
	}
	if j.Status.Terminal() {
		return nil
	}
	now := time.Now()
	j.Status = job.StatusCompleted
	j.Progress = 100
	j.Result = result
	j.Finished = &now
	return nil
}

func (q *memQueue) Fail(ctx context.Context, id uuid.UUID, msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return nil
	}
	if j.Status.Terminal() {
		return nil
	}
	now := time.Now()
	j.Status = job.StatusFailed
	j.Error = msg
	j.Finished = &now
	return nil
}

func (q *memQueue) Status(ctx context.Context, id uuid.UUID) (*job.Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[id]
	if !ok {
		return nil, false
	}
	return cloneJob(j), true
}

func (q *memQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	n := 0
	for _, j := range q.jobs {
		if !j.Status.Terminal() {
			n++
		}
	}
	return n
}

func (q *memQueue) Close() error {
	return nil
}
