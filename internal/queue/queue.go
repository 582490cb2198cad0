package queue

import (
	"context"

	"github.com/google/uuid"
	"github.com/spikelab/videoworker/internal/job"
)

// JobQueue is the work-distribution contract. No business logic lives behind
// it: enqueue persists a Waiting job, Lease hands an Active job to at most
// one caller, and Complete/Fail are idempotent terminal transitions.
type JobQueue interface {
	// Enqueue persists a new Waiting job. It never blocks on worker
	// availability and fails only on a transport fault.
	Enqueue(ctx context.Context, queueName string, kind job.Kind, payload []byte) (uuid.UUID, error)

	// Lease atomically transitions one Waiting job on queueName to Active
	// and returns it. It returns (nil, nil) when nothing is ready within
	// the poll window. No two concurrent callers ever receive the same job.
	Lease(ctx context.Context, queueName string) (*job.Job, error)

	// ReportProgress appends a log line and raises the job's progress.
	// Progress never decreases; transport errors are logged, not returned.
	ReportProgress(ctx context.Context, id uuid.UUID, percent int, line string)

	// Complete marks the job completed with a result and forces progress
	// to 100. Calling it on an already-terminal job is a no-op.
	Complete(ctx context.Context, id uuid.UUID, result string) error

	// Fail marks the job failed with an error message. Calling it on an
	// already-terminal job is a no-op.
	Fail(ctx context.Context, id uuid.UUID, msg string) error

	// Status returns the job by id, if known.
	Status(ctx context.Context, id uuid.UUID) (*job.Job, bool)

	// Len returns the approximate number of jobs not yet completed.
	Len() int

	Close() error
}
