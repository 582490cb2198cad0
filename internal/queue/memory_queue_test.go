package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/spikelab/videoworker/internal/common"
	"github.com/spikelab/videoworker/internal/job"
)

func TestMemoryQueue_EnqueueSetsDefaults(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()

	id, err := q.Enqueue(context.Background(), "test-queue", job.KindMontage, []byte(`{}`))
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if id == uuid.Nil {
		t.Fatalf("expected non-nil job id")
	}

	j, ok := q.Status(context.Background(), id)
	if !ok {
		t.Fatalf("expected to find job by id")
	}
	if j.Status != job.StatusWaiting {
		t.Fatalf("expected status waiting, got %s", j.Status)
	}
	if j.Queue != "test-queue" {
		t.Fatalf("expected queue test-queue, got %s", j.Queue)
	}
	if j.Enqueued.IsZero() {
		t.Fatalf("expected enqueued timestamp to be set")
	}
}

func TestMemoryQueue_LeaseActivatesJob(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()

	id, err := q.Enqueue(context.Background(), "test-queue", job.KindUpload, []byte(`{"videoId":1}`))
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	j, err := q.Lease(context.Background(), "test-queue")
	if err != nil {
		t.Fatalf("Lease error: %v", err)
	}
	if j == nil {
		t.Fatalf("expected a job from Lease")
	}
	if j.ID != id {
		t.Fatalf("expected job %s, got %s", id, j.ID)
	}
	if j.Status != job.StatusActive {
		t.Fatalf("expected status active, got %s", j.Status)
	}
	if j.Started == nil {
		t.Fatalf("expected started timestamp to be set")
	}
}

func TestMemoryQueue_LeaseReturnsNilWhenEmpty(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()

	j, err := q.Lease(context.Background(), "empty-queue")
	if err != nil {
		t.Fatalf("Lease error: %v", err)
	}
	if j != nil {
		t.Fatalf("expected nil job from empty queue, got %v", j.ID)
	}
}

func TestMemoryQueue_NoDoubleLease(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()

	id, err := q.Enqueue(context.Background(), "test-queue", job.KindMontage, []byte(`{}`))
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	const callers = 8
	var wg sync.WaitGroup
	leased := make(chan uuid.UUID, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j, err := q.Lease(context.Background(), "test-queue")
			if err != nil {
				t.Errorf("Lease error: %v", err)
				return
			}
			if j != nil {
				leased <- j.ID
			}
		}()
	}
	wg.Wait()
	close(leased)

	count := 0
	for got := range leased {
		count++
		if got != id {
			t.Errorf("leased unexpected job %s", got)
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one successful lease, got %d", count)
	}
}

func TestMemoryQueue_ProgressIsMonotonic(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()

	id, _ := q.Enqueue(context.Background(), "test-queue", job.KindMontage, []byte(`{}`))

	q.ReportProgress(context.Background(), id, 45, "clips extracted")
	q.ReportProgress(context.Background(), id, 10, "late event") // must not regress
	q.ReportProgress(context.Background(), id, 70, "merged")

	j, _ := q.Status(context.Background(), id)
	if j.Progress != 70 {
		t.Fatalf("expected progress 70, got %d", j.Progress)
	}
	if len(j.Log) != 3 {
		t.Fatalf("expected 3 log lines, got %d", len(j.Log))
	}
}

func TestMemoryQueue_CompleteSetsProgress100(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()

	id, _ := q.Enqueue(context.Background(), "test-queue", job.KindMontage, []byte(`{}`))
	if _, err := q.Lease(context.Background(), "test-queue"); err != nil {
		t.Fatalf("Lease error: %v", err)
	}

	if err := q.Complete(context.Background(), id, "montage_1.mp4"); err != nil {
		t.Fatalf("Complete error: %v", err)
	}

	j, _ := q.Status(context.Background(), id)
	if j.Status != job.StatusCompleted {
		t.Fatalf("expected status completed, got %s", j.Status)
	}
	if j.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", j.Progress)
	}
	if j.Result != "montage_1.mp4" {
		t.Fatalf("expected result montage_1.mp4, got %s", j.Result)
	}
	if j.Finished == nil {
		t.Fatalf("expected finished timestamp to be set")
	}
}

func TestMemoryQueue_TerminalTransitionsAreIdempotent(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()

	id, _ := q.Enqueue(context.Background(), "test-queue", job.KindUpload, []byte(`{}`))

	if err := q.Fail(context.Background(), id, "boom"); err != nil {
		t.Fatalf("Fail error: %v", err)
	}

	// Both re-fail and complete-after-fail must be no-ops.
	if err := q.Fail(context.Background(), id, "boom again"); err != nil {
		t.Fatalf("second Fail error: %v", err)
	}
	if err := q.Complete(context.Background(), id, "nope"); err != nil {
		t.Fatalf("Complete after Fail error: %v", err)
	}

	j, _ := q.Status(context.Background(), id)
	if j.Status != job.StatusFailed {
		t.Fatalf("expected status failed, got %s", j.Status)
	}
	if j.Error != "boom" {
		t.Fatalf("expected first failure message to be preserved, got %q", j.Error)
	}
	if j.Progress == 100 {
		t.Fatalf("failed job must not reach progress 100")
	}
	if j.Result != "" {
		t.Fatalf("failed job must not carry a result, got %q", j.Result)
	}
}

func TestMemoryQueue_ProgressAfterTerminalIsIgnored(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()

	id, _ := q.Enqueue(context.Background(), "test-queue", job.KindMontage, []byte(`{}`))
	_ = q.Complete(context.Background(), id, "done")

	q.ReportProgress(context.Background(), id, 50, "stray report")

	j, _ := q.Status(context.Background(), id)
	if j.Progress != 100 {
		t.Fatalf("expected progress to stay at 100, got %d", j.Progress)
	}
	if len(j.Log) != 0 {
		t.Fatalf("expected no log lines after terminal state, got %d", len(j.Log))
	}
}

func TestMemoryQueue_JobVisibleBeforeDelivery(t *testing.T) {
	// Leasers racing with producers: a leaser that receives an id must
	// always find the job record, so every enqueued job is delivered
	// exactly once and none is stranded in Waiting.
	const producers = 4
	const perProducer = 200

	q := NewMemoryQueue(producers * perProducer)
	defer q.Close()

	leased := make(chan uuid.UUID, producers*perProducer)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var leasers sync.WaitGroup
	for i := 0; i < 4; i++ {
		leasers.Add(1)
		go func() {
			defer leasers.Done()
			for {
				j, err := q.Lease(ctx, "race-queue")
				if err != nil {
					return
				}
				if j == nil {
					if ctx.Err() != nil {
						return
					}
					continue
				}
				leased <- j.ID
			}
		}()
	}

	var producersWG sync.WaitGroup
	enqueued := make(chan uuid.UUID, producers*perProducer)
	for i := 0; i < producers; i++ {
		producersWG.Add(1)
		go func() {
			defer producersWG.Done()
			for n := 0; n < perProducer; n++ {
				id, err := q.Enqueue(context.Background(), "race-queue", job.KindMontage, []byte(`{}`))
				if err != nil {
					t.Errorf("Enqueue error: %v", err)
					return
				}
				enqueued <- id
			}
		}()
	}
	producersWG.Wait()
	close(enqueued)

	want := make(map[uuid.UUID]bool, producers*perProducer)
	for id := range enqueued {
		want[id] = true
	}

	got := make(map[uuid.UUID]bool, len(want))
	for len(got) < len(want) {
		select {
		case id := <-leased:
			if got[id] {
				t.Fatalf("job %s delivered twice", id)
			}
			got[id] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout: %d of %d jobs delivered, rest stranded", len(got), len(want))
		}
	}
	cancel()
	leasers.Wait()

	for id := range want {
		if !got[id] {
			t.Fatalf("job %s was never delivered", id)
		}
	}
}

func TestMemoryQueue_FullBufferFailsFast(t *testing.T) {
	q := NewMemoryQueue(1)
	defer q.Close()

	if _, err := q.Enqueue(context.Background(), "tiny-queue", job.KindMontage, []byte(`{}`)); err != nil {
		t.Fatalf("first Enqueue error: %v", err)
	}

	start := time.Now()
	id, err := q.Enqueue(context.Background(), "tiny-queue", job.KindMontage, []byte(`{}`))
	if err == nil {
		t.Fatalf("expected an error from a full queue")
	}
	if !common.IsQueueUnavailable(err) {
		t.Fatalf("expected a queue-unavailable error, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Enqueue blocked on a full buffer")
	}
	if id != uuid.Nil {
		t.Fatalf("failed enqueue must not return an id, got %s", id)
	}

	// The rejected job must leave no record behind.
	if got := q.Len(); got != 1 {
		t.Fatalf("expected 1 pending job, got %d", got)
	}
}

func TestMemoryQueue_StatusSnapshotsLog(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()

	id, _ := q.Enqueue(context.Background(), "test-queue", job.KindMontage, []byte(`{}`))
	q.ReportProgress(context.Background(), id, 10, "first line")

	snapshot, ok := q.Status(context.Background(), id)
	if !ok {
		t.Fatalf("expected to find job by id")
	}

	// Neither direction may leak through the copy.
	snapshot.Log[0] = "tampered"
	q.ReportProgress(context.Background(), id, 20, "second line")

	fresh, _ := q.Status(context.Background(), id)
	if fresh.Log[0] != "first line" {
		t.Fatalf("live log mutated through a snapshot: %q", fresh.Log[0])
	}
	if len(snapshot.Log) != 1 {
		t.Fatalf("snapshot log grew after a later append: %d lines", len(snapshot.Log))
	}
}

func TestMemoryQueue_QueuesAreIsolated(t *testing.T) {
	q := NewMemoryQueue(10)
	defer q.Close()

	if _, err := q.Enqueue(context.Background(), "queue-a", job.KindMontage, []byte(`{}`)); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	j, err := q.Lease(context.Background(), "queue-b")
	if err != nil {
		t.Fatalf("Lease error: %v", err)
	}
	if j != nil {
		t.Fatalf("queue-b must not see queue-a jobs")
	}
}
