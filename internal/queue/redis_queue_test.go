package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spikelab/videoworker/internal/job"
)

func getTestRedisClient(t *testing.T) *redis.Client {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Skipf("Skipping Redis queue test: invalid Redis URL: %v", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping Redis queue test: Redis not available: %v", err)
	}

	return client
}

func newTestRedisQueue(t *testing.T, client *redis.Client) (*RedisQueue, string) {
	t.Helper()

	queueName := "test:" + uuid.New().String()[:8]
	t.Cleanup(func() {
		client.Del(context.Background(), streamKey(queueName))
	})

	q, err := NewRedisQueue(client, RedisQueueConfig{
		Consumer:  "test-worker",
		PollWait:  500 * time.Millisecond,
		Retention: time.Minute,
	})
	if err != nil {
		t.Fatalf("Failed to create queue: %v", err)
	}
	return q, queueName
}

func TestRedisQueue_EnqueueLeaseComplete(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	client := getTestRedisClient(t)
	defer client.Close()

	q, queueName := newTestRedisQueue(t, client)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, queueName, job.KindMontage, []byte(`{"filename":"match.mp4"}`))
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	t.Cleanup(func() {
		client.Del(context.Background(), jobKey(id), logKey(id))
	})

	j, err := q.Lease(ctx, queueName)
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
	if string(j.Payload) != `{"filename":"match.mp4"}` {
		t.Fatalf("payload mismatch: %s", j.Payload)
	}

	q.ReportProgress(ctx, id, 45, "clips extracted")
	q.ReportProgress(ctx, id, 10, "late event")

	st, ok := q.Status(ctx, id)
	if !ok {
		t.Fatalf("expected job status to be readable")
	}
	if st.Progress != 45 {
		t.Fatalf("expected progress 45, got %d", st.Progress)
	}
	if len(st.Log) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(st.Log))
	}

	if err := q.Complete(ctx, id, "montage_1.mp4"); err != nil {
		t.Fatalf("Complete error: %v", err)
	}

	st, _ = q.Status(ctx, id)
	if st.Status != job.StatusCompleted {
		t.Fatalf("expected status completed, got %s", st.Status)
	}
	if st.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", st.Progress)
	}

	// Terminal transition must be idempotent.
	if err := q.Fail(ctx, id, "should be ignored"); err != nil {
		t.Fatalf("Fail error: %v", err)
	}
	st, _ = q.Status(ctx, id)
	if st.Status != job.StatusCompleted {
		t.Fatalf("completed job must stay completed, got %s", st.Status)
	}
}

func TestRedisQueue_LeaseReturnsNilWhenEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	client := getTestRedisClient(t)
	defer client.Close()

	q, queueName := newTestRedisQueue(t, client)

	j, err := q.Lease(context.Background(), queueName)
	if err != nil {
		t.Fatalf("Lease error: %v", err)
	}
	if j != nil {
		t.Fatalf("expected nil job from empty queue")
	}
}

func TestRedisQueue_SingleDeliveryAcrossConsumers(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	client := getTestRedisClient(t)
	defer client.Close()

	q, queueName := newTestRedisQueue(t, client)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, queueName, job.KindUpload, []byte(`{"videoId":7}`))
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	t.Cleanup(func() {
		client.Del(context.Background(), jobKey(id), logKey(id))
	})

	first, err := q.Lease(ctx, queueName)
	if err != nil {
		t.Fatalf("first Lease error: %v", err)
	}
	if first == nil {
		t.Fatalf("expected first Lease to return the job")
	}

	second, err := q.Lease(ctx, queueName)
	if err != nil {
		t.Fatalf("second Lease error: %v", err)
	}
	if second != nil {
		t.Fatalf("job delivered twice: %s", second.ID)
	}
}
