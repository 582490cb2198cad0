package queue

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spikelab/videoworker/internal/common"
	"github.com/spikelab/videoworker/internal/job"
)

const (
	streamPrefix = "videoworker:stream:"
	jobPrefix    = "videoworker:job:"
	group        = "workers"
)

// RedisQueue implements JobQueue on Redis Streams. Each queue name maps to
// one stream consumed through a consumer group, which gives the
// at-most-one-lease guarantee. Job state lives in a hash per job, the log
// in a list per job.
type RedisQueue struct {
	client   *redis.Client
	consumer string
	pollWait time.Duration
	retainF  time.Duration

	mu      sync.Mutex
	groups  map[string]bool              // queues whose consumer group exists
	pending map[uuid.UUID]pendingMessage // leased but unacknowledged
}

type pendingMessage struct {
	stream string
	msgID  string
}

type RedisQueueConfig struct {
	Consumer string
	PollWait time.Duration
	// Retention for terminal job state, so status lookups keep working
	// after completion.
	Retention time.Duration
}

func DefaultConfig() RedisQueueConfig {
	return RedisQueueConfig{
		Consumer:  "videoworker",
		PollWait:  5 * time.Second,
		Retention: 24 * time.Hour,
	}
}

func NewRedisQueue(client *redis.Client, cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Consumer == "" {
		cfg.Consumer = DefaultConfig().Consumer
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = DefaultConfig().PollWait
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}

	q := &RedisQueue{
		client:   client,
		consumer: cfg.Consumer,
		pollWait: cfg.PollWait,
		retainF:  cfg.Retention,
		groups:   make(map[string]bool),
		pending:  make(map[uuid.UUID]pendingMessage),
	}

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, common.WrapQueueUnavailable("redis ping", err)
	}

	slog.Info("redis queue initialized", "consumer", q.consumer, "poll_wait", q.pollWait)
	return q, nil
}

func streamKey(queueName string) string { return streamPrefix + queueName }
func jobKey(id uuid.UUID) string        { return jobPrefix + id.String() }
func logKey(id uuid.UUID) string        { return jobPrefix + id.String() + ":log" }

// ensureGroup creates the consumer group for queueName once.
func (q *RedisQueue) ensureGroup(ctx context.Context, queueName string) error {
	q.mu.Lock()
	exists := q.groups[queueName]
	q.mu.Unlock()
	if exists {
		return nil
	}

	err := q.client.XGroupCreateMkStream(ctx, streamKey(queueName), group, "0").Err()
	if err != nil && !isGroupExistsError(err) {
		return err
	}

	q.mu.Lock()
	q.groups[queueName] = true
	q.mu.Unlock()
	return nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, queueName string, kind job.Kind, payload []byte) (uuid.UUID, error) {
	if err := q.ensureGroup(ctx, queueName); err != nil {
		return uuid.Nil, common.WrapQueueUnavailable("create consumer group", err)
	}

	id := uuid.New()
	now := time.Now()

	fields := map[string]any{
		"queue":    queueName,
		"kind":     string(kind),
		"payload":  string(payload),
		"status":   string(job.StatusWaiting),
		"progress": 0,
		"enqueued": now.Format(time.RFC3339Nano),
	}
	if err := q.client.HSet(ctx, jobKey(id), fields).Err(); err != nil {
		return uuid.Nil, common.WrapQueueUnavailable("persist job", err)
	}

	_, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(queueName),
		Values: map[string]any{"id": id.String()},
	}).Result()
	if err != nil {
		return uuid.Nil, common.WrapQueueUnavailable("add job to stream", err)
	}

	slog.Debug("job enqueued", "job_id", id, "queue", queueName, "kind", kind)
	return id, nil
}

func (q *RedisQueue) Lease(ctx context.Context, queueName string) (*job.Job, error) {
	if err := q.ensureGroup(ctx, queueName); err != nil {
		return nil, common.WrapQueueUnavailable("create consumer group", err)
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: q.consumer,
		Streams:  []string{streamKey(queueName), ">"},
		Count:    1,
		Block:    q.pollWait,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, common.WrapQueueUnavailable("read from stream", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			j, err := q.activate(ctx, queueName, msg)
			if err != nil {
				return nil, err
			}
			if j != nil {
				return j, nil
			}
		}
	}
	return nil, nil
}

// activate transitions one delivered message's job to Active. Messages whose
// job record is missing or already terminal are acknowledged and skipped.
func (q *RedisQueue) activate(ctx context.Context, queueName string, msg redis.XMessage) (*job.Job, error) {
	raw, ok := msg.Values["id"].(string)
	if !ok {
		slog.Error("invalid message format", "message_id", msg.ID, "queue", queueName)
		q.ack(ctx, queueName, msg.ID)
		return nil, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		slog.Error("invalid job id in message", "message_id", msg.ID, "value", raw)
		q.ack(ctx, queueName, msg.ID)
		return nil, nil
	}

	j, found, err := q.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found || j.Status.Terminal() {
		q.ack(ctx, queueName, msg.ID)
		return nil, nil
	}

	now := time.Now()
	err = q.client.HSet(ctx, jobKey(id), map[string]any{
		"status":  string(job.StatusActive),
		"started": now.Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return nil, common.WrapQueueUnavailable("activate job", err)
	}

	q.mu.Lock()
	q.pending[id] = pendingMessage{stream: streamKey(queueName), msgID: msg.ID}
	q.mu.Unlock()

	j.Status = job.StatusActive
	j.Started = &now
	return j, nil
}

func (q *RedisQueue) ReportProgress(ctx context.Context, id uuid.UUID, percent int, line string) {
	cur, err := q.client.HGet(ctx, jobKey(id), "progress").Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		slog.Warn("failed to read job progress", "job_id", id, "error", err)
		return
	}
	if percent > cur {
		if err := q.client.HSet(ctx, jobKey(id), "progress", percent).Err(); err != nil {
			slog.Warn("failed to update job progress", "job_id", id, "error", err)
		}
	}
	if line != "" {
		if err := q.client.RPush(ctx, logKey(id), line).Err(); err != nil {
			slog.Warn("failed to append job log", "job_id", id, "error", err)
		}
	}
}

func (q *RedisQueue) Complete(ctx context.Context, id uuid.UUID, result string) error {
	return q.finish(ctx, id, map[string]any{
		"status":   string(job.StatusCompleted),
		"progress": 100,
		"result":   result,
	})
}

func (q *RedisQueue) Fail(ctx context.Context, id uuid.UUID, msg string) error {
	return q.finish(ctx, id, map[string]any{
		"status": string(job.StatusFailed),
		"error":  msg,
	})
}

func (q *RedisQueue) finish(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	status, err := q.client.HGet(ctx, jobKey(id), "status").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil // unknown job, nothing to transition
		}
		return common.WrapQueueUnavailable("read job status", err)
	}
	if job.Status(status).Terminal() {
		return nil
	}

	fields["finished"] = time.Now().Format(time.RFC3339Nano)
	if err := q.client.HSet(ctx, jobKey(id), fields).Err(); err != nil {
		return common.WrapQueueUnavailable("finish job", err)
	}

	// Keep terminal state around for status lookups, then let it expire.
	q.client.Expire(ctx, jobKey(id), q.retainF)
	q.client.Expire(ctx, logKey(id), q.retainF)

	q.mu.Lock()
	p, leased := q.pending[id]
	delete(q.pending, id)
	q.mu.Unlock()
	if leased {
		if err := q.client.XAck(ctx, p.stream, group, p.msgID).Err(); err != nil {
			slog.Error("failed to ack message", "job_id", id, "message_id", p.msgID, "error", err)
		}
	}
	return nil
}

func (q *RedisQueue) Status(ctx context.Context, id uuid.UUID) (*job.Job, bool) {
	j, found, err := q.load(ctx, id)
	if err != nil || !found {
		return nil, false
	}
	lines, err := q.client.LRange(ctx, logKey(id), 0, -1).Result()
	if err == nil {
		j.Log = lines
	}
	return j, true
}

// load reads a job hash into a job.Job. The log is loaded separately.
func (q *RedisQueue) load(ctx context.Context, id uuid.UUID) (*job.Job, bool, error) {
	vals, err := q.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return nil, false, common.WrapQueueUnavailable("load job", err)
	}
	if len(vals) == 0 {
		return nil, false, nil
	}

	j := &job.Job{
		ID:      id,
		Queue:   vals["queue"],
		Kind:    job.Kind(vals["kind"]),
		Payload: []byte(vals["payload"]),
		Status:  job.Status(vals["status"]),
		Result:  vals["result"],
		Error:   vals["error"],
	}
	if v, err := strconv.Atoi(vals["progress"]); err == nil {
		j.Progress = v
	}
	if t, err := time.Parse(time.RFC3339Nano, vals["enqueued"]); err == nil {
		j.Enqueued = t
	}
	if t, err := time.Parse(time.RFC3339Nano, vals["started"]); err == nil {
		j.Started = &t
	}
	if t, err := time.Parse(time.RFC3339Nano, vals["finished"]); err == nil {
		j.Finished = &t
	}
	return j, true, nil
}

func (q *RedisQueue) Len() int {
	ctx := context.Background()
	q.mu.Lock()
	queues := make([]string, 0, len(q.groups))
	for name := range q.groups {
		queues = append(queues, name)
	}
	q.mu.Unlock()

	total := 0
	for _, name := range queues {
		info, err := q.client.XInfoGroups(ctx, streamKey(name)).Result()
		if err != nil {
			continue
		}
		for _, g := range info {
			if g.Name == group {
				total += int(g.Pending + g.Lag)
			}
		}
	}
	return total
}

func (q *RedisQueue) ack(ctx context.Context, queueName, msgID string) {
	if err := q.client.XAck(ctx, streamKey(queueName), group, msgID).Err(); err != nil {
		slog.Error("failed to ack message", "message_id", msgID, "error", err)
	}
}

func (q *RedisQueue) Close() error {
	return nil
}

// isGroupExistsError checks if error is "BUSYGROUP Consumer Group name already exists"
func isGroupExistsError(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}
