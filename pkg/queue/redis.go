package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"TrendScan/pkg/logger"
)

// RedisQueue is a Redis list backed job queue with delayed retries and a
// dead-letter list.
type RedisQueue struct {
	l      *logger.Logger
	cfg    Config
	client *redis.Client
	prefix string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	now   func() time.Time
	newID func() string
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets the key prefix of the message, retry and dead-letter lists.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(q *RedisQueue) {
		q.prefix = prefix
	}
}

// NewRedisQueue creates a queue on client. Call Register before Start.
func NewRedisQueue(l *logger.Logger, cfg Config, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	if l == nil {
		l = logger.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	q := &RedisQueue{
		l:      l,
		cfg:    cfg,
		client: client,
		prefix: "trendscan:queue",
		jobs:   make(map[string]Job),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Register adds a job. A second job for the same type is ignored.
func (q *RedisQueue) Register(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.jobs[job.Type()]; exists {
		q.l.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	q.jobs[job.Type()] = job
	q.l.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start pings Redis and launches the workers and the retry promoter.
func (q *RedisQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return fmt.Errorf("queue already running")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := q.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	runCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	q.cancel = stop
	q.running = true

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(runCtx, i)
	}
	q.wg.Add(1)
	go q.retryLoop(runCtx)

	q.l.Info("redis queue started",
		logger.Int("workers", q.cfg.Workers),
		logger.String("addr", q.client.Options().Addr))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs until ctx is done.
func (q *RedisQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		q.l.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("stop queue: %w", ctx.Err())
	case <-done:
		q.l.Info("redis queue stopped")
		return nil
	}
}

// Enqueue pushes a message for a registered job type.
func (q *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.RLock()
	_, ok := q.jobs[msgType]
	q.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no job registered for type %q", msgType)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Message{
		ID:        q.newID(),
		Type:      msgType,
		Payload:   body,
		Timestamp: q.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := q.client.LPush(ctx, q.queueKey(), string(data)).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

func (q *RedisQueue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	q.l.Debug("queue worker started", logger.Int("worker_id", id))

	for ctx.Err() == nil {
		res, err := q.client.BRPop(ctx, q.cfg.PollTimeout, q.queueKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			q.l.Error("brpop error", logger.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}
		q.dispatch(ctx, res[1])
	}
	q.l.Debug("queue worker stopped", logger.Int("worker_id", id))
}

// dispatch runs the job for one raw message and routes failures to the
// retry set or the dead-letter list.
func (q *RedisQueue) dispatch(ctx context.Context, raw string) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		q.l.Error("unmarshal message", logger.Error(err))
		return
	}

	q.mu.RLock()
	job, ok := q.jobs[msg.Type]
	q.mu.RUnlock()
	if !ok {
		q.l.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		return
	}

	start := q.now()
	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		q.l.Info("job done",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("duration_ms", q.now().Sub(start)))
		return
	}
	if errors.Is(err, context.Canceled) {
		q.l.Warn("job cancelled", logger.String("id", msg.ID), logger.String("job", job.Name()))
		return
	}
	q.fail(ctx, msg, job, err)
}

func (q *RedisQueue) fail(ctx context.Context, msg Message, job Job, cause error) {
	q.l.Error("job failed",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(cause))

	ctx = context.WithoutCancel(ctx)
	if msg.Attempts >= q.cfg.RetryLimit {
		data, err := json.Marshal(msg)
		if err != nil {
			q.l.Error("marshal dead letter", logger.Error(err))
			return
		}
		if err := q.client.LPush(ctx, q.deadLetterKey(), string(data)).Err(); err != nil {
			q.l.Error("lpush dead letter", logger.Error(err))
		}
		q.l.Error("max retries reached", logger.String("id", msg.ID), logger.String("job", job.Name()))
		return
	}

	msg.Attempts++
	at := q.now().Add(q.cfg.RetryDelay)
	data, err := json.Marshal(msg)
	if err != nil {
		q.l.Error("marshal retry", logger.Error(err))
		return
	}
	if err := q.client.ZAdd(ctx, q.retryKey(), redis.Z{Score: float64(at.Unix()), Member: string(data)}).Err(); err != nil {
		q.l.Error("zadd retry", logger.Error(err))
		return
	}
	q.l.Info("retry scheduled",
		logger.String("id", msg.ID),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", at.Format(time.RFC3339)))
}

func (q *RedisQueue) retryLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.promoteRetries(ctx)
		}
	}
}

// promoteRetries moves due messages from the retry set back to the queue.
func (q *RedisQueue) promoteRetries(ctx context.Context) {
	due, err := q.client.ZRangeByScore(ctx, q.retryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(q.now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			q.l.Error("fetch retry messages", logger.Error(err))
		}
		return
	}

	for _, data := range due {
		if ctx.Err() != nil {
			return
		}
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, q.retryKey(), data)
		pipe.LPush(ctx, q.queueKey(), data)
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, context.Canceled) {
			q.l.Error("move retry to queue", logger.Error(err))
		}
	}
}

func (q *RedisQueue) queueKey() string {
	return q.prefix + ":messages"
}

func (q *RedisQueue) retryKey() string {
	return q.prefix + ":retry"
}

func (q *RedisQueue) deadLetterKey() string {
	return q.prefix + ":dlq"
}
