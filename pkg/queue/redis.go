package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	applogger "SolSignal/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

const (
	queueKey = "solsignal:queue:messages"
	retryKey = "solsignal:queue:retry"
	deadKey  = "solsignal:queue:dlq"

	popWait    = time.Second
	retryEvery = 5 * time.Second
)

// RedisQueue is a Redis-list job queue with delayed retries and a dead
// letter list. One instance both publishes and consumes; failed messages
// park in a ZSET until their retry is due.
type RedisQueue struct {
	log    *applogger.Logger
	cfg    *QueueConfig
	client *redis.Client
	jobs   map[string]Job

	mu      sync.RWMutex
	running bool

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewRedisQueue builds a queue over client. Register jobs before Start.
func NewRedisQueue(lgr *applogger.Logger, cfg *QueueConfig, client *redis.Client) *RedisQueue {
	if cfg == nil {
		cfg = &QueueConfig{}
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue{
		log:    lgr,
		cfg:    cfg,
		client: client,
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
		stop:   make(chan struct{}),
	}
}

// RegisterJobs registers each job in order.
func (r *RedisQueue) RegisterJobs(jobs []Job) {
	for _, j := range jobs {
		r.RegisterJob(j)
	}
}

// RegisterJob adds a job; the first registration wins on duplicate types.
func (r *RedisQueue) RegisterJob(j Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.jobs[j.Type()]; dup {
		r.log.Warn("duplicate job type ignored",
			applogger.String("job", j.Name()),
			applogger.String("type", j.Type()))
		return
	}
	r.jobs[j.Type()] = j
	r.log.Info("queue job registered",
		applogger.String("job", j.Name()),
		applogger.String("type", j.Type()))
}

// Start verifies the Redis connection, then launches the worker pool and
// the retry mover.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return errors.New("queue already running")
	}
	r.running = true
	njobs := len(r.jobs)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := r.client.Ping(ctx).Err()
	cancel()
	if err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return fmt.Errorf("redis ping: %w", err)
	}

	for i := 0; i < r.cfg.Workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	r.wg.Add(1)
	go r.retryLoop()

	r.log.Info("redis queue started",
		applogger.Int("workers", r.cfg.Workers),
		applogger.Int("jobs", njobs))
	return nil
}

// Stop halts intake, cancels in-flight handlers, and waits for the workers
// until ctx expires.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	close(r.stop)
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.log.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		r.log.Warn("redis queue stop timed out", applogger.Error(ctx.Err()))
		return fmt.Errorf("stop queue: %w", ctx.Err())
	}
}

// PublishMessage enqueues one message. It implements QueueService.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return errors.New("queue not running")
	}
	if !known {
		return fmt.Errorf("no job registered for type %q", msgType)
	}

	if limit := int64(r.cfg.QueueSize); limit > 0 {
		if depth, err := r.client.LLen(ctx, queueKey).Result(); err == nil && depth >= limit {
			return fmt.Errorf("queue full: %d messages waiting", depth)
		}
	}

	msg := Message{
		ID:        strconv.FormatInt(time.Now().UnixNano(), 10),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, queueKey, data).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", msgType, err)
	}
	publishedTotal.WithLabelValues(msgType).Inc()
	return nil
}

func (r *RedisQueue) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		case <-r.ctx.Done():
			return
		default:
		}
		if msg, ok := r.dequeue(); ok {
			r.dispatch(msg)
		}
	}
}

// dequeue blocks briefly for the next message and normalizes its payload.
// The pop context outlives the BRPop wait so redis.Nil, not a deadline, is
// the normal idle result.
func (r *RedisQueue) dequeue() (Message, bool) {
	ctx, cancel := context.WithTimeout(r.ctx, popWait+time.Second)
	defer cancel()

	res, err := r.client.BRPop(ctx, popWait, queueKey).Result()
	if err != nil {
		switch {
		case errors.Is(err, redis.Nil),
			errors.Is(err, context.DeadlineExceeded),
			errors.Is(err, context.Canceled):
		default:
			r.log.Error("queue pop failed", applogger.Error(err))
			time.Sleep(time.Second)
		}
		return Message{}, false
	}
	if len(res) != 2 {
		return Message{}, false
	}

	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		r.log.Error("queue message decode failed", applogger.Error(err))
		return Message{}, false
	}
	msg.Payload = normalizePayload(msg.Payload)
	return msg, true
}

func (r *RedisQueue) dispatch(msg Message) {
	job, ok := r.jobs[msg.Type]
	if !ok {
		r.log.Error("no job for message type",
			applogger.String("type", msg.Type),
			applogger.String("id", msg.ID))
		return
	}

	start := time.Now()
	err := job.Handle(r.ctx, msg.Payload)
	jobSeconds.WithLabelValues(job.Name()).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		jobOutcomes.WithLabelValues(job.Name(), "ok").Inc()
	case errors.Is(err, context.Canceled):
		jobOutcomes.WithLabelValues(job.Name(), "cancelled").Inc()
		r.log.Warn("job cancelled mid-run",
			applogger.String("job", job.Name()),
			applogger.String("id", msg.ID))
	default:
		r.retryOrBury(msg, job, err)
	}
}

func (r *RedisQueue) retryOrBury(msg Message, job Job, cause error) {
	if msg.Attempts < r.cfg.RetryLimit {
		msg.Attempts++
		due := time.Now().Add(r.cfg.RetryDelay)
		jobOutcomes.WithLabelValues(job.Name(), "retry").Inc()
		r.log.Warn("job failed, retry scheduled",
			applogger.String("job", job.Name()),
			applogger.String("id", msg.ID),
			applogger.Int("attempt", msg.Attempts),
			applogger.String("due", due.Format(time.RFC3339)),
			applogger.Error(cause))
		r.schedule(msg, due)
		return
	}
	jobOutcomes.WithLabelValues(job.Name(), "dead").Inc()
	r.log.Error("job failed permanently",
		applogger.String("job", job.Name()),
		applogger.String("id", msg.ID),
		applogger.Int("attempts", msg.Attempts+1),
		applogger.Error(cause))
	r.bury(msg)
}

func (r *RedisQueue) schedule(msg Message, due time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal retry message", applogger.Error(err))
		return
	}
	z := redis.Z{Score: float64(due.Unix()), Member: data}
	if err := r.client.ZAdd(context.Background(), retryKey, z).Err(); err != nil {
		r.log.Error("schedule retry", applogger.Error(err))
	}
}

func (r *RedisQueue) bury(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal dead message", applogger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), deadKey, data).Err(); err != nil {
		r.log.Error("dead letter push", applogger.Error(err))
	}
}

// retryLoop periodically moves due retry messages back onto the main list.
func (r *RedisQueue) retryLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(retryEvery)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.promoteDue()
		}
	}
}

func (r *RedisQueue) promoteDue() {
	cutoff := strconv.FormatInt(time.Now().Unix(), 10)
	due, err := r.client.ZRangeByScore(r.ctx, retryKey, &redis.ZRangeBy{
		Min: "0",
		Max: cutoff,
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.log.Error("list due retries", applogger.Error(err))
		}
		return
	}

	for _, member := range due {
		pipe := r.client.TxPipeline()
		pipe.ZRem(r.ctx, retryKey, member)
		pipe.LPush(r.ctx, queueKey, member)
		if _, err := pipe.Exec(r.ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.log.Error("promote retry", applogger.Error(err))
		}
	}
}

var (
	publishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solsignal_queue_published_total",
			Help: "Messages accepted into the queue.",
		},
		[]string{"type"},
	)
	jobOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solsignal_queue_jobs_total",
			Help: "Job executions by outcome.",
		},
		[]string{"job", "outcome"},
	)
	jobSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "solsignal_queue_job_seconds",
			Help: "Job handler duration.",
		},
		[]string{"job"},
	)
)
