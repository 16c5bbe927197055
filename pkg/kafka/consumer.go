package kafka

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	applogger "SolSignal/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

const readPollTimeout = 3 * time.Second

// MessageHandler consumes the payloads of a single topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// ConsumerOption customizes the consumer before it starts.
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds reader and worker-pool settings.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	WorkerCount int
	BufferSize  int
	RetryMax    int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
	DLQTopic    string
	MinBytes    int
	MaxBytes    int
	Logger      *applogger.Logger
}

// WithConsumerBrokers sets the broker addresses.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) { c.Brokers = brokers }
}

// WithConsumerGroupID sets the consumer group.
func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) { c.GroupID = groupID }
}

// WithConsumerWorkers sets the worker-pool size.
func WithConsumerWorkers(count int) ConsumerOption {
	return func(c *ConsumerConfig) { c.WorkerCount = count }
}

// WithConsumerRetry sets the per-message retry count and backoff range.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.RetryMax = max
		c.BackoffMin = backoffMin
		c.BackoffMax = backoffMax
	}
}

// WithConsumerDLQ routes messages that exhaust their retries to topic.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *ConsumerConfig) { c.DLQTopic = topic }
}

// WithConsumerFetch sets fetch min/max bytes.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.MinBytes = minBytes
		c.MaxBytes = maxBytes
	}
}

// WithConsumerBufferSize sets the worker queue depth.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *ConsumerConfig) {
		if n > 0 {
			c.BufferSize = n
		}
	}
}

// WithConsumerLogger routes consumer logs through l.
func WithConsumerLogger(l *applogger.Logger) ConsumerOption {
	return func(c *ConsumerConfig) { c.Logger = l }
}

// delivery is one read message waiting for a worker.
type delivery struct {
	topic string
	km    kafka.Message
}

// Consumer reads registered topics and fans deliveries out to a worker
// pool. Within a partition, messages are handled one at a time so offsets
// commit in order.
type Consumer struct {
	cfg        *ConsumerConfig
	log        *applogger.Logger
	readers    map[string]*kafka.Reader
	handlers   map[string]MessageHandler
	deliveries chan delivery
	dlq        *kafka.Writer
	hook       ConsumerHook

	mu        sync.Mutex
	partLocks map[string]map[int]*sync.Mutex

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConsumer builds a consumer. Brokers are required.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "default",
		WorkerCount: 1,
		BufferSize:  10,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    10e3,
		MaxBytes:    10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	l := cfg.Logger
	if l == nil {
		l, _ = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
	}

	c := &Consumer{
		cfg:        cfg,
		log:        l,
		readers:    make(map[string]*kafka.Reader),
		handlers:   make(map[string]MessageHandler),
		deliveries: make(chan delivery, cfg.BufferSize),
		partLocks:  make(map[string]map[int]*sync.Mutex),
		hook:       NoopHook{},
		stopChan:   make(chan struct{}),
	}
	if cfg.DLQTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.Brokers...), Balancer: &kafka.LeastBytes{}}
	}
	return c, nil
}

// WithConsumerHook installs a lifecycle hook. Must be called before Start.
func (c *Consumer) WithConsumerHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// RegisterHandler binds a handler to its topic. Must be called before
// Start; later registrations for the same topic are ignored.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start opens one reader per registered topic and launches the workers.
func (c *Consumer) Start() error {
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	for topic, reader := range c.readers {
		c.wg.Add(1)
		go c.readLoop(topic, reader)
	}

	topics := make([]string, 0, len(c.readers))
	for topic := range c.readers {
		topics = append(topics, topic)
	}
	c.log.Info("kafka consumer started",
		applogger.Strings("topics", topics),
		applogger.Int("workers", c.cfg.WorkerCount))
	return nil
}

// Stop drains goroutines and closes readers. Waits at most until ctx
// expires.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		close(c.stopChan)
		close(c.deliveries)
		stopErr = c.waitStopped(ctx)

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("kafka reader close failed",
					applogger.String("topic", topic), applogger.Error(err))
			}
		}
		if c.dlq != nil {
			if err := c.dlq.Close(); err != nil {
				c.log.Warn("kafka dlq close failed", applogger.Error(err))
			}
		}
		if stopErr == nil {
			c.log.Info("kafka consumer stopped")
		}
	})
	return stopErr
}

func (c *Consumer) waitStopped(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("waiting for consumer shutdown: %w", ctx.Err())
	case <-done:
		return nil
	}
}

// readLoop polls one topic and feeds the worker queue.
func (c *Consumer) readLoop(topic string, reader *kafka.Reader) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), readPollTimeout)
		km, err := reader.ReadMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				c.log.Warn("kafka read failed",
					applogger.String("topic", topic), applogger.Error(err))
			}
			continue
		}

		if !c.enqueue(delivery{topic: topic, km: km}) {
			return
		}
	}
}

// enqueue blocks until the worker queue accepts d, easing off while the
// buffer runs hot so messages are never dropped. Returns false when the
// consumer is stopping.
func (c *Consumer) enqueue(d delivery) bool {
	for {
		select {
		case c.deliveries <- d:
			queueDepth.WithLabelValues(d.topic).Set(float64(len(c.deliveries)))
			queueFullness.WithLabelValues(d.topic).Set(float64(len(c.deliveries)) / float64(cap(c.deliveries)))
			return true
		case <-c.stopChan:
			return false
		default:
			full := float64(len(c.deliveries)) / float64(cap(c.deliveries))
			queueFullness.WithLabelValues(d.topic).Set(full)
			if full > 0.8 {
				time.Sleep(10 * time.Millisecond)
			} else {
				runtime.Gosched()
			}
		}
	}
}

func (c *Consumer) worker() {
	defer c.wg.Done()

	for d := range c.deliveries {
		handler, ok := c.handlers[d.topic]
		if !ok {
			continue
		}
		c.process(handler, d)
	}
}

// process runs one delivery through its handler with retries, holding the
// partition lock so a partition's offsets commit in order.
func (c *Consumer) process(handler MessageHandler, d delivery) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("kafka handler panic",
				applogger.String("topic", d.topic),
				applogger.String("panic", fmt.Sprint(r)))
		}
	}()

	lock := c.partitionLock(d.topic, d.km.Partition)
	lock.Lock()
	defer lock.Unlock()

	ctx := c.hook.BeforeHandle(context.Background(), d.topic, d.km)
	var err error
	for attempt := 0; ; attempt++ {
		err = handler.Handle(ctx, d.km.Value)
		if err == nil || attempt >= c.cfg.RetryMax {
			break
		}
		c.log.Debug("kafka handle retry",
			applogger.String("topic", d.topic),
			applogger.Int("attempt", attempt+1),
			applogger.Error(err))
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt+1)):
		case <-c.stopChan:
			return
		}
	}

	if err != nil {
		c.hook.OnError(ctx, d.topic, d.km, err)
		c.deadLetter(d)
	}
	// commit on success, or after dead-lettering so a poison message
	// cannot wedge the partition
	if err == nil || c.dlq != nil {
		if reader := c.readers[d.topic]; reader != nil {
			_ = c.commitWithRetry(reader, d.km, 3)
		}
	}
	handleSeconds.WithLabelValues(d.topic).Observe(time.Since(start).Seconds())
}

func (c *Consumer) deadLetter(d delivery) {
	if c.dlq == nil {
		return
	}
	err := c.dlq.WriteMessages(context.Background(), kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Value:   d.km.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(d.topic)}},
	})
	if err != nil {
		c.log.Error("kafka dead letter write failed",
			applogger.String("topic", c.cfg.DLQTopic), applogger.Error(err))
	}
}

// commitWithRetry commits one offset, retrying transient broker errors so a
// brief disconnect does not lose the commit position.
func (c *Consumer) commitWithRetry(reader *kafka.Reader, km kafka.Message, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			time.Sleep(backoffWithJitter(50*time.Millisecond, 500*time.Millisecond, i))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		lastErr = reader.CommitMessages(ctx, km)
		cancel()
		if lastErr == nil {
			return nil
		}
	}
	c.log.Error("kafka commit failed",
		applogger.Int("attempts", attempts), applogger.Error(lastErr))
	return lastErr
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.partLocks == nil {
		c.partLocks = make(map[string]map[int]*sync.Mutex)
	}
	byPart, ok := c.partLocks[topic]
	if !ok {
		byPart = make(map[int]*sync.Mutex)
		c.partLocks[topic] = byPart
	}
	lock, ok := byPart[partition]
	if !ok {
		lock = &sync.Mutex{}
		byPart[partition] = lock
	}
	return lock
}

// backoffWithJitter grows exponentially from min toward max, then strips
// up to half as jitter so retries across partitions spread out.
func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min * time.Duration(1<<uint(attempt-1))
	if exp > max || exp <= 0 {
		exp = max
	}
	if half := int64(exp) / 2; half > 0 {
		exp -= time.Duration(rand.Int63n(half))
	}
	return exp
}

var (
	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solsignal_kafka_consumer_queue_depth",
			Help: "Messages waiting in the worker queue.",
		},
		[]string{"topic"},
	)
	queueFullness = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "solsignal_kafka_consumer_queue_fullness",
			Help: "Worker queue utilization (len/cap).",
		},
		[]string{"topic"},
	)
	handleSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "solsignal_kafka_consumer_handle_seconds",
			Help: "Handling time per message.",
		},
		[]string{"topic"},
	)
)
