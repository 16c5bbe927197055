package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Publisher delivers flushed digests, typically onto the job queue.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// CollectionConfig tunes the error digest collector.
type CollectionConfig struct {
	TimeInterval   time.Duration // flush period
	CountThreshold int           // flush early once this many distinct errors accumulate
	Topic          string        // queue message type for the digest
	Publisher      Publisher
}

// AggregatedLogEntry is one deduplicated error with its occurrence window.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// logCollector deduplicates error lines and periodically hands the batch
// to its Publisher.
type logCollector struct {
	cfg    *CollectionConfig
	mu     sync.Mutex
	byKey  map[string]*AggregatedLogEntry
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newLogCollector(cfg *CollectionConfig) *logCollector {
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &logCollector{
		cfg:    cfg,
		byKey:  make(map[string]*AggregatedLogEntry),
		ctx:    ctx,
		cancel: cancel,
	}
	c.wg.Add(1)
	go c.run()
	return c
}

// record folds one error line into the pending digest.
func (c *logCollector) record(level, message string, fields map[string]interface{}, caller string) {
	key := digestKey(level, message, caller, fields)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, seen := c.byKey[key]; seen {
		entry.Count++
		entry.LastSeen = now
	} else {
		c.byKey[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(c.byKey) >= c.cfg.CountThreshold {
		c.flushLocked()
	}
}

// digestKey collapses identical errors: same level, message, call site and
// field values share one entry.
func digestKey(level, message, caller string, fields map[string]interface{}) string {
	blob, _ := json.Marshal(fields) // map keys marshal in sorted order
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|", level, message, caller)
	h.Write(blob)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *logCollector) run() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-c.ctx.Done():
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
			return
		}
	}
}

// flushLocked publishes and resets the pending batch. Callers hold mu.
func (c *logCollector) flushLocked() {
	if len(c.byKey) == 0 {
		return
	}
	batch := make([]AggregatedLogEntry, 0, len(c.byKey))
	for _, e := range c.byKey {
		batch = append(batch, *e)
	}
	c.byKey = make(map[string]*AggregatedLogEntry)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
			// The logger cannot log its own delivery failure.
			fmt.Fprintf(os.Stderr, "log digest publish failed: %v\n", err)
		}
	}()
}

// Close flushes whatever is pending and stops the collector.
func (c *logCollector) Close() {
	c.cancel()
	c.wg.Wait()
}
