package logger

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Publisher ships aggregated log batches to a monitoring sink.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// CollectionConfig controls when collected entries are shipped: every
// TimeInterval, or as soon as CountThreshold distinct entries are pending.
type CollectionConfig struct {
	TimeInterval   time.Duration
	CountThreshold int
	Topic          string
	Publisher      Publisher
}

// AggregatedLogEntry is one distinct warn/error event and how often it fired.
type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

const (
	publishTimeout = 30 * time.Second
	queuedBatches  = 4
)

// LogCollector deduplicates warn/error events and publishes them in batches.
// A batch run that reports the same failure reason for hundreds of symbols
// produces one entry per distinct (level, message, fields, caller).
type LogCollector struct {
	cfg CollectionConfig

	mu      sync.Mutex
	pending map[string]*AggregatedLogEntry

	full chan []AggregatedLogEntry
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	cfg := *config
	if cfg.TimeInterval <= 0 {
		cfg.TimeInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}
	c := &LogCollector{
		cfg:     cfg,
		pending: make(map[string]*AggregatedLogEntry),
		full:    make(chan []AggregatedLogEntry, queuedBatches),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

// AddLog counts one event. Reaching the threshold hands the pending set to
// the publisher goroutine; the caller never waits on the sink.
func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	select {
	case <-c.stop:
		return
	default:
	}
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	if e, ok := c.pending[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.pending[key] = &AggregatedLogEntry{
			Level: level, Message: message, Fields: fields, Caller: caller,
			Count: 1, FirstSeen: now, LastSeen: now,
		}
	}
	var batch []AggregatedLogEntry
	if len(c.pending) >= c.cfg.CountThreshold {
		batch = c.takeLocked()
	}
	c.mu.Unlock()

	if batch == nil {
		return
	}
	select {
	case c.full <- batch:
	default:
		fmt.Fprintf(os.Stderr, "log collector: sink backlog, dropped %d entries\n", len(batch))
	}
}

// Pending returns the number of distinct entries waiting for the next flush.
func (c *LogCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close publishes what is pending and waits for the sink.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.stop) })
	<-c.done
}

func (c *LogCollector) run() {
	defer close(c.done)
	tick := time.NewTicker(c.cfg.TimeInterval)
	defer tick.Stop()

	for {
		select {
		case batch := <-c.full:
			c.publish(batch)
		case <-tick.C:
			c.publish(c.take())
		case <-c.stop:
			for {
				select {
				case batch := <-c.full:
					c.publish(batch)
				default:
					c.publish(c.take())
					return
				}
			}
		}
	}
}

func (c *LogCollector) take() []AggregatedLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.takeLocked()
}

// takeLocked empties pending and returns its entries oldest first.
func (c *LogCollector) takeLocked() []AggregatedLogEntry {
	if len(c.pending) == 0 {
		return nil
	}
	out := make([]AggregatedLogEntry, 0, len(c.pending))
	for _, e := range c.pending {
		out = append(out, *e)
	}
	c.pending = make(map[string]*AggregatedLogEntry)
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeen.Before(out[j].FirstSeen) })
	return out
}

func (c *LogCollector) publish(batch []AggregatedLogEntry) {
	if len(batch) == 0 || c.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
		fmt.Fprintf(os.Stderr, "log collector: publish %d entries: %v\n", len(batch), err)
	}
}

// entryKey identifies an event by level, caller, message and its fields in
// key order.
func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(level)
	b.WriteByte(0)
	b.WriteString(caller)
	b.WriteByte(0)
	b.WriteString(message)
	for _, k := range names {
		fmt.Fprintf(&b, "\x00%s=%v", k, fields[k])
	}
	return b.String()
}
