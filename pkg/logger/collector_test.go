package logger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]AggregatedLogEntry
}

func (p *fakePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func TestCollectorDeduplicatesWarnings(t *testing.T) {
	pub := &fakePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "trailstop.logs", Publisher: pub})

	for i := 0; i < 3; i++ {
		l.Warn("security excluded", String("reason", "no price data"))
	}
	l.Error("publish signals failed", Int("events", 2))
	l.Info("not collected")
	l.RemoveCollector()

	require.Len(t, pub.batches, 1)
	assert.Equal(t, []string{"trailstop.logs"}, pub.topics)

	byMsg := map[string]AggregatedLogEntry{}
	for _, e := range pub.batches[0] {
		byMsg[e.Message] = e
	}
	require.Len(t, byMsg, 2)
	assert.Equal(t, 3, byMsg["security excluded"].Count)
	assert.Equal(t, "warn", byMsg["security excluded"].Level)
	assert.Equal(t, "no price data", byMsg["security excluded"].Fields["reason"])
	assert.Equal(t, 1, byMsg["publish signals failed"].Count)
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &fakePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Topic: "logs", Publisher: pub})

	c.AddLog("error", "a", nil, "x.go:1")
	assert.Equal(t, 1, c.Pending())
	c.AddLog("error", "b", nil, "x.go:2")
	assert.Equal(t, 0, c.Pending())
	c.Close()

	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0], 2)
}

func TestChildLoggerSharesCollector(t *testing.T) {
	pub := &fakePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Topic: "logs", Publisher: pub})

	l.With(String("run_id", "r1")).Error("batch failed")
	l.RemoveCollector()

	require.Len(t, pub.batches, 1)
	assert.Equal(t, "batch failed", pub.batches[0][0].Message)
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	require.Error(t, err)

	l, err := New(&Config{Level: "debug", Format: "json", Output: "discard"})
	require.NoError(t, err)
	l.Debug("ok", Float64("atr", 1.5), Bool("set", true))
}

func TestCollectorRecordsCallSite(t *testing.T) {
	pub := &fakePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, Topic: "logs", Publisher: pub})

	l.Warn("slow sink", Error(errors.New("timeout")), Duration("duration_ms", 1500*time.Millisecond))
	l.RemoveCollector()

	require.Len(t, pub.batches, 1)
	e := pub.batches[0][0]
	assert.True(t, strings.HasPrefix(e.Caller, "logger/collector_test.go:"), e.Caller)
	assert.Equal(t, "timeout", e.Fields["error"])
	assert.Equal(t, 1500, e.Fields["duration_ms"])
}

func TestDetachedCollectorIgnoresLateEvents(t *testing.T) {
	pub := &fakePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 1, Topic: "logs", Publisher: pub})
	child := l.With(String("run_id", "r1"))

	l.RemoveCollector()
	child.Error("after shutdown")
	l.Error("after shutdown")

	assert.Empty(t, pub.batches)
}

func TestEntryKeyIgnoresFieldOrder(t *testing.T) {
	a := entryKey("warn", "excluded", map[string]interface{}{"symbol": "A", "reason": "x"}, "f.go:1")
	b := entryKey("warn", "excluded", map[string]interface{}{"reason": "x", "symbol": "A"}, "f.go:1")
	c := entryKey("warn", "excluded", map[string]interface{}{"reason": "y", "symbol": "A"}, "f.go:1")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
