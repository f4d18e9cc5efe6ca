package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerConfig shapes the kafka-go writer behind a Producer.
type ProducerConfig struct {
	Brokers []string
	// RequiredAcks is -1 for all in-sync replicas.
	RequiredAcks int
	MaxAttempts  int
	Compression  string

	BatchSize    int
	BatchBytes   int
	BatchTimeout time.Duration

	WriteTimeout time.Duration
	ReadTimeout  time.Duration

	// KeyOrdering hashes message keys to partitions so one symbol's signals
	// stay in order.
	KeyOrdering      bool
	AutoCreateTopics bool
}

func defaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		RequiredAcks: -1,
		MaxAttempts:  3,
		Compression:  "gzip",
		BatchSize:    100,
		BatchBytes:   1 << 20,
		BatchTimeout: time.Second,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
}

var compressions = map[string]kafka.Compression{
	"gzip":   kafka.Gzip,
	"snappy": kafka.Snappy,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}

func (c ProducerConfig) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("brokers are required")
	}
	if _, ok := compressions[c.Compression]; !ok {
		return fmt.Errorf("unknown compression %q", c.Compression)
	}
	return nil
}

func (c ProducerConfig) writer() *kafka.Writer {
	var bal kafka.Balancer = &kafka.LeastBytes{}
	if c.KeyOrdering {
		bal = &kafka.Hash{}
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(c.Brokers...),
		Balancer:               bal,
		RequiredAcks:           kafka.RequiredAcks(c.RequiredAcks),
		MaxAttempts:            c.MaxAttempts,
		Compression:            compressions[c.Compression],
		BatchSize:              c.BatchSize,
		BatchBytes:             int64(c.BatchBytes),
		BatchTimeout:           c.BatchTimeout,
		WriteTimeout:           c.WriteTimeout,
		ReadTimeout:            c.ReadTimeout,
		AllowAutoTopicCreation: c.AutoCreateTopics,
	}
}

// ProducerOption adjusts ProducerConfig.
type ProducerOption func(*ProducerConfig)

func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithDelivery sets the acks level and how often the writer retries.
func WithDelivery(acks, maxAttempts int) ProducerOption {
	return func(c *ProducerConfig) { c.RequiredAcks, c.MaxAttempts = acks, maxAttempts }
}

// WithCompression picks gzip, snappy, lz4 or zstd; empty keeps gzip.
func WithCompression(name string) ProducerOption {
	return func(c *ProducerConfig) {
		if name != "" {
			c.Compression = name
		}
	}
}

// WithBatching flushes a batch at size messages, bytes, or after linger,
// whichever comes first.
func WithBatching(size, bytes int, linger time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.BatchSize, c.BatchBytes, c.BatchTimeout = size, bytes, linger }
}

func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.WriteTimeout, c.ReadTimeout = write, read }
}

func WithKeyOrdering(on bool) ProducerOption {
	return func(c *ProducerConfig) { c.KeyOrdering = on }
}

func WithAutoCreateTopics(on bool) ProducerOption {
	return func(c *ProducerConfig) { c.AutoCreateTopics = on }
}
