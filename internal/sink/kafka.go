package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"firestige.xyz/tanakai/internal/core"
	"firestige.xyz/tanakai/internal/log"
)

// KafkaOptions configures the Kafka producer.
type KafkaOptions struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Compression  string        `mapstructure:"compression"` // none / gzip / snappy / lz4 / zstd
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// DefaultKafkaOptions publishes each event on its own. Send is synchronous,
// and a writer waiting to fill a larger batch holds every event until
// BatchTimeout, which caps the consumer at one event per timeout. Raise
// BatchSize only together with a short BatchTimeout.
func DefaultKafkaOptions() KafkaOptions {
	return KafkaOptions{
		Topic:        "photon-events",
		BatchSize:    1,
		BatchTimeout: 5 * time.Millisecond,
		Compression:  "snappy",
		MaxAttempts:  3,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON keyed by event type, so one type stays
// on one partition.
type KafkaSink struct {
	writer messageWriter
	topic  string
	logger log.Logger
}

func NewKafkaSink(opts KafkaOptions) (*KafkaSink, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka sink brokers are required", core.ErrConfigInvalid)
	}
	if opts.Topic == "" {
		return nil, fmt.Errorf("%w: kafka sink topic is required", core.ErrConfigInvalid)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = DefaultKafkaOptions().BatchTimeout
	}
	codec, err := compression(opts.Compression)
	if err != nil {
		return nil, err
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    opts.BatchSize,
		BatchTimeout: opts.BatchTimeout,
		MaxAttempts:  opts.MaxAttempts,
		Compression:  codec,
		RequiredAcks: kafka.RequireOne,
	}
	logger := log.GetLogger().WithField("sink", TypeKafka)
	logger.WithFields(map[string]interface{}{
		"brokers":     opts.Brokers,
		"topic":       opts.Topic,
		"compression": opts.Compression,
	}).Info("kafka sink ready")

	return &KafkaSink{writer: w, topic: opts.Topic, logger: logger}, nil
}

func compression(name string) (kafka.Compression, error) {
	switch name {
	case "none", "":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("%w: invalid kafka compression %q", core.ErrConfigInvalid, name)
	}
}

func (s *KafkaSink) Send(ctx context.Context, ev core.PhotonEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encode event: %w", core.ErrTransport, err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Type.String()),
		Value: value,
		Time:  time.UnixMilli(int64(ev.Timestamp)),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: kafka topic %s: %w", core.ErrTransport, s.topic, err)
	}
	return nil
}

// Close flushes pending batches.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
