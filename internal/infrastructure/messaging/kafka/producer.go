package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/contabil/fiscore/internal/config"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/pkg/errors"
)

// WriterInterface abstracts the kafka writer for testing.
type WriterInterface interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
	Stats() kafkago.WriterStats
}

// Producer publishes events to Kafka.
type Producer struct {
	writer WriterInterface
	logger logging.Logger
	closed atomic.Bool
}

// NewProducer creates a producer from the application Kafka config.
func NewProducer(cfg config.KafkaConfig, logger logging.Logger) *Producer {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		MaxAttempts:  cfg.ProducerRetries,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafkago.RequireAll,
		Compression:  kafkago.Snappy,
	}
	return &Producer{writer: writer, logger: logger}
}

// NewProducerWithWriter creates a producer around an existing writer.
// Used by tests.
func NewProducerWithWriter(writer WriterInterface, logger logging.Logger) *Producer {
	return &Producer{writer: writer, logger: logger}
}

// Publish sends one envelope to the given topic, keyed for partition
// affinity.
func (p *Producer) Publish(ctx context.Context, topic, key string, env *EventEnvelope) error {
	if p.closed.Load() {
		return errors.New(errors.ErrCodeMessageQueueError, "producer is closed")
	}

	value, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "marshal event envelope")
	}

	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish event",
			logging.String("topic", topic),
			logging.String("event_type", env.EventType),
			logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeMessageQueueError, "write kafka message")
	}

	p.logger.Debug("event published",
		logging.String("topic", topic),
		logging.String("event_type", env.EventType),
		logging.String("event_id", env.EventID))
	return nil
}

// PublishJSON wraps a payload in a new envelope and publishes it.
func (p *Producer) PublishJSON(ctx context.Context, topic, key, eventType string, payload interface{}) error {
	env, err := NewEnvelope(eventType, payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "marshal event payload")
	}
	return p.Publish(ctx, topic, key, env)
}

// PublishAsync publishes without blocking the caller. Errors are
// logged, not returned; callers that must not lose events use Publish.
func (p *Producer) PublishAsync(topic, key, eventType string, payload interface{}) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.PublishJSON(ctx, topic, key, eventType, payload); err != nil {
			p.logger.Warn("async publish dropped",
				logging.String("topic", topic),
				logging.String("event_type", eventType),
				logging.Err(err))
		}
	}()
}

// Stats exposes writer statistics.
func (p *Producer) Stats() kafkago.WriterStats {
	return p.writer.Stats()
}

// Close flushes and shuts down the writer. Safe to call twice.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeMessageQueueError, "close kafka writer")
	}
	return nil
}
