package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/order-saga/internal/events"
	"github.com/example/order-saga/internal/observability"
)

var tracer = otel.Tracer("github.com/example/order-saga/internal/infrastructure/kafka")

// Reader is the subset of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	// MaxDeliveries bounds handler attempts per message before it is skipped.
	MaxDeliveries   int
	RedeliveryDelay time.Duration
}

// Consumer feeds one topic into an events.Handler. A message is committed
// once it is acknowledged, found malformed, or out of delivery attempts.
type Consumer struct {
	reader  Reader
	topic   string
	handler events.Handler
	cfg     ConsumerConfig
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewConsumer(brokers []string, groupID string, binding events.Binding, cfg ConsumerConfig, metrics *observability.Metrics, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    binding.Topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(reader, binding, cfg, metrics, logger)
}

func newConsumer(reader Reader, binding events.Binding, cfg ConsumerConfig, metrics *observability.Metrics, logger *zap.Logger) *Consumer {
	if cfg.MaxDeliveries < 1 {
		cfg.MaxDeliveries = 1
	}
	return &Consumer{
		reader:  reader,
		topic:   binding.Topic,
		handler: binding.Handler,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("kafka").With(zap.String("topic", binding.Topic)),
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch message", zap.Error(err))
			if !sleep(ctx, c.cfg.RedeliveryDelay) {
				return nil
			}
			continue
		}

		if !c.deliver(ctx, msg) {
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to commit message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// deliver runs the handler until the message is settled. It returns false
// when ctx ends first, leaving the message uncommitted.
func (c *Consumer) deliver(ctx context.Context, msg kafka.Message) bool {
	msgCtx, span := tracer.Start(extractTraceContext(ctx, msg.Headers), "consume "+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", c.topic),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		))
	defer span.End()

	log := c.logger.With(
		zap.ByteString("key", msg.Key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset))

	for attempt := 1; ; attempt++ {
		err := events.Process(msgCtx, msg.Value, c.handler)
		switch {
		case err == nil:
			c.metrics.EventHandled(c.topic, "ack")
			return true
		case events.IsTerminal(err):
			log.Warn("dropping malformed message", zap.Error(err))
			c.metrics.EventHandled(c.topic, "dropped")
			return true
		case attempt >= c.cfg.MaxDeliveries:
			span.RecordError(err)
			log.Error("giving up on message", zap.Int("attempts", attempt), zap.Error(err))
			c.metrics.EventHandled(c.topic, "dropped")
			return true
		}

		log.Warn("handler failed, redelivering", zap.Int("attempt", attempt), zap.Error(err))
		c.metrics.EventHandled(c.topic, "retry")
		if !sleep(ctx, c.cfg.RedeliveryDelay) {
			return false
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
