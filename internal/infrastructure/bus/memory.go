package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/example/order-saga/internal/events"
	"github.com/example/order-saga/internal/observability"
)

var ErrClosed = errors.New("bus closed")

type Config struct {
	MaxDeliveries   int
	RedeliveryDelay time.Duration
}

// Memory is an in-process event bus. Every subscriber of a topic receives
// each published event on its own goroutine, with the same redelivery policy
// as the Kafka consumer.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string][]events.Binding
	closed bool

	source  string
	cfg     Config
	metrics *observability.Metrics
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMemory(source string, cfg Config, metrics *observability.Metrics, logger *zap.Logger) *Memory {
	if cfg.MaxDeliveries < 1 {
		cfg.MaxDeliveries = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Memory{
		subs:    make(map[string][]events.Binding),
		source:  source,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.Named("bus"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Memory) Subscribe(bindings ...events.Binding) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, binding := range bindings {
		b.subs[binding.Topic] = append(b.subs[binding.Topic], binding)
	}
}

func (b *Memory) Publish(ctx context.Context, topic, key string, event events.Event) error {
	env, err := events.NewEnvelope(b.source, topic, event)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	// Deliveries outlive the publishing request but keep its trace.
	deliveryCtx := trace.ContextWithSpanContext(b.ctx, trace.SpanContextFromContext(ctx))
	for _, binding := range b.subs[topic] {
		b.wg.Add(1)
		go b.deliver(deliveryCtx, topic, key, binding, payload)
	}
	return nil
}

func (b *Memory) deliver(ctx context.Context, topic, key string, binding events.Binding, payload []byte) {
	defer b.wg.Done()
	log := b.logger.With(zap.String("topic", topic), zap.String("route", binding.Route), zap.String("key", key))

	for attempt := 1; ; attempt++ {
		err := events.Process(ctx, payload, binding.Handler)
		switch {
		case err == nil:
			b.metrics.EventHandled(topic, "ack")
			return
		case events.IsTerminal(err):
			log.Warn("dropping malformed message", zap.Error(err))
			b.metrics.EventHandled(topic, "dropped")
			return
		case attempt >= b.cfg.MaxDeliveries:
			log.Error("giving up on message", zap.Int("attempts", attempt), zap.Error(err))
			b.metrics.EventHandled(topic, "dropped")
			return
		}

		log.Warn("handler failed, redelivering", zap.Int("attempt", attempt), zap.Error(err))
		b.metrics.EventHandled(topic, "retry")
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.cfg.RedeliveryDelay):
		}
	}
}

// Wait blocks until every in-flight delivery has settled.
func (b *Memory) Wait() {
	b.wg.Wait()
}

// Close stops accepting events, abandons pending redeliveries and waits for
// running handlers.
func (b *Memory) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return nil
}
