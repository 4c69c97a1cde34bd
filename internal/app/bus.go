package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/order-saga/internal/events"
	"github.com/example/order-saga/internal/infrastructure/bus"
	"github.com/example/order-saga/internal/infrastructure/kafka"
	"github.com/example/order-saga/internal/observability"
)

// Bus publishes events and delivers subscribed ones to their bindings.
type Bus interface {
	events.Publisher
	// Run delivers events to bindings until ctx is cancelled.
	Run(ctx context.Context, bindings []events.Binding) error
	Close() error
}

func (rt *Runtime) openBus() Bus {
	cfg := rt.Config
	if cfg.EventBus == "kafka" {
		return &kafkaBus{
			Producer: kafka.NewProducer(cfg.KafkaBrokers, cfg.ServiceName),
			brokers:  cfg.KafkaBrokers,
			group:    cfg.KafkaConsumerGroup,
			cfg: kafka.ConsumerConfig{
				MaxDeliveries:   cfg.KafkaMaxDeliveries,
				RedeliveryDelay: cfg.KafkaRedeliveryDelay,
			},
			metrics: rt.Metrics,
			logger:  rt.Logger,
		}
	}
	return &memoryBus{Memory: bus.NewMemory(cfg.ServiceName, bus.Config{
		MaxDeliveries:   cfg.KafkaMaxDeliveries,
		RedeliveryDelay: cfg.KafkaRedeliveryDelay,
	}, rt.Metrics, rt.Logger)}
}

type kafkaBus struct {
	*kafka.Producer
	brokers []string
	group   string
	cfg     kafka.ConsumerConfig
	metrics *observability.Metrics
	logger  *zap.Logger
}

func (b *kafkaBus) Run(ctx context.Context, bindings []events.Binding) error {
	groups := consumerGroups(b.group, bindings)
	g, ctx := errgroup.WithContext(ctx)
	for i, binding := range bindings {
		consumer := kafka.NewConsumer(b.brokers, groups[i], binding, b.cfg, b.metrics, b.logger)
		g.Go(func() error {
			defer consumer.Close()
			return consumer.Run(ctx)
		})
	}
	return g.Wait()
}

// consumerGroups gives every binding of a topic its own group so that two
// handlers in one process each see every event.
func consumerGroups(base string, bindings []events.Binding) []string {
	seen := make(map[string]int)
	groups := make([]string, len(bindings))
	for i, b := range bindings {
		n := seen[b.Topic]
		seen[b.Topic] = n + 1
		if n == 0 {
			groups[i] = base
			continue
		}
		groups[i] = fmt.Sprintf("%s-%d", base, n)
	}
	return groups
}

type memoryBus struct {
	*bus.Memory
}

func (b *memoryBus) Run(ctx context.Context, bindings []events.Binding) error {
	b.Subscribe(bindings...)
	<-ctx.Done()
	return nil
}
