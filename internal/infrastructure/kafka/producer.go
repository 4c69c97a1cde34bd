package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/order-saga/internal/events"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes enveloped events. The topic is chosen per message.
type Producer struct {
	writer messageWriter
	source string
}

func NewProducer(brokers []string, source string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{}, // one order id, one partition
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Producer{writer: writer, source: source}
}

func (p *Producer) Publish(ctx context.Context, topic, key string, event events.Event) error {
	env, err := events.NewEnvelope(p.source, topic, event)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   data,
		Headers: injectTraceContext(ctx),
		Time:    env.Time,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
