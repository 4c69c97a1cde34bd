package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/order-saga/internal/config"
	"github.com/example/order-saga/internal/events"
	"github.com/example/order-saga/internal/infrastructure/store"
	"github.com/example/order-saga/internal/notification"
)

func standaloneConfig() config.Config {
	cfg := config.Default(config.Standalone)
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.LogLevel = "error"
	cfg.KafkaRedeliveryDelay = time.Millisecond
	return cfg
}

func TestNew_MemoryRuntime(t *testing.T) {
	rt, err := New(context.Background(), standaloneConfig())
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.IsType(t, &store.MemoryStore{}, rt.Store)
	assert.IsType(t, &memoryBus{}, rt.Bus)
	assert.Nil(t, rt.JWT())
	assert.IsType(t, &notification.LocalSequence{}, rt.Sequence())
}

func TestRuntime_JWTAndSequenceFromConfig(t *testing.T) {
	cfg := standaloneConfig()
	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.NotificationSequence = "store"

	rt, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.NotNil(t, rt.JWT())
	assert.IsType(t, &notification.StoreSequence{}, rt.Sequence())
}

func TestRuntime_ServeDeliversAndStops(t *testing.T) {
	rt, err := New(context.Background(), standaloneConfig())
	require.NoError(t, err)
	defer rt.Close(context.Background())

	received := make(chan events.Message, 1)
	binding := events.Binding{
		Subscription: events.Subscription{PubSubName: events.PubSubName, Topic: events.TopicOrderEvents, Route: events.RouteOrderEvent},
		Handler: func(_ context.Context, msg events.Message) error {
			select {
			case received <- msg:
			default:
			}
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Serve(ctx, nil, []events.Binding{binding}) }()

	require.Eventually(t, func() bool {
		_ = rt.Bus.Publish(context.Background(), events.TopicOrderEvents, "o-1", events.OrderCreated{
			EventType: events.TypeOrderCreated,
			OrderID:   "o-1",
		})
		select {
		case msg := <-received:
			return msg.Type == events.TypeOrderCreated
		case <-time.After(10 * time.Millisecond):
			return false
		}
	}, time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestConsumerGroups(t *testing.T) {
	bindings := []events.Binding{
		{Subscription: events.Subscription{Topic: events.TopicOrderEvents}},
		{Subscription: events.Subscription{Topic: events.TopicOrderEvents}},
		{Subscription: events.Subscription{Topic: events.TopicInventoryEvents}},
	}

	groups := consumerGroups("standalone", bindings)

	assert.Equal(t, []string{"standalone", "standalone-1", "standalone"}, groups)
}
