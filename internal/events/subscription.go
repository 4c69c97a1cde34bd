package events

import (
	"context"
	"errors"
)

// Handler processes one normalized message. A nil return acknowledges it;
// an error requests redelivery.
type Handler func(ctx context.Context, msg Message) error

// Subscription is one declarative topic-to-route binding, in the shape the
// sidecar runtime queries at /dapr/subscribe.
type Subscription struct {
	PubSubName string `json:"pubsubname"`
	Topic      string `json:"topic"`
	Route      string `json:"route"`
}

// Binding pairs a subscription with the handler serving it.
type Binding struct {
	Subscription
	Handler Handler
}

// Subscriptions returns the declarative part of bindings.
func Subscriptions(bindings []Binding) []Subscription {
	subs := make([]Subscription, 0, len(bindings))
	for _, b := range bindings {
		subs = append(subs, b.Subscription)
	}
	return subs
}

// Process decodes payload and runs h. Malformed payloads come back wrapped in
// ErrMalformed; see IsTerminal.
func Process(ctx context.Context, payload []byte, h Handler) error {
	msg, err := Decode(payload)
	if err != nil {
		return err
	}
	return h(ctx, msg)
}

// IsTerminal reports whether a processing error must be acknowledged rather
// than redelivered.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrMalformed)
}
