package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrMalformed marks a payload that cannot be decoded. Redelivery cannot fix
// it, so transports acknowledge such messages instead of retrying.
var ErrMalformed = errors.New("malformed event payload")

const specVersion = "1.0"

// Envelope is the CloudEvents-style wrapper put around every published event.
type Envelope struct {
	ID              string          `json:"id"`
	Source          string          `json:"source"`
	Type            string          `json:"type"`
	SpecVersion     string          `json:"specversion"`
	DataContentType string          `json:"datacontenttype"`
	Topic           string          `json:"topic,omitempty"`
	Time            time.Time       `json:"time"`
	Data            json.RawMessage `json:"data"`
}

// NewEnvelope wraps event for publication on topic.
func NewEnvelope(source, topic string, event Event) (*Envelope, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:              uuid.New().String(),
		Source:          source,
		Type:            event.Type(),
		SpecVersion:     specVersion,
		DataContentType: "application/json",
		Topic:           topic,
		Time:            time.Now().UTC(),
		Data:            data,
	}, nil
}

// Message is an inbound event after normalization: whatever the wire shape,
// Data holds the inner event record and Type its event_type.
type Message struct {
	ID        string
	Type      string
	Topic     string
	Data      json.RawMessage
	Enveloped bool
}

// Into unmarshals the inner event record into v.
func (m Message) Into(v any) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// Decode normalizes an inbound payload. Two shapes are accepted: an envelope
// whose "data" member holds the event (as an object or a JSON-encoded string),
// and the bare event record. Envelope attributes that are present must be
// strings.
func Decode(payload []byte) (Message, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(payload, &top); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	msg := Message{Data: payload}
	var envType string
	if data, ok := top["data"]; ok {
		inner, err := unwrapData(data)
		if err != nil {
			return Message{}, err
		}
		msg.Data = inner
		msg.Enveloped = true
		if err := stringAttr(top, "id", &msg.ID); err != nil {
			return Message{}, err
		}
		if err := stringAttr(top, "topic", &msg.Topic); err != nil {
			return Message{}, err
		}
		if err := stringAttr(top, "type", &envType); err != nil {
			return Message{}, err
		}
	}

	var head struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(msg.Data, &head); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	msg.Type = head.EventType

	if msg.Type == "" {
		msg.Type = envType
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("%w: missing event_type", ErrMalformed)
	}
	return msg, nil
}

// stringAttr reads the named envelope attribute into dst. A missing or null
// attribute leaves dst unchanged.
func stringAttr(top map[string]json.RawMessage, name string, dst *string) error {
	raw, ok := top[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: envelope %s is not a string", ErrMalformed, name)
	}
	return nil
}

func unwrapData(data json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) > 0 && trimmed[0] == '{':
		return trimmed, nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return json.RawMessage(s), nil
	default:
		return nil, fmt.Errorf("%w: envelope data is not an object", ErrMalformed)
	}
}
