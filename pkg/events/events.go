// Package events carries persisted-message notifications over Kafka. The log
// is informational: the gateway publishes after the store commit and never
// waits for consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const TypeMessageCreated = "message.created"

type MessageCreated struct {
	Type    string        `json:"type"`
	Message model.Message `json:"message"`
}

// Writer is the subset of *kafka.Writer used by the publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter returns an async writer; delivery errors are logged from the
// completion callback.
func NewKafkaWriter(brokers []string, topic string, log zerolog.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				log.Error().Err(err).Int("count", len(msgs)).Msg("Failed to write events to Kafka")
			}
		},
	}
}

type KafkaPublisher struct {
	w Writer
}

func NewKafkaPublisher(w Writer) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

// Publish emits message.created keyed by the DM channel, so one conversation
// stays on one partition and keeps its order.
func (p *KafkaPublisher) Publish(ctx context.Context, m model.Message) error {
	value, err := json.Marshal(MessageCreated{Type: TypeMessageCreated, Message: m})
	if err != nil {
		return errors.Wrap(err, "encode event")
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.ChannelID()),
		Value: value,
		Time:  m.CreatedAt,
	})
	return errors.Wrap(err, "publish message.created")
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// Decode parses an event value.
func Decode(value []byte) (MessageCreated, error) {
	var ev MessageCreated
	if err := json.Unmarshal(value, &ev); err != nil {
		return MessageCreated{}, errors.Wrap(err, "decode event")
	}
	if ev.Type != TypeMessageCreated {
		return MessageCreated{}, errors.Errorf("unexpected event type %q", ev.Type)
	}
	return ev, nil
}
