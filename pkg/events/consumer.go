package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Reader is the subset of *kafka.Reader used by Consumer.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
}

type Handler func(ctx context.Context, ev MessageCreated) error

// Consumer feeds every message.created event to a handler and commits it.
// Undecodable events are skipped; handler failures are retried.
type Consumer struct {
	r       Reader
	handle  Handler
	backoff time.Duration
	log     zerolog.Logger
}

func NewConsumer(r Reader, handle Handler, log zerolog.Logger) *Consumer {
	return &Consumer{r: r, handle: handle, backoff: time.Second, log: log}
}

// Run blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error().Err(err).Msg("Error reading event, retrying")
			if !c.sleep(ctx) {
				return
			}
			continue
		}

		ev, err := Decode(m.Value)
		if err != nil {
			c.log.Warn().Err(err).Int64("offset", m.Offset).Msg("Skipping event")
		} else {
			for {
				err := c.handle(ctx, ev)
				if err == nil {
					break
				}
				c.log.Error().Err(err).Int64("id", ev.Message.ID).Msg("Failed to handle event, retrying")
				if !c.sleep(ctx) {
					return
				}
			}
		}

		if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Error().Err(err).Int64("offset", m.Offset).Msg("Failed to commit offset")
		}
	}
}

func (c *Consumer) sleep(ctx context.Context) bool {
	t := time.NewTimer(c.backoff)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Consumer) Close() error {
	return c.r.Close()
}
