package main

import (
	"context"

	"github.com/mahaj/dupahar-dm/pkg/events"
	"github.com/rs/zerolog"
)

// ActivityRecorder is implemented by *events.Activity.
type ActivityRecorder interface {
	Record(ctx context.Context, ev events.MessageCreated) error
}

// projector turns message.created events into read-side projections. The
// message itself is already durable when the event is published.
type projector struct {
	activity ActivityRecorder
	log      zerolog.Logger
}

func (p *projector) handle(ctx context.Context, ev events.MessageCreated) error {
	if err := p.activity.Record(ctx, ev); err != nil {
		return err
	}
	p.log.Debug().
		Int64("id", ev.Message.ID).
		Str("channel", ev.Message.ChannelID()).
		Str("sender", ev.Message.SenderID).
		Msg("Recorded activity")
	return nil
}
