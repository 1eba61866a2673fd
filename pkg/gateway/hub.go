// Package gateway is the realtime core: it authenticates channels, tracks who
// is online, routes direct messages and relays presence and typing signals.
package gateway

import (
	"context"
	"time"

	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/mahaj/dupahar-dm/pkg/snowflake"
	"github.com/mahaj/dupahar-dm/pkg/store"
	"github.com/rs/zerolog"
)

// State is the session lifecycle of a channel.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	}
	return "unknown"
}

type Options struct {
	Store     store.MessageStore
	Tokens    TokenValidator
	IDs       *snowflake.Node
	Publisher Publisher
	Mirror    Mirror
	Metrics   *Metrics

	QueueSize        int
	MaxContentLength int
	PersistTimeout   time.Duration

	Log zerolog.Logger
}

// Hub wires the components together and dispatches inbound events. Events of
// one channel must be handed to Handle sequentially, in arrival order.
type Hub struct {
	registry *Registry
	gate     *AuthGate
	router   *Router
	presence *Broadcaster
	typing   *TypingRelay

	queueSize int
	log       zerolog.Logger
}

func NewHub(opts Options) *Hub {
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	reg := NewRegistry()
	presence := NewBroadcaster(reg, opts.Mirror, opts.Metrics, opts.Log.With().Str("component", "presence").Logger())
	return &Hub{
		registry: reg,
		presence: presence,
		gate:     NewAuthGate(opts.Tokens, reg, presence, opts.Metrics, opts.Log.With().Str("component", "auth").Logger()),
		router: NewRouter(reg, opts.Store, opts.IDs, opts.Publisher, RouterConfig{
			MaxContentLength: opts.MaxContentLength,
			PersistTimeout:   opts.PersistTimeout,
		}, opts.Metrics, opts.Log.With().Str("component", "router").Logger()),
		typing:    NewTypingRelay(reg, opts.Metrics, opts.Log.With().Str("component", "typing").Logger()),
		queueSize: opts.QueueSize,
		log:       opts.Log,
	}
}

func (h *Hub) Registry() *Registry { return h.registry }

// Open creates an unauthenticated channel.
func (h *Hub) Open() *Channel {
	ch := NewChannel(h.queueSize)
	h.log.Debug().Str("conn", ch.ID()).Msg("Channel opened")
	return ch
}

// Close closes ch and, if it was the live binding of its user, announces the
// user as offline. Closing an evicted or unauthenticated channel is a no-op
// for presence.
func (h *Hub) Close(ch *Channel) {
	ch.Close()
	if sess, ok := h.presence.Leave(ch.ID()); ok {
		h.log.Info().Str("user", sess.UserID).Str("conn", ch.ID()).Msg("User disconnected")
	}
}

func (h *Hub) State(ch *Channel) State {
	if ch.Closed() {
		return Closed
	}
	if _, ok := h.registry.SessionFor(ch.ID()); ok {
		return Authenticated
	}
	return Unauthenticated
}

// HandleFrame decodes a raw frame and dispatches it.
func (h *Hub) HandleFrame(ctx context.Context, ch *Channel, raw []byte) {
	in, err := model.DecodeInbound(raw)
	if err != nil {
		h.log.Debug().Err(err).Str("conn", ch.ID()).Msg("Rejected frame")
		h.reply(ch, model.ErrorMessage{Message: "Invalid message format"})
		return
	}
	h.Handle(ctx, ch, in)
}

// Handle runs one inbound event. Failures are reported to ch as events.
func (h *Hub) Handle(ctx context.Context, ch *Channel, in model.Inbound) {
	if err := h.handle(ctx, ch, in); err != nil {
		h.reply(ch, ToEvent(err))
	}
}

func (h *Hub) handle(ctx context.Context, ch *Channel, in model.Inbound) error {
	if ev, ok := in.(model.Authenticate); ok {
		_, err := h.gate.Authenticate(ch, ev.Credential)
		return err
	}

	sess, err := h.gate.Require(ch)
	if err != nil {
		return err
	}

	switch ev := in.(type) {
	case model.SendMessage:
		_, err := h.router.Send(ctx, ch, sess.UserID, ev.To, ev.Content)
		return err
	case model.Typing:
		h.typing.Relay(sess.UserID, ev.To, ev.Start)
		return nil
	case model.GetOnlineUsers:
		// Delivery failures were logged by the broadcaster.
		_ = h.presence.SnapshotTo(ch)
		return nil
	default:
		h.log.Error().Str("type", string(in.Type())).Msg("Unhandled inbound event")
		return nil
	}
}

func (h *Hub) reply(ch *Channel, ev model.Outbound) {
	if err := ch.Push(ev); err != nil && !ch.Closed() {
		h.log.Warn().Err(err).Str("conn", ch.ID()).Msg("Failed to report error")
	}
}
