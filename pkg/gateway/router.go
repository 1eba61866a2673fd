package gateway

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/mahaj/dupahar-dm/pkg/snowflake"
	"github.com/mahaj/dupahar-dm/pkg/store"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxContentLength = 2000
	DefaultPersistTimeout   = 5 * time.Second
)

// Publisher announces persisted messages to the rest of the system.
// Failures never affect the send.
type Publisher interface {
	Publish(ctx context.Context, m model.Message) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.Message) error { return nil }

type sendRequest struct {
	To      string `validate:"required,userid"`
	Content string `validate:"required"`
}

// Router persists a message and only then pushes it to the live channels.
type Router struct {
	registry       *Registry
	store          store.MessageStore
	ids            *snowflake.Node
	publisher      Publisher
	validate       *validator.Validate
	maxLen         int
	persistTimeout time.Duration
	metrics        *Metrics
	log            zerolog.Logger
}

type RouterConfig struct {
	MaxContentLength int
	PersistTimeout   time.Duration
}

func NewRouter(reg *Registry, st store.MessageStore, ids *snowflake.Node, pub Publisher, cfg RouterConfig, metrics *Metrics, log zerolog.Logger) *Router {
	if pub == nil {
		pub = nopPublisher{}
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = DefaultMaxContentLength
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	return &Router{
		registry:       reg,
		store:          st,
		ids:            ids,
		publisher:      pub,
		validate:       model.NewValidator(),
		maxLen:         cfg.MaxContentLength,
		persistTimeout: cfg.PersistTimeout,
		metrics:        metrics,
		log:            log,
	}
}

// Send stores content from -> to and delivers it. The returned error is
// always one of ErrValidation or ErrPersistence; delivery problems are only
// logged, the message is already durable at that point.
func (r *Router) Send(ctx context.Context, ch *Channel, from, to, content string) (model.Message, error) {
	req := sendRequest{To: to, Content: strings.TrimSpace(content)}
	if err := r.check(req); err != nil {
		return model.Message{}, err
	}

	id := r.ids.Generate()
	m := model.Message{
		ID:          id,
		SenderID:    from,
		RecipientID: req.To,
		Content:     req.Content,
		CreatedAt:   snowflake.Time(id),
	}

	// The request is committed once it got here: closing the channel must not
	// abort the write.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.persistTimeout)
	defer cancel()
	if _, err := r.store.CreateMessage(pctx, m); err != nil {
		r.metrics.persistFailures.Inc()
		r.log.Error().Err(err).Str("from", from).Str("to", req.To).Msg("Failed to persist message")
		return model.Message{}, fail(ErrPersistence, "Failed to send message", err)
	}
	r.metrics.messagesPersisted.Inc()

	if err := r.publisher.Publish(pctx, m); err != nil {
		r.log.Warn().Err(err).Int64("id", m.ID).Msg("Failed to publish message event")
	}

	r.deliver(m)

	// A closed sender simply has nobody to ack.
	if err := ch.Push(model.MessageSent{Message: m}); err != nil && !ch.Closed() {
		r.log.Warn().Err(err).Int64("id", m.ID).Str("conn", ch.ID()).Msg("Failed to ack sender")
	}
	return m, nil
}

func (r *Router) check(req sendRequest) error {
	if req.Content == "" {
		return reject(ErrValidation, "Message content cannot be empty")
	}
	if utf8.RuneCountInString(req.Content) > r.maxLen {
		return reject(ErrValidation, "Message content is too long")
	}
	if err := r.validate.Struct(req); err != nil {
		return fail(ErrValidation, "Invalid recipient", err)
	}
	return nil
}

func (r *Router) deliver(m model.Message) {
	rc, ok := r.registry.Lookup(m.RecipientID)
	if !ok {
		r.metrics.deliveries.WithLabelValues(resultOffline).Inc()
		return
	}
	if err := rc.Push(model.NewMessage{Message: m}); err != nil {
		r.metrics.deliveries.WithLabelValues(resultFailed).Inc()
		r.log.Warn().Err(err).Int64("id", m.ID).Str("to", m.RecipientID).Msg("Realtime delivery failed")
		return
	}
	r.metrics.deliveries.WithLabelValues(resultOK).Inc()
}
