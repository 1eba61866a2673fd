package gateway

import (
	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/rs/zerolog"
)

// TypingRelay forwards typing transitions to the recipient's live channel.
// Nothing is buffered: a signal for an offline user is dropped.
type TypingRelay struct {
	registry *Registry
	metrics  *Metrics
	log      zerolog.Logger
}

func NewTypingRelay(reg *Registry, metrics *Metrics, log zerolog.Logger) *TypingRelay {
	return &TypingRelay{registry: reg, metrics: metrics, log: log}
}

// Relay reports whether the signal was queued for the recipient.
func (t *TypingRelay) Relay(from, to string, typing bool) bool {
	ch, ok := t.registry.Lookup(to)
	if !ok {
		t.metrics.typingRelayed.WithLabelValues(resultOffline).Inc()
		return false
	}

	var ev model.Outbound = model.UserStoppedTyping{UserID: from, Typing: false}
	if typing {
		ev = model.UserTyping{UserID: from, Typing: true}
	}
	if err := ch.Push(ev); err != nil {
		t.metrics.typingRelayed.WithLabelValues(resultFailed).Inc()
		t.log.Debug().Err(err).Str("from", from).Str("to", to).Msg("Typing signal dropped")
		return false
	}
	t.metrics.typingRelayed.WithLabelValues(resultOK).Inc()
	return true
}
