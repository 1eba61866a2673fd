package gateway

import (
	"sync"

	"github.com/mahaj/dupahar-dm/pkg/model"
	"github.com/rs/zerolog"
)

// Mirror receives every presence transition in commit order. Implementations
// must not block.
type Mirror interface {
	Online(userID string)
	Offline(userID string)
}

type nopMirror struct{}

func (nopMirror) Online(string)  {}
func (nopMirror) Offline(string) {}

// Broadcaster owns every Registry mutation. The presence lock covers both the
// mutation and the enqueue of the deltas announcing it, so no channel can
// observe deltas in a different order than the Registry committed them.
// Pushes are non-blocking, which keeps the critical section short.
type Broadcaster struct {
	mu       sync.Mutex
	registry *Registry
	mirror   Mirror
	metrics  *Metrics
	log      zerolog.Logger
}

func NewBroadcaster(reg *Registry, mirror Mirror, metrics *Metrics, log zerolog.Logger) *Broadcaster {
	if mirror == nil {
		mirror = nopMirror{}
	}
	return &Broadcaster{registry: reg, mirror: mirror, metrics: metrics, log: log}
}

// Join binds userID to ch. If another channel was live for userID it is
// evicted: closed, and announced as userOffline before the userOnline of the
// new binding. The new channel gets the snapshot, everyone else the delta.
func (b *Broadcaster) Join(userID string, ch *Channel) (model.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Close won the race with authentication.
	if ch.Closed() {
		return model.Session{}, ErrChannelClosed
	}

	sess, prev := b.registry.Bind(userID, ch)
	if prev != nil {
		prev.Close()
		b.mirror.Offline(userID)
		b.fanout(userID, model.UserOffline{UserID: userID})
		b.log.Info().Str("user", userID).Str("evicted", prev.ID()).Str("conn", ch.ID()).Msg("Session replaced")
	} else {
		b.metrics.sessionsLive.Inc()
	}

	b.mirror.Online(userID)
	b.snapshotTo(ch)
	b.fanout(userID, model.UserOnline{UserID: userID})
	return sess, nil
}

// Leave unbinds connID and announces userOffline, unless connID was already
// superseded, in which case nothing happens.
func (b *Broadcaster) Leave(connID string) (model.Session, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sess, ok := b.registry.Unbind(connID)
	if !ok {
		return sess, false
	}
	b.metrics.sessionsLive.Dec()
	b.mirror.Offline(sess.UserID)
	b.fanout(sess.UserID, model.UserOffline{UserID: sess.UserID})
	return sess, true
}

// SnapshotTo sends the current online list to ch.
func (b *Broadcaster) SnapshotTo(ch *Channel) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotTo(ch)
}

func (b *Broadcaster) snapshotTo(ch *Channel) error {
	err := ch.Push(model.OnlineUsersList{UserIDs: b.registry.Snapshot()})
	if err != nil {
		b.log.Warn().Err(err).Str("conn", ch.ID()).Msg("Failed to send presence snapshot")
	}
	return err
}

func (b *Broadcaster) fanout(except string, ev model.Outbound) {
	for _, ch := range b.registry.Others(except) {
		if err := ch.Push(ev); err != nil {
			b.log.Debug().Err(err).Str("conn", ch.ID()).Str("event", string(ev.Type())).Msg("Presence delta dropped")
		}
	}
}
