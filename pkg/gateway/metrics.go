package gateway

import "github.com/prometheus/client_golang/prometheus"

const (
	namespace = "dm"
	subsystem = "gateway"
)

// Result label values.
const (
	resultOK      = "ok"
	resultFailed  = "failed"
	resultOffline = "offline"
)

type Metrics struct {
	sessionsLive      prometheus.Gauge
	messagesPersisted prometheus.Counter
	persistFailures   prometheus.Counter
	deliveries        *prometheus.CounterVec
	typingRelayed     *prometheus.CounterVec
	auth              *prometheus.CounterVec
}

// NewMetrics creates the gateway collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "sessions_live",
			Help: "Number of authenticated channels.",
		}),
		messagesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "messages_persisted_total",
			Help: "Messages durably stored by the router.",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "persist_failures_total",
			Help: "Send requests aborted because the store failed.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "deliveries_total",
			Help: "Realtime newMessage pushes to recipients by result.",
		}, []string{"result"}),
		typingRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "typing_relayed_total",
			Help: "Typing signals by result.",
		}, []string{"result"}),
		auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "auth_total",
			Help: "Authentication attempts by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.sessionsLive, m.messagesPersisted, m.persistFailures, m.deliveries, m.typingRelayed, m.auth)
	}
	return m
}
