package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the gateway collectors. A nil *Metrics records nothing.
type Metrics struct {
	active     prometheus.Gauge
	opened     prometheus.Counter
	teardowns  prometheus.Counter
	rejected   *prometheus.CounterVec
	framesSent *prometheus.CounterVec
	sendErrors prometheus.Counter
	forced     prometheus.Counter
}

// NewMetrics registers the gateway collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "acdisplay", Subsystem: "ws", Name: "sessions_active",
			Help: "Sessions registered and not yet torn down.",
		}),
		opened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "acdisplay", Subsystem: "ws", Name: "sessions_total",
			Help: "Sessions opened since start.",
		}),
		teardowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "acdisplay", Subsystem: "ws", Name: "teardowns_total",
			Help: "Completed session teardown sequences.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acdisplay", Subsystem: "ws", Name: "upgrades_rejected_total",
			Help: "Upgrade requests that did not produce a session, by reason.",
		}, []string{"reason"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acdisplay", Subsystem: "ws", Name: "frames_sent_total",
			Help: "Frames written to clients, by kind.",
		}, []string{"kind"}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "acdisplay", Subsystem: "ws", Name: "send_errors_total",
			Help: "Failed frame writes.",
		}),
		forced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "acdisplay", Subsystem: "ws", Name: "forced_closes_total",
			Help: "Transports closed by the shutdown coordinator after the grace period.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.active, m.opened, m.teardowns, m.rejected, m.framesSent, m.sendErrors, m.forced)
	}
	return m
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.opened.Inc()
	m.active.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.teardowns.Inc()
	m.active.Dec()
}

func (m *Metrics) reject(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) frameSent(kind string) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) sendError() {
	if m == nil {
		return
	}
	m.sendErrors.Inc()
}

func (m *Metrics) forcedClose(n int) {
	if m == nil {
		return
	}
	m.forced.Add(float64(n))
}
