package acudp

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts ingested packets. A nil *Metrics is valid and records nothing.
type Metrics struct {
	packets    *prometheus.CounterVec
	handshakes *prometheus.CounterVec
}

// NewMetrics registers the ingest collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acdisplay",
			Subsystem: "acudp",
			Name:      "packets_total",
			Help:      "UDP packets received from the simulator, by result.",
		}, []string{"result"}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acdisplay",
			Subsystem: "acudp",
			Name:      "handshakes_total",
			Help:      "Handshake outcomes.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.packets, m.handshakes)
	}
	return m
}

func (m *Metrics) packet(result string) {
	if m == nil {
		return
	}
	m.packets.WithLabelValues(result).Inc()
}

func (m *Metrics) handshake(result string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(result).Inc()
}
