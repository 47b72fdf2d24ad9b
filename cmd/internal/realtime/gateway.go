package realtime

import (
	"bufio"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
)

// Response bodies for rejected upgrades.
const (
	invalidUpgradeBody = "Invalid WebSocket request"
	unavailableBody    = "Service Unavailable"
)

// Gateway is the HTTP handler that upgrades dashboard connections and runs
// their sessions.
type Gateway struct {
	log    *slog.Logger
	reg    *Registry
	source SnapshotSource
	m      *Metrics

	cadence        time.Duration
	writeTimeout   time.Duration
	upgradeTimeout time.Duration
	grace          time.Duration
	closeGrace     time.Duration
	header         http.Header

	quiesced atomic.Bool
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithBroadcastInterval sets the per-session push cadence (default 20ms).
func WithBroadcastInterval(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.cadence = d
		}
	}
}

// WithWriteTimeout sets the per-frame write deadline (default 5s). Zero or
// negative disables the deadline.
func WithWriteTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.writeTimeout = d }
}

// WithShutdownGrace sets the two shutdown waits (default 2s each).
func WithShutdownGrace(grace, closeGrace time.Duration) GatewayOption {
	return func(g *Gateway) {
		if grace > 0 {
			g.grace = grace
		}
		if closeGrace > 0 {
			g.closeGrace = closeGrace
		}
	}
}

// WithResponseHeader adds headers to the 101 Switching Protocols response.
func WithResponseHeader(h http.Header) GatewayOption {
	return func(g *Gateway) { g.header = h.Clone() }
}

// WithMetrics attaches gateway metrics.
func WithMetrics(m *Metrics) GatewayOption {
	return func(g *Gateway) { g.m = m }
}

// NewGateway builds a gateway serving snapshots from source. A nil reg gets
// a fresh registry.
func NewGateway(log *slog.Logger, reg *Registry, source SnapshotSource, opts ...GatewayOption) *Gateway {
	if reg == nil {
		reg = NewRegistry()
	}
	g := &Gateway{
		log:            log,
		reg:            reg,
		source:         source,
		cadence:        defaultBroadcastInterval,
		writeTimeout:   defaultWriteTimeout,
		upgradeTimeout: defaultUpgradeTimeout,
		grace:          defaultShutdownGrace,
		closeGrace:     defaultCloseGrace,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Registry returns the session registry.
func (g *Gateway) Registry() *Registry { return g.reg }

// Quiesce makes every later upgrade request fail with 503.
func (g *Gateway) Quiesce() { g.quiesced.Store(true) }

// Quiesced reports whether Quiesce has been called.
func (g *Gateway) Quiesced() bool { return g.quiesced.Load() }

// ServeHTTP validates and upgrades the request, then runs the session's
// receive worker on the calling goroutine until the session is torn down.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.quiesced.Load() {
		g.m.reject("shutting_down")
		writePlain(w, http.StatusServiceUnavailable, unavailableBody)
		return
	}
	if err := ValidateUpgrade(r); err != nil {
		g.m.reject("invalid")
		g.log.Info("ws.upgrade.reject", "err", err, "remote", r.RemoteAddr)
		writePlain(w, http.StatusBadRequest, invalidUpgradeBody)
		return
	}

	u := ws.HTTPUpgrader{
		Timeout: g.upgradeTimeout,
		Header:  g.header,
	}
	conn, rw, _, err := u.Upgrade(r, w)
	if err != nil {
		g.m.reject("handshake")
		g.log.Info("ws.upgrade.fail", "err", err, "remote", r.RemoteAddr)
		return
	}
	// Server read/write timeouts must not apply to the long-lived stream.
	_ = conn.SetDeadline(time.Time{})

	id, err := NewSessionID(time.Now())
	if err != nil {
		g.log.Error("ws.session.id.fail", "err", err)
		_ = conn.Close()
		return
	}

	extra := buffered(rw.Reader)
	s := newSession(id, conn, extra, g.reg, g.source, g.log, g.m, sessionConfig{
		cadence:      g.cadence,
		writeTimeout: g.writeTimeout,
	})

	if err := g.reg.Register(s); err != nil {
		g.m.reject("shutting_down")
		s.closeWith(ws.StatusGoingAway, "server shutting down")
		s.closeTransport()
		return
	}
	g.m.sessionOpened()
	g.log.Info("ws.session.open", "remote", s.remote, "buffered_bytes", len(extra))

	go s.sendLoop()
	s.receiveLoop()
}

// buffered copies whatever the HTTP layer read past the handshake.
func buffered(br *bufio.Reader) []byte {
	if br == nil {
		return nil
	}
	n := br.Buffered()
	if n == 0 {
		return nil
	}
	b, err := br.Peek(n)
	if err != nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
