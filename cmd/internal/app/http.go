package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WebSocketPath is where dashboards open their telemetry stream.
const WebSocketPath = "/ACDisplayServerWebSocket"

type routes struct {
	log     *slog.Logger
	static  http.Handler
	ws      http.Handler
	laps    http.Handler
	metrics *prometheus.Registry

	// shuttingDown reports whether the gateway stopped accepting sessions.
	shuttingDown func() bool
	dbPool       *pgxpool.Pool
}

func registerHTTP(mux *http.ServeMux, rt routes) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if rt.shuttingDown != nil && rt.shuttingDown() {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		if rt.dbPool != nil {
			if err := PingDB(r.Context(), rt.dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				rt.log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(rt.metrics, promhttp.HandlerOpts{
		Registry: rt.metrics,
		ErrorLog: slog.NewLogLogger(rt.log.Handler(), slog.LevelWarn),
	}))

	mux.Handle("/laps", rt.laps)
	mux.Handle(WebSocketPath, rt.ws)

	// Static assets answer everything else, including the fixed 404.
	mux.Handle("/", rt.static)
}
