// Package app wires the dashboard server runtime: config, logging, the
// telemetry source, HTTP routes and the orderly shutdown.
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"acdisplay/cmd/internal/acudp"
	"acdisplay/cmd/internal/httpsec"
	"acdisplay/cmd/internal/laps"
	"acdisplay/cmd/internal/realtime"
	"acdisplay/cmd/internal/static"
	"acdisplay/cmd/internal/telemetry"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// source produces car updates into the snapshot store until ctx is done.
type source interface {
	Run(ctx context.Context) error
}

// App is the dashboard server: it owns the snapshot store, the telemetry
// source, the lap recorder, the WebSocket gateway and the HTTP server.
type App struct {
	cfg Config
	log Logger

	snapshot *telemetry.Store
	source   source
	recorder *laps.Recorder
	lapStore laps.Store
	gateway  *realtime.Gateway
	metrics  *prometheus.Registry

	dbPool  *pgxpool.Pool
	tls     *tls.Config
	handler http.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	snapshot := telemetry.NewStore(cfg.Car.Telemetry())

	assets, err := static.New()
	if err != nil {
		return nil, err
	}

	var tlsCfg *tls.Config
	if cfg.HTTPS.TLSEnabled() {
		if tlsCfg, err = loadTLSConfig(cfg.HTTPS); err != nil {
			return nil, err
		}
	}

	lapStore, dbPool, err := newLapStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	recorder := laps.NewRecorder(lapStore, snapshot.Session, log, reg)

	var src source
	switch cfg.Source {
	case SourceSimulator:
		src = telemetry.NewSimulator(snapshot, log, recorder)
	default:
		src = acudp.NewIngester(cfg.ACUDP.Addr(), snapshot, recorder, log, acudp.NewMetrics(reg))
	}

	gateway := realtime.NewGateway(log, realtime.NewRegistry(), snapshot,
		realtime.WithBroadcastInterval(cfg.Realtime.BroadcastInterval.Std()),
		realtime.WithWriteTimeout(cfg.Realtime.WriteTimeout.Std()),
		realtime.WithShutdownGrace(cfg.Realtime.ShutdownGrace.Std(), cfg.Realtime.CloseGrace.Std()),
		realtime.WithResponseHeader(httpsec.Headers()),
		realtime.WithMetrics(realtime.NewMetrics(reg)),
	)

	mux := http.NewServeMux()
	registerHTTP(mux, routes{
		log:          log,
		static:       assets,
		ws:           gateway,
		laps:         laps.NewHandler(lapStore, log),
		metrics:      reg,
		shuttingDown: gateway.Quiesced,
		dbPool:       dbPool,
	})

	return &App{
		cfg:      cfg,
		log:      log,
		snapshot: snapshot,
		source:   src,
		recorder: recorder,
		lapStore: lapStore,
		gateway:  gateway,
		metrics:  reg,
		dbPool:   dbPool,
		tls:      tlsCfg,
		handler:  WithRequestLogging(WithSecurityHeaders(mux), log),
	}, nil
}

// Listen opens the dashboard listener, wrapped in TLS when a key pair is
// configured.
func (a *App) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", a.cfg.HTTPS.Addr())
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", a.cfg.HTTPS.Addr(), err)
	}
	if a.tls != nil {
		ln = tls.NewListener(ln, a.tls)
	}
	return ln, nil
}

// Run listens on the configured address and serves until ctx is done or a
// component fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := a.Listen()
	if err != nil {
		a.close()
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve runs the telemetry source, the lap recorder and the HTTP server on
// ln. A failed source is logged and the server keeps serving the last
// snapshot. When ctx is done or the server fails, it disconnects every
// dashboard, stops the server and the workers and releases the store. The
// server error is returned.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.HTTPS.ReadHeaderTimeout.Std(), 5*time.Second),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       nonZeroDuration(a.cfg.HTTPS.IdleTimeout.Std(), 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.HTTPS.MaxHeaderBytes, 1<<20),
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}

	runCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	errCh := make(chan error, 2)
	var workers sync.WaitGroup

	workers.Add(2)
	go func() {
		defer workers.Done()
		// Dashboards keep the last snapshot when the source gives up.
		if err := a.source.Run(runCtx); err != nil {
			a.log.Error("telemetry.source.fail", "source", a.cfg.Source, "err", err)
		}
	}()
	go func() {
		defer workers.Done()
		_ = a.recorder.Run(runCtx)
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	a.log.Info("server.start",
		"addr", ln.Addr().String(),
		"tls", a.tls != nil,
		"source", a.cfg.Source,
		"db_enabled", a.dbPool != nil,
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res := a.gateway.Shutdown(shutdownCtx)
	a.log.Info("ws.shutdown.result", "signalled", res.Signalled, "forced", res.Forced, "remaining", res.Remaining)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	stopWorkers()
	workers.Wait()
	a.close()

	a.log.Info("server.stopped")
	return runErr
}

func (a *App) close() {
	if err := a.lapStore.Close(); err != nil {
		a.log.Error("laps.store.close.fail", "err", err)
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newLapStore picks PostgreSQL when database_url is set and the bounded
// in-memory ring otherwise. The app owns the pool; PostgresStore.Close is a
// no-op.
func newLapStore(ctx context.Context, cfg Config, log Logger) (laps.Store, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return laps.NewInMemoryStore(0), nil, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	st, err := laps.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := st.EnsureSchema(schemaCtx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	log.Info("db.enabled.postgres_store")
	return st, pool, nil
}
