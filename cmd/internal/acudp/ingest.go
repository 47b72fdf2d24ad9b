package acudp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"acdisplay/cmd/internal/telemetry"
)

// Ingester owns the UDP session and keeps the telemetry store current.
type Ingester struct {
	addr     string
	store    *telemetry.Store
	observer telemetry.Observer
	log      *slog.Logger
	metrics  *Metrics
	opts     []ClientOption
}

// NewIngester builds an ingest loop for the simulator at addr. observer and
// metrics may be nil.
func NewIngester(addr string, store *telemetry.Store, observer telemetry.Observer, log *slog.Logger, metrics *Metrics, opts ...ClientOption) *Ingester {
	return &Ingester{
		addr:     addr,
		store:    store,
		observer: observer,
		log:      log,
		metrics:  metrics,
		opts:     opts,
	}
}

// Run handshakes, subscribes to car updates and applies every valid packet
// to the store until ctx is done (returns nil) or the socket fails (returns
// the error). Malformed packets are dropped and the last snapshot is kept.
func (in *Ingester) Run(ctx context.Context) error {
	c, err := Dial(ctx, in.addr, in.log, in.opts...)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	in.log.Info("acudp.handshake.start", "addr", in.addr)

	resp, err := c.Handshake(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		in.metrics.handshake("fail")
		return err
	}
	in.metrics.handshake("ok")
	in.store.SetSession(resp.Session())

	in.log.Info("acudp.handshake.ok",
		"car", resp.CarName,
		"driver", resp.DriverName,
		"track", resp.TrackName,
		"track_config", resp.TrackConfig,
		"identifier", resp.Identifier,
		"version", resp.Version,
	)

	if err := c.Subscribe(OpSubscribeUpdate); err != nil {
		return err
	}

	// Closing the socket is the only way to interrupt the blocking read.
	stop := context.AfterFunc(ctx, func() {
		if err := c.Dismiss(); err != nil {
			in.log.Debug("acudp.dismiss.fail", "err", err)
		}
		_ = c.Close()
	})
	defer stop()

	for {
		b, err := c.ReadPacket()
		if err != nil {
			if ctx.Err() != nil {
				in.log.Info("acudp.stop")
				return nil
			}
			return fmt.Errorf("acudp: read: %w", err)
		}

		u, err := DecodeCarUpdate(b)
		if err != nil {
			in.metrics.packet("dropped")
			in.log.Debug("acudp.packet.drop", "bytes", len(b), "err", err)
			continue
		}
		in.metrics.packet("ok")

		car := u.State()
		in.store.SetCar(car, time.Now())
		if in.observer != nil {
			in.observer.ObserveCar(car)
		}
	}
}
