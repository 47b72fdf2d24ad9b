// Command acsim pretends to be the simulator's UDP telemetry endpoint so the
// dashboard can be developed without the game running.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"acdisplay/cmd/internal/acudp"
	"acdisplay/cmd/internal/acudp/acudptest"
	"acdisplay/cmd/internal/telemetry"

	flag "github.com/spf13/pflag"
)

func main() {
	var (
		listen    = flag.StringP("listen", "l", "127.0.0.1:9996", "UDP address to answer handshakes on")
		interval  = flag.Duration("interval", 3*time.Millisecond, "time between car update packets")
		lapLength = flag.Duration("lap-length", 60*time.Second, "simulated lap duration")
		car       = flag.String("car", "simulated_car", "car name reported in the handshake")
		driver    = flag.String("driver", "acsim", "driver name reported in the handshake")
		track     = flag.String("track", "sine_wave", "track name reported in the handshake")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(log, *listen, *interval, *lapLength, acudp.SetupResponse{
		CarName:    *car,
		DriverName: *driver,
		Identifier: 1,
		Version:    1,
		TrackName:  *track,
	}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, addr string, interval, lapLength time.Duration, setup acudp.SetupResponse) error {
	if interval <= 0 {
		return errors.New("--interval must be positive")
	}

	srv, err := acudptest.NewServer(addr, setup)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	defer srv.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	log.Info("acsim.listen", "addr", srv.Addr(), "interval", interval.String())

	select {
	case <-srv.Subscribed():
		log.Info("acsim.subscribed")
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		return nil
	}

	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-serveErr:
			return err
		case <-srv.Dismissed():
			log.Info("acsim.dismissed")
			return nil
		case <-ticker.C:
			err := srv.SendCar(telemetry.SimulatedState(time.Since(start), lapLength))
			if err != nil && !errors.Is(err, acudptest.ErrNoSubscriber) {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}
