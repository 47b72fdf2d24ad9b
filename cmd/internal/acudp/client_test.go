package acudp_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"acdisplay/cmd/internal/acudp"
	"acdisplay/cmd/internal/acudp/acudptest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testSetup = acudp.SetupResponse{
	CarName:     "gr2_opel_kadett",
	DriverName:  "myname",
	Identifier:  4242,
	Version:     1,
	TrackName:   "ks_brands_hatch",
	TrackConfig: "ks_brands_hatch",
}

func startServer(t *testing.T) *acudptest.Server {
	t.Helper()

	srv, err := acudptest.NewServer("127.0.0.1:0", testSetup)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()
	t.Cleanup(func() {
		_ = srv.Close()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return srv
}

func TestClient_HandshakeAndSubscribe(t *testing.T) {
	t.Parallel()

	srv := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := acudp.Dial(ctx, srv.Addr(), discardLogger())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = c.Close() }()

	resp, err := c.Handshake(ctx)
	if err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if resp != testSetup {
		t.Fatalf("resp=%+v", resp)
	}

	if err := c.Subscribe(acudp.OpSubscribeUpdate); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	select {
	case <-srv.Subscribed():
	case <-ctx.Done():
		t.Fatalf("server never saw subscribe")
	}

	if err := c.Subscribe(acudp.OpDismiss); err == nil {
		t.Fatalf("dismiss must not be accepted as a subscription")
	}
}

func TestClient_HandshakeRetries(t *testing.T) {
	t.Parallel()

	srv := startServer(t)
	srv.IgnoreHandshakes(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := acudp.Dial(ctx, srv.Addr(), discardLogger(),
		acudp.WithHandshakeTimeout(100*time.Millisecond),
		acudp.WithHandshakeAttempts(3),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = c.Close() }()

	if _, err := c.Handshake(ctx); err != nil {
		t.Fatalf("Handshake: %v", err)
	}

	n := 0
	for _, r := range srv.Requests() {
		if r.OperationID == acudp.OpHandshake {
			n++
		}
	}
	if n != 3 {
		t.Fatalf("handshake requests=%d want=3", n)
	}
}

func TestClient_HandshakeGivesUp(t *testing.T) {
	t.Parallel()

	srv := startServer(t)
	srv.IgnoreHandshakes(10)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := acudp.Dial(ctx, srv.Addr(), discardLogger(),
		acudp.WithHandshakeTimeout(50*time.Millisecond),
		acudp.WithHandshakeAttempts(2),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = c.Close() }()

	if _, err := c.Handshake(ctx); !errors.Is(err, acudp.ErrHandshakeFailed) {
		t.Fatalf("err=%v want ErrHandshakeFailed", err)
	}
}

// closedUDPAddr returns a loopback UDP address nothing listens on.
func closedUDPAddr(t *testing.T) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	addr := pc.LocalAddr().String()
	if err := pc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return addr
}

func TestClient_HandshakeRefusedWaitsEachAttempt(t *testing.T) {
	t.Parallel()

	const (
		attempts = 3
		timeout  = 100 * time.Millisecond
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := acudp.Dial(ctx, closedUDPAddr(t), discardLogger(),
		acudp.WithHandshakeTimeout(timeout),
		acudp.WithHandshakeAttempts(attempts),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = c.Close() }()

	start := time.Now()
	_, err = c.Handshake(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, acudp.ErrHandshakeFailed) {
		t.Fatalf("err=%v want ErrHandshakeFailed", err)
	}
	if elapsed < attempts*timeout {
		t.Fatalf("elapsed=%s want at least %s", elapsed, attempts*timeout)
	}
}

func TestClient_HandshakeRefusedHonoursContext(t *testing.T) {
	t.Parallel()

	c, err := acudp.Dial(context.Background(), closedUDPAddr(t), discardLogger(),
		acudp.WithHandshakeTimeout(time.Hour),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	if _, err := c.Handshake(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("handshake ignored ctx, elapsed=%s", elapsed)
	}
}
