package realtime

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"acdisplay/cmd/internal/telemetry"

	"github.com/gobwas/ws"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCarConfig() telemetry.CarConfig {
	return telemetry.CarConfig{RPMRedLine: 6000, RPMMaximum: 7500, SpeedRedLine: 250, SpeedMaximum: 300}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// newPipeSession builds an unregistered session over net.Pipe and returns
// the client end.
func newPipeSession(t *testing.T, reg *Registry, m *Metrics, cfg sessionConfig) (*Session, net.Conn) {
	t.Helper()

	server, client := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	id, err := NewSessionID(time.Now())
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	return newSession(id, server, nil, reg, telemetry.NewStore(testCarConfig()), testLogger(), m, cfg), client
}

// pipeSession is newPipeSession plus Register.
func pipeSession(t *testing.T, reg *Registry, m *Metrics, cfg sessionConfig) (*Session, net.Conn) {
	t.Helper()

	s, client := newPipeSession(t, reg, m, cfg)
	if err := reg.Register(s); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return s, client
}

// start runs both workers; the returned channel closes when the receive
// worker has finished its teardown.
func start(s *Session) <-chan struct{} {
	done := make(chan struct{})
	go s.sendLoop()
	go func() {
		defer close(done)
		s.receiveLoop()
	}()
	return done
}

// readFrames decodes server frames from conn until it fails.
func readFrames(conn net.Conn) <-chan ws.Frame {
	ch := make(chan ws.Frame, 1024)
	go func() {
		defer close(ch)
		for {
			f, err := ws.ReadFrame(conn)
			if err != nil {
				return
			}
			ch <- f
		}
	}()
	return ch
}

func writeClientFrame(t *testing.T, conn net.Conn, f ws.Frame) {
	t.Helper()
	if err := ws.WriteFrame(conn, ws.MaskFrameInPlace(f)); err != nil {
		t.Fatalf("write client frame: %v", err)
	}
}

// nextOf returns the next frame with the given opcode, skipping others.
func nextOf(t *testing.T, frames <-chan ws.Frame, op ws.OpCode) ws.Frame {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				t.Fatalf("stream ended before opcode %v", op)
			}
			if f.Header.OpCode == op {
				return f
			}
		case <-timeout:
			t.Fatalf("timed out waiting for opcode %v", op)
		}
	}
}

func closeCode(f ws.Frame) ws.StatusCode {
	code, _ := ws.ParseCloseFrameData(f.Payload)
	return code
}
