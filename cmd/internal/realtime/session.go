package realtime

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"acdisplay/cmd/internal/telemetry"

	"github.com/gobwas/ws"
)

// SnapshotSource is where sessions read the telemetry they push.
type SnapshotSource interface {
	Load() telemetry.Snapshot
}

type sessionConfig struct {
	cadence      time.Duration
	writeTimeout time.Duration
}

// Session is one dashboard connection with its receive and send workers.
//
// The receive worker owns the session: it alone runs the teardown. The send
// worker only holds the session until it is joined there.
type Session struct {
	id     string
	remote string
	conn   net.Conn
	r      *bufio.Reader

	reg    *Registry
	source SnapshotSource
	log    *slog.Logger
	m      *Metrics
	cfg    sessionConfig
	opened time.Time

	// sendMu serializes frame writes from both workers. Never taken while
	// holding reg.mu.
	sendMu sync.Mutex
	bw     *bufio.Writer
	// closeSent is set once a close frame went out; guarded by sendMu.
	closeSent bool

	wake chan struct{}

	// Guarded by reg.mu.
	disconnect bool
	pending    bool

	sendDone     chan struct{}
	closeOnce    sync.Once
	teardownOnce sync.Once
}

// newSession wraps an upgraded connection. extra holds bytes the HTTP layer
// had already buffered past the handshake; they are decoded before anything
// read from conn.
func newSession(id string, conn net.Conn, extra []byte, reg *Registry, source SnapshotSource, log *slog.Logger, m *Metrics, cfg sessionConfig) *Session {
	var src io.Reader = conn
	if len(extra) > 0 {
		src = io.MultiReader(bytes.NewReader(extra), conn)
	}
	return &Session{
		id:       id,
		remote:   conn.RemoteAddr().String(),
		conn:     conn,
		r:        bufio.NewReaderSize(src, 4096),
		reg:      reg,
		source:   source,
		log:      log.With("session_id", id),
		m:        m,
		cfg:      cfg,
		opened:   time.Now(),
		bw:       bufio.NewWriterSize(conn, 512),
		wake:     make(chan struct{}, 1),
		sendDone: make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// signal wakes the send worker without blocking. A pending token is enough.
func (s *Session) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// kick asks the session to go away. The receive worker sees the closed
// transport and runs the teardown; calling it again is a no-op.
func (s *Session) kick() {
	s.reg.mu.Lock()
	s.disconnect = true
	s.signal()
	s.reg.mu.Unlock()
	s.closeTransport()
}

func (s *Session) closeTransport() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

// poll reads the stop conditions under the registry lock. closeConn is true
// for a global disconnect, where the send side must release the transport.
func (s *Session) poll() (stop, closeConn, force bool) {
	s.reg.mu.Lock()
	defer s.reg.mu.Unlock()

	switch {
	case s.reg.disconnectAll:
		return true, true, false
	case s.disconnect:
		return true, false, false
	}
	force = s.pending
	s.pending = false
	return false, false, force
}

// sendLoop is the send worker: the config message once, then the latest
// car state every cadence until told to stop.
func (s *Session) sendLoop() {
	defer close(s.sendDone)

	snap := s.source.Load()
	buf := telemetry.AppendConfig(make([]byte, 0, 128), snap.Config)
	if err := s.writeText(buf, "config"); err != nil {
		if !errors.Is(err, errCloseSent) {
			s.sendFailed(err)
		}
		return
	}
	last := time.Now()

	timer := time.NewTimer(s.cfg.cadence)
	defer timer.Stop()

	for {
		if stop, closeConn, _ := s.poll(); stop {
			if closeConn {
				s.closeTransport()
			}
			return
		}

		wait := s.cfg.cadence - time.Since(last)
		if wait <= 0 {
			wait = time.Millisecond
		}
		timer.Reset(wait)
		select {
		case <-s.wake:
		case <-timer.C:
		}

		stop, closeConn, force := s.poll()
		if stop {
			if closeConn {
				s.closeTransport()
			}
			return
		}
		now := time.Now()
		if !force && now.Sub(last) < s.cfg.cadence {
			continue
		}

		// Fresh copy per send so a session never goes back in time.
		buf = telemetry.AppendUpdate(buf[:0], s.source.Load().Car)
		if err := s.writeText(buf, "update"); err != nil {
			if !errors.Is(err, errCloseSent) {
				s.sendFailed(err)
			}
			return
		}
		last = now
	}
}

// A failed write closes the transport so the receive worker tears down.
func (s *Session) sendFailed(err error) {
	s.m.sendError()
	if !isClosedConnErr(err) {
		s.log.Info("ws.send.fail", "err", err)
	}
	s.closeTransport()
}

func (s *Session) writeText(p []byte, kind string) error {
	return s.writeFrame(ws.NewTextFrame(p), kind, s.cfg.writeTimeout)
}

// errCloseSent is returned for any write after the close frame.
var errCloseSent = fmt.Errorf("realtime: close frame already sent: %w", net.ErrClosed)

func (s *Session) writeFrame(f ws.Frame, kind string, timeout time.Duration) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closeSent {
		return errCloseSent
	}
	if f.Header.OpCode == ws.OpClose {
		s.closeSent = true
	}

	if timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	if err := ws.WriteFrame(s.bw, f); err != nil {
		return err
	}
	if err := s.bw.Flush(); err != nil {
		// A partial frame poisons the stream; drop what is left.
		s.bw.Reset(s.conn)
		return err
	}
	s.m.frameSent(kind)
	return nil
}

// closeWith sends a close frame best-effort.
func (s *Session) closeWith(code ws.StatusCode, reason string) {
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	f := ws.NewCloseFrame(ws.NewCloseFrameBody(code, reason))
	if err := s.writeFrame(f, "close", closeFrameTimeout); err != nil {
		s.log.Debug("ws.close_frame.fail", "code", int(code), "err", err)
	}
}

// receiveLoop is the receive worker. It decodes inbound frames until the
// client closes, a protocol error occurs or the transport fails, then runs
// the teardown.
func (s *Session) receiveLoop() {
	defer s.teardown()

	for {
		h, err := ws.ReadHeader(s.r)
		if err != nil {
			s.logReadErr(err)
			return
		}
		if err := ws.CheckHeader(h, ws.StateServerSide); err != nil {
			s.log.Info("ws.frame.invalid", "err", err, "opcode", h.OpCode)
			s.closeWith(ws.StatusProtocolError, err.Error())
			return
		}
		if h.Length > maxFramePayload {
			s.log.Info("ws.frame.too_large", "length", h.Length)
			s.closeWith(ws.StatusMessageTooBig, "frame too large")
			return
		}

		if h.OpCode.IsData() || h.OpCode == ws.OpContinuation {
			if !h.Fin || h.OpCode == ws.OpContinuation {
				s.closeWith(ws.StatusUnsupportedData, "fragmented messages are not supported")
				return
			}
			// Push-only protocol: client payloads are read and discarded.
			if _, err := io.CopyN(io.Discard, s.r, h.Length); err != nil {
				s.logReadErr(err)
				return
			}
			continue
		}

		payload := make([]byte, h.Length)
		if _, err := io.ReadFull(s.r, payload); err != nil {
			s.logReadErr(err)
			return
		}
		ws.Cipher(payload, h.Mask, 0)

		switch h.OpCode {
		case ws.OpClose:
			code, reason := ws.ParseCloseFrameData(payload)
			reply := code
			if code.Empty() {
				reply = ws.StatusNormalClosure
			} else if err := ws.CheckCloseFrameData(code, reason); err != nil {
				reply = ws.StatusProtocolError
			}
			s.log.Debug("ws.close.recv", "code", int(code), "reason", reason)
			s.closeWith(reply, "")
			return
		case ws.OpPing:
			if err := s.writeFrame(ws.NewPongFrame(payload), "pong", s.cfg.writeTimeout); err != nil {
				s.logReadErr(err)
				return
			}
		case ws.OpPong:
		}
	}
}

// teardown runs once, from the receive worker: unregister, stop and join the
// send worker, release the transport.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.reg.remove(s)

		s.reg.mu.Lock()
		s.disconnect = true
		s.signal()
		s.reg.mu.Unlock()

		<-s.sendDone
		s.closeTransport()

		s.reg.finished()
		s.m.sessionClosed()
		s.log.Info("ws.session.close", "remote", s.remote, "duration_ms", time.Since(s.opened).Milliseconds())
	})
}

func (s *Session) logReadErr(err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), isClosedConnErr(err):
		s.log.Debug("ws.read.closed", "err", err)
	default:
		s.log.Info("ws.read.fail", "err", err)
	}
}

func isClosedConnErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
