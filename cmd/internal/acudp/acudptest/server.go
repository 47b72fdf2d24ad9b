// Package acudptest provides an in-process fake of the simulator's UDP
// telemetry endpoint.
package acudptest

import (
	"errors"
	"net"
	"sync"

	"acdisplay/cmd/internal/acudp"
	"acdisplay/cmd/internal/telemetry"
)

// Server answers handshakes and streams whatever packets the caller sends
// to the last subscribed client.
type Server struct {
	conn  *net.UDPConn
	setup acudp.SetupResponse

	mu         sync.Mutex
	subscriber *net.UDPAddr
	requests   []acudp.Request
	ignore     int

	subscribed     chan struct{}
	dismissed      chan struct{}
	subscribedOnce sync.Once
	dismissedOnce  sync.Once
}

// NewServer listens on addr (use "127.0.0.1:0" in tests).
func NewServer(addr string, setup acudp.SetupResponse) (*Server, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, err
	}
	return &Server{
		conn:       conn,
		setup:      setup,
		subscribed: make(chan struct{}),
		dismissed:  make(chan struct{}),
	}, nil
}

// Addr is the listen address in host:port form.
func (s *Server) Addr() string { return s.conn.LocalAddr().String() }

// IgnoreHandshakes makes the server stay silent for the next n handshakes.
func (s *Server) IgnoreHandshakes(n int) {
	s.mu.Lock()
	s.ignore = n
	s.mu.Unlock()
}

// Subscribed is closed once a client subscribes to updates.
func (s *Server) Subscribed() <-chan struct{} { return s.subscribed }

// Dismissed is closed once a client sends dismiss.
func (s *Server) Dismissed() <-chan struct{} { return s.dismissed }

// Requests returns every request received so far.
func (s *Server) Requests() []acudp.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]acudp.Request(nil), s.requests...)
}

// Serve handles requests until Close. It returns nil after Close.
func (s *Server) Serve() error {
	buf := make([]byte, 512)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		req, err := acudp.DecodeRequest(buf[:n])
		if err != nil {
			continue
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		reply := false
		switch req.OperationID {
		case acudp.OpHandshake:
			if s.ignore > 0 {
				s.ignore--
			} else {
				reply = true
			}
		case acudp.OpSubscribeUpdate, acudp.OpSubscribeSpot:
			s.subscriber = from
			s.subscribedOnce.Do(func() { close(s.subscribed) })
		case acudp.OpDismiss:
			s.subscriber = nil
			s.dismissedOnce.Do(func() { close(s.dismissed) })
		}
		s.mu.Unlock()

		if reply {
			if _, err := s.conn.WriteToUDP(acudp.EncodeSetupResponse(s.setup), from); err != nil {
				return err
			}
		}
	}
}

// ErrNoSubscriber is returned by Send when nobody is subscribed.
var ErrNoSubscriber = errors.New("acudptest: no subscriber")

// Send writes a raw datagram to the current subscriber.
func (s *Server) Send(b []byte) error {
	s.mu.Lock()
	to := s.subscriber
	s.mu.Unlock()
	if to == nil {
		return ErrNoSubscriber
	}
	_, err := s.conn.WriteToUDP(b, to)
	return err
}

// SendCar encodes c as a car update packet and sends it.
func (s *Server) SendCar(c telemetry.CarState) error {
	return s.Send(acudp.EncodeCarUpdate(acudp.CarUpdateFromState(c)))
}

// Close stops Serve.
func (s *Server) Close() error { return s.conn.Close() }
