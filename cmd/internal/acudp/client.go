package acudp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const (
	defaultHandshakeTimeout  = 2 * time.Second
	defaultHandshakeAttempts = 3

	// Large enough for every packet type the simulator sends.
	readBufferSize = 2048
)

// ErrHandshakeFailed is returned when no attempt got a valid setup response.
var ErrHandshakeFailed = errors.New("acudp: handshake failed")

// Client is a UDP session with the simulator.
// ReadPacket must only be called from one goroutine; Close and Dismiss are
// safe to call concurrently with it.
type Client struct {
	conn net.Conn
	log  *slog.Logger
	buf  []byte

	handshakeTimeout  time.Duration
	handshakeAttempts int

	closeOnce sync.Once
	closeErr  error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHandshakeTimeout sets how long each handshake attempt waits for a reply.
func WithHandshakeTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.handshakeTimeout = d
		}
	}
}

// WithHandshakeAttempts sets how many handshake requests are sent before giving up.
func WithHandshakeAttempts(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.handshakeAttempts = n
		}
	}
}

// Dial opens a UDP socket connected to addr (host:port).
func Dial(ctx context.Context, addr string, log *slog.Logger, opts ...ClientOption) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("acudp: dial %s: %w", addr, err)
	}
	return NewClient(conn, log, opts...), nil
}

// NewClient wraps an already connected packet conn.
func NewClient(conn net.Conn, log *slog.Logger, opts ...ClientOption) *Client {
	c := &Client{
		conn:              conn,
		log:               log,
		buf:               make([]byte, readBufferSize),
		handshakeTimeout:  defaultHandshakeTimeout,
		handshakeAttempts: defaultHandshakeAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Handshake sends setup requests until a valid setup response arrives, the
// attempts run out or ctx is done.
func (c *Client) Handshake(ctx context.Context) (SetupResponse, error) {
	req := EncodeRequest(OpHandshake)
	var lastErr error

	for attempt := 1; attempt <= c.handshakeAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return SetupResponse{}, err
		}

		resp, err := c.handshakeOnce(ctx, req)
		if err == nil {
			if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
				return SetupResponse{}, fmt.Errorf("acudp: clear deadline: %w", err)
			}
			return resp, nil
		}
		lastErr = err
		c.log.Warn("acudp.handshake.retry", "attempt", attempt, "max_attempts", c.handshakeAttempts, "err", err)
	}

	if err := ctx.Err(); err != nil {
		return SetupResponse{}, err
	}
	return SetupResponse{}, fmt.Errorf("%w after %d attempts: %w", ErrHandshakeFailed, c.handshakeAttempts, lastErr)
}

// handshakeOnce runs one attempt. An attempt that fails early, such as a
// refused port while the simulator is not up yet, still uses its full timeout.
func (c *Client) handshakeOnce(ctx context.Context, req []byte) (SetupResponse, error) {
	deadline := time.Now().Add(c.handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if _, err := c.conn.Write(req); err != nil {
		sleepUntil(ctx, deadline)
		return SetupResponse{}, fmt.Errorf("write handshake: %w", err)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return SetupResponse{}, fmt.Errorf("set deadline: %w", err)
	}

	for {
		n, err := c.conn.Read(c.buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				return SetupResponse{}, fmt.Errorf("no setup response within %s", c.handshakeTimeout)
			}
			sleepUntil(ctx, deadline)
			return SetupResponse{}, fmt.Errorf("read handshake: %w", err)
		}
		resp, err := DecodeSetupResponse(c.buf[:n])
		if err != nil {
			// Stray packet from an earlier session; keep waiting for this attempt.
			c.log.Debug("acudp.handshake.skip", "bytes", n, "err", err)
			continue
		}
		return resp, nil
	}
}

// sleepUntil blocks until deadline or ctx is done.
func sleepUntil(ctx context.Context, deadline time.Time) {
	d := time.Until(deadline)
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Subscribe asks the simulator to start streaming events of the given kind.
func (c *Client) Subscribe(op Operation) error {
	if op != OpSubscribeUpdate && op != OpSubscribeSpot {
		return fmt.Errorf("acudp: %s is not a subscription", op)
	}
	if _, err := c.conn.Write(EncodeRequest(op)); err != nil {
		return fmt.Errorf("acudp: write %s: %w", op, err)
	}
	return nil
}

// Dismiss tells the simulator to stop streaming to this client.
func (c *Client) Dismiss() error {
	if _, err := c.conn.Write(EncodeRequest(OpDismiss)); err != nil {
		return fmt.Errorf("acudp: write dismiss: %w", err)
	}
	return nil
}

// ReadPacket blocks for the next datagram. The returned slice is only valid
// until the next call.
func (c *Client) ReadPacket() ([]byte, error) {
	n, err := c.conn.Read(c.buf)
	if err != nil {
		return nil, err
	}
	return c.buf[:n], nil
}

// Close releases the socket. It is idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
