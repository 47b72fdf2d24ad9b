// Package main provides a CI-friendly WebSocket smoke test for the dashboard
// telemetry stream.
//
// It validates:
//   - handshake and security headers on the 101 response
//   - car_config as the first message on every connection
//   - a steady car_update stream with well-formed fields
//   - ping/pong
//   - clean close
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	configTag    = "car_config"
	updateTag    = "car_update"
	configFields = 4
	updateFields = 10
	maxReadBytes = 64 << 10
)

type smokeClient struct {
	name string
	conn *websocket.Conn

	updates int
	last    string
}

func main() {
	var (
		wsURL    = flag.String("url", "wss://127.0.0.1:8443/ACDisplayServerWebSocket", "WebSocket URL")
		insecure = flag.Bool("insecure", true, "skip TLS certificate verification (self-signed dashboards)")
		clients  = flag.Int("clients", 2, "number of concurrent dashboards")
		window   = flag.Duration("window", 2*time.Second, "how long to count updates")
		minRate  = flag.Float64("min-rate", 10, "minimum car_update messages per second per client")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateWSURL(*wsURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	if *clients <= 0 {
		fatalf("-clients must be positive")
	}

	root := context.Background()
	httpClient := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: *insecure},
	}}

	cs := make([]*smokeClient, *clients)
	for i := range cs {
		cs[i] = mustConnect(root, fmt.Sprintf("C%d", i+1), *wsURL, httpClient, *timeout)
		defer closeWS(cs[i].conn)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(cs))
	for _, c := range cs {
		wg.Add(1)
		go func(c *smokeClient) {
			defer wg.Done()
			if err := c.countUpdates(root, *window); err != nil {
				errs <- fmt.Errorf("%s: %w", c.name, err)
			}
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		fatalf("%v", err)
	}

	for _, c := range cs {
		rate := float64(c.updates) / window.Seconds()
		if rate < *minRate {
			fatalf("%s: %.1f updates/s below %.1f", c.name, rate, *minRate)
		}
		if *verbose {
			fmt.Printf("%s: %d updates (%.1f/s) last=%q\n", c.name, c.updates, rate, c.last)
		}
	}

	mustPing(root, cs[0], *timeout)

	fmt.Println("OK: ws smoke passed")
}

func validateWSURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	if strings.TrimSpace(u.Path) == "" {
		return errors.New("missing path")
	}
	return nil
}

func mustConnect(parent context.Context, name, wsURL string, httpClient *http.Client, stepTimeout time.Duration) *smokeClient {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: httpClient})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", name, err)
	}
	if resp.Header.Get("Strict-Transport-Security") == "" {
		fatalf("connect %s: 101 response without security headers", name)
	}
	conn.SetReadLimit(maxReadBytes)

	c := &smokeClient{name: name, conn: conn}

	msg := c.mustRead(ctx)
	if err := checkMessage(msg, configTag, configFields); err != nil {
		fatalf("%s first message: %v", name, err)
	}
	return c
}

// countUpdates reads for window and checks every message is an update.
func (c *smokeClient) countUpdates(parent context.Context, window time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, window)
	defer cancel()

	for {
		typ, b, err := c.conn.Read(ctx)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			return fmt.Errorf("unexpected message type %v", typ)
		}
		if err := checkMessage(string(b), updateTag, updateFields); err != nil {
			return err
		}
		c.updates++
		c.last = string(b)
	}
}

func (c *smokeClient) mustRead(ctx context.Context) string {
	typ, b, err := c.conn.Read(ctx)
	if err != nil {
		fatalf("read %s: %v", c.name, err)
	}
	if typ != websocket.MessageText {
		fatalf("read %s: message type %v", c.name, typ)
	}
	return string(b)
}

// mustPing needs a concurrent reader for the pong to be seen.
func mustPing(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	go func() {
		for {
			if _, _, err := c.conn.Read(ctx); err != nil {
				return
			}
		}
	}()
	if err := c.conn.Ping(ctx); err != nil {
		fatalf("ping %s: %v", c.name, err)
	}
}

func checkMessage(msg, tag string, fields int) error {
	parts := strings.Split(msg, "|")
	if parts[0] != tag {
		return fmt.Errorf("tag %q want %q in %q", parts[0], tag, msg)
	}
	if len(parts)-1 != fields {
		return fmt.Errorf("%d fields want %d in %q", len(parts)-1, fields, msg)
	}
	for _, p := range parts[1:] {
		if _, err := strconv.ParseFloat(p, 64); err != nil {
			return fmt.Errorf("field %q is not a number in %q", p, msg)
		}
	}
	return nil
}

func closeWS(conn *websocket.Conn) {
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
