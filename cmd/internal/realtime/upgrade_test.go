package realtime

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func upgradeRequest() *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ACDisplayServerWebSocket", nil)
	r.Header.Set("Connection", "keep-alive, Upgrade")
	r.Header.Set("Upgrade", "WebSocket")
	r.Header.Set("Sec-WebSocket-Version", "13")
	r.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	return r
}

func TestValidateUpgrade(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(r *http.Request)
		ok     bool
	}{
		{name: "valid", mutate: func(*http.Request) {}, ok: true},
		{name: "method", mutate: func(r *http.Request) { r.Method = http.MethodPut }},
		{name: "http/1.0", mutate: func(r *http.Request) { r.Proto, r.ProtoMajor, r.ProtoMinor = "HTTP/1.0", 1, 0 }},
		{name: "no host", mutate: func(r *http.Request) { r.Host = "" }},
		{name: "connection close", mutate: func(r *http.Request) { r.Header.Set("Connection", "close") }},
		{name: "upgrade h2c", mutate: func(r *http.Request) { r.Header.Set("Upgrade", "h2c") }},
		{name: "no version", mutate: func(r *http.Request) { r.Header.Del("Sec-WebSocket-Version") }},
		{name: "version 8", mutate: func(r *http.Request) { r.Header.Set("Sec-WebSocket-Version", "8") }},
		{name: "no key", mutate: func(r *http.Request) { r.Header.Del("Sec-WebSocket-Key") }},
		{name: "key 15 bytes", mutate: func(r *http.Request) { r.Header.Set("Sec-WebSocket-Key", "AAAAAAAAAAAAAAAAAAAA") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := upgradeRequest()
			tc.mutate(r)
			err := ValidateUpgrade(r)
			if tc.ok {
				if err != nil {
					t.Fatalf("ValidateUpgrade: %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidUpgrade) {
				t.Fatalf("err=%v want ErrInvalidUpgrade", err)
			}
		})
	}
}

func TestGateway_QuiescedRejectsWith503(t *testing.T) {
	t.Parallel()

	g := NewGateway(testLogger(), nil, nil)
	g.Quiesce()

	rr := httptest.NewRecorder()
	g.ServeHTTP(rr, upgradeRequest())
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestGateway_InvalidBody(t *testing.T) {
	t.Parallel()

	g := NewGateway(testLogger(), nil, nil)
	r := upgradeRequest()
	r.Header.Del("Sec-WebSocket-Version")

	rr := httptest.NewRecorder()
	g.ServeHTTP(rr, r)
	if rr.Code != http.StatusBadRequest || rr.Body.String() != "Invalid WebSocket request" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if g.Registry().Len() != 0 {
		t.Fatalf("session registered for invalid request")
	}
}
