package realtime

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrInvalidUpgrade is wrapped by every ValidateUpgrade failure.
var ErrInvalidUpgrade = errors.New("invalid websocket upgrade")

const (
	websocketVersion = "13"
	nonceBytes       = 16
)

// ValidateUpgrade checks that r is a well formed RFC 6455 opening handshake.
func ValidateUpgrade(r *http.Request) error {
	if r.Method != http.MethodGet {
		return fmt.Errorf("%w: method %s", ErrInvalidUpgrade, r.Method)
	}
	if !r.ProtoAtLeast(1, 1) {
		return fmt.Errorf("%w: protocol %s", ErrInvalidUpgrade, r.Proto)
	}
	if r.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidUpgrade)
	}
	if !headerHasToken(r.Header, "Connection", "upgrade") {
		return fmt.Errorf("%w: connection header %q", ErrInvalidUpgrade, r.Header.Get("Connection"))
	}
	if !headerHasToken(r.Header, "Upgrade", "websocket") {
		return fmt.Errorf("%w: upgrade header %q", ErrInvalidUpgrade, r.Header.Get("Upgrade"))
	}
	if v := strings.TrimSpace(r.Header.Get("Sec-WebSocket-Version")); v != websocketVersion {
		return fmt.Errorf("%w: version %q", ErrInvalidUpgrade, v)
	}
	key := strings.TrimSpace(r.Header.Get("Sec-WebSocket-Key"))
	nonce, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(nonce) != nonceBytes {
		return fmt.Errorf("%w: key %q", ErrInvalidUpgrade, key)
	}
	return nil
}

// headerHasToken reports whether any comma separated value of header name
// equals token, ignoring case.
func headerHasToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), token) {
				return true
			}
		}
	}
	return false
}
