package app

import (
	"crypto/tls"
	"fmt"
)

// loadTLSConfig reads the configured key pair. HTTP/2 is not offered since
// the WebSocket upgrade hijacks the HTTP/1.1 connection.
func loadTLSConfig(c HTTPSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.PublicCert, c.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"http/1.1"},
	}, nil
}
