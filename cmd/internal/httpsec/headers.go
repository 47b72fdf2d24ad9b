// Package httpsec holds the fixed security header policy attached to every
// HTTP response, including WebSocket handshakes.
package httpsec

import "net/http"

type header struct {
	name  string
	value string
}

var policy = []header{
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "same-origin"},
	{"Content-Security-Policy", "frame-ancestors 'none'"},
	{"Permissions-Policy", ""},
	{"Cross-Origin-Embedder-Policy-Report-Only", `require-corp; report-to="default"`},
	{"Cross-Origin-Opener-Policy", `same-origin; report-to="default"`},
	{"Cross-Origin-Opener-Policy-Report-Only", `same-origin; report-to="default"`},
	{"Cross-Origin-Resource-Policy", "same-origin"},
}

// Apply sets every policy header on h, replacing existing values.
func Apply(h http.Header) {
	for _, p := range policy {
		h.Set(p.name, p.value)
	}
}

// Headers returns a fresh header map holding the policy.
func Headers() http.Header {
	h := make(http.Header, len(policy))
	Apply(h)
	return h
}

// Names lists the policy header names in order.
func Names() []string {
	out := make([]string, len(policy))
	for i, p := range policy {
		out[i] = p.name
	}
	return out
}
