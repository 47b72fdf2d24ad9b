// Package static serves the embedded dashboard assets.
package static

import (
	"embed"
	"fmt"
	"net/http"
	"strconv"
)

//go:embed resources
var resources embed.FS

// NotFoundBody is the body of every 404 response.
const NotFoundBody = "404 Not Found"

type asset struct {
	file        string
	contentType string
}

var assets = map[string]asset{
	"/":                      {"resources/index.html", "text/html; charset=utf-8"},
	"/style.css":             {"resources/style.css", "text/css; charset=utf-8"},
	"/receive.js":            {"resources/receive.js", "text/javascript; charset=utf-8"},
	"/dial.js":               {"resources/dial.js", "text/javascript; charset=utf-8"},
	"/util.js":               {"resources/util.js", "text/javascript; charset=utf-8"},
	"/favicon.svg":           {"resources/favicon.svg", "image/svg+xml"},
	"/disconnected_icon.svg": {"resources/disconnected_icon.svg", "image/svg+xml"},
	"/fullscreen_icon.svg":   {"resources/fullscreen_icon.svg", "image/svg+xml"},
}

type loaded struct {
	body        []byte
	contentType string
}

// Handler serves the fixed asset table. Anything else is a 404.
type Handler struct {
	files map[string]loaded
}

// New reads every asset once.
func New() (*Handler, error) {
	h := &Handler{files: make(map[string]loaded, len(assets))}
	for path, a := range assets {
		b, err := resources.ReadFile(a.file)
		if err != nil {
			return nil, fmt.Errorf("static: %s: %w", a.file, err)
		}
		h.files[path] = loaded{body: b, contentType: a.contentType}
	}
	return h, nil
}

// Paths returns the number of servable paths.
func (h *Handler) Paths() int { return len(h.files) }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f, ok := h.files[r.URL.Path]
	if !ok {
		NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writePlain(w, http.StatusMethodNotAllowed, "405 Method Not Allowed")
		return
	}

	w.Header().Set("Content-Type", f.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.body)))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(f.body)
}

// NotFound writes the fixed 404 response.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	writePlain(w, http.StatusNotFound, NotFoundBody)
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
