package laps

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
	listTimeout      = 3 * time.Second
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

type listResponse struct {
	Laps []Lap `json:"laps"`
}

// Handler serves GET /laps?limit=N.
type Handler struct {
	store Store
	log   *slog.Logger
}

// NewHandler returns the recent-laps endpoint.
func NewHandler(store Store, log *slog.Logger) *Handler {
	return &Handler{store: store, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	ctx, cancel := context.WithTimeout(r.Context(), listTimeout)
	defer cancel()

	laps, err := h.store.RecentLaps(ctx, limit)
	if err != nil {
		h.log.Error("laps.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not load laps")
		return
	}
	if laps == nil {
		laps = []Lap{}
	}
	writeJSON(w, http.StatusOK, listResponse{Laps: laps})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: msg}})
}
