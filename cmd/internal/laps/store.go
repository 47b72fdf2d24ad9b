// Package laps records completed laps seen in the telemetry stream and
// serves the most recent ones.
package laps

import (
	"context"
	"errors"
	"time"
)

// Lap is one completed lap.
type Lap struct {
	ID          int64     `json:"id"`
	Number      int32     `json:"lap"`
	LapMS       int32     `json:"lap_ms"`
	BestMS      int32     `json:"best_ms"`
	Car         string    `json:"car"`
	Driver      string    `json:"driver"`
	Track       string    `json:"track"`
	TrackConfig string    `json:"track_config"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Store persists laps.
type Store interface {
	// RecordLap stores l and returns it with ID and RecordedAt filled in.
	RecordLap(ctx context.Context, l Lap) (Lap, error)
	// RecentLaps returns up to limit laps, newest first.
	RecentLaps(ctx context.Context, limit int) ([]Lap, error)
	Close() error
}

// ErrInvalidLimit is returned for a non-positive limit.
var ErrInvalidLimit = errors.New("laps: limit must be positive")
