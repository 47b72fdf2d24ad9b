// Package telemetry holds the latest known vehicle state shared between the
// ingest side and the WebSocket sessions, plus its text wire encoding.
package telemetry

import (
	"sync"
	"time"
)

// CarConfig is the static dashboard range configuration, set once at startup.
type CarConfig struct {
	RPMRedLine   int
	RPMMaximum   int
	SpeedRedLine int // km/h
	SpeedMaximum int // km/h
}

// DefaultCarConfig matches a typical road car dial.
func DefaultCarConfig() CarConfig {
	return CarConfig{
		RPMRedLine:   6000,
		RPMMaximum:   7500,
		SpeedRedLine: 250,
		SpeedMaximum: 300,
	}
}

// CarState is the per-update vehicle state pushed to dashboards.
//
// Gear uses the simulator encoding: 0 reverse, 1 neutral, 2 first gear and so on.
type CarState struct {
	Gear      int32
	Gas       float32
	Brake     float32
	Clutch    float32
	RPM       float32
	SpeedKMH  float32
	LapTimeMS int32
	LastLapMS int32
	BestLapMS int32
	LapCount  int32
}

// SessionInfo is what the simulator reported during the handshake.
type SessionInfo struct {
	CarName     string `json:"car"`
	DriverName  string `json:"driver"`
	TrackName   string `json:"track"`
	TrackConfig string `json:"track_config"`
}

// Snapshot is one consistent copy of everything the store holds.
type Snapshot struct {
	Config  CarConfig
	Car     CarState
	Session SessionInfo

	// Updates counts applied car updates. UpdatedAt is zero until the first one.
	Updates   uint64
	UpdatedAt time.Time
}

// Store is the mutex-guarded latest snapshot.
// Readers get a full copy taken under the lock; no caller keeps the lock
// across I/O.
type Store struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewStore returns a store with the given static config and zero car state.
func NewStore(cfg CarConfig) *Store {
	return &Store{snap: Snapshot{Config: cfg}}
}

// Load returns a copy of the whole snapshot.
func (s *Store) Load() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Car returns a copy of the latest car state.
func (s *Store) Car() CarState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Car
}

// Config returns the static car config.
func (s *Store) Config() CarConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Config
}

// Session returns the handshake session info.
func (s *Store) Session() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Session
}

// SetCar replaces the car state as one record.
func (s *Store) SetCar(c CarState, now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	s.mu.Lock()
	s.snap.Car = c
	s.snap.Updates++
	s.snap.UpdatedAt = now
	s.mu.Unlock()
}

// SetConfig replaces the static car config.
func (s *Store) SetConfig(cfg CarConfig) {
	s.mu.Lock()
	s.snap.Config = cfg
	s.mu.Unlock()
}

// SetSession stores the handshake session info.
func (s *Store) SetSession(info SessionInfo) {
	s.mu.Lock()
	s.snap.Session = info
	s.mu.Unlock()
}
