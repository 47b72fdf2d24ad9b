package telemetry

import (
	"context"
	"log/slog"
	"math"
	"time"
)

const (
	simInterval  = 50 * time.Millisecond
	simLapLength = 60 * time.Second

	simIdleRPM  = 800
	simRPMRange = 6000 - simIdleRPM
)

// Observer is told about every car update written to the store.
// ObserveCar must not block.
type Observer interface {
	ObserveCar(c CarState)
}

// Simulator writes a synthetic sine-wave car state into the store. It stands
// in for the simulator when developing the dashboard without a running game.
type Simulator struct {
	store    *Store
	log      *slog.Logger
	observer Observer

	interval  time.Duration
	lapLength time.Duration
}

// SimulatorOption configures a Simulator.
type SimulatorOption func(*Simulator)

// WithSimInterval sets the update interval (default 50ms).
func WithSimInterval(d time.Duration) SimulatorOption {
	return func(s *Simulator) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSimLapLength sets the synthetic lap length (default 60s).
func WithSimLapLength(d time.Duration) SimulatorOption {
	return func(s *Simulator) {
		if d > 0 {
			s.lapLength = d
		}
	}
}

// NewSimulator builds a Simulator. observer may be nil.
func NewSimulator(store *Store, log *slog.Logger, observer Observer, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		store:     store,
		log:       log,
		observer:  observer,
		interval:  simInterval,
		lapLength: simLapLength,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Run updates the store until ctx is done. It always returns nil.
func (s *Simulator) Run(ctx context.Context) error {
	s.store.SetSession(SessionInfo{
		CarName:     "simulated_car",
		DriverName:  "simulator",
		TrackName:   "sine_wave",
		TrackConfig: "",
	})
	s.log.Info("telemetry.simulator.start", "interval", s.interval.String(), "lap_length", s.lapLength.String())

	start := time.Now()
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("telemetry.simulator.stop")
			return nil
		case now := <-t.C:
			c := SimulatedState(now.Sub(start), s.lapLength)
			s.store.SetCar(c, now)
			if s.observer != nil {
				s.observer.ObserveCar(c)
			}
		}
	}
}

// SimulatedState is the synthetic car state at elapsed time since start.
func SimulatedState(elapsed, lapLength time.Duration) CarState {
	if lapLength <= 0 {
		lapLength = simLapLength
	}
	e := 0.001 * float64(elapsed.Milliseconds())

	rpm := simIdleRPM + 0.5*simRPMRange + simRPMRange*0.5*math.Sin(e)
	rpm = math.Min(math.Max(math.Trunc(rpm), simIdleRPM), simIdleRPM+simRPMRange)

	speed := 150 + 100*math.Sin(0.5*e)

	gear := int32(2 + int(speed/50))
	if gear > 7 {
		gear = 7
	}

	gas := 0.5 + 0.5*math.Sin(e)
	brake := 0.0
	if gas < 0.2 {
		brake = 0.2 - gas
	}

	laps := elapsed / lapLength
	lapMS := int32(lapLength.Milliseconds())

	c := CarState{
		Gear:      gear,
		Gas:       float32(gas),
		Brake:     float32(brake),
		RPM:       float32(rpm),
		SpeedKMH:  float32(speed),
		LapTimeMS: int32((elapsed % lapLength).Milliseconds()),
		LapCount:  int32(laps),
	}
	if laps > 0 {
		c.LastLapMS = lapMS
		c.BestLapMS = lapMS
	}
	return c
}
