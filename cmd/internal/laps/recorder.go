package laps

import (
	"context"
	"log/slog"
	"time"

	"acdisplay/cmd/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	recorderQueue = 64
	recordTimeout = 3 * time.Second
)

// Recorder watches car updates and stores a Lap whenever the lap counter
// goes up. The first update only sets the baseline; a counter that goes
// down (new session) resets it.
type Recorder struct {
	store   Store
	session func() telemetry.SessionInfo
	log     *slog.Logger

	updates chan telemetry.CarState

	recorded prometheus.Counter
	dropped  prometheus.Counter

	// Owned by Run.
	baseline int32
	started  bool
}

// NewRecorder builds a recorder. session supplies the labels for recorded
// laps; reg may be nil.
func NewRecorder(store Store, session func() telemetry.SessionInfo, log *slog.Logger, reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		store:   store,
		session: session,
		log:     log,
		updates: make(chan telemetry.CarState, recorderQueue),
		recorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "acdisplay", Subsystem: "laps", Name: "recorded_total",
			Help: "Completed laps stored.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "acdisplay", Subsystem: "laps", Name: "updates_dropped_total",
			Help: "Car updates not seen by the recorder because its queue was full.",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.recorded, r.dropped)
	}
	return r
}

// ObserveCar hands c to the recorder without blocking. Updates are dropped
// when the queue is full; the next one still carries the lap counter.
func (r *Recorder) ObserveCar(c telemetry.CarState) {
	select {
	case r.updates <- c:
	default:
		r.dropped.Inc()
	}
}

// Run consumes updates until ctx is done, then drains what is queued.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case c := <-r.updates:
			r.handle(c)
		case <-ctx.Done():
			for {
				select {
				case c := <-r.updates:
					r.handle(c)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) handle(c telemetry.CarState) {
	switch {
	case !r.started:
		r.started = true
		r.baseline = c.LapCount
		return
	case c.LapCount < r.baseline:
		r.log.Info("laps.session.reset", "from", r.baseline, "to", c.LapCount)
		r.baseline = c.LapCount
		return
	case c.LapCount == r.baseline:
		return
	}
	r.baseline = c.LapCount

	info := r.session()
	lap := Lap{
		Number:      c.LapCount,
		LapMS:       c.LastLapMS,
		BestMS:      c.BestLapMS,
		Car:         info.CarName,
		Driver:      info.DriverName,
		Track:       info.TrackName,
		TrackConfig: info.TrackConfig,
		RecordedAt:  time.Now().UTC(),
	}

	// Detached from Run's ctx so the final lap still lands during shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	stored, err := r.store.RecordLap(ctx, lap)
	if err != nil {
		r.log.Error("laps.record.fail", "lap", lap.Number, "err", err)
		return
	}
	r.recorded.Inc()
	r.log.Info("laps.record", "id", stored.ID, "lap", stored.Number, "lap_ms", stored.LapMS, "best_ms", stored.BestMS)
}
