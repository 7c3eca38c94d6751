package monitoring

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Frame outcomes.
const (
	FrameDecoded     = "decoded"
	FrameBadLength   = "bad_length"
	FrameBadChecksum = "bad_checksum"
)

// Echo outcomes.
const (
	EchoOK         = "ok"
	EchoTimeout    = "timeout"
	EchoOutOfRange = "out_of_range"
)

var (
	registerOnce sync.Once

	lidarFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "navcore",
			Subsystem: "lidar",
			Name:      "frames_total",
			Help:      "Rangefinder frames by decode outcome.",
		},
		[]string{"outcome"},
	)
	echoSamples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "navcore",
			Subsystem: "ultrasonic",
			Name:      "samples_total",
			Help:      "Point ranger samples by outcome.",
		},
		[]string{"outcome"},
	)
	fusedDistance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "navcore",
			Subsystem: "fusion",
			Name:      "min_distance_mm",
			Help:      "Latest fused minimum distance; -1 when no device has a reading.",
		},
	)
	maneuvers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "navcore",
			Subsystem: "avoidance",
			Name:      "maneuvers_total",
			Help:      "Avoidance maneuvers started, by trigger and direction.",
		},
		[]string{"trigger", "direction"},
	)
	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "navcore",
			Subsystem: "nav",
			Name:      "transitions_total",
			Help:      "Supervisor state transitions.",
		},
		[]string{"from", "to"},
	)
	plans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "navcore",
			Subsystem: "planner",
			Name:      "plans_total",
			Help:      "Planning calls by outcome.",
		},
		[]string{"outcome"},
	)
	journalDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "navcore",
			Subsystem: "journal",
			Name:      "dropped_total",
			Help:      "Journal events dropped because the writer backlog was full.",
		},
	)
)

// RegisterMetrics registers the navcore collectors with the default
// registry. Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(lidarFrames, echoSamples, fusedDistance, maneuvers, transitions, plans, journalDropped)
	})
}

func RecordFrame(outcome string) {
	lidarFrames.WithLabelValues(outcome).Inc()
}

func RecordEcho(outcome string) {
	echoSamples.WithLabelValues(outcome).Inc()
}

// SetFusedDistance publishes the fused distance; ok=false records -1.
func SetFusedDistance(mm float64, ok bool) {
	if !ok {
		mm = -1
	}
	fusedDistance.Set(mm)
}

func RecordManeuver(trigger, direction string) {
	maneuvers.WithLabelValues(trigger, direction).Inc()
}

func RecordTransition(from, to string) {
	transitions.WithLabelValues(from, to).Inc()
}

func RecordPlan(outcome string) {
	plans.WithLabelValues(outcome).Inc()
}

func RecordJournalDropped() {
	journalDropped.Inc()
}
