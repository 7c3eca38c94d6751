// Package avoidance turns fused distance readings into reactive turn
// commands. Maneuvers are strictly time-gated: once a turn starts it runs
// for the full turn duration whatever the sensors report, and resuming
// requires a debounced clear.
package avoidance

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/navcore/internal/fusion"
	"github.com/banshee-data/navcore/internal/monitoring"
	"github.com/banshee-data/navcore/internal/motion"
	"github.com/banshee-data/navcore/internal/ranging"
	"github.com/banshee-data/navcore/internal/timeutil"
)

// TurnPolicy picks the maneuver direction.
type TurnPolicy uint8

const (
	// Clearer turns towards the side with the larger mean clearance.
	Clearer TurnPolicy = iota
	// AlwaysRight ignores the side sectors.
	AlwaysRight
)

func (p TurnPolicy) String() string {
	if p == AlwaysRight {
		return "always_right"
	}
	return "clearer"
}

// ParseTurnPolicy accepts "clearer" or "always_right".
func ParseTurnPolicy(s string) (TurnPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "clearer":
		return Clearer, nil
	case "always_right", "right":
		return AlwaysRight, nil
	}
	return Clearer, fmt.Errorf("unknown turn policy %q", s)
}

// Config holds the arbiter's thresholds.
type Config struct {
	EmergencyMM   float64
	AvoidMM       float64
	TurnDuration  time.Duration
	ClearDebounce time.Duration
	Policy        TurnPolicy
}

// DefaultConfig returns the tuned values for the reference robot.
func DefaultConfig() Config {
	return Config{
		EmergencyMM:   250,
		AvoidMM:       700,
		TurnDuration:  600 * time.Millisecond,
		ClearDebounce: 400 * time.Millisecond,
		Policy:        Clearer,
	}
}

// State is the arbiter's top-level mode.
type State uint8

const (
	Cruising State = iota
	Maneuvering
)

func (s State) String() string {
	if s == Maneuvering {
		return "maneuvering"
	}
	return "cruising"
}

// Maneuver triggers.
const (
	TriggerEmergency = "emergency"
	TriggerAvoid     = "avoid"
)

// Maneuver describes a committed turn.
type Maneuver struct {
	Trigger   string
	Direction motion.Command
	Distance  ranging.Distance
	Start     time.Time
	Deadline  time.Time
}

// Observer is told about every maneuver the arbiter commits to.
type Observer interface {
	ManeuverStarted(m Maneuver)
}

// Status is a snapshot for diagnostics.
type Status struct {
	State      string    `json:"state"`
	Direction  string    `json:"direction,omitempty"`
	Deadline   time.Time `json:"deadline,omitempty"`
	ClearSince time.Time `json:"clear_since"`
}

// Arbiter is the avoidance state machine. It is driven from one control
// loop; the mutex only guards Status readers.
type Arbiter struct {
	cfg      Config
	clock    timeutil.Clock
	observer Observer

	mu         sync.Mutex
	state      State
	direction  motion.Command
	deadline   time.Time
	clearSince time.Time
}

// New returns a cruising arbiter.
func New(cfg Config, clock timeutil.Clock) *Arbiter {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Arbiter{cfg: cfg, clock: clock}
}

// SetObserver registers o for maneuver notifications.
func (a *Arbiter) SetObserver(o Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observer = o
}

// Config returns the arbiter's thresholds.
func (a *Arbiter) Config() Config { return a.cfg }

// Tick advances the state machine by one control tick.
func (a *Arbiter) Tick(r fusion.Reading) motion.Command {
	now := a.clock.Now()

	a.mu.Lock()
	cmd, started, ended := a.step(r, now)
	obs := a.observer
	a.mu.Unlock()

	if ended {
		monitoring.Logf("[avoid] maneuver complete, cruising")
	}
	if started != nil {
		monitoring.Logf("[avoid] %s at %s, turning %s until %s",
			started.Trigger, started.Distance, started.Direction, started.Deadline.Format("15:04:05.000"))
		monitoring.RecordManeuver(started.Trigger, started.Direction.String())
		if obs != nil {
			obs.ManeuverStarted(*started)
		}
	}
	return cmd
}

func (a *Arbiter) step(r fusion.Reading, now time.Time) (cmd motion.Command, started *Maneuver, ended bool) {
	a.track(r.Min, now)

	switch a.state {
	case Maneuvering:
		if now.Before(a.deadline) {
			return a.direction, nil, false
		}
		a.state = Cruising
		return motion.Forward, nil, true

	case Cruising:
		switch {
		case r.Min.Below(a.cfg.EmergencyMM):
			m := a.begin(TriggerEmergency, r, now)
			return motion.Stop, &m, false
		case r.Min.Below(a.cfg.AvoidMM):
			m := a.begin(TriggerAvoid, r, now)
			return m.Direction, &m, false
		}
	}
	return motion.Forward, nil, false
}

func (a *Arbiter) begin(trigger string, r fusion.Reading, now time.Time) Maneuver {
	dir := motion.Right
	if a.cfg.Policy == Clearer {
		dir = r.Preferred
	}
	a.state = Maneuvering
	a.direction = dir
	a.deadline = now.Add(a.cfg.TurnDuration)
	return Maneuver{Trigger: trigger, Direction: dir, Distance: r.Min, Start: now, Deadline: a.deadline}
}

// track resets the debounce clock on any reading below the avoid threshold.
// Absent readings neither reset it nor count as clear.
func (a *Arbiter) track(d ranging.Distance, now time.Time) {
	if d.Below(a.cfg.AvoidMM) || a.clearSince.IsZero() {
		a.clearSince = now
	}
}

// ObstaclePresent reports whether r holds a real reading inside the avoid
// threshold.
func (a *Arbiter) ObstaclePresent(r fusion.Reading) bool {
	return r.Min.Below(a.cfg.AvoidMM)
}

// AvoidanceComplete reports whether the path has been clear for the whole
// debounce interval. It is true only while cruising, on a valid reading at
// or beyond the avoid threshold, with no closer reading since the debounce
// clock was last reset.
func (a *Arbiter) AvoidanceComplete(r fusion.Reading) bool {
	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.track(r.Min, now)

	if a.state != Cruising || !r.Min.Valid() || r.Min.Below(a.cfg.AvoidMM) {
		return false
	}
	return now.Sub(a.clearSince) >= a.cfg.ClearDebounce
}

// State returns the current mode.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Status returns a diagnostic snapshot.
func (a *Arbiter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Status{State: a.state.String(), ClearSince: a.clearSince}
	if a.state == Maneuvering {
		s.Direction = a.direction.String()
		s.Deadline = a.deadline
	}
	return s
}
