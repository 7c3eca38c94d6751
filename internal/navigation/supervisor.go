package navigation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/navcore/internal/avoidance"
	"github.com/banshee-data/navcore/internal/monitoring"
	"github.com/banshee-data/navcore/internal/motion"
	"github.com/banshee-data/navcore/internal/timeutil"
)

// SupervisorConfig wires a Supervisor to its collaborators. Route and
// Journal are optional.
type SupervisorConfig struct {
	Sensors       Sensors
	Arbiter       *avoidance.Arbiter
	Vision        Vision
	Route         *RouteFollower
	Journal       Journal
	Clock         timeutil.Clock
	SearchCommand motion.Command
}

// Status is a diagnostic snapshot.
type Status struct {
	RunID     string           `json:"run_id,omitempty"`
	Goal      string           `json:"goal,omitempty"`
	State     string           `json:"state"`
	Since     time.Time        `json:"since"`
	Command   string           `json:"command"`
	Ticks     uint64           `json:"ticks"`
	VisionOK  bool             `json:"vision_ok"`
	Avoidance avoidance.Status `json:"avoidance"`
	Route     *RouteStatus     `json:"route,omitempty"`
}

// Supervisor is the top-level navigation state machine. Search rotates (or
// follows a planned route) until vision acquires the target, AlignTag and
// Approach forward vision's steering, and Stopped is terminal. Any of the
// first three yields to Avoid as soon as an obstacle is inside the avoid
// threshold, and Avoid hands back to Search once the arbiter reports the
// path has stayed clear.
//
// Step is called from a single control loop. Status and Begin may be called
// from other goroutines.
type Supervisor struct {
	sensors Sensors
	arbiter *avoidance.Arbiter
	vision  Vision
	route   *RouteFollower
	journal Journal
	clock   timeutil.Clock
	search  motion.Command

	mu       sync.Mutex
	run      Run
	state    State
	since    time.Time
	last     motion.Command
	ticks    uint64
	visionOK bool
}

// NewSupervisor returns a supervisor in Search with no active run.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if !cfg.SearchCommand.Turning() {
		cfg.SearchCommand = motion.Left
	}
	s := &Supervisor{
		sensors:  cfg.Sensors,
		arbiter:  cfg.Arbiter,
		vision:   cfg.Vision,
		route:    cfg.Route,
		journal:  cfg.Journal,
		clock:    cfg.Clock,
		search:   cfg.SearchCommand,
		state:    Search,
		since:    cfg.Clock.Now(),
		visionOK: true,
	}
	cfg.Arbiter.SetObserver(s)
	if s.route != nil {
		s.route.setPlanHook(s.planComputed)
	}
	return s
}

// Begin starts a new run towards goal, resetting the supervisor to Search.
// Any run in progress is ended first.
func (s *Supervisor) Begin(goal Goal) uuid.UUID {
	s.End()

	now := s.clock.Now()
	run := Run{ID: uuid.New(), Goal: goal, StartedAt: now}

	s.mu.Lock()
	from := s.state
	s.run = run
	s.state = Search
	s.since = now
	s.mu.Unlock()

	if s.route != nil {
		if goal.Routed {
			s.route.SetGoal(goal.X, goal.Y)
		} else {
			s.route.Clear()
		}
	}

	monitoring.Logf("[nav] run %s started towards %q", run.ID, goal.Name)
	s.record(func(j Journal) error { return j.RunStarted(run) })
	if from != Search {
		s.recordTransition(run.ID, from, Search, "new goal", now)
	}
	return run.ID
}

// End closes the active run, if any, recording the state it finished in.
func (s *Supervisor) End() {
	s.mu.Lock()
	id, final := s.run.ID, s.state
	s.run = Run{}
	s.mu.Unlock()

	if id == uuid.Nil {
		return
	}
	monitoring.Logf("[nav] run %s ended in %s", id, final)
	now := s.clock.Now()
	s.record(func(j Journal) error { return j.RunEnded(id, final, now) })
}

// Step runs one control tick and returns the command to actuate. The only
// error it returns is the context's.
func (s *Supervisor) Step(ctx context.Context) (motion.Command, error) {
	if err := ctx.Err(); err != nil {
		return motion.Stop, err
	}

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	r := s.sensors.Reading()
	if state.preemptible() && s.arbiter.ObstaclePresent(r) {
		s.transition(state, Avoid, fmt.Sprintf("obstacle at %s", r.Min))
		state = Avoid
	}

	var (
		cmd    motion.Command
		next   = state
		reason string
	)
	switch state {
	case Search:
		cmd, next, reason = s.stepSearch(ctx)
	case AlignTag:
		cmd, next, reason = s.stepAlign(ctx)
	case Approach:
		cmd, next, reason = s.stepApproach(ctx)
	case Avoid:
		cmd = s.arbiter.Tick(r)
		if s.arbiter.AvoidanceComplete(r) {
			next, reason = Search, "path clear"
			if s.route != nil {
				s.route.RequestReplan()
			}
		}
	case Stopped:
		cmd = motion.Stop
	default:
		monitoring.Logf("[nav] unknown state %d, stopping", int(state))
		cmd = motion.Stop
	}
	if next != state {
		s.transition(state, next, reason)
	}

	s.mu.Lock()
	s.last = cmd
	s.ticks++
	s.mu.Unlock()
	return cmd, nil
}

func (s *Supervisor) stepSearch(ctx context.Context) (motion.Command, State, string) {
	obs, ok := s.observe(ctx)
	if ok && obs.Acquired {
		return obs.Command, AlignTag, fmt.Sprintf("target acquired at %.2fm", obs.DistanceM)
	}
	if s.route != nil {
		if cmd, ok := s.route.Steer(); ok {
			return cmd, Search, ""
		}
	}
	return s.search, Search, ""
}

func (s *Supervisor) stepAlign(ctx context.Context) (motion.Command, State, string) {
	obs, ok := s.observe(ctx)
	if !ok {
		return motion.Stop, AlignTag, ""
	}
	if obs.Aligned {
		return obs.Command, Approach, "target centred"
	}
	return obs.Command, AlignTag, ""
}

func (s *Supervisor) stepApproach(ctx context.Context) (motion.Command, State, string) {
	obs, ok := s.observe(ctx)
	if !ok {
		return motion.Stop, Approach, ""
	}
	if obs.Command == motion.Stop {
		return motion.Stop, Stopped, fmt.Sprintf("arrived at %.2fm", obs.DistanceM)
	}
	return obs.Command, Approach, ""
}

// observe asks vision for a frame. Errors are logged once per outage.
func (s *Supervisor) observe(ctx context.Context) (Observation, bool) {
	obs, err := s.vision.Observe(ctx)

	s.mu.Lock()
	wasOK := s.visionOK
	s.visionOK = err == nil
	s.mu.Unlock()

	switch {
	case err != nil && wasOK:
		monitoring.Logf("[nav] vision unavailable: %v", err)
	case err == nil && !wasOK:
		monitoring.Logf("[nav] vision recovered")
	}
	return obs, err == nil
}

func (s *Supervisor) transition(from, to State, reason string) {
	now := s.clock.Now()

	s.mu.Lock()
	s.state = to
	s.since = now
	id := s.run.ID
	s.mu.Unlock()

	s.recordTransition(id, from, to, reason, now)
}

func (s *Supervisor) recordTransition(id uuid.UUID, from, to State, reason string, at time.Time) {
	monitoring.Logf("[nav] %s -> %s: %s", from, to, reason)
	monitoring.RecordTransition(from.String(), to.String())
	if id == uuid.Nil {
		return
	}
	t := Transition{RunID: id, From: from, To: to, Reason: reason, At: at}
	s.record(func(j Journal) error { return j.Transition(t) })
}

// ManeuverStarted journals maneuvers committed by the arbiter.
func (s *Supervisor) ManeuverStarted(m avoidance.Maneuver) {
	s.mu.Lock()
	id := s.run.ID
	s.mu.Unlock()
	if id == uuid.Nil {
		return
	}
	s.record(func(j Journal) error { return j.Maneuver(id, m) })
}

func (s *Supervisor) planComputed(p PlanEvent) {
	s.mu.Lock()
	p.RunID = s.run.ID
	s.mu.Unlock()
	if p.RunID == uuid.Nil {
		return
	}
	s.record(func(j Journal) error { return j.Plan(p) })
}

func (s *Supervisor) record(fn func(Journal) error) {
	if s.journal == nil {
		return
	}
	if err := fn(s.journal); err != nil {
		monitoring.Logf("[nav] journal write failed: %v", err)
	}
}

// State returns the current mode.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns a diagnostic snapshot.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{
		Goal:     s.run.Goal.Name,
		State:    s.state.String(),
		Since:    s.since,
		Command:  s.last.String(),
		Ticks:    s.ticks,
		VisionOK: s.visionOK,
	}
	if s.run.ID != uuid.Nil {
		st.RunID = s.run.ID.String()
	}
	s.mu.Unlock()

	st.Avoidance = s.arbiter.Status()
	if s.route != nil {
		rs := s.route.Status()
		st.Route = &rs
	}
	return st
}
