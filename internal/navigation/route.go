package navigation

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/navcore/internal/monitoring"
	"github.com/banshee-data/navcore/internal/motion"
	"github.com/banshee-data/navcore/internal/planner"
	"github.com/banshee-data/navcore/internal/timeutil"
)

// RouteConfig tunes a RouteFollower.
type RouteConfig struct {
	Connectivity        planner.Connectivity
	HeadingToleranceDeg float64
	ReplanBackoff       time.Duration
	MaxAttempts         int
	Clock               timeutil.Clock
}

// RouteStatus is a diagnostic snapshot.
type RouteStatus struct {
	Active      bool           `json:"active"`
	Arrived     bool           `json:"arrived"`
	GaveUp      bool           `json:"gave_up"`
	Path        []planner.Cell `json:"path,omitempty"`
	Next        int            `json:"next"`
	GridVersion uint64         `json:"grid_version"`
	Attempts    int            `json:"attempts"`
}

// RouteFollower plans a grid path to a world goal and steers along it. It
// replans when the map version changes, when the robot leaves the path, or
// on request. Failed plans are retried after a backoff until MaxAttempts
// consecutive failures, after which the follower gives up on the goal.
type RouteFollower struct {
	cfg   RouteConfig
	poses PoseSource
	grids GridSource

	mu          sync.Mutex
	onPlan      func(PlanEvent)
	goalX       float64
	goalY       float64
	hasGoal     bool
	path        []planner.Cell
	next        int
	version     uint64
	stale       bool
	attempts    int
	nextAttempt time.Time
	gaveUp      bool
	arrived     bool
}

// NewRouteFollower returns a follower with no goal.
func NewRouteFollower(cfg RouteConfig, poses PoseSource, grids GridSource) *RouteFollower {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.HeadingToleranceDeg <= 0 {
		cfg.HeadingToleranceDeg = 15
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &RouteFollower{cfg: cfg, poses: poses, grids: grids}
}

func (r *RouteFollower) setPlanHook(fn func(PlanEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onPlan = fn
}

// SetGoal starts following a new goal, discarding any current path.
func (r *RouteFollower) SetGoal(x, y float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.goalX, r.goalY = x, y
	r.hasGoal = true
	r.path = nil
	r.next = 0
	r.stale = false
	r.attempts = 0
	r.nextAttempt = time.Time{}
	r.gaveUp = false
	r.arrived = false
}

// Clear drops the goal.
func (r *RouteFollower) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hasGoal = false
	r.path = nil
}

// RequestReplan forces a fresh plan on the next Steer.
func (r *RouteFollower) RequestReplan() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stale = true
}

// Steer returns the command that moves the robot towards the next
// waypoint. It returns false when it has no guidance to give: no goal,
// no pose, arrived, waiting out a backoff, or given up.
func (r *RouteFollower) Steer() (motion.Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasGoal || r.gaveUp || r.arrived {
		return motion.Stop, false
	}
	pose, ok := r.poses.Pose()
	if !ok {
		return motion.Stop, false
	}
	grid, version := r.grids.Snapshot()
	cur := grid.WorldToCell(pose.X, pose.Y)

	if r.path == nil || r.stale || version != r.version || !r.advance(cur) {
		if !r.replan(grid, version, cur) {
			return motion.Stop, false
		}
	}

	if r.next >= len(r.path)-1 {
		r.arrived = true
		monitoring.Logf("[route] reached goal cell %s", r.path[len(r.path)-1])
		return motion.Stop, false
	}
	return r.heading(pose, grid, r.path[r.next+1]), true
}

// advance moves the cursor to cur if it lies on the rest of the path.
func (r *RouteFollower) advance(cur planner.Cell) bool {
	for i := r.next; i < len(r.path); i++ {
		if r.path[i] == cur {
			r.next = i
			return true
		}
	}
	return false
}

func (r *RouteFollower) replan(grid planner.Grid, version uint64, cur planner.Cell) bool {
	now := r.cfg.Clock.Now()
	if now.Before(r.nextAttempt) {
		return false
	}

	goal := grid.WorldToCell(r.goalX, r.goalY)
	res, err := planner.Plan(grid, cur, goal, r.cfg.Connectivity)
	ev := PlanEvent{
		At:          now,
		Start:       cur,
		Goal:        goal,
		GridVersion: version,
		Length:      len(res.Path),
		Cost:        res.Cost,
		Expanded:    res.Expanded,
		Err:         err,
	}
	if r.onPlan != nil {
		r.onPlan(ev)
	}

	if err != nil {
		monitoring.RecordPlan(planOutcome(err))
		r.path = nil
		r.attempts++
		r.nextAttempt = now.Add(r.cfg.ReplanBackoff)
		if r.attempts >= r.cfg.MaxAttempts {
			r.gaveUp = true
			monitoring.Logf("[route] giving up on goal after %d failed plans: %v", r.attempts, err)
		} else {
			monitoring.Logf("[route] plan failed (attempt %d/%d), retrying in %s: %v",
				r.attempts, r.cfg.MaxAttempts, r.cfg.ReplanBackoff, err)
		}
		return false
	}

	monitoring.RecordPlan("ok")
	r.path = res.Path
	r.next = 0
	r.version = version
	r.stale = false
	r.attempts = 0
	r.nextAttempt = time.Time{}
	return true
}

func planOutcome(err error) string {
	switch {
	case errors.Is(err, planner.ErrNoPath):
		return "no_path"
	case errors.Is(err, planner.ErrStartOccupied):
		return "start_occupied"
	case errors.Is(err, planner.ErrGoalOccupied):
		return "goal_occupied"
	case errors.Is(err, planner.ErrOutOfBounds):
		return "out_of_bounds"
	}
	return "error"
}

// heading turns towards the waypoint until the bearing error is within
// tolerance, then drives forward.
func (r *RouteFollower) heading(pose Pose, grid planner.Grid, wp planner.Cell) motion.Command {
	tx, ty := grid.CellToWorld(wp)
	bearing := math.Atan2(ty-pose.Y, tx-pose.X) * 180 / math.Pi
	diff := wrap180(bearing - pose.HeadingDeg)
	switch {
	case math.Abs(diff) <= r.cfg.HeadingToleranceDeg:
		return motion.Forward
	case diff > 0:
		return motion.Left
	default:
		return motion.Right
	}
}

// wrap180 maps an angle in degrees into (-180, 180].
func wrap180(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg <= -180 {
		deg += 360
	} else if deg > 180 {
		deg -= 360
	}
	return deg
}

// Status returns a diagnostic snapshot.
func (r *RouteFollower) Status() RouteStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RouteStatus{
		Active:      r.hasGoal && !r.gaveUp && !r.arrived,
		Arrived:     r.arrived,
		GaveUp:      r.gaveUp,
		Path:        append([]planner.Cell(nil), r.path...),
		Next:        r.next,
		GridVersion: r.version,
		Attempts:    r.attempts,
	}
}
