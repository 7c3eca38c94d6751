// Package navigation holds the supervisor that arbitrates between
// vision-guided approach, planned routes and reactive avoidance, and the
// control loop that drives it.
package navigation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/navcore/internal/avoidance"
	"github.com/banshee-data/navcore/internal/fusion"
	"github.com/banshee-data/navcore/internal/motion"
	"github.com/banshee-data/navcore/internal/planner"
)

// State is the supervisor's mode.
type State uint8

const (
	Search State = iota
	AlignTag
	Approach
	Avoid
	Stopped
)

func (s State) String() string {
	switch s {
	case Search:
		return "Search"
	case AlignTag:
		return "AlignTag"
	case Approach:
		return "Approach"
	case Avoid:
		return "Avoid"
	case Stopped:
		return "Stopped"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// preemptible states yield to Avoid whenever an obstacle is present.
func (s State) preemptible() bool {
	return s == Search || s == AlignTag || s == Approach
}

// Observation is one vision frame's verdict.
type Observation struct {
	// Command is vision's steering suggestion. Stop means the target is
	// within stopping distance.
	Command motion.Command
	// Aligned is true once the target is centred within tolerance.
	Aligned bool
	// Acquired is true when the target is visible; DistanceM is only
	// meaningful then.
	Acquired  bool
	DistanceM float64
}

// Vision is the camera/tag collaborator. An error means no usable frame
// this tick.
type Vision interface {
	Observe(ctx context.Context) (Observation, error)
}

// Sensors supplies the fused range reading. *fusion.Hub satisfies it.
type Sensors interface {
	Reading() fusion.Reading
}

// Pose is the robot's position in world metres and heading in degrees,
// counter-clockwise from the +x axis.
type Pose struct {
	X, Y       float64
	HeadingDeg float64
}

// PoseSource reports the current pose, or false when unknown.
type PoseSource interface {
	Pose() (Pose, bool)
}

// GridSource hands out occupancy snapshots. The version changes whenever
// the map changes.
type GridSource interface {
	Snapshot() (planner.Grid, uint64)
}

// Goal is a navigation target. When Routed is set and a route follower is
// attached, Search steers towards (X, Y) instead of rotating in place.
type Goal struct {
	Name   string
	X, Y   float64
	Routed bool
}

// Run identifies one attempt at a goal.
type Run struct {
	ID        uuid.UUID
	Goal      Goal
	StartedAt time.Time
}

// Transition is a supervisor state change.
type Transition struct {
	RunID  uuid.UUID
	From   State
	To     State
	Reason string
	At     time.Time
}

// PlanEvent records one planning call.
type PlanEvent struct {
	RunID       uuid.UUID
	At          time.Time
	Start       planner.Cell
	Goal        planner.Cell
	GridVersion uint64
	Length      int
	Cost        float64
	Expanded    int
	Err         error
}

// Journal persists what the supervisor does. Failures are logged and never
// stop the robot.
type Journal interface {
	RunStarted(r Run) error
	RunEnded(id uuid.UUID, final State, at time.Time) error
	Transition(t Transition) error
	Plan(p PlanEvent) error
	Maneuver(id uuid.UUID, m avoidance.Maneuver) error
}
