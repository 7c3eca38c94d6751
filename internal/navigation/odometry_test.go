package navigation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/navcore/internal/motion"
	"github.com/banshee-data/navcore/internal/planner"
	"github.com/banshee-data/navcore/internal/timeutil"
)

func TestOdometry_Integrates(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	rec := &motion.Recorder{}
	odo := NewOdometry(rec, Pose{X: 1, Y: 1}, 0.5, 90, clock)

	require.NoError(t, odo.Apply(motion.Forward))
	clock.Advance(2 * time.Second)
	p, ok := odo.Pose()
	require.True(t, ok)
	assert.InDelta(t, 2.0, p.X, 1e-9)
	assert.InDelta(t, 1.0, p.Y, 1e-9)

	require.NoError(t, odo.Apply(motion.Left))
	clock.Advance(time.Second)
	p, _ = odo.Pose()
	assert.InDelta(t, 90, p.HeadingDeg, 1e-9)

	require.NoError(t, odo.Apply(motion.Forward))
	clock.Advance(2 * time.Second)
	p, _ = odo.Pose()
	assert.InDelta(t, 2.0, p.X, 1e-9)
	assert.InDelta(t, 2.0, p.Y, 1e-9)

	require.NoError(t, odo.Apply(motion.Right))
	clock.Advance(3 * time.Second)
	require.NoError(t, odo.Apply(motion.Stop))
	clock.Advance(time.Hour)
	p, _ = odo.Pose()
	assert.InDelta(t, 180, p.HeadingDeg, 1e-9)
	assert.InDelta(t, 2.0, p.Y, 1e-9, "stop does not move")

	assert.Equal(t, []motion.Command{motion.Forward, motion.Left, motion.Forward, motion.Right, motion.Stop}, rec.Commands())
}

func TestOdometry_RejectedCommandIsNotIntegrated(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	rec := &motion.Recorder{Err: errors.New("gpio")}
	odo := NewOdometry(rec, Pose{}, 1, 90, clock)

	assert.Error(t, odo.Apply(motion.Forward))
	clock.Advance(time.Second)
	p, _ := odo.Pose()
	assert.Equal(t, Pose{}, p)
}

func TestStaticGrid(t *testing.T) {
	g := NewStaticGrid(planner.NewGrid(2, 2, 1))
	_, v1 := g.Snapshot()
	g.Update(planner.NewGrid(3, 3, 1))
	got, v2 := g.Snapshot()
	assert.Equal(t, v1+1, v2)
	assert.Equal(t, 3, got.Rows())
}

func TestArena(t *testing.T) {
	g := Arena(5, 2.5, 0.5)
	require.Equal(t, 10, g.Rows())
	require.Equal(t, 5, g.Cols())
	assert.True(t, g.Occupied(planner.Cell{Row: 0, Col: 2}))
	assert.True(t, g.Occupied(planner.Cell{Row: 5, Col: 4}))
	assert.False(t, g.Occupied(planner.Cell{Row: 5, Col: 2}))

	res, err := planner.Plan(g, planner.Cell{Row: 1, Col: 1}, planner.Cell{Row: 8, Col: 3}, planner.Cardinal)
	require.NoError(t, err)
	assert.Equal(t, 9.0, res.Cost)
}
