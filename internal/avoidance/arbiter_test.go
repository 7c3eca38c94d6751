package avoidance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/navcore/internal/fusion"
	"github.com/banshee-data/navcore/internal/motion"
	"github.com/banshee-data/navcore/internal/ranging"
	"github.com/banshee-data/navcore/internal/timeutil"
)

type maneuverLog struct {
	started []Maneuver
}

func (l *maneuverLog) ManeuverStarted(m Maneuver) { l.started = append(l.started, m) }

// unitConfig uses one second per tick so the scenarios read in ticks.
func unitConfig(turnTicks, debounceTicks int) Config {
	return Config{
		EmergencyMM:   250,
		AvoidMM:       700,
		TurnDuration:  time.Duration(turnTicks) * time.Second,
		ClearDebounce: time.Duration(debounceTicks) * time.Second,
	}
}

func reading(mm float64, preferred motion.Command) fusion.Reading {
	return fusion.Reading{Min: ranging.Millimetres(mm), Preferred: preferred}
}

func TestArbiter_DebounceScenario(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	a := New(unitConfig(1, 3), clock)

	distances := []float64{900, 900, 200, 900, 900, 900, 900, 900}
	var commands []motion.Command
	var complete []bool
	for _, mm := range distances {
		r := reading(mm, motion.Left)
		commands = append(commands, a.Tick(r))
		complete = append(complete, a.AvoidanceComplete(r))
		clock.Advance(time.Second)
	}

	assert.Equal(t, []motion.Command{
		motion.Forward, motion.Forward, motion.Stop, motion.Forward,
		motion.Forward, motion.Forward, motion.Forward, motion.Forward,
	}, commands)
	assert.Equal(t, []bool{false, false, false, false, false, true, true, true}, complete)
}

func TestArbiter_ManeuverIsTimeGated(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	a := New(unitConfig(4, 1), clock)

	assert.Equal(t, motion.Left, a.Tick(reading(600, motion.Left)), "avoid band turns immediately")
	assert.Equal(t, Maneuvering, a.State())

	// Nothing seen mid-turn changes the committed direction.
	for _, r := range []fusion.Reading{
		reading(100, motion.Right),
		{Min: ranging.Absent(ranging.NoEcho), Preferred: motion.Right},
		reading(5000, motion.Right),
	} {
		clock.Advance(time.Second)
		assert.Equal(t, motion.Left, a.Tick(r))
	}

	clock.Advance(time.Second)
	assert.Equal(t, motion.Forward, a.Tick(reading(100, motion.Right)), "deadline expiry emits forward")
	assert.Equal(t, Cruising, a.State())
}

func TestArbiter_ManeuverCommandConstant(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	cfg := unitConfig(1, 1)
	cfg.TurnDuration = 600 * time.Millisecond
	a := New(cfg, clock)

	first := a.Tick(reading(200, motion.Right))
	require.Equal(t, motion.Stop, first)

	noise := []float64{50, 900, 300, 12000, 0, 699}
	for i := 0; clock.Since(time.Unix(0, 0)) < cfg.TurnDuration-50*time.Millisecond; i++ {
		clock.Advance(50 * time.Millisecond)
		got := a.Tick(reading(noise[i%len(noise)], motion.Left))
		if clock.Since(time.Unix(0, 0)) < cfg.TurnDuration {
			assert.Equal(t, motion.Right, got, "tick %d", i)
		}
	}
	clock.Set(time.Unix(0, 0).Add(cfg.TurnDuration))
	assert.Equal(t, motion.Forward, a.Tick(reading(900, motion.Left)))
}

func TestArbiter_EmergencyStopsFirst(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	a := New(unitConfig(3, 1), clock)

	assert.Equal(t, motion.Stop, a.Tick(reading(249, motion.Right)))
	clock.Advance(time.Second)
	assert.Equal(t, motion.Right, a.Tick(reading(249, motion.Right)))
}

func TestArbiter_ThresholdBoundaries(t *testing.T) {
	a := New(unitConfig(1, 1), timeutil.NewMockClock(time.Unix(0, 0)))
	assert.Equal(t, motion.Forward, a.Tick(reading(700, motion.Left)), "avoid threshold is exclusive")
	assert.False(t, a.ObstaclePresent(reading(700, motion.Left)))
	assert.True(t, a.ObstaclePresent(reading(699, motion.Left)))

	assert.Equal(t, motion.Left, a.Tick(reading(250, motion.Left)), "250 is in the avoid band, not emergency")
}

func TestArbiter_AlwaysRightPolicy(t *testing.T) {
	cfg := unitConfig(1, 1)
	cfg.Policy = AlwaysRight
	a := New(cfg, timeutil.NewMockClock(time.Unix(0, 0)))

	assert.Equal(t, motion.Right, a.Tick(reading(500, motion.Left)))
}

func TestArbiter_AbsentReadings(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	a := New(unitConfig(1, 3), clock)
	noEcho := fusion.Reading{Min: ranging.Absent(ranging.NoEcho)}

	assert.False(t, a.ObstaclePresent(noEcho))
	assert.Equal(t, motion.Forward, a.Tick(noEcho))

	require.Equal(t, motion.Stop, a.Tick(reading(100, motion.Left)))
	for i := 1; i <= 2; i++ {
		clock.Advance(time.Second)
		a.Tick(noEcho)
		assert.False(t, a.AvoidanceComplete(noEcho), "absent is never a confirmed clear")
	}

	clock.Advance(time.Second)
	r := reading(900, motion.Left)
	a.Tick(r)
	assert.True(t, a.AvoidanceComplete(r), "absent readings do not reset the debounce clock")
}

func TestArbiter_CompleteFalseWhileManeuvering(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	a := New(unitConfig(10, 1), clock)

	a.Tick(reading(600, motion.Left))
	clock.Advance(5 * time.Second)
	assert.False(t, a.AvoidanceComplete(reading(3000, motion.Left)))
}

func TestArbiter_ObserverAndStatus(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	a := New(DefaultConfig(), clock)
	log := &maneuverLog{}
	a.SetObserver(log)

	a.Tick(reading(200, motion.Left))
	require.Len(t, log.started, 1)
	m := log.started[0]
	assert.Equal(t, TriggerEmergency, m.Trigger)
	assert.Equal(t, motion.Left, m.Direction)
	assert.Equal(t, time.Unix(100, 0).Add(600*time.Millisecond), m.Deadline)

	st := a.Status()
	assert.Equal(t, "maneuvering", st.State)
	assert.Equal(t, "left", st.Direction)
}

func TestParseTurnPolicy(t *testing.T) {
	p, err := ParseTurnPolicy("always_right")
	require.NoError(t, err)
	assert.Equal(t, AlwaysRight, p)

	p, err = ParseTurnPolicy("")
	require.NoError(t, err)
	assert.Equal(t, Clearer, p)

	_, err = ParseTurnPolicy("random")
	assert.Error(t, err)
}
