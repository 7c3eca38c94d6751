package navigation

import (
	"math"
	"sync"
	"time"

	"github.com/banshee-data/navcore/internal/motion"
	"github.com/banshee-data/navcore/internal/timeutil"
)

// Odometry estimates pose by integrating the commands it forwards to the
// wrapped sink at nominal speeds. It drifts, but is enough to steer a route
// across an open arena between replans.
type Odometry struct {
	sink        motion.Sink
	clock       timeutil.Clock
	speedMPS    float64
	turnDegPerS float64

	mu   sync.Mutex
	pose Pose
	cmd  motion.Command
	at   time.Time
}

// NewOdometry starts at start and forwards every command to sink.
func NewOdometry(sink motion.Sink, start Pose, speedMPS, turnDegPerS float64, clock timeutil.Clock) *Odometry {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Odometry{
		sink:        sink,
		clock:       clock,
		speedMPS:    speedMPS,
		turnDegPerS: turnDegPerS,
		pose:        start,
		at:          clock.Now(),
	}
}

// Apply integrates the previous command up to now, then forwards c. A
// command the sink rejects is not integrated.
func (o *Odometry) Apply(c motion.Command) error {
	o.mu.Lock()
	o.integrate(o.clock.Now())
	o.mu.Unlock()

	if err := o.sink.Apply(c); err != nil {
		o.mu.Lock()
		o.cmd = motion.Stop
		o.mu.Unlock()
		return err
	}

	o.mu.Lock()
	o.cmd = c
	o.mu.Unlock()
	return nil
}

// Pose returns the current estimate.
func (o *Odometry) Pose() (Pose, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.integrate(o.clock.Now())
	return o.pose, true
}

func (o *Odometry) integrate(now time.Time) {
	dt := now.Sub(o.at).Seconds()
	o.at = now
	if dt <= 0 {
		return
	}
	switch o.cmd {
	case motion.Forward:
		rad := o.pose.HeadingDeg * math.Pi / 180
		o.pose.X += o.speedMPS * dt * math.Cos(rad)
		o.pose.Y += o.speedMPS * dt * math.Sin(rad)
	case motion.Left:
		o.pose.HeadingDeg = wrap180(o.pose.HeadingDeg + o.turnDegPerS*dt)
	case motion.Right:
		o.pose.HeadingDeg = wrap180(o.pose.HeadingDeg - o.turnDegPerS*dt)
	}
}
