package navigation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/navcore/internal/monitoring"
	"github.com/banshee-data/navcore/internal/motion"
	"github.com/banshee-data/navcore/internal/timeutil"
)

// Stepper produces one command per control tick.
type Stepper interface {
	Step(ctx context.Context) (motion.Command, error)
}

// SensorCloser shuts sensor loops down. *fusion.Hub satisfies it.
type SensorCloser interface {
	Close(timeout time.Duration) error
}

// ControllerConfig configures the fixed-rate control loop.
type ControllerConfig struct {
	Period          time.Duration
	ShutdownTimeout time.Duration
	Clock           timeutil.Clock
	// OnExit runs after sensors are closed and before the final Stop.
	OnExit func()
}

// Controller drives a Stepper at a fixed period and applies each command to
// the motion sink. Whatever way Run returns, sensors are closed and Stop is
// the last command the sink sees.
type Controller struct {
	stepper Stepper
	sensors SensorCloser
	sink    motion.Sink
	cfg     ControllerConfig
}

// NewController returns a controller. sensors may be nil.
func NewController(stepper Stepper, sensors SensorCloser, sink motion.Sink, cfg ControllerConfig) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Period <= 0 {
		cfg.Period = 125 * time.Millisecond
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 2 * time.Second
	}
	return &Controller{stepper: stepper, sensors: sensors, sink: sink, cfg: cfg}
}

// Run steps until ctx is cancelled or the stepper fails. Cancellation is a
// clean exit and returns nil.
func (c *Controller) Run(ctx context.Context) (err error) {
	defer func() {
		if c.sensors != nil {
			if cerr := c.sensors.Close(c.cfg.ShutdownTimeout); cerr != nil {
				err = errors.Join(err, fmt.Errorf("close sensors: %w", cerr))
			}
		}
		if c.cfg.OnExit != nil {
			c.cfg.OnExit()
		}
		if serr := c.sink.Apply(motion.Stop); serr != nil {
			err = errors.Join(err, fmt.Errorf("final stop: %w", serr))
		}
		monitoring.Logf("[nav] control loop stopped")
	}()

	ticker := c.cfg.Clock.NewTicker(c.cfg.Period)
	defer ticker.Stop()

	monitoring.Logf("[nav] control loop running every %s", c.cfg.Period)
	for {
		cmd, serr := c.stepper.Step(ctx)
		if serr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("control step: %w", serr)
		}
		if aerr := c.sink.Apply(cmd); aerr != nil {
			monitoring.Logf("[nav] failed to apply %s: %v", cmd, aerr)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		}
	}
}
