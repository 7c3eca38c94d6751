// Package ultrasonic implements the pulse-echo point ranger that backs up
// the rangefinder's front sector.
package ultrasonic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/navcore/internal/monitoring"
	"github.com/banshee-data/navcore/internal/ranging"
	"github.com/banshee-data/navcore/internal/timeutil"
)

const (
	// SpeedOfSoundMMPerSec is the speed of sound in air at about 20°C.
	SpeedOfSoundMMPerSec = 343000.0

	DefaultMaxRangeMM   = 4000.0
	DefaultEchoTimeout  = 50 * time.Millisecond
	DefaultPeriod       = 100 * time.Millisecond
	DefaultTriggerPulse = 10 * time.Microsecond
)

// Config tunes a Ranger. Zero fields take the defaults above.
type Config struct {
	MaxRangeMM   float64
	EchoTimeout  time.Duration // applied to the rising and the falling edge separately
	Period       time.Duration
	TriggerPulse time.Duration
	Clock        timeutil.Clock
}

// Ranger samples the point ranger on a fixed period. Its Run loop is the
// only writer of the latest distance.
type Ranger struct {
	open   PinOpener
	cfg    Config
	latest ranging.Latest[ranging.Distance]

	mu   sync.Mutex
	pins Pins
}

// New returns an unopened ranger.
func New(open PinOpener, cfg Config) *Ranger {
	if cfg.MaxRangeMM <= 0 {
		cfg.MaxRangeMM = DefaultMaxRangeMM
	}
	if cfg.EchoTimeout <= 0 {
		cfg.EchoTimeout = DefaultEchoTimeout
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.TriggerPulse <= 0 {
		cfg.TriggerPulse = DefaultTriggerPulse
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Ranger{open: open, cfg: cfg}
}

func (r *Ranger) Name() string { return "ultrasonic" }

// Open claims the trigger and echo pins.
func (r *Ranger) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pins != nil {
		return nil
	}
	pins, err := r.open()
	if err != nil {
		return fmt.Errorf("open ultrasonic pins: %w", err)
	}
	r.pins = pins
	return nil
}

// EchoDistance converts a round-trip echo time to millimetres.
func EchoDistance(elapsed time.Duration) float64 {
	return elapsed.Seconds() * SpeedOfSoundMMPerSec / 2
}

// EchoTime is the inverse of EchoDistance.
func EchoTime(mm float64) time.Duration {
	return time.Duration(mm * 2 / SpeedOfSoundMMPerSec * float64(time.Second))
}

// Measure takes one shot. A missing edge yields NoEcho and an echo beyond
// the rated range yields OutOfRange; only a pin fault returns an error.
func (r *Ranger) Measure() (ranging.Distance, error) {
	r.mu.Lock()
	pins := r.pins
	r.mu.Unlock()
	if pins == nil {
		return ranging.Distance{}, errors.New("ultrasonic ranger not open")
	}

	if err := pins.Trigger(r.cfg.TriggerPulse); err != nil {
		return ranging.Distance{}, fmt.Errorf("trigger: %w", err)
	}
	start, err := pins.WaitForEdge(Rising, r.cfg.EchoTimeout)
	if err != nil {
		return r.noEcho(err)
	}
	end, err := pins.WaitForEdge(Falling, r.cfg.EchoTimeout)
	if err != nil {
		return r.noEcho(err)
	}

	mm := EchoDistance(end.Sub(start))
	if mm > r.cfg.MaxRangeMM {
		monitoring.RecordEcho(monitoring.EchoOutOfRange)
		return ranging.Absent(ranging.OutOfRange), nil
	}
	monitoring.RecordEcho(monitoring.EchoOK)
	return ranging.Millimetres(mm), nil
}

func (r *Ranger) noEcho(err error) (ranging.Distance, error) {
	if errors.Is(err, ErrEdgeTimeout) {
		monitoring.RecordEcho(monitoring.EchoTimeout)
		return ranging.Absent(ranging.NoEcho), nil
	}
	return ranging.Distance{}, fmt.Errorf("echo: %w", err)
}

// Run samples every Period until ctx is cancelled. A pin fault ends the
// loop with an error; the last published distance is left in place.
func (r *Ranger) Run(ctx context.Context) error {
	ticker := r.cfg.Clock.NewTicker(r.cfg.Period)
	defer ticker.Stop()

	for {
		d, err := r.Measure()
		if err != nil {
			return err
		}
		r.latest.Store(d, r.cfg.Clock.Now())

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
		}
	}
}

// Distance returns the most recent sample, NoData before the first.
func (r *Ranger) Distance() ranging.Distance {
	return r.latest.Load()
}

// Samples returns how many samples have been published.
func (r *Ranger) Samples() uint64 {
	_, n := r.latest.Updated()
	return n
}

// Close releases the pins.
func (r *Ranger) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pins == nil {
		return nil
	}
	err := r.pins.Close()
	r.pins = nil
	return err
}
