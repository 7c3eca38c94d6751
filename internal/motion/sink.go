package motion

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kidoman/embd"

	"github.com/banshee-data/navcore/internal/monitoring"
)

// Sink applies motion commands. Applying the command already in effect is a
// no-op apart from re-asserting it, and implementations log only when the
// command changes.
type Sink interface {
	Apply(c Command) error
}

// Line is a single digital output. embd.DigitalPin satisfies it.
type Line interface {
	Write(val int) error
	Close() error
}

// Driver drives a two-motor base through one on/off line per wheel.
// Turning left runs only the right wheel and vice versa.
type Driver struct {
	right Line
	left  Line

	mu      sync.Mutex
	last    Command
	applied bool
}

// NewDriver returns a driver over already-configured output lines.
func NewDriver(right, left Line) *Driver {
	return &Driver{right: right, left: left}
}

// OpenGPIODriver claims the two motor pins as outputs. embd.InitGPIO must
// have been called.
func OpenGPIODriver(rightPin, leftPin int) (*Driver, error) {
	right, err := openOutput(rightPin)
	if err != nil {
		return nil, err
	}
	left, err := openOutput(leftPin)
	if err != nil {
		right.Close()
		return nil, err
	}
	return NewDriver(right, left), nil
}

func openOutput(pin int) (embd.DigitalPin, error) {
	p, err := embd.NewDigitalPin(pin)
	if err != nil {
		return nil, fmt.Errorf("claim motor pin %d: %w", pin, err)
	}
	if err := p.SetDirection(embd.Out); err != nil {
		p.Close()
		return nil, fmt.Errorf("motor pin %d as output: %w", pin, err)
	}
	return p, nil
}

// Levels returns the right and left wheel line levels for c.
func Levels(c Command) (right, left int) {
	switch c {
	case Forward:
		return embd.High, embd.High
	case Left:
		return embd.High, embd.Low
	case Right:
		return embd.Low, embd.High
	case Stop:
		return embd.Low, embd.Low
	}
	return embd.Low, embd.Low
}

// Apply writes both lines. A failed write leaves the recorded command
// unchanged so the next Apply retries it.
func (d *Driver) Apply(c Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	r, l := Levels(c)
	if err := d.right.Write(r); err != nil {
		return fmt.Errorf("right motor: %w", err)
	}
	if err := d.left.Write(l); err != nil {
		return fmt.Errorf("left motor: %w", err)
	}
	if !d.applied || d.last != c {
		monitoring.Logf("[motion] %s", c)
	}
	d.last = c
	d.applied = true
	return nil
}

// Close stops both wheels and releases the lines.
func (d *Driver) Close() error {
	stopErr := d.Apply(Stop)
	return errors.Join(stopErr, d.right.Close(), d.left.Close())
}

// LogSink only logs command changes. cmd/navcore uses it in dev mode.
type LogSink struct {
	mu      sync.Mutex
	last    Command
	applied bool
}

func (s *LogSink) Apply(c Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.applied || s.last != c {
		monitoring.Logf("[motion] %s (dry run)", c)
	}
	s.last = c
	s.applied = true
	return nil
}

// Recorder keeps every applied command. Err, when set, is returned from
// Apply after the command is recorded.
type Recorder struct {
	mu       sync.Mutex
	commands []Command
	Err      error
}

func (r *Recorder) Apply(c Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, c)
	return r.Err
}

// Commands returns a copy of everything applied so far.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.commands...)
}

// Last returns the most recent command and whether any was applied.
func (r *Recorder) Last() (Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.commands) == 0 {
		return Stop, false
	}
	return r.commands[len(r.commands)-1], true
}
