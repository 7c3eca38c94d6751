package ultrasonic

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kidoman/embd"
)

// ErrEdgeTimeout is returned by WaitForEdge when the echo line does not
// change within the timeout.
var ErrEdgeTimeout = errors.New("echo edge timeout")

// Edge selects which echo transition to wait for.
type Edge uint8

const (
	Rising Edge = iota
	Falling
)

func (e Edge) String() string {
	if e == Rising {
		return "rising"
	}
	return "falling"
}

// Pins is the ranger's trigger output and echo input.
type Pins interface {
	// Trigger drives the trigger line high for pulse.
	Trigger(pulse time.Duration) error
	// WaitForEdge blocks until the echo line makes the given transition and
	// returns when it happened, or ErrEdgeTimeout.
	WaitForEdge(edge Edge, timeout time.Duration) (time.Time, error)
	Close() error
}

// PinOpener claims the pins when the ranger is opened.
type PinOpener func() (Pins, error)

type echoEvent struct {
	edge Edge
	at   time.Time
}

// edgeQueue timestamps echo transitions as they are reported. The echo pin
// idles low and each shot produces one high pulse, so edges after a reset
// alternate rising, falling. Reading the pin level inside the callback is
// not used: on a short echo the line has already fallen again by the time
// the rising edge is handled.
type edgeQueue struct {
	mu     sync.Mutex
	seen   int
	events chan echoEvent
}

func newEdgeQueue() *edgeQueue {
	return &edgeQueue{events: make(chan echoEvent, 8)}
}

// record queues a transition observed at at. Edges beyond the buffer are
// dropped; the waiter then times out and the shot reads as no echo.
func (q *edgeQueue) record(at time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	edge := Rising
	if q.seen%2 == 1 {
		edge = Falling
	}
	q.seen++
	select {
	case q.events <- echoEvent{edge: edge, at: at}:
	default:
	}
}

// reset discards edges left over from the previous shot and restarts the
// rising/falling count.
func (q *edgeQueue) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seen = 0
	for {
		select {
		case <-q.events:
		default:
			return
		}
	}
}

func (q *edgeQueue) wait(edge Edge, timeout time.Duration) (time.Time, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-q.events:
			if ev.edge == edge {
				return ev.at, nil
			}
		case <-timer.C:
			return time.Time{}, fmt.Errorf("%s: %w", edge, ErrEdgeTimeout)
		}
	}
}

// GPIOPins drives a trigger/echo pair through embd digital pins. Echo edges
// are captured by an edge watch so their timestamps do not depend on when
// the sampler gets scheduled.
type GPIOPins struct {
	trigger embd.DigitalPin
	echo    embd.DigitalPin
	edges   *edgeQueue

	closeOnce sync.Once
}

// OpenGPIOPins claims triggerPin as an output and echoPin as an input with
// an edge watch. embd.InitGPIO must have been called.
func OpenGPIOPins(triggerPin, echoPin int) (*GPIOPins, error) {
	trig, err := embd.NewDigitalPin(triggerPin)
	if err != nil {
		return nil, fmt.Errorf("claim trigger pin %d: %w", triggerPin, err)
	}
	if err := trig.SetDirection(embd.Out); err != nil {
		trig.Close()
		return nil, fmt.Errorf("trigger pin %d as output: %w", triggerPin, err)
	}
	if err := trig.Write(embd.Low); err != nil {
		trig.Close()
		return nil, fmt.Errorf("settle trigger pin %d: %w", triggerPin, err)
	}

	echo, err := embd.NewDigitalPin(echoPin)
	if err != nil {
		trig.Close()
		return nil, fmt.Errorf("claim echo pin %d: %w", echoPin, err)
	}
	if err := echo.SetDirection(embd.In); err != nil {
		trig.Close()
		echo.Close()
		return nil, fmt.Errorf("echo pin %d as input: %w", echoPin, err)
	}

	p := &GPIOPins{trigger: trig, echo: echo, edges: newEdgeQueue()}
	if err := echo.Watch(embd.EdgeBoth, p.onEdge); err != nil {
		trig.Close()
		echo.Close()
		return nil, fmt.Errorf("watch echo pin %d: %w", echoPin, err)
	}
	return p, nil
}

func (p *GPIOPins) onEdge(embd.DigitalPin) {
	p.edges.record(time.Now())
}

// Trigger discards edges left over from the previous shot, then pulses the
// trigger line.
func (p *GPIOPins) Trigger(pulse time.Duration) error {
	p.edges.reset()
	if err := p.trigger.Write(embd.High); err != nil {
		return err
	}
	time.Sleep(pulse)
	return p.trigger.Write(embd.Low)
}

func (p *GPIOPins) WaitForEdge(edge Edge, timeout time.Duration) (time.Time, error) {
	return p.edges.wait(edge, timeout)
}

// Close stops the edge watch and releases both pins.
func (p *GPIOPins) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = errors.Join(p.echo.StopWatching(), p.echo.Close(), p.trigger.Close())
	})
	return err
}

// EchoFunc reports the round-trip echo time for the n-th shot, or false
// when no echo comes back.
type EchoFunc func(n int) (time.Duration, bool)

// FakePins simulates the ranger without hardware. Time does not pass: edge
// timestamps are synthesised from the echo function. An echo longer than the
// falling-edge timeout reads as a stuck echo line.
type FakePins struct {
	Echo       EchoFunc
	TriggerErr error

	mu      sync.Mutex
	shots   int
	pending time.Duration
	hasEcho bool
	risen   time.Time
	closed  bool
}

// NewFakePins returns fake pins driven by echo.
func NewFakePins(echo EchoFunc) *FakePins {
	return &FakePins{Echo: echo, risen: time.Unix(0, 0)}
}

func (f *FakePins) Trigger(time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("pins closed")
	}
	if f.TriggerErr != nil {
		return f.TriggerErr
	}
	f.pending, f.hasEcho = f.Echo(f.shots)
	f.shots++
	return nil
}

func (f *FakePins) WaitForEdge(edge Edge, timeout time.Duration) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.hasEcho {
		return time.Time{}, fmt.Errorf("%s: %w", edge, ErrEdgeTimeout)
	}
	if edge == Rising {
		f.risen = f.risen.Add(time.Second)
		return f.risen, nil
	}
	if f.pending > timeout {
		return time.Time{}, fmt.Errorf("%s: %w", edge, ErrEdgeTimeout)
	}
	return f.risen.Add(f.pending), nil
}

func (f *FakePins) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Shots returns how many triggers have been issued.
func (f *FakePins) Shots() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shots
}

// Closed reports whether Close was called.
func (f *FakePins) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
