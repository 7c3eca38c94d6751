// Package fusion runs the ranging devices' polling loops and merges their
// latest values into a single reading for the control loop.
//
// Each device loop is the sole writer of its own latest value; the hub only
// reads. No staleness is tracked: a device that stops producing keeps
// reporting its last value until its loop exits with an error.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/navcore/internal/monitoring"
	"github.com/banshee-data/navcore/internal/motion"
	"github.com/banshee-data/navcore/internal/ranging"
	"github.com/banshee-data/navcore/internal/timeutil"
)

var (
	// ErrNoDevices is returned by Start when not a single device opened.
	ErrNoDevices = errors.New("no ranging device could be opened")
	// ErrShutdownTimeout is returned by Close when a device loop did not
	// return within the timeout. Transports are released regardless.
	ErrShutdownTimeout = errors.New("device loops did not stop in time")
)

// Device is a ranging device with its own polling loop.
type Device interface {
	Name() string
	// Open claims the device's transport.
	Open() error
	// Run polls until ctx is cancelled. A non-nil error means the device
	// has failed for good.
	Run(ctx context.Context) error
	// Close releases the transport. Called only after Run has returned or
	// the shutdown timeout has elapsed.
	Close() error
}

// SectorDevice is the spinning rangefinder.
type SectorDevice interface {
	Device
	Summary() ranging.Summary
}

// PointDevice is a single-beam forward ranger.
type PointDevice interface {
	Device
	Distance() ranging.Distance
}

// Reading is the fused view of every healthy device.
type Reading struct {
	// Min is the nearest valid distance ahead across all devices.
	Min ranging.Distance
	// Preferred is the clearer side to turn towards.
	Preferred motion.Command
	Sectors   ranging.Summary
	Point     ranging.Distance
}

// ClearerSide returns Left only when left is strictly farther than right.
// Ties, including both sides absent, go Right.
func ClearerSide(left, right ranging.Distance) motion.Command {
	if left.Greater(right) {
		return motion.Left
	}
	return motion.Right
}

// DeviceStatus describes one device for diagnostics.
type DeviceStatus struct {
	Name   string `json:"name"`
	Open   bool   `json:"open"`
	Failed bool   `json:"failed"`
	Error  string `json:"error,omitempty"`
}

type deviceState struct {
	dev    Device
	open   bool
	failed bool
	err    error
}

// Hub owns the device loops. Either device may be nil.
type Hub struct {
	sectors SectorDevice
	point   PointDevice
	clock   timeutil.Clock

	mu      sync.Mutex
	states  []*deviceState
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	closed  bool
}

// NewHub returns a hub over the given devices.
func NewHub(sectors SectorDevice, point PointDevice) *Hub {
	h := &Hub{sectors: sectors, point: point, clock: timeutil.RealClock{}}
	if sectors != nil {
		h.states = append(h.states, &deviceState{dev: sectors})
	}
	if point != nil {
		h.states = append(h.states, &deviceState{dev: point})
	}
	return h
}

// SetClock replaces the clock used for the shutdown bound.
func (h *Hub) SetClock(c timeutil.Clock) {
	h.clock = c
}

// Start opens every device and launches a loop for each one that opened.
// A device that fails to open is logged and reads NoData from then on.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return errors.New("hub already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	var openErrs []error
	opened := 0
	for _, st := range h.states {
		if err := st.dev.Open(); err != nil {
			monitoring.Logf("[fusion] %s unavailable: %v", st.dev.Name(), err)
			st.failed = true
			st.err = err
			openErrs = append(openErrs, err)
			continue
		}
		st.open = true
		opened++
	}
	if opened == 0 {
		cancel()
		if len(openErrs) == 0 {
			return ErrNoDevices
		}
		return fmt.Errorf("%w: %w", ErrNoDevices, errors.Join(openErrs...))
	}

	h.cancel = cancel
	h.started = true
	for _, st := range h.states {
		if st.open {
			h.wg.Add(1)
			go h.run(ctx, st)
		}
	}
	return nil
}

func (h *Hub) run(ctx context.Context, st *deviceState) {
	defer h.wg.Done()
	err := st.dev.Run(ctx)
	if err == nil {
		return
	}
	monitoring.Logf("[fusion] %s loop stopped: %v", st.dev.Name(), err)
	h.mu.Lock()
	st.failed = true
	st.err = err
	h.mu.Unlock()
}

func (h *Hub) healthy(dev Device) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, st := range h.states {
		if st.dev == dev {
			return st.open && !st.failed
		}
	}
	return false
}

// Reading merges the latest value of each healthy device. It never blocks
// on a device.
func (h *Hub) Reading() Reading {
	var r Reading
	if h.sectors != nil && h.healthy(h.sectors) {
		r.Sectors = h.sectors.Summary()
	}
	if h.point != nil && h.healthy(h.point) {
		r.Point = h.point.Distance()
	}
	r.Min = ranging.Nearest(r.Sectors.Front, r.Point)
	r.Preferred = ClearerSide(r.Sectors.Left, r.Sectors.Right)
	monitoring.SetFusedDistance(r.Min.MM, r.Min.Valid())
	return r
}

// Status reports every device's state.
func (h *Hub) Status() []DeviceStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]DeviceStatus, 0, len(h.states))
	for _, st := range h.states {
		ds := DeviceStatus{Name: st.dev.Name(), Open: st.open, Failed: st.failed}
		if st.err != nil {
			ds.Error = st.err.Error()
		}
		out = append(out, ds)
	}
	return out
}

// Close cancels the loops, waits up to timeout for them to return and then
// releases every opened transport. Safe to call more than once.
func (h *Hub) Close(timeout time.Duration) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	var errs []error
	select {
	case <-done:
	case <-h.clock.After(timeout):
		monitoring.Logf("[fusion] device loops still running after %s", timeout)
		errs = append(errs, ErrShutdownTimeout)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, st := range h.states {
		if !st.open {
			continue
		}
		if err := st.dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", st.dev.Name(), err))
		}
		st.open = false
	}
	return errors.Join(errs...)
}
