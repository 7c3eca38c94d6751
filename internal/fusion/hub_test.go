package fusion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/navcore/internal/motion"
	"github.com/banshee-data/navcore/internal/ranging"
)

// fakeDevice can stand in for either device kind.
type fakeDevice struct {
	name     string
	openErr  error
	runErr   chan error // a value sent here ends Run with that error
	stubborn bool       // ignore cancellation until release is closed
	release  chan struct{}

	mu                 sync.Mutex
	summary            ranging.Summary
	distance           ranging.Distance
	closed             bool
	running            bool
	closedWhileRunning bool
}

func newFake(name string) *fakeDevice {
	return &fakeDevice{name: name, runErr: make(chan error, 1), release: make(chan struct{})}
}

func (f *fakeDevice) Name() string { return f.name }
func (f *fakeDevice) Open() error  { return f.openErr }

func (f *fakeDevice) Run(ctx context.Context) error {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	if f.stubborn {
		<-f.release
		return nil
	}
	select {
	case <-ctx.Done():
		return nil
	case err := <-f.runErr:
		return err
	}
}

func (f *fakeDevice) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closedWhileRunning = f.running
	return nil
}

func (f *fakeDevice) Summary() ranging.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summary
}

func (f *fakeDevice) Distance() ranging.Distance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.distance
}

func (f *fakeDevice) set(s ranging.Summary, d ranging.Distance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summary = s
	f.distance = d
}

func (f *fakeDevice) isClosed() (closed, whileRunning bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closedWhileRunning
}

func TestClearerSide(t *testing.T) {
	mm := ranging.Millimetres
	assert.Equal(t, motion.Left, ClearerSide(mm(1500), mm(1000)))
	assert.Equal(t, motion.Right, ClearerSide(mm(1000), mm(1500)))
	assert.Equal(t, motion.Right, ClearerSide(mm(1000), mm(1000)), "tie goes right")
	assert.Equal(t, motion.Right, ClearerSide(ranging.Distance{}, ranging.Distance{}), "both absent goes right")
	assert.Equal(t, motion.Left, ClearerSide(ranging.Distance{}, mm(3000)), "absent reads as far")
}

func TestHub_FusesMinimum(t *testing.T) {
	lidar, sonar := newFake("lidar"), newFake("ultrasonic")
	h := NewHub(lidar, sonar)
	require.NoError(t, h.Start(context.Background()))
	defer h.Close(time.Second)

	lidar.set(ranging.Summary{
		Front: ranging.Millimetres(800),
		Left:  ranging.Millimetres(2000),
		Right: ranging.Millimetres(1200),
	}, ranging.Distance{})
	sonar.set(ranging.Summary{}, ranging.Millimetres(450))

	r := h.Reading()
	assert.Equal(t, ranging.Millimetres(450), r.Min)
	assert.Equal(t, motion.Left, r.Preferred)
	assert.Equal(t, ranging.Millimetres(800), r.Sectors.Front)

	sonar.set(ranging.Summary{}, ranging.Absent(ranging.NoEcho))
	r = h.Reading()
	assert.Equal(t, ranging.Millimetres(800), r.Min, "no echo never beats a real reading")
}

func TestHub_DegradesWhenOneDeviceFailsToOpen(t *testing.T) {
	lidar, sonar := newFake("lidar"), newFake("ultrasonic")
	lidar.openErr = errors.New("no such device")
	lidar.set(ranging.Summary{Front: ranging.Millimetres(100)}, ranging.Distance{})
	sonar.set(ranging.Summary{}, ranging.Millimetres(900))

	h := NewHub(lidar, sonar)
	require.NoError(t, h.Start(context.Background()))
	defer h.Close(time.Second)

	r := h.Reading()
	assert.Equal(t, ranging.Millimetres(900), r.Min)
	assert.Equal(t, ranging.NoData, r.Sectors.Front.Status)

	status := h.Status()
	require.Len(t, status, 2)
	assert.True(t, status[0].Failed)
	assert.Contains(t, status[0].Error, "no such device")
	assert.False(t, status[1].Failed)
}

func TestHub_FailsLoudlyWithNoDevices(t *testing.T) {
	lidar, sonar := newFake("lidar"), newFake("ultrasonic")
	lidar.openErr = errors.New("serial busy")
	sonar.openErr = errors.New("gpio busy")

	err := NewHub(lidar, sonar).Start(context.Background())
	require.ErrorIs(t, err, ErrNoDevices)
	assert.Contains(t, err.Error(), "serial busy")
	assert.Contains(t, err.Error(), "gpio busy")

	assert.ErrorIs(t, NewHub(nil, nil).Start(context.Background()), ErrNoDevices)
}

func TestHub_LoopErrorMarksDeviceFailed(t *testing.T) {
	lidar, sonar := newFake("lidar"), newFake("ultrasonic")
	lidar.set(ranging.Summary{Front: ranging.Millimetres(300)}, ranging.Distance{})
	sonar.set(ranging.Summary{}, ranging.Millimetres(1000))

	h := NewHub(lidar, sonar)
	require.NoError(t, h.Start(context.Background()))
	defer h.Close(time.Second)
	assert.Equal(t, ranging.Millimetres(300), h.Reading().Min)

	lidar.runErr <- errors.New("stream ended")
	require.Eventually(t, func() bool { return h.Status()[0].Failed }, time.Second, time.Millisecond)
	assert.Equal(t, ranging.Millimetres(1000), h.Reading().Min)
}

func TestHub_CloseJoinsBeforeRelease(t *testing.T) {
	lidar, sonar := newFake("lidar"), newFake("ultrasonic")
	h := NewHub(lidar, sonar)
	require.NoError(t, h.Start(context.Background()))

	require.NoError(t, h.Close(time.Second))
	for _, d := range []*fakeDevice{lidar, sonar} {
		closed, whileRunning := d.isClosed()
		assert.True(t, closed, d.name)
		assert.False(t, whileRunning, "%s released before its loop exited", d.name)
	}
	assert.NoError(t, h.Close(time.Second), "second close is a no-op")
}

func TestHub_CloseTimeoutStillReleases(t *testing.T) {
	lidar := newFake("lidar")
	lidar.stubborn = true
	defer close(lidar.release)

	h := NewHub(lidar, nil)
	require.NoError(t, h.Start(context.Background()))

	err := h.Close(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrShutdownTimeout)
	closed, _ := lidar.isClosed()
	assert.True(t, closed)
}

func TestHub_StartTwice(t *testing.T) {
	h := NewHub(newFake("lidar"), nil)
	require.NoError(t, h.Start(context.Background()))
	defer h.Close(time.Second)
	assert.Error(t, h.Start(context.Background()))
}
