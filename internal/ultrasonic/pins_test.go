package ultrasonic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdgeQueue_ShortEcho(t *testing.T) {
	// A 150mm echo is under a millisecond wide; both edges are usually
	// handled after the line has dropped again.
	q := newEdgeQueue()
	q.reset()
	t0 := time.Unix(100, 0)
	q.record(t0)
	q.record(t0.Add(EchoTime(150)))

	rise, err := q.wait(Rising, 10*time.Millisecond)
	require.NoError(t, err)
	fall, err := q.wait(Falling, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, t0, rise)
	assert.InDelta(t, 150, EchoDistance(fall.Sub(rise)), 0.01)
}

func TestEdgeQueue_ResetDiscardsPreviousShot(t *testing.T) {
	q := newEdgeQueue()
	t0 := time.Unix(100, 0)
	q.record(t0) // rising edge whose falling edge never arrived

	q.reset()
	q.record(t0.Add(time.Second))
	q.record(t0.Add(time.Second + EchoTime(500)))

	rise, err := q.wait(Rising, 10*time.Millisecond)
	require.NoError(t, err)
	fall, err := q.wait(Falling, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Second), rise)
	assert.InDelta(t, 500, EchoDistance(fall.Sub(rise)), 0.01)
}

func TestEdgeQueue_MissingFallingEdgeTimesOut(t *testing.T) {
	q := newEdgeQueue()
	q.reset()
	q.record(time.Unix(100, 0))

	_, err := q.wait(Rising, 10*time.Millisecond)
	require.NoError(t, err)
	_, err = q.wait(Falling, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrEdgeTimeout)
}

func TestEdgeQueue_WaitSkipsOtherEdge(t *testing.T) {
	q := newEdgeQueue()
	q.reset()
	t0 := time.Unix(100, 0)
	q.record(t0)
	q.record(t0.Add(time.Millisecond))

	fall, err := q.wait(Falling, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Millisecond), fall)
}

func TestGPIOPins_OnEdgeDoesNotReadPin(t *testing.T) {
	p := &GPIOPins{edges: newEdgeQueue()}
	p.onEdge(nil)
	p.onEdge(nil)

	rise, err := p.WaitForEdge(Rising, 10*time.Millisecond)
	require.NoError(t, err)
	fall, err := p.WaitForEdge(Falling, 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, fall.Before(rise))
}
