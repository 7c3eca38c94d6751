package motion

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/navcore/internal/monitoring"
)

type fakeLine struct {
	writes   []int
	writeErr error
	closed   bool
}

func (f *fakeLine) Write(v int) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, v)
	return nil
}

func (f *fakeLine) Close() error {
	f.closed = true
	return nil
}

func captureLogs(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	original := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})
	t.Cleanup(func() { monitoring.Logf = original })
	return &lines
}

func TestCommand_StringRoundTrip(t *testing.T) {
	for _, c := range Commands {
		got, err := ParseCommand(strings.ToUpper(c.String()))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	assert.Equal(t, "command(9)", Command(9).String())

	_, err := ParseCommand("turn_left")
	assert.Error(t, err)
}

func TestLevels(t *testing.T) {
	tests := []struct {
		cmd         Command
		right, left int
	}{
		{Stop, 0, 0},
		{Forward, 1, 1},
		{Left, 1, 0},
		{Right, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.cmd.String(), func(t *testing.T) {
			r, l := Levels(tt.cmd)
			assert.Equal(t, tt.right, r)
			assert.Equal(t, tt.left, l)
		})
	}
}

func TestDriver_LogsOnlyOnChange(t *testing.T) {
	logs := captureLogs(t)
	right, left := &fakeLine{}, &fakeLine{}
	d := NewDriver(right, left)

	for _, c := range []Command{Forward, Forward, Forward, Left, Left, Stop} {
		require.NoError(t, d.Apply(c))
	}

	assert.Len(t, *logs, 3)
	assert.Equal(t, []int{1, 1, 1, 1, 1, 0}, right.writes)
	assert.Equal(t, []int{1, 1, 1, 0, 0, 0}, left.writes)
}

func TestDriver_FailedWriteIsRetried(t *testing.T) {
	logs := captureLogs(t)
	right, left := &fakeLine{}, &fakeLine{writeErr: errors.New("EBUSY")}
	d := NewDriver(right, left)

	assert.Error(t, d.Apply(Forward))
	assert.Empty(t, *logs)

	left.writeErr = nil
	require.NoError(t, d.Apply(Forward))
	assert.Len(t, *logs, 1)
}

func TestDriver_CloseStopsAndReleases(t *testing.T) {
	captureLogs(t)
	right, left := &fakeLine{}, &fakeLine{}
	d := NewDriver(right, left)
	require.NoError(t, d.Apply(Forward))

	require.NoError(t, d.Close())
	assert.Equal(t, 0, right.writes[len(right.writes)-1])
	assert.Equal(t, 0, left.writes[len(left.writes)-1])
	assert.True(t, right.closed)
	assert.True(t, left.closed)
}

func TestLogSink(t *testing.T) {
	logs := captureLogs(t)
	var s LogSink
	for _, c := range []Command{Stop, Stop, Right, Right, Stop} {
		require.NoError(t, s.Apply(c))
	}
	assert.Len(t, *logs, 3)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	_, ok := r.Last()
	assert.False(t, ok)

	require.NoError(t, r.Apply(Left))
	r.Err = errors.New("boom")
	assert.Error(t, r.Apply(Stop))

	assert.Equal(t, []Command{Left, Stop}, r.Commands())
	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, Stop, last)
}
