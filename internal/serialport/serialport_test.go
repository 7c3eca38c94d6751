package serialport

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptions_Normalise_Defaults(t *testing.T) {
	got, err := PortOptions{}.Normalise()
	require.NoError(t, err)
	assert.Equal(t, DefaultBaudRate, got.BaudRate)
	assert.Equal(t, 8, got.DataBits)
	assert.Equal(t, 1, got.StopBits)
	assert.Equal(t, "N", got.Parity)
	assert.Equal(t, DefaultReadTimeout, got.ReadTimeout)
}

func TestPortOptions_Normalise_ExplicitValues(t *testing.T) {
	got, err := PortOptions{BaudRate: 115200, DataBits: 7, StopBits: 2, Parity: "even", ReadTimeout: time.Second}.Normalise()
	require.NoError(t, err)
	assert.Equal(t, 115200, got.BaudRate)
	assert.Equal(t, 7, got.DataBits)
	assert.Equal(t, 2, got.StopBits)
	assert.Equal(t, "E", got.Parity)
	assert.Equal(t, time.Second, got.ReadTimeout)
}

func TestPortOptions_Normalise_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
	}{
		{"data bits too small", PortOptions{DataBits: 4}},
		{"data bits too large", PortOptions{DataBits: 9}},
		{"stop bits", PortOptions{StopBits: 3}},
		{"parity", PortOptions{Parity: "mark"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.Normalise()
			assert.Error(t, err)
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, DefaultBaudRate, mode.BaudRate)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.OddParity, mode.Parity)

	_, err = PortOptions{Parity: "X"}.SerialMode()
	assert.Error(t, err)
}

func TestContextReader_SkipsEmptyReads(t *testing.T) {
	port := NewTestablePort()
	port.ReadTimeout = time.Millisecond
	go func() {
		time.Sleep(5 * time.Millisecond)
		port.AddReadData([]byte{0x54})
	}()

	buf := make([]byte, 4)
	n, err := NewContextReader(context.Background(), port).Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(0x54), buf[0])
	assert.Greater(t, port.ReadCalls, 1)
}

func TestContextReader_StopsOnCancel(t *testing.T) {
	port := NewTestablePort()
	port.ReadTimeout = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewContextReader(ctx, port).Read(make([]byte, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTestablePort_ErrorsAndClose(t *testing.T) {
	port := NewTestablePort()
	boom := errors.New("boom")
	port.QueueReadError(boom)

	_, err := port.Read(make([]byte, 1))
	assert.ErrorIs(t, err, boom)

	require.NoError(t, port.Close())
	assert.True(t, port.IsClosed())
	_, err = port.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrPortClosed)
}

func TestMockOpener(t *testing.T) {
	port := NewTestablePort()
	opener := &MockOpener{Port: port}
	got, err := opener.Open("/dev/ttyAMA0", PortOptions{})
	require.NoError(t, err)
	assert.Same(t, port, got)
	assert.Equal(t, []string{"/dev/ttyAMA0"}, opener.Calls)

	opener.Error = errors.New("no such device")
	_, err = opener.Open("/dev/ttyUSB9", PortOptions{})
	assert.Error(t, err)
}

func TestReplayPort_Loops(t *testing.T) {
	port := NewReplayPort([]byte{1, 2, 3}, 2, 0)
	got := make([]byte, 0, 6)
	buf := make([]byte, 8)
	for len(got) < 6 {
		n, err := port.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, []byte{1, 2, 3, 1, 2, 3}, got)

	require.NoError(t, port.Close())
	_, err := port.Read(buf)
	assert.ErrorIs(t, err, ErrPortClosed)

	var _ io.ReadCloser = port
}
