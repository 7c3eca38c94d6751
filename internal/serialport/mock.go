package serialport

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrPortClosed is returned by reads on a closed test or replay port.
var ErrPortClosed = errors.New("serial port closed")

// TestablePort implements TimeoutPort with configurable behaviour for testing.
// When its buffer is empty a read waits up to ReadTimeout for data and then
// returns (0, nil), matching go.bug.st/serial.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// ReadErrors are returned, one per call, before any buffered data
	ReadErrors []error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	readCond *sync.Cond
}

// NewTestablePort creates a new TestablePort for testing.
func NewTestablePort() *TestablePort {
	p := &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		ReadTimeout: 10 * time.Millisecond,
	}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read returns buffered data, a queued error, or (0, nil) after the read
// timeout elapses with nothing to deliver.
func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadCalls++

	if p.Closed {
		return 0, ErrPortClosed
	}
	if len(p.ReadErrors) > 0 {
		err := p.ReadErrors[0]
		p.ReadErrors = p.ReadErrors[1:]
		return 0, err
	}

	if p.ReadBuffer.Len() == 0 {
		deadline := time.Now().Add(p.ReadTimeout)
		timer := time.AfterFunc(p.ReadTimeout, func() {
			p.mu.Lock()
			p.readCond.Broadcast()
			p.mu.Unlock()
		})
		defer timer.Stop()
		for !p.Closed && p.ReadBuffer.Len() == 0 && time.Now().Before(deadline) {
			p.readCond.Wait()
		}
		if p.Closed {
			return 0, ErrPortClosed
		}
		if p.ReadBuffer.Len() == 0 {
			return 0, nil
		}
	}

	return p.ReadBuffer.Read(b)
}

// Close marks the port as closed and wakes blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Closed = true
	p.readCond.Broadcast()
	return p.CloseError
}

// IsClosed reports whether Close has been called.
func (p *TestablePort) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Closed
}

// SetReadTimeout implements TimeoutPort.
func (p *TestablePort) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (p *TestablePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadBuffer.Write(data)
	p.readCond.Broadcast()
}

// QueueReadError makes a future Read return err.
func (p *TestablePort) QueueReadError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ReadErrors = append(p.ReadErrors, err)
	p.readCond.Broadcast()
}

// MockOpener records Open calls and returns a fixed port or error.
type MockOpener struct {
	mu sync.Mutex

	// Port is the port to return from Open
	Port Port

	// Error is returned by Open if set
	Error error

	// Calls records the paths passed to Open
	Calls []string
}

// Open implements Opener.
func (m *MockOpener) Open(path string, _ PortOptions) (Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, path)
	if m.Error != nil {
		return nil, m.Error
	}
	return m.Port, nil
}

// ReplayPort loops a recorded byte stream at a fixed pace, standing in for
// the rangefinder in dev mode.
type ReplayPort struct {
	data     []byte
	chunk    int
	interval time.Duration

	mu     sync.Mutex
	pos    int
	closed bool
}

// NewReplayPort replays data in chunks of chunk bytes every interval.
func NewReplayPort(data []byte, chunk int, interval time.Duration) *ReplayPort {
	if chunk <= 0 {
		chunk = len(data)
	}
	return &ReplayPort{data: data, chunk: chunk, interval: interval}
}

func (r *ReplayPort) Read(b []byte) (int, error) {
	time.Sleep(r.interval)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, ErrPortClosed
	}
	if len(r.data) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(b) && n < r.chunk {
		b[n] = r.data[r.pos]
		r.pos = (r.pos + 1) % len(r.data)
		n++
	}
	return n, nil
}

// Close stops the replay.
func (r *ReplayPort) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
