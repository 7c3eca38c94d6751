// Package serialport abstracts the serial link to the spinning rangefinder so
// the frame decoder can be exercised without hardware.
package serialport

import (
	"context"
	"io"
	"time"
)

// Port is the minimal interface needed from a serial device.
type Port interface {
	io.Reader
	io.Closer
}

// TimeoutPort is implemented by ports whose reads return (0, nil) after a
// configurable idle period instead of blocking forever.
type TimeoutPort interface {
	Port
	SetReadTimeout(timeout time.Duration) error
}

// Opener opens the serial device at path.
type Opener func(path string, opts PortOptions) (Port, error)

// ContextReader adapts a port with read timeouts to an io.Reader that keeps
// retrying empty reads until data arrives or ctx is cancelled. Without it a
// bufio.Reader gives up with io.ErrNoProgress on an idle line.
type ContextReader struct {
	ctx context.Context
	r   io.Reader
}

// NewContextReader wraps r.
func NewContextReader(ctx context.Context, r io.Reader) *ContextReader {
	return &ContextReader{ctx: ctx, r: r}
}

func (c *ContextReader) Read(p []byte) (int, error) {
	for {
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}
		n, err := c.r.Read(p)
		if n > 0 || err != nil {
			return n, err
		}
	}
}
