// Package lidar turns the spinning rangefinder's decoded frames into
// per-sector clearance summaries and runs the device's polling loop.
package lidar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/navcore/internal/lidar/parse"
	"github.com/banshee-data/navcore/internal/monitoring"
	"github.com/banshee-data/navcore/internal/ranging"
	"github.com/banshee-data/navcore/internal/serialport"
	"github.com/banshee-data/navcore/internal/timeutil"
)

// DefaultRetryDelay is the pause after a failed read before the loop tries
// the port again.
const DefaultRetryDelay = 250 * time.Millisecond

// DefaultSectorHold is how long a sector keeps its last valid reading while
// frames covering other angles arrive. About three revolutions.
const DefaultSectorHold = 300 * time.Millisecond

// RangefinderConfig wires a Rangefinder to its serial port.
type RangefinderConfig struct {
	Path       string
	Port       serialport.PortOptions
	Opener     serialport.Opener // defaults to serialport.OpenReal
	Sectors    SectorConfig
	OffsetMM   int
	Clock      timeutil.Clock
	RetryDelay time.Duration
	// SectorHold bounds how stale a held sector may be. Negative disables
	// holding so every summary reflects one frame only.
	SectorHold time.Duration
}

// Rangefinder owns the serial link to the spinning rangefinder. Its Run loop
// is the only writer of the latest sector summary.
type Rangefinder struct {
	cfg    RangefinderConfig
	latest ranging.Latest[ranging.Summary]
	hold   sectorHold

	mu   sync.Mutex
	port serialport.Port
}

// NewRangefinder returns an unopened rangefinder.
func NewRangefinder(cfg RangefinderConfig) *Rangefinder {
	if cfg.Opener == nil {
		cfg.Opener = serialport.OpenReal
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.SectorHold == 0 {
		cfg.SectorHold = DefaultSectorHold
	}
	if cfg.Sectors == (SectorConfig{}) {
		cfg.Sectors = DefaultSectorConfig()
	}
	return &Rangefinder{cfg: cfg}
}

func (r *Rangefinder) Name() string { return "lidar" }

// Open claims the serial port.
func (r *Rangefinder) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.port != nil {
		return nil
	}
	port, err := r.cfg.Opener(r.cfg.Path, r.cfg.Port)
	if err != nil {
		return fmt.Errorf("open rangefinder %s: %w", r.cfg.Path, err)
	}
	r.port = port
	return nil
}

// Run decodes frames until ctx is cancelled, publishing one summary per
// frame. Sectors the frame did not reach keep their last valid reading for
// up to SectorHold. Transient read errors are logged and retried after RetryDelay; a
// closed port or end of stream ends the loop with an error.
func (r *Rangefinder) Run(ctx context.Context) error {
	r.mu.Lock()
	port := r.port
	r.mu.Unlock()
	if port == nil {
		return errors.New("rangefinder not open")
	}

	dec := parse.NewDecoder(serialport.NewContextReader(ctx, port))
	for {
		frame, err := dec.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) || errors.Is(err, serialport.ErrPortClosed) {
				return fmt.Errorf("rangefinder stream ended: %w", err)
			}
			monitoring.Logf("[lidar] read error: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-r.cfg.Clock.After(r.cfg.RetryDelay):
			}
			continue
		}

		now := r.cfg.Clock.Now()
		summary := Aggregate(frame.Measurements(r.cfg.OffsetMM), r.cfg.Sectors)
		r.latest.Store(r.hold.apply(summary, now, r.cfg.SectorHold), now)
	}
}

// sectorHold remembers the last valid reading per sector. A frame only
// covers a few degrees, so most frames leave most sectors empty.
type sectorHold struct {
	last [3]ranging.Distance
	at   [3]time.Time
}

func (h *sectorHold) apply(s ranging.Summary, now time.Time, hold time.Duration) ranging.Summary {
	for i, d := range []*ranging.Distance{&s.Front, &s.Left, &s.Right} {
		switch {
		case d.Valid():
			h.last[i], h.at[i] = *d, now
		case hold > 0 && h.last[i].Valid() && now.Sub(h.at[i]) <= hold:
			*d = h.last[i]
		}
	}
	return s
}

// Summary returns the most recently published sector summary. Every sector
// reads NoData until the first frame arrives.
func (r *Rangefinder) Summary() ranging.Summary {
	return r.latest.Load()
}

// Frames returns how many summaries have been published.
func (r *Rangefinder) Frames() uint64 {
	_, n := r.latest.Updated()
	return n
}

// Close releases the serial port.
func (r *Rangefinder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.port == nil {
		return nil
	}
	err := r.port.Close()
	r.port = nil
	return err
}
