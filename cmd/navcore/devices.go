package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/navcore/internal/lidar/parse"
	"github.com/banshee-data/navcore/internal/navigation"
	"github.com/banshee-data/navcore/internal/serialport"
	"github.com/banshee-data/navcore/internal/ultrasonic"
)

// Dev-mode room: the robot faces a wall with a cabinet close on its left.
const (
	devFrontMM = 1800
	devLeftMM  = 900
	devRightMM = 2200
)

// devProfile returns the simulated range at a bearing in degrees. The front
// band is wider than the front sector so edge points never straddle it.
func devProfile(angleDeg float64) uint16 {
	switch {
	case angleDeg <= 40 || angleDeg >= 320:
		return devFrontMM
	case angleDeg < 180:
		return devLeftMM
	}
	return devRightMM
}

// devRevolution encodes one full revolution of frames, each covering
// 360/frames degrees.
func devRevolution(frames int) []byte {
	span := 36000 / frames
	var out []byte
	for i := 0; i < frames; i++ {
		f := parse.Frame{
			Speed:      3600,
			StartAngle: uint16(i * span),
			StopAngle:  uint16(((i + 1) * span) % 36000),
			Timestamp:  uint16(i * 8),
		}
		step := float64(span) / parse.AngleScale / float64(parse.PointsPerFrame-1)
		for p := range f.Points {
			angle := float64(i*span)/parse.AngleScale + float64(p)*step
			f.Points[p] = parse.Point{Distance: devProfile(angle), Quality: 200}
		}
		out = append(out, parse.Encode(f)...)
	}
	return out
}

// newDevPort replays the dev room at roughly ten revolutions per second.
func newDevPort() *serialport.ReplayPort {
	return serialport.NewReplayPort(devRevolution(12), parse.FrameSize, 8*time.Millisecond)
}

// devEcho answers every ping from the front wall.
func devEcho(int) (time.Duration, bool) {
	return ultrasonic.EchoTime(devFrontMM), true
}

// noVision never acquires the target; Search keeps rotating or follows the
// route until a camera pipeline is attached.
type noVision struct{}

func (noVision) Observe(ctx context.Context) (navigation.Observation, error) {
	return navigation.Observation{}, ctx.Err()
}

// parsePose reads "x,y" or "x,y,heading" in metres and degrees.
func parsePose(s string) (navigation.Pose, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 && len(parts) != 3 {
		return navigation.Pose{}, fmt.Errorf("invalid position %q, expected x,y or x,y,heading", s)
	}
	var vals [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return navigation.Pose{}, fmt.Errorf("invalid position %q: %w", s, err)
		}
		vals[i] = v
	}
	return navigation.Pose{X: vals[0], Y: vals[1], HeadingDeg: vals[2]}, nil
}

// parseArena reads "DEPTHxWIDTH" in metres.
func parseArena(s string) (depth, width float64, err error) {
	d, w, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid arena %q, expected DEPTHxWIDTH", s)
	}
	if depth, err = strconv.ParseFloat(d, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid arena depth %q: %w", d, err)
	}
	if width, err = strconv.ParseFloat(w, 64); err != nil {
		return 0, 0, fmt.Errorf("invalid arena width %q: %w", w, err)
	}
	if depth <= 0 || width <= 0 {
		return 0, 0, fmt.Errorf("arena dimensions must be positive, got %q", s)
	}
	return depth, width, nil
}
