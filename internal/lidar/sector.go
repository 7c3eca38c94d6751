package lidar

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/navcore/internal/lidar/parse"
	"github.com/banshee-data/navcore/internal/ranging"
)

// Sector bounds in degrees, measured counter-clockwise from straight ahead.
const (
	LeftSectorMin  = 45.0
	LeftSectorMax  = 135.0
	RightSectorMin = 225.0
	RightSectorMax = 315.0
)

// SectorConfig controls how a measurement batch is partitioned.
type SectorConfig struct {
	FrontHalfWidthDeg float64 // front sector is ±this around 0°
	MaxRangeMM        float64 // points at or beyond this are discarded
}

// DefaultSectorConfig matches the rangefinder's datasheet range.
func DefaultSectorConfig() SectorConfig {
	return SectorConfig{FrontHalfWidthDeg: 30, MaxRangeMM: 12000}
}

// Aggregate reduces a batch to front-min, left-mean and right-mean.
// Points with distance 0 or at/beyond MaxRangeMM never contribute, and an
// empty sector reports NoData.
func Aggregate(batch []parse.Measurement, cfg SectorConfig) ranging.Summary {
	var front, left, right []float64
	for _, m := range batch {
		if m.DistanceMM <= 0 || float64(m.DistanceMM) >= cfg.MaxRangeMM {
			continue
		}
		d := float64(m.DistanceMM)
		a := parse.WrapDegrees(m.AngleDeg)
		switch {
		case a <= cfg.FrontHalfWidthDeg || a >= 360-cfg.FrontHalfWidthDeg:
			front = append(front, d)
		case a >= LeftSectorMin && a <= LeftSectorMax:
			left = append(left, d)
		case a >= RightSectorMin && a <= RightSectorMax:
			right = append(right, d)
		}
	}

	s := ranging.Summary{}
	if len(front) > 0 {
		s.Front = ranging.Millimetres(floats.Min(front))
	}
	if len(left) > 0 {
		s.Left = ranging.Millimetres(stat.Mean(left, nil))
	}
	if len(right) > 0 {
		s.Right = ranging.Millimetres(stat.Mean(right, nil))
	}
	return s
}
