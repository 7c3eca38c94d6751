// Package ranging holds the value types shared by every ranging device:
// a distance that can explicitly be absent, the per-sector summary produced
// by the rangefinder, and a single-writer cell for publishing the latest
// sample from a polling loop.
package ranging

import (
	"fmt"
	"math"
)

// Status qualifies a Distance. The zero value is NoData so that an
// uninitialised reading never looks like a measurement.
type Status uint8

const (
	NoData     Status = iota // nothing measured yet, empty sector or failed device
	Valid                    // MM holds a real measurement
	NoEcho                   // point ranger timed out waiting for an edge
	OutOfRange               // echo computed beyond the device's rated maximum
)

func (s Status) String() string {
	switch s {
	case NoData:
		return "no-data"
	case Valid:
		return "valid"
	case NoEcho:
		return "no-echo"
	case OutOfRange:
		return "out-of-range"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Distance is a range in millimetres. Only a Valid distance carries a
// meaningful MM value; every other status means "no reliable reading" and
// compares as farther than any real measurement.
type Distance struct {
	MM     float64
	Status Status
}

// Millimetres returns a valid distance.
func Millimetres(mm float64) Distance {
	return Distance{MM: mm, Status: Valid}
}

// Absent returns a distance with no reliable reading for the given reason.
func Absent(reason Status) Distance {
	if reason == Valid {
		reason = NoData
	}
	return Distance{Status: reason}
}

// Valid reports whether d holds a real measurement.
func (d Distance) Valid() bool { return d.Status == Valid }

// Below reports whether d is a real measurement closer than threshold.
// Absent distances are never below any threshold.
func (d Distance) Below(threshold float64) bool {
	return d.Valid() && d.MM < threshold
}

// Greater reports whether d is strictly farther than o. An absent distance
// is farther than any valid one; two absent distances are equal.
func (d Distance) Greater(o Distance) bool {
	return d.orInf() > o.orInf()
}

func (d Distance) orInf() float64 {
	if !d.Valid() {
		return math.Inf(1)
	}
	return d.MM
}

// Nearest returns the closest valid distance among ds. When none is valid
// the first absent reason encountered is kept, defaulting to NoData.
func Nearest(ds ...Distance) Distance {
	best := Distance{}
	for _, d := range ds {
		if d.Valid() {
			if !best.Valid() || d.MM < best.MM {
				best = d
			}
			continue
		}
		if !best.Valid() && best.Status == NoData {
			best = d
		}
	}
	return best
}

func (d Distance) String() string {
	if d.Valid() {
		return fmt.Sprintf("%.0fmm", d.MM)
	}
	return d.Status.String()
}
